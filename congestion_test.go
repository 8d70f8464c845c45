package tcns

// congestion_test.go drives the controller state machine directly,
// feeding it crafted acknowledgement streams.

import (
	"math"
	"testing"
)

// senderConn builds a two-host topology with one registered flow and
// returns the source host, its connection state, and the driver
func senderConn(t *testing.T, protocol string, packets int) (*Host, *activeFlow, *TickDriver) {
	t.Helper()
	td := twoHostTopo(t, 80, 10, 64*DataPacketSize, []FlowDesc{
		{Name: "f1", Src: "A", Dst: "B", DataSize: packets * DataPacketSize,
			StartTime: 0, Protocol: protocol},
	}, 60000)

	conn := theConn(t, td, "f1")
	return HostByName["A"], conn, td
}

func TestRenoSlowStartGrowth(t *testing.T) {
	host, conn, td := senderConn(t, "RENO", 8)
	td.step()

	dst := conn.flow.Dst
	if conn.cwnd != initCwnd || !conn.slowStart {
		t.Fatalf("fresh connection not in slow start with cwnd %d", initCwnd)
	}

	// each new cumulative ACK adds one packet while in slow start; the
	// fill between ACKs keeps the freed slots occupied
	front := conn.packets[0].ID
	for i := 1; i <= 3; i++ {
		conn.handleAck(host, createAckPacket(front+i, dst, host), 100*i)
		if conn.cwnd != initCwnd+i {
			t.Fatalf("after %d ACKs cwnd = %d, want %d", i, conn.cwnd, initCwnd+i)
		}
		conn.fillWindow(host, 100*i)
	}
}

func TestRenoCongestionAvoidanceGrowth(t *testing.T) {
	host, conn, td := senderConn(t, "RENO", 16)
	td.step()
	dst := conn.flow.Dst

	// drop out of slow start with a window of 4 and fill it
	conn.slowStart = false
	conn.cwnd = 4
	conn.ssthresh = 4
	conn.fillWindow(host, 0)

	front := conn.packets[0].ID
	for i := 1; i <= 3; i++ {
		conn.handleAck(host, createAckPacket(front+i, dst, host), 100*i)
		if conn.cwnd != 4 {
			t.Fatalf("window grew before a full window of ACKs arrived")
		}
	}
	conn.handleAck(host, createAckPacket(front+4, dst, host), 400)
	if conn.cwnd != 5 || conn.partialCwnd != 0 {
		t.Fatalf("after a full window of ACKs cwnd = %d partial = %d, want 5, 0",
			conn.cwnd, conn.partialCwnd)
	}
}

func TestTripleDupAckFastRetransmit(t *testing.T) {
	host, conn, td := senderConn(t, "RENO", 8)
	td.step()
	dst := conn.flow.Dst

	front := conn.packets[0].ID
	sentAt := conn.sendTimes[front]

	// two duplicates do nothing
	for i := 0; i < 2; i++ {
		conn.handleAck(host, createAckPacket(front, dst, host), 200)
		if conn.mostRecentRetransmitted == front {
			t.Fatalf("retransmitted before the third duplicate")
		}
	}
	if conn.dupAckCount != 2 {
		t.Fatalf("dup ACK count = %d, want 2", conn.dupAckCount)
	}

	// the third one retransmits the head and enters FR/FR
	conn.handleAck(host, createAckPacket(front, dst, host), 300)
	if conn.mostRecentRetransmitted != front {
		t.Fatalf("third duplicate did not retransmit")
	}
	if conn.sendTimes[front] == sentAt {
		t.Fatalf("retransmission did not restamp the send time")
	}
	if conn.ssthresh != 2 {
		t.Fatalf("ssthresh = %d, want max(cwnd/2, 2) = 2", conn.ssthresh)
	}
	if conn.cwnd != conn.ssthresh+dupAckThreshold {
		t.Fatalf("inflated cwnd = %d, want ssthresh+%d", conn.cwnd, dupAckThreshold)
	}
	if !conn.awaitingRetransmit || conn.slowStart {
		t.Fatalf("FR/FR entry flags wrong: awaiting %v slowStart %v",
			conn.awaitingRetransmit, conn.slowStart)
	}
	if conn.windowOccupied != 1 || conn.mostRecentQueued != front {
		t.Fatalf("window not collapsed to the retransmitted packet")
	}

	// duplicates beyond the third never retransmit the same head again
	stamp := conn.sendTimes[front]
	for i := 0; i < 5; i++ {
		conn.handleAck(host, createAckPacket(front, dst, host), 400)
	}
	if conn.sendTimes[front] != stamp {
		t.Fatalf("same head retransmitted twice")
	}
}

func TestWindowDeflatesAfterRecovery(t *testing.T) {
	host, conn, td := senderConn(t, "RENO", 8)
	td.step()
	dst := conn.flow.Dst
	front := conn.packets[0].ID

	for i := 0; i < 3; i++ {
		conn.handleAck(host, createAckPacket(front, dst, host), 200)
	}
	if !conn.awaitingRetransmit {
		t.Fatalf("not in fast recovery")
	}

	// the next new ACK plus the following fill deflates cwnd to ssthresh
	conn.handleAck(host, createAckPacket(front+1, dst, host), 500)
	conn.fillWindow(host, 500)
	if conn.cwnd != conn.ssthresh {
		t.Fatalf("cwnd = %d after recovery, want ssthresh %d", conn.cwnd, conn.ssthresh)
	}
	if conn.awaitingRetransmit {
		t.Fatalf("still awaiting retransmit after deflation")
	}
}

func TestTimeoutRetransmitKeepsWindow(t *testing.T) {
	host, conn, td := senderConn(t, "RENO", 4)
	td.step()
	front := conn.packets[0].ID
	cwndBefore := conn.cwnd
	ssthreshBefore := conn.ssthresh

	conn.sweepTimers(host, conn.sendTimes[front]+initTimeoutMS+20)

	if conn.windowOccupied != 1 || conn.mostRecentQueued != front {
		t.Fatalf("timeout did not collapse the window to the oldest packet")
	}
	// the slow-start re-entry on timeout is deliberately absent
	if conn.cwnd != cwndBefore || conn.ssthresh != ssthreshBefore {
		t.Fatalf("timeout mutated cwnd/ssthresh")
	}
}

func TestRttEwma(t *testing.T) {
	_, conn, _ := senderConn(t, "RENO", 4)

	conn.sampleRtt(100)
	if conn.rttMin != 100 || conn.rttAvg != 100.0 || conn.rttStdDev != 100.0 {
		t.Fatalf("first sample did not seed the statistics")
	}

	conn.sampleRtt(200)
	wantAvg := 0.9*100.0 + 0.1*200.0
	if math.Abs(conn.rttAvg-wantAvg) > 1e-9 {
		t.Fatalf("rttAvg = %f, want %f", conn.rttAvg, wantAvg)
	}
	wantDev := 0.9*100.0 + 0.1*math.Abs(200.0-wantAvg)
	if math.Abs(conn.rttStdDev-wantDev) > 1e-9 {
		t.Fatalf("rttStdDev = %f, want %f", conn.rttStdDev, wantDev)
	}
	if conn.rttMin != 100 {
		t.Fatalf("rttMin = %d, want 100", conn.rttMin)
	}

	// the derived timeout is tracked but the timer constant holds
	if conn.timeoutMS != initTimeoutMS {
		t.Fatalf("timer constant was overwritten")
	}
	if math.Abs(conn.timeoutDerived-(wantAvg+4.0*wantDev)) > 1e-9 {
		t.Fatalf("derived timeout = %f", conn.timeoutDerived)
	}
}

func TestFastWindowRule(t *testing.T) {
	_, conn, _ := senderConn(t, "FAST", 4)

	conn.cwnd = 10
	conn.rttMin = 100

	// at the base RTT the window moves halfway toward w + alpha
	conn.fastOnRttSample(100)
	want := int(math.Round(0.5*10.0 + 0.5*(10.0+fastAlpha)))
	if conn.cwnd != want {
		t.Fatalf("cwnd = %d, want %d", conn.cwnd, want)
	}

	// a long RTT shrinks the scaled term; the window cannot fall below 1
	conn.cwnd = 1
	conn.fastOnRttSample(100000)
	if conn.cwnd < 1 {
		t.Fatalf("cwnd fell below 1")
	}
}

func TestFastSkipsRenoRecovery(t *testing.T) {
	host, conn, td := senderConn(t, "FAST", 8)
	td.step()
	dst := conn.flow.Dst
	front := conn.packets[0].ID

	for i := 0; i < 3; i++ {
		conn.handleAck(host, createAckPacket(front, dst, host), 200)
	}

	// the retransmission itself is protocol-independent
	if conn.mostRecentRetransmitted != front {
		t.Fatalf("FAST connection did not fast-retransmit")
	}
	// but the Reno window surgery is not applied
	if conn.ssthresh != math.MaxInt || conn.awaitingRetransmit {
		t.Fatalf("FAST connection entered Reno recovery")
	}
}
