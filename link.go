package tcns

// link.go models the bidirectional store-and-forward pipe between two
// nodes.  A Link is the physical wire plus the finite egress buffers on
// either end.  The two directions contend for a single transmission
// slot; the buffer whose head packet has waited longest wins it.

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// BufferDelayPeriod is the length (ms) of the averaging window used by the
// per-direction queuing-delay estimator
const BufferDelayPeriod = 2000

// direction orients packets flowing on the link
type direction int

const (
	// left-to-right, i.e. enqueued on the left buffer
	toRight direction = iota

	// right-to-left, i.e. enqueued on the right buffer
	toLeft
)

// inFlight associates a direction and buffer entry time with a packet
// placed on the link
type inFlight struct {
	pkt         *Packet
	dir         direction
	enqueueTime int // ms, when the packet entered the buffer
}

// Link connects two nodes with a fixed rate, propagation delay, and
// per-direction buffer capacity.  At most one packet occupies the
// transmission slot at any instant.
type Link struct {
	number   int
	linkName string
	groups   []string

	rate      int // bits per ms
	linkDelay int // ms, propagation
	bufferCap int // bits, per direction

	leftNode  Node
	rightNode Node

	leftBuf  []*inFlight
	rightBuf []*inFlight

	// remaining buffer capacity in bits; always bufferCap minus the sum
	// of sizes resident in the corresponding buffer
	leftFree  int
	rightFree int

	// the transmission slot
	current   *inFlight
	slotStart int // ms, when the current packet seized the slot
	bitsSent  int // bits of the current packet already transmitted

	// queuing-delay estimator state, per side
	sumLeftBufTime  float64
	sumRightBufTime float64
	leftThruBuffer  int
	rightThruBuffer int
	periodCountdown int

	leftDelayEstimate  float64
	rightDelayEstimate float64

	// cumulative count of packets rejected for want of buffer space
	drops int

	// bits moved across the wire during the current tick, for the rate series
	tickBitsSent int

	trace     bool
	analytics *LinkAnalytics
}

// CreateLink is a constructor.  Endpoints are attached separately so that
// topology build can create all devices before wiring them together
func CreateLink(name string, rate, delay, bufferCap int) *Link {
	lnk := new(Link)
	lnk.number = nxtID()
	lnk.linkName = name
	lnk.rate = rate
	lnk.linkDelay = delay
	lnk.bufferCap = bufferCap
	lnk.leftBuf = make([]*inFlight, 0)
	lnk.rightBuf = make([]*inFlight, 0)
	lnk.leftFree = bufferCap
	lnk.rightFree = bufferCap
	lnk.periodCountdown = BufferDelayPeriod
	lnk.analytics = createLinkAnalytics(lnk.number, name)

	LinkByID[lnk.number] = lnk
	LinkByName[name] = lnk

	return lnk
}

func (lnk *Link) LinkName() string { return lnk.linkName }
func (lnk *Link) LinkID() int      { return lnk.number }
func (lnk *Link) Drops() int       { return lnk.drops }

// setEndpoints attaches the two nodes the link connects
func (lnk *Link) setEndpoints(left, right Node) {
	lnk.leftNode = left
	lnk.rightNode = right
}

// otherEnd returns the endpoint opposite the one given
func (lnk *Link) otherEnd(oneEnd Node) Node {
	if oneEnd == lnk.leftNode {
		return lnk.rightNode
	} else if oneEnd == lnk.rightNode {
		return lnk.leftNode
	}
	return nil
}

// bufferDelay returns the most recent queuing-delay estimate for the
// buffer on the named side
func (lnk *Link) bufferDelay(dir direction) float64 {
	if dir == toRight {
		return lnk.leftDelayEstimate
	}
	return lnk.rightDelayEstimate
}

// DelayFor estimates the delay a packet leaving the given node on this
// link will experience: the propagation delay plus the queuing-delay
// estimate of the opposite side's buffer.  The opposite side governs the
// return path of the acknowledgement stream, which is the delay the
// sending node's controller actually observes
func (lnk *Link) DelayFor(node Node) float64 {
	if node == lnk.leftNode {
		return float64(lnk.linkDelay) + lnk.bufferDelay(toLeft)
	} else if node == lnk.rightNode {
		return float64(lnk.linkDelay) + lnk.bufferDelay(toRight)
	}
	panic(fmt.Errorf("DelayFor called with node unconnected to link %s", lnk.linkName))
}

// AddPacket enqueues a packet into the buffer on the sending node's side
// if it fits, and otherwise counts a drop and reports false.  A full
// buffer is the simulator's only loss signal
func (lnk *Link) AddPacket(pkt *Packet, sendingNode Node, now int) bool {
	switch sendingNode {
	case lnk.leftNode:
		if pkt.Size <= lnk.leftFree {
			lnk.leftBuf = append(lnk.leftBuf, &inFlight{pkt: pkt, dir: toRight, enqueueTime: now})
			lnk.leftFree -= pkt.Size
			lnk.logPktEvent(pkt, "enqueue", now)
			return true
		}
	case lnk.rightNode:
		if pkt.Size <= lnk.rightFree {
			lnk.rightBuf = append(lnk.rightBuf, &inFlight{pkt: pkt, dir: toLeft, enqueueTime: now})
			lnk.rightFree -= pkt.Size
			lnk.logPktEvent(pkt, "enqueue", now)
			return true
		}
	default:
		panic(fmt.Errorf("AddPacket on link %s from unconnected node", lnk.linkName))
	}

	lnk.drops += 1
	lnk.logPktEvent(pkt, "drop", now)
	return false
}

// ClearBuffer empties the buffer on the sending node's side and restores
// its free capacity.  Senders call this on retransmit so the stale
// remainder of the old window is not shipped ahead of the repaired head
func (lnk *Link) ClearBuffer(sendingNode Node) {
	switch sendingNode {
	case lnk.leftNode:
		lnk.leftBuf = lnk.leftBuf[:0]
		lnk.leftFree = lnk.bufferCap
	case lnk.rightNode:
		lnk.rightBuf = lnk.rightBuf[:0]
		lnk.rightFree = lnk.bufferCap
	default:
		panic(fmt.Errorf("ClearBuffer on link %s from unconnected node", lnk.linkName))
	}
}

// seizeSlot removes the head of the buffer whose head packet has waited
// longest and installs it in the transmission slot, crediting the buffer
// and accumulating queuing statistics.  Reports false when both buffers
// are empty
func (lnk *Link) seizeSlot(now int) bool {
	var chosen *inFlight

	leftEmpty := len(lnk.leftBuf) == 0
	rightEmpty := len(lnk.rightBuf) == 0

	switch {
	case leftEmpty && rightEmpty:
		return false
	case rightEmpty || (!leftEmpty && lnk.leftBuf[0].enqueueTime <= lnk.rightBuf[0].enqueueTime):
		chosen = lnk.leftBuf[0]
		lnk.leftBuf = lnk.leftBuf[1:]
		lnk.leftFree += chosen.pkt.Size
		lnk.sumLeftBufTime += float64(now - chosen.enqueueTime)
		lnk.leftThruBuffer += 1
	default:
		chosen = lnk.rightBuf[0]
		lnk.rightBuf = lnk.rightBuf[1:]
		lnk.rightFree += chosen.pkt.Size
		lnk.sumRightBufTime += float64(now - chosen.enqueueTime)
		lnk.rightThruBuffer += 1
	}

	lnk.current = chosen
	lnk.slotStart = now
	lnk.bitsSent = 0
	return true
}

// refreshDelayEstimates recomputes the per-side queuing-delay estimates at
// every period boundary, then resets the accumulation counters.  Between
// boundaries the estimates hold constant
func (lnk *Link) refreshDelayEstimates(interval int) {
	lnk.periodCountdown -= interval
	if lnk.periodCountdown > 0 {
		return
	}
	lnk.periodCountdown = BufferDelayPeriod

	if lnk.leftThruBuffer == 0 {
		lnk.leftDelayEstimate = 0.0
	} else {
		lnk.leftDelayEstimate = lnk.sumLeftBufTime / float64(lnk.leftThruBuffer)
	}

	if lnk.rightThruBuffer == 0 {
		lnk.rightDelayEstimate = 0.0
	} else {
		lnk.rightDelayEstimate = lnk.sumRightBufTime / float64(lnk.rightThruBuffer)
	}

	lnk.leftThruBuffer = 0
	lnk.rightThruBuffer = 0
	lnk.sumLeftBufTime = 0.0
	lnk.sumRightBufTime = 0.0
}

// deliver hands the fully transmitted packet to the endpoint it was
// addressed toward and frees the transmission slot
func (lnk *Link) deliver(now int) {
	var target Node
	if lnk.current.dir == toRight {
		target = lnk.rightNode
	} else {
		target = lnk.leftNode
	}

	lnk.logPktEvent(lnk.current.pkt, "deliver", now)
	target.ReceivePacket(lnk.current.pkt, lnk, now)
	lnk.current = nil
	lnk.bitsSent = 0
}

// Update advances the link by interval ms.  The tick's bit budget is
// interval*rate; packets are pulled from the buffers into the shared slot
// and transmitted chunk by chunk until the budget or the buffers run out.
// A packet whose propagation extends past the end of this tick stalls the
// slot until a later tick
func (lnk *Link) Update(interval, now int) {
	lnk.refreshDelayEstimates(interval)
	lnk.tickBitsSent = 0

	lnk.checkBufferInvariants()

	usageLeft := interval * lnk.rate
	for usageLeft > 0 {
		if lnk.current == nil && !lnk.seizeSlot(now) {
			break
		}

		// the leading bit cannot arrive before the propagation delay has
		// elapsed from the moment the slot was seized
		endOfDelay := lnk.slotStart + lnk.linkDelay
		if endOfDelay > now+interval {
			usageLeft = (now + interval - endOfDelay) * lnk.rate
		}

		if usageLeft <= 0 {
			break
		}

		chunk := lnk.current.pkt.Size - lnk.bitsSent
		if usageLeft < chunk {
			chunk = usageLeft
		}
		lnk.bitsSent += chunk
		lnk.tickBitsSent += chunk
		usageLeft -= chunk

		if lnk.bitsSent == lnk.current.pkt.Size {
			lnk.deliver(now)
		}
	}

	lnk.recordTick(interval, now)
}

// recordTick appends this tick's samples to the link's analytics series
func (lnk *Link) recordTick(interval, now int) {
	if lnk.analytics == nil {
		return
	}
	lnk.analytics.addLeftBuffer(float64(lnk.bufferCap-lnk.leftFree)/(float64(interval)/1000.0), now)
	lnk.analytics.addRightBuffer(float64(lnk.bufferCap-lnk.rightFree)/(float64(interval)/1000.0), now)
	lnk.analytics.addPacketLoss(lnk.drops, now)
	lnk.analytics.addLinkRate(mbps(lnk.tickBitsSent, interval), now)
}

// checkBufferInvariants panics when buffer accounting has gone wrong;
// statistics computed after a silent accounting error would be meaningless
func (lnk *Link) checkBufferInvariants() {
	leftSum := 0
	for _, entry := range lnk.leftBuf {
		leftSum += entry.pkt.Size
	}
	rightSum := 0
	for _, entry := range lnk.rightBuf {
		rightSum += entry.pkt.Size
	}

	if lnk.leftFree < 0 || lnk.leftFree > lnk.bufferCap || lnk.leftFree != lnk.bufferCap-leftSum {
		panic(fmt.Errorf("link %s left buffer accounting broken: free %d, resident %d",
			lnk.linkName, lnk.leftFree, leftSum))
	}
	if lnk.rightFree < 0 || lnk.rightFree > lnk.bufferCap || lnk.rightFree != lnk.bufferCap-rightSum {
		panic(fmt.Errorf("link %s right buffer accounting broken: free %d, resident %d",
			lnk.linkName, lnk.rightFree, rightSum))
	}
}

// logPktEvent adds a packet event to the trace when tracing is enabled
// for this link
func (lnk *Link) logPktEvent(pkt *Packet, op string, now int) {
	if !lnk.trace || simTraceMgr == nil {
		return
	}
	simTraceMgr.AddPktTrace(now, lnk.number, pkt, op)
}

// matchParam helps Link satisfy the paramObj interface
func (lnk *Link) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return lnk.linkName == attrbValue
	case "group":
		return slices.Contains(lnk.groups, attrbValue)
	}
	return false
}

// setParam assigns the parameter named in the input with the value given.
// setParam's definition here helps Link satisfy the paramObj interface
func (lnk *Link) setParam(paramType string, value valueStruct) {
	switch paramType {
	case "rate":
		// bits per ms
		lnk.rate = value.intValue
	case "delay":
		// propagation, in ms
		lnk.linkDelay = value.intValue
	case "buffer":
		// bits, per direction; only honored before traffic is resident
		if len(lnk.leftBuf) == 0 && len(lnk.rightBuf) == 0 {
			lnk.bufferCap = value.intValue
			lnk.leftFree = value.intValue
			lnk.rightFree = value.intValue
		}
	case "trace":
		lnk.trace = value.boolValue
	}
}

// paramObjName helps Link satisfy the paramObj interface
func (lnk *Link) paramObjName() string {
	return lnk.linkName
}

// mbps converts a count of bits moved during an interval (ms) to Mbps
func mbps(bits, interval int) float64 {
	return (float64(bits) / 1e6) / (float64(interval) / 1000.0)
}
