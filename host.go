package tcns

// host.go models the sources and sinks of traffic.  A host owns the
// sending side of every flow it originates (the connection state lives
// in congestion.go) and the receiving side of every flow addressed to
// it, tracked here as downloads.  Hosts have exactly one link.

import (
	"fmt"

	"github.com/iti/rngstream"
	"golang.org/x/exp/slices"
)

// download is the receiver-side record of an in-progress incoming flow.
// Only IDs are tracked; packet payloads are implicit
type download struct {
	// next data packet ID the receiver awaits; the ID every outgoing
	// acknowledgement carries
	nextPacketID int

	// last data packet ID of the flow
	maxPacketID int
}

// Host is a node that originates and absorbs flows
type Host struct {
	hostName string
	number   int
	groups   []string

	link *Link

	// count of packet IDs consumed by this host's flows; strictly
	// monotone so concurrent flows never share IDs
	totalGenPackets int

	// packets to send ahead of any data, generally acknowledgements
	// and setup announcements
	immediateQueue []*Packet

	// flows this host originates, keyed by destination
	flowsByDst map[*Host][]*activeFlow

	// flows arriving at this host, keyed by source
	downloadsBySrc map[*Host][]*download

	// flows registered but not yet activated, in registration order
	pending []*Flow

	rngstrm *rngstream.RngStream

	trace bool
}

// CreateHost is a constructor.  The link is attached separately during
// topology wiring
func CreateHost(address string) *Host {
	host := new(Host)
	host.hostName = address
	host.number = nxtID()
	host.immediateQueue = make([]*Packet, 0)
	host.flowsByDst = make(map[*Host][]*activeFlow)
	host.downloadsBySrc = make(map[*Host][]*download)
	host.pending = make([]*Flow, 0)
	host.rngstrm = rngstream.New(address)

	HostByID[host.number] = host
	HostByName[address] = host

	return host
}

func (host *Host) NodeName() string { return host.hostName }
func (host *Host) NodeID() int      { return host.number }
func (host *Host) Link() *Link      { return host.link }

// setLink attaches the host's single link
func (host *Host) setLink(lnk *Link) {
	if host.link != nil {
		panic(fmt.Errorf("host %s attached to a second link", host.hostName))
	}
	host.link = lnk
}

// AddFlow registers this host as the flow's sender.  Packet IDs are not
// consumed until the flow activates.  Each tick the host processes its
// connections grouped by destination in host-id order, and connections
// to one destination in the order they activated
func (host *Host) AddFlow(flow *Flow) {
	if flow.Src != host {
		panic(fmt.Errorf("flow %s added to host %s, not its source", flow.Name, host.hostName))
	}
	if flow.JitterMean > 0.0 {
		flow.StartTime += sampleJitter(host.rngstrm, flow.JitterModel, flow.JitterMean)
	}
	host.pending = append(host.pending, flow)
}

// activateDueFlows materializes every pending flow whose start time has
// arrived: the setup packet consumes one ID, the data packets take the
// following contiguous block, and the setup announcement joins the
// immediate queue
func (host *Host) activateDueFlows(now int) {
	remaining := host.pending[:0]
	for _, flow := range host.pending {
		if now < flow.StartTime {
			remaining = append(remaining, flow)
			continue
		}

		setupID := host.totalGenPackets
		host.totalGenPackets += 1

		packets := flow.generatePackets(host.totalGenPackets)
		host.totalGenPackets += len(packets)
		maxPacketID := setupID + len(packets)

		flow.Activated = true
		conn := createActiveFlow(flow, setupID, maxPacketID, packets)
		host.flowsByDst[flow.Dst] = append(host.flowsByDst[flow.Dst], conn)

		host.immediateQueue = append(host.immediateQueue,
			createSetupPacket(setupID, maxPacketID, host, flow.Dst))
		host.logPktEvent(host.immediateQueue[len(host.immediateQueue)-1], "activate", now)
	}
	host.pending = remaining
}

// ReceivePacket dispatches an arriving packet by kind
func (host *Host) ReceivePacket(pkt *Packet, lnk *Link, now int) {
	if lnk != host.link {
		panic(fmt.Errorf("host %s received a packet from an unattached link", host.hostName))
	}

	switch pkt.Kind {
	case AckPkt:
		host.receiveAck(pkt, now)
	case SetupPkt:
		host.receiveSetup(pkt)
	case DataPkt:
		host.receiveData(pkt, now)
	}
}

// receiveSetup starts expecting a download from the announcing host.
// The announced flow's first data packet carries the setup ID plus one
func (host *Host) receiveSetup(pkt *Packet) {
	host.downloadsBySrc[pkt.Src] = append(host.downloadsBySrc[pkt.Src],
		&download{nextPacketID: pkt.ID + 1, maxPacketID: pkt.MaxDataID})
}

// receiveData advances the matching download when the packet is the one
// awaited, and in every matched case answers with a cumulative
// acknowledgement carrying the next awaited ID.  Data outside every
// download's window is ignored
func (host *Host) receiveData(pkt *Packet, now int) {
	downloads := host.downloadsBySrc[pkt.Src]

	for idx, dwnld := range downloads {
		if dwnld.nextPacketID <= pkt.ID && pkt.ID <= dwnld.maxPacketID {
			if pkt.ID == dwnld.nextPacketID {
				dwnld.nextPacketID += 1
			}

			host.immediateQueue = append(host.immediateQueue,
				createAckPacket(dwnld.nextPacketID, host, pkt.Src))

			// all packets received; the download record is spent
			if dwnld.nextPacketID > dwnld.maxPacketID {
				host.downloadsBySrc[pkt.Src] = slices.Delete(downloads, idx, idx+1)
			}
			return
		}
	}
}

// receiveAck hands the acknowledgement to the connection it belongs to
func (host *Host) receiveAck(pkt *Packet, now int) {
	conns := host.flowsByDst[pkt.Src]

	for idx, conn := range conns {
		disposition := conn.handleAck(host, pkt, now)
		switch disposition {
		case ackCompleted:
			conn.flow.Completed = true
			host.flowsByDst[pkt.Src] = slices.Delete(conns, idx, idx+1)
			return
		case ackConsumed:
			return
		}
	}
}

// flushImmediateQueue offers every queued priority packet to the link.
// A rejected packet is lost; acknowledgement loss is recovered by the
// sender's duplicate-ACK and timer machinery
func (host *Host) flushImmediateQueue(now int) {
	for _, pkt := range host.immediateQueue {
		host.link.AddPacket(pkt, host, now)
	}
	host.immediateQueue = host.immediateQueue[:0]
}

// Update advances the host by interval ms: activate flows that have come
// due, flush the priority queue, then run every connection's timer sweep
// and window fill
func (host *Host) Update(interval, now int) {
	if host.link == nil {
		panic(fmt.Errorf("host %s has no link", host.hostName))
	}

	host.activateDueFlows(now)
	host.flushImmediateQueue(now)

	for _, dst := range host.flowDstOrder() {
		for _, conn := range host.flowsByDst[dst] {
			conn.tickBitsSent = 0
			conn.sweepTimers(host, now)
			conn.fillWindow(host, now)
			conn.recordTick(interval, now)
		}
	}
}

// flowDstOrder returns destination hosts in a deterministic order so a
// given configuration always replays identically
func (host *Host) flowDstOrder() []*Host {
	order := make([]*Host, 0, len(host.flowsByDst))
	for dst := range host.flowsByDst {
		order = append(order, dst)
	}
	slices.SortFunc(order, func(a, b *Host) int { return a.number - b.number })
	return order
}

// logPktEvent adds a packet event to the trace when tracing is enabled
// for this host
func (host *Host) logPktEvent(pkt *Packet, op string, now int) {
	if !host.trace || simTraceMgr == nil {
		return
	}
	simTraceMgr.AddPktTrace(now, host.number, pkt, op)
}

// matchParam helps Host satisfy the paramObj interface
func (host *Host) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return host.hostName == attrbValue
	case "group":
		return slices.Contains(host.groups, attrbValue)
	}
	return false
}

// setParam assigns the parameter named in the input with the value given.
// setParam's definition here helps Host satisfy the paramObj interface
func (host *Host) setParam(paramType string, value valueStruct) {
	switch paramType {
	case "trace":
		host.trace = value.boolValue
	}
}

// paramObjName helps Host satisfy the paramObj interface
func (host *Host) paramObjName() string {
	return host.hostName
}
