package tcns

// packet.go declares the packet representation carried across links.
// A packet is immutable once created; every mutation of transfer state
// lives in the sending host's connection bookkeeping.

import "fmt"

// PacketKind is the base type for an enumerated type of packet roles
type PacketKind int

const (
	// DataPkt carries a fixed-size payload of flow data
	DataPkt PacketKind = iota

	// AckPkt carries a cumulative acknowledgement
	AckPkt

	// SetupPkt announces an incoming flow to its receiver
	SetupPkt
)

// pktKindToStr maps a PacketKind to the string used in traces and reports
var pktKindToStr map[PacketKind]string = map[PacketKind]string{
	DataPkt: "data", AckPkt: "ack", SetupPkt: "setup"}

// packet sizes in bits.  Every data packet in the simulator has the same
// size; acknowledgements and setup announcements share a small fixed size
const (
	DataPacketSize = 8192
	AckPacketSize  = 512
)

// Packet is the unit of traffic carried by a Link.  ID numbers are
// unique among all packets generated by a given source host, which
// is what lets a receiver use them for cumulative acknowledgement.
type Packet struct {
	ID   int
	Size int // bits
	Kind PacketKind
	Src  *Host
	Dst  *Host

	// MaxDataID is meaningful only on setup packets, where it names
	// the last data packet ID of the announced flow
	MaxDataID int
}

// createDataPacket is a constructor
func createDataPacket(id int, src, dst *Host) *Packet {
	return &Packet{ID: id, Size: DataPacketSize, Kind: DataPkt, Src: src, Dst: dst}
}

// createAckPacket is a constructor.  The ID of an acknowledgement is the
// next data packet ID the receiver still awaits, so src and dst here are
// the receiver and original sender respectively
func createAckPacket(id int, src, dst *Host) *Packet {
	return &Packet{ID: id, Size: AckPacketSize, Kind: AckPkt, Src: src, Dst: dst}
}

// createSetupPacket is a constructor.  The setup packet consumes one ID
// from the source host's generation counter, so the first data packet of
// the announced flow carries ID id+1 and the last carries maxDataID
func createSetupPacket(id, maxDataID int, src, dst *Host) *Packet {
	return &Packet{ID: id, Size: AckPacketSize, Kind: SetupPkt, Src: src, Dst: dst,
		MaxDataID: maxDataID}
}

func (pkt *Packet) String() string {
	return fmt.Sprintf("%s[%d] %s->%s", pktKindToStr[pkt.Kind], pkt.ID,
		pkt.Src.hostName, pkt.Dst.hostName)
}
