package tcns

// flow.go holds the static description of a data transfer.  A Flow
// describes the intent to move dataSize bits from a source host to a
// destination host starting at a given simulation time; all of the
// connection state created once the transfer begins is owned by the
// source host (see host.go).

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// FlowProtocol is the base type for an enumerated type of congestion protocols
type FlowProtocol int

const (
	RENO FlowProtocol = iota
	FAST
)

// protocolFromStr returns the FlowProtocol corresponding to a string name for it
func protocolFromStr(protocol string) (FlowProtocol, error) {
	switch protocol {
	case "Reno", "reno", "RENO":
		return RENO, nil
	case "Fast", "fast", "FAST":
		return FAST, nil
	}
	return RENO, fmt.Errorf("unrecognized protocol %s", protocol)
}

// protocolToStr returns a string name that corresponds to an input FlowProtocol
func protocolToStr(protocol FlowProtocol) string {
	if protocol == FAST {
		return "FAST"
	}
	return "RENO"
}

// Flow describes a transfer of DataSize bits from Src to Dst whose first
// packet may enter the network at StartTime (plus optional jitter).
type Flow struct {
	FlowID    int
	Name      string
	Groups    []string
	Src       *Host
	Dst       *Host
	DataSize  int // bits
	StartTime int // ms
	Protocol  FlowProtocol

	// JitterModel names a distribution ("const", "expon") used to perturb
	// StartTime when JitterMean is positive; the sample is drawn from the
	// source host's rng stream when the flow is registered
	JitterModel string
	JitterMean  float64 // ms

	// Activated flips true at the first tick where now >= StartTime,
	// which is also when the packet sequence is materialized
	Activated bool

	// Completed flips true when the source has seen the cumulative
	// acknowledgement of the last data packet
	Completed bool

	analytics *FlowAnalytics
}

// CreateFlow is a constructor.  The runtime endpoints must already exist;
// the flow is registered with its source host during topology build
func CreateFlow(name string, src, dst *Host, dataSize, startTime int,
	protocol FlowProtocol) *Flow {

	flow := new(Flow)
	flow.FlowID = nxtID()
	flow.Name = name
	flow.Src = src
	flow.Dst = dst
	flow.DataSize = dataSize
	flow.StartTime = startTime
	flow.Protocol = protocol
	flow.analytics = createFlowAnalytics(flow.FlowID, name)

	FlowByID[flow.FlowID] = flow
	FlowByName[name] = flow

	return flow
}

// generatePackets materializes the flow's data packet sequence with
// contiguous IDs starting at initID.  A flow smaller than one packet
// still emits a single packet
func (flow *Flow) generatePackets(initID int) []*Packet {
	count := flow.DataSize / DataPacketSize
	if flow.DataSize%DataPacketSize > 0 || count == 0 {
		count += 1
	}

	packets := make([]*Packet, 0, count)
	for idx := 0; idx < count; idx++ {
		packets = append(packets, createDataPacket(initID+idx, flow.Src, flow.Dst))
	}
	return packets
}

// Analytics exposes the flow's analytics collector to the experiment driver
func (flow *Flow) Analytics() *FlowAnalytics {
	return flow.analytics
}

// matchParam helps Flow satisfy the paramObj interface, testing whether a
// run-time parameter record applies to this flow
func (flow *Flow) matchParam(attrbName, attrbValue string) bool {
	switch attrbName {
	case "name":
		return flow.Name == attrbValue
	case "group":
		return slices.Contains(flow.Groups, attrbValue)
	case "srcdev":
		return flow.Src.hostName == attrbValue
	case "dstdev":
		return flow.Dst.hostName == attrbValue
	}
	return false
}

// setParam assigns the parameter named in the input with the value given.
// setParam's definition here helps Flow satisfy the paramObj interface
func (flow *Flow) setParam(paramType string, value valueStruct) {
	switch paramType {
	case "protocol":
		protocol, err := protocolFromStr(value.stringValue)
		if err == nil {
			flow.Protocol = protocol
		}
	case "start":
		flow.StartTime = value.intValue
	case "jittermodel":
		flow.JitterModel = value.stringValue
	case "jittermean":
		flow.JitterMean = value.floatValue
	}
}

// paramObjName helps Flow satisfy the paramObj interface
func (flow *Flow) paramObjName() string {
	return flow.Name
}
