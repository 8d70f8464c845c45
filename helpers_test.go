package tcns

// helpers_test.go builds the small topologies the package tests drive.

import "testing"

// twoHostTopo assembles host A -- link -- host B with the given link
// parameters, registering the supplied flows, and returns the driver
func twoHostTopo(t *testing.T, rate, delay, buffer int, flows []FlowDesc, limit int) *TickDriver {
	t.Helper()

	tc := &TopoCfg{
		Name:  "test",
		Hosts: []HostDesc{{Name: "A"}, {Name: "B"}},
		Links: []LinkDesc{{Name: "A-B", Rate: rate, Delay: delay, Buffer: buffer,
			LeftEndpoint: "A", RightEndpoint: "B"}},
		Flows: flows,
	}

	if err := BuildExperimentTopo(tc, nil, nil); err != nil {
		t.Fatalf("topology build failed: %v", err)
	}
	return CreateTickDriver(10, limit)
}

// theConn steps the driver until the named flow's connection state
// exists on its source host, then returns it
func theConn(t *testing.T, td *TickDriver, flowName string) *activeFlow {
	t.Helper()

	flow := FlowByName[flowName]
	for tick := 0; tick < 10; tick++ {
		for _, conns := range flow.Src.flowsByDst {
			for _, conn := range conns {
				if conn.flow == flow {
					return conn
				}
			}
		}
		td.step()
	}
	t.Fatalf("flow %s never activated", flowName)
	return nil
}

// captureNode is a link endpoint that records what it is handed
type captureNode struct {
	name     string
	number   int
	received []*Packet
	times    []int
}

func createCaptureNode(name string) *captureNode {
	return &captureNode{name: name, number: nxtID()}
}

func (cn *captureNode) NodeName() string { return cn.name }
func (cn *captureNode) NodeID() int      { return cn.number }

func (cn *captureNode) ReceivePacket(pkt *Packet, lnk *Link, now int) {
	cn.received = append(cn.received, pkt)
	cn.times = append(cn.times, now)
}

// testPacket builds a loose data-sized packet for direct link tests
func testPacket(id, size int) *Packet {
	return &Packet{ID: id, Size: size, Kind: DataPkt}
}
