package tcns

// node.go declares the endpoint contract links deliver to, and the
// pass-through router used when a topology places a relay between two
// links.  Hosts (host.go) are the endpoints that originate and absorb
// traffic.

import "fmt"

// Node is an endpoint a Link can deliver packets to
type Node interface {
	NodeName() string
	NodeID() int

	// ReceivePacket accepts a fully transmitted packet from the link it
	// arrived on, at simulation time now (ms)
	ReceivePacket(pkt *Packet, lnk *Link, now int)
}

// routerDev relays packets between exactly two links without buffering
// or inspection.  The minimal configuration has no routers at all; when
// one is present it contributes no delay of its own
type routerDev struct {
	routerName string
	number     int
	links      []*Link
}

// createRouterDev is a constructor
func createRouterDev(name string) *routerDev {
	router := new(routerDev)
	router.routerName = name
	router.number = nxtID()
	router.links = make([]*Link, 0)
	return router
}

func (router *routerDev) NodeName() string { return router.routerName }
func (router *routerDev) NodeID() int      { return router.number }

// addLink attaches another link to the router.  A pass-through relay
// forwards between exactly two links
func (router *routerDev) addLink(lnk *Link) {
	if len(router.links) == 2 {
		panic(fmt.Errorf("router %s attached to more than two links", router.routerName))
	}
	router.links = append(router.links, lnk)
}

// ReceivePacket forwards the packet out the router's other link.  The
// link's own buffering applies; the relay itself holds nothing
func (router *routerDev) ReceivePacket(pkt *Packet, lnk *Link, now int) {
	for _, out := range router.links {
		if out != lnk {
			out.AddPacket(pkt, router, now)
			return
		}
	}
	panic(fmt.Errorf("router %s received a packet from an unattached link", router.routerName))
}
