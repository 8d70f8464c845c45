package tcns

// routes.go validates the topology graph.  Routing itself is static
// (each host reaches the network through its one link, relayed by
// pass-through routers when present), but before a run starts every
// flow must be shown to have a path from its source to its destination.
// The approach is the usual one: convert the device/link representation
// into the data structures of a graph package with built-in path
// discovery, weight every edge at 1, and ask for shortest paths.

import (
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// name-level adjacency recorded as links are built; nothing in the
// package reads it
var connByName map[string][]string = make(map[string][]string)

// connectNames remembers the asserted communication linkage between the
// two named devices
func connectNames(a, b string) {
	if a == b {
		return
	}
	if !slices.Contains(connByName[a], b) {
		connByName[a] = append(connByName[a], b)
	}
	if !slices.Contains(connByName[b], a) {
		connByName[b] = append(connByName[b], a)
	}
}

// buildConnGraph returns a graph representation of the topology, one
// node per device id, one unit-weight edge per link
func buildConnGraph() graph.Graph {
	connGraph := simple.NewWeightedUndirectedGraph(0, 0)

	for _, id := range sortedKeys(LinkByID) {
		lnk := LinkByID[id]
		leftID := lnk.leftNode.NodeID()
		rightID := lnk.rightNode.NodeID()
		if leftID == rightID {
			continue
		}
		weightedEdge := simple.WeightedEdge{
			F: simple.Node(leftID), T: simple.Node(rightID), W: 1.0}
		connGraph.SetWeightedEdge(weightedEdge)
	}

	return connGraph
}

// validateReachability checks that every flow's source can reach its
// destination through the built topology, reporting all the pairs that
// cannot
func validateReachability() error {
	connGraph := buildConnGraph()

	// shortest-path trees cached by source id; flows sharing a source
	// share the tree
	cachedSP := make(map[int]path.Shortest)

	missed := []string{}
	for _, id := range sortedKeys(FlowByID) {
		flow := FlowByID[id]
		srcID := flow.Src.NodeID()
		dstID := flow.Dst.NodeID()

		spTree, present := cachedSP[srcID]
		if !present {
			if connGraph.Node(int64(srcID)) == nil {
				missed = append(missed, fmt.Sprintf("%s->%s", flow.Src.hostName, flow.Dst.hostName))
				continue
			}
			spTree = path.DijkstraFrom(simple.Node(srcID), connGraph)
			cachedSP[srcID] = spTree
		}

		nodeSeq, _ := spTree.To(int64(dstID))
		if len(nodeSeq) == 0 {
			missed = append(missed, fmt.Sprintf("%s->%s", flow.Src.hostName, flow.Dst.hostName))
		}
	}

	if len(missed) == 0 {
		return nil
	}
	return fmt.Errorf("missing paths for flows %s", strings.Join(missed, ","))
}

// sortedKeys returns the integer keys of a map in increasing order, for
// deterministic iteration over the registries
func sortedKeys[V any](m map[int]V) []int {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
