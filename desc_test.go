package tcns

// desc_test.go covers configuration serialization and the validation
// BuildExperimentTopo performs before a run is allowed to start.

import (
	"path/filepath"
	"strings"
	"testing"
)

func sampleTopoCfg() *TopoCfg {
	return &TopoCfg{
		Name:  "sample",
		Hosts: []HostDesc{{Name: "A", Groups: []string{"senders"}}, {Name: "B"}},
		Links: []LinkDesc{{Name: "A-B", Rate: 80, Delay: 10, Buffer: 65536,
			LeftEndpoint: "A", RightEndpoint: "B"}},
		Flows: []FlowDesc{{Name: "f1", Src: "A", Dst: "B", DataSize: 81920,
			StartTime: 0, Protocol: "RENO"}},
	}
}

func TestTopoCfgRoundTrip(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"topo.yaml", "topo.json"} {
		filename := filepath.Join(dir, name)
		tc := sampleTopoCfg()
		if err := tc.WriteToFile(filename); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}

		useYAML := strings.HasSuffix(name, ".yaml")
		read, err := ReadTopoCfg(filename, useYAML, nil)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if read.Name != tc.Name || len(read.Hosts) != 2 || len(read.Links) != 1 || len(read.Flows) != 1 {
			t.Fatalf("%s round trip lost structure: %+v", name, read)
		}
		if read.Links[0].Buffer != 65536 || read.Flows[0].Protocol != "RENO" {
			t.Fatalf("%s round trip lost values", name)
		}
	}
}

func TestExpCfgRoundTrip(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "exp.yaml")

	xc := CreateExpCfg("exp")
	xc.AddParameter("Link", []AttrbStruct{{AttrbName: "*"}}, "rate", "160")
	xc.AddParameter("Flow", []AttrbStruct{{AttrbName: "name", AttrbValue: "f1"}}, "protocol", "FAST")
	if err := xc.WriteToFile(filename); err != nil {
		t.Fatalf("write: %v", err)
	}

	read, err := ReadExpCfg(filename, true, nil)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(read.Parameters) != 2 || read.Parameters[0].Value != "160" {
		t.Fatalf("round trip lost parameters: %+v", read)
	}
}

func TestParametersApplyMostGeneralFirst(t *testing.T) {
	tc := sampleTopoCfg()
	xc := CreateExpCfg("exp")
	// the named record is narrower and must win over the wildcard
	xc.AddParameter("Link", []AttrbStruct{{AttrbName: "name", AttrbValue: "A-B"}}, "rate", "320")
	xc.AddParameter("Link", []AttrbStruct{{AttrbName: "*"}}, "rate", "160")
	xc.AddParameter("Flow", []AttrbStruct{{AttrbName: "srcdev", AttrbValue: "A"}}, "protocol", "FAST")

	if err := BuildExperimentTopo(tc, xc, nil); err != nil {
		t.Fatalf("topology build failed: %v", err)
	}

	if LinkByName["A-B"].rate != 320 {
		t.Fatalf("named parameter lost to the wildcard: rate %d", LinkByName["A-B"].rate)
	}
	if FlowByName["f1"].Protocol != FAST {
		t.Fatalf("attribute-matched parameter not applied")
	}
}

func TestBuildRejectsBadConfigurations(t *testing.T) {
	cases := []struct {
		label string
		warp  func(*TopoCfg)
	}{
		{"unknown endpoint", func(tc *TopoCfg) { tc.Links[0].RightEndpoint = "nobody" }},
		{"self link", func(tc *TopoCfg) { tc.Links[0].RightEndpoint = "A" }},
		{"zero rate", func(tc *TopoCfg) { tc.Links[0].Rate = 0 }},
		{"negative delay", func(tc *TopoCfg) { tc.Links[0].Delay = -1 }},
		{"zero buffer", func(tc *TopoCfg) { tc.Links[0].Buffer = 0 }},
		{"flow endpoint not a host", func(tc *TopoCfg) { tc.Flows[0].Dst = "A-B" }},
		{"unknown protocol", func(tc *TopoCfg) { tc.Flows[0].Protocol = "CUBIC" }},
		{"zero data", func(tc *TopoCfg) { tc.Flows[0].DataSize = 0 }},
		{"negative start", func(tc *TopoCfg) { tc.Flows[0].StartTime = -5 }},
		{"duplicate host", func(tc *TopoCfg) { tc.Hosts = append(tc.Hosts, HostDesc{Name: "A"}) }},
		{"second link on host", func(tc *TopoCfg) {
			tc.Hosts = append(tc.Hosts, HostDesc{Name: "C"})
			tc.Links = append(tc.Links, LinkDesc{Name: "A-C", Rate: 80, Delay: 10,
				Buffer: 65536, LeftEndpoint: "A", RightEndpoint: "C"})
		}},
		{"unreachable flow", func(tc *TopoCfg) {
			tc.Hosts = append(tc.Hosts, HostDesc{Name: "C"}, HostDesc{Name: "D"})
			tc.Links = append(tc.Links, LinkDesc{Name: "C-D", Rate: 80, Delay: 10,
				Buffer: 65536, LeftEndpoint: "C", RightEndpoint: "D"})
			tc.Flows[0].Dst = "C"
		}},
	}

	for _, c := range cases {
		tc := sampleTopoCfg()
		c.warp(tc)
		if err := BuildExperimentTopo(tc, nil, nil); err == nil {
			t.Fatalf("%s passed validation", c.label)
		}
	}
}

func TestRouterRelaysBetweenLinks(t *testing.T) {
	tc := &TopoCfg{
		Name:    "relay",
		Hosts:   []HostDesc{{Name: "A"}, {Name: "B"}},
		Routers: []RouterDesc{{Name: "R"}},
		Links: []LinkDesc{
			{Name: "A-R", Rate: 80, Delay: 10, Buffer: 65536, LeftEndpoint: "A", RightEndpoint: "R"},
			{Name: "R-B", Rate: 80, Delay: 10, Buffer: 65536, LeftEndpoint: "R", RightEndpoint: "B"},
		},
		Flows: []FlowDesc{{Name: "f1", Src: "A", Dst: "B", DataSize: 4 * DataPacketSize,
			StartTime: 0, Protocol: "RENO"}},
	}
	if err := BuildExperimentTopo(tc, nil, nil); err != nil {
		t.Fatalf("topology build failed: %v", err)
	}

	td := CreateTickDriver(10, 120000)
	td.RunTicks()

	if !FlowByName["f1"].Completed {
		t.Fatalf("flow through the relay did not complete by %d ms", td.Now())
	}
}
