package tcns

// sim.go holds the experiment driver: the Updatable contract every
// simulated component satisfies, the tick loop that advances them in a
// fixed order (all hosts, then all links), and the glue that takes an
// experiment from its input files to its output files.

import (
	"fmt"
	"path"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// Updatable is the contract the driver advances each tick.  now is the
// tick boundary in ms; interval is the tick length in ms and is constant
// within a run
type Updatable interface {
	Update(interval, now int)
}

// TickDriver advances the registered components through fixed time
// increments.  Hosts update before links, so packets enqueued by a host
// this tick can occupy the link's transmission slot this tick, while
// acknowledgements generated during link delivery drain from the
// receiving host's immediate queue on the next
type TickDriver struct {
	interval int // ms per tick
	limit    int // ms, tick budget of the run
	now      int // ms, current tick boundary

	hosts []Updatable
	links []Updatable

	traceMgr *TraceManager
}

// CreateTickDriver is a constructor.  The update order is fixed at
// creation from the registries, in id order, so a given configuration
// always replays identically
func CreateTickDriver(interval, limit int) *TickDriver {
	if interval <= 0 {
		panic(fmt.Errorf("tick interval must be positive, got %d", interval))
	}

	td := new(TickDriver)
	td.interval = interval
	td.limit = limit

	for _, id := range sortedKeys(HostByID) {
		td.hosts = append(td.hosts, HostByID[id])
	}
	for _, id := range sortedKeys(LinkByID) {
		td.links = append(td.links, LinkByID[id])
	}

	return td
}

func (td *TickDriver) Now() int { return td.now }

// AllFlowsComplete reports whether every registered flow has seen its
// final acknowledgement
func AllFlowsComplete() bool {
	for _, flow := range FlowByID {
		if !flow.Completed {
			return false
		}
	}
	return true
}

// step advances the whole simulation by one tick
func (td *TickDriver) step() {
	for _, host := range td.hosts {
		host.Update(td.interval, td.now)
	}
	for _, lnk := range td.links {
		lnk.Update(td.interval, td.now)
	}
	td.now += td.interval
}

// done reports whether the run has exhausted its tick budget or its work
func (td *TickDriver) done() bool {
	return td.now >= td.limit || AllFlowsComplete()
}

// Start schedules the first tick with the event manager
func (td *TickDriver) Start(evtMgr *evtm.EventManager) {
	evtMgr.Schedule(td, nil, advanceTick, vrtime.SecondsToTime(0.0))
}

// advanceTick is the event handler the driver reschedules for itself
// every tick until the run is done
func advanceTick(evtMgr *evtm.EventManager, context any, data any) any {
	td := context.(*TickDriver)

	if td.traceMgr != nil {
		td.traceMgr.stampTime(evtMgr.CurrentTime())
	}

	td.step()

	if !td.done() {
		evtMgr.Schedule(td, nil, advanceTick,
			vrtime.SecondsToTime(float64(td.interval)/1000.0))
	}
	return nil
}

// RunTicks advances the driver synchronously until it is done, without
// an event manager.  Used by tests and by callers embedding the core in
// their own loop
func (td *TickDriver) RunTicks() int {
	for !td.done() {
		td.step()
	}
	return td.now
}

// RunExperiment is called from the module that creates and runs a
// simulation.  syn binds pre-defined keys referring to input and output
// file types to file names: "topo" and (optionally) "exp" name the
// configuration inputs, "trace" and "report" name the outputs; an empty
// or absent name disables that output.  The run advances in interval-ms
// ticks until limit ms have elapsed or every flow has completed
func RunExperiment(syn map[string]string, interval, limit int, fullSeries bool) (*ExperimentReport, error) {
	var empty []byte = make([]byte, 0)

	ext := path.Ext(syn["topo"])
	useYAML := (ext == ".yaml") || (ext == ".yml")

	tc, err := ReadTopoCfg(syn["topo"], useYAML, empty)
	if err != nil {
		return nil, err
	}

	var xc *ExpCfg
	if len(syn["exp"]) > 0 {
		ext = path.Ext(syn["exp"])
		useYAML = (ext == ".yaml") || (ext == ".yml")
		xc, err = ReadExpCfg(syn["exp"], useYAML, empty)
		if err != nil {
			return nil, err
		}
	}

	tm := CreateTraceManager(tc.Name, len(syn["trace"]) > 0)

	if err := BuildExperimentTopo(tc, xc, tm); err != nil {
		return nil, err
	}

	evtMgr := evtm.New()
	td := CreateTickDriver(interval, limit)
	td.traceMgr = tm
	td.Start(evtMgr)

	// the tick handler stops rescheduling itself when the run is done,
	// so the event queue draining ends the run; the horizon is slack
	evtMgr.Run(float64(limit)/1000.0 + 1.0)

	if tm.Active() {
		tm.WriteToFile(syn["trace"])
	}

	report := BuildReport(tc.Name, td.now, fullSeries)
	if len(syn["report"]) > 0 {
		if err := report.WriteToFile(syn["report"]); err != nil {
			return report, err
		}
	}

	return report, nil
}
