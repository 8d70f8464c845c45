package tcns

// trace.go gathers a record of packet-level events as they happen, for
// post-run analysis.  Tracing is enabled per object through the trace
// experiment parameter; with no trace manager installed the calls cost
// one test of a nil pointer.

import (
	"encoding/json"
	"os"
	"path"

	"github.com/iti/evt/vrtime"
	"gopkg.in/yaml.v3"
)

// NameType is an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// PktTrace records one packet event at one object
type PktTrace struct {
	// simulation time of the event, ms
	Time int `json:"time" yaml:"time"`

	// virtual time stamp of the driver event during which it happened
	Ticks int64 `json:"ticks" yaml:"ticks"`

	// id of the host or link where the event happened
	ObjID int `json:"objid" yaml:"objid"`

	PktID   int    `json:"pktid" yaml:"pktid"`
	PktKind string `json:"pktkind" yaml:"pktkind"`
	Src     string `json:"src" yaml:"src"`
	Dst     string `json:"dst" yaml:"dst"`

	// "enqueue", "drop", "deliver", "activate", "fast-retransmit",
	// "timeout-retransmit"
	Op string `json:"op" yaml:"op"`
}

// TraceManager accumulates packet traces for an experiment
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each objID
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment, keyed by object id
	Traces map[int][]PktTrace `json:"traces" yaml:"traces"`

	// virtual time of the driver's current tick event, stamped into records
	vrt vrtime.Time
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]PktTrace)
	return tm
}

// Active tells the caller whether the trace manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// stampTime saves the virtual time of the driver event in progress so
// records gathered during it carry the tick they belong to
func (tm *TraceManager) stampTime(vrt vrtime.Time) {
	tm.vrt = vrt
}

// AddPktTrace creates a record of the packet event using its calling
// arguments, and stores it
func (tm *TraceManager) AddPktTrace(now, objID int, pkt *Packet, op string) {
	if !tm.InUse {
		return
	}

	_, present := tm.Traces[objID]
	if !present {
		tm.Traces[objID] = make([]PktTrace, 0)
	}

	trace := PktTrace{Time: now, Ticks: tm.vrt.Ticks(), ObjID: objID,
		PktID: pkt.ID, PktKind: pktKindToStr[pkt.Kind],
		Src: pkt.Src.hostName, Dst: pkt.Dst.hostName, Op: op}
	tm.Traces[objID] = append(tm.Traces[objID], trace)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if tm.InUse {
		_, present := tm.NameByID[id]
		if present {
			panic("duplicated id in AddName")
		}
		tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	}
}

// WriteToFile stores the Traces struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) bool {
	if !tm.InUse {
		return false
	}
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*tm)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*tm, "", "\t")
	}

	if merr != nil {
		panic(merr)
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		panic(cerr)
	}
	_, werr := f.WriteString(string(bytes[:]))
	if werr != nil {
		panic(werr)
	}
	f.Close()
	return true
}
