package tcns

// desc-topo.go holds the serializable descriptions of a topology and of
// an experiment's run-time parameters.  Description structs carry no
// pointers so they serialize completely; BuildExperimentTopo (tcns.go)
// turns them into the runtime representation.

import (
	"encoding/json"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// HostDesc defines a serializable description of a host
type HostDesc struct {
	// address of the host, unique among devices
	Name string `json:"name" yaml:"name"`

	// list of groups the host may belong to, for parameter matching
	Groups []string `json:"groups" yaml:"groups"`
}

// RouterDesc defines a serializable description of a pass-through router
type RouterDesc struct {
	Name string `json:"name" yaml:"name"`
}

// LinkDesc defines a serializable description of a link
type LinkDesc struct {
	Name string `json:"name" yaml:"name"`

	// transmission rate in bits per ms
	Rate int `json:"rate" yaml:"rate"`

	// propagation delay in ms
	Delay int `json:"delay" yaml:"delay"`

	// per-direction buffer capacity in bits
	Buffer int `json:"buffer" yaml:"buffer"`

	// names of the devices on either end
	LeftEndpoint  string `json:"leftendpoint" yaml:"leftendpoint"`
	RightEndpoint string `json:"rightendpoint" yaml:"rightendpoint"`

	Groups []string `json:"groups" yaml:"groups"`
}

// FlowDesc defines a serializable description of a flow
type FlowDesc struct {
	Name string `json:"name" yaml:"name"`

	// names of the source and destination hosts
	Src string `json:"src" yaml:"src"`
	Dst string `json:"dst" yaml:"dst"`

	// total data to transfer, in bits
	DataSize int `json:"datasize" yaml:"datasize"`

	// earliest simulation time (ms) the first packet may enter the network
	StartTime int `json:"starttime" yaml:"starttime"`

	// "RENO" or "FAST"
	Protocol string `json:"protocol" yaml:"protocol"`

	// optional start-time perturbation: distribution name and mean (ms)
	JitterModel string  `json:"jittermodel" yaml:"jittermodel"`
	JitterMean  float64 `json:"jittermean" yaml:"jittermean"`

	Groups []string `json:"groups" yaml:"groups"`
}

// TopoCfg aggregates the descriptions of the devices and flows making up
// the topology of one experiment
type TopoCfg struct {
	Name string `json:"name" yaml:"name"`

	Hosts   []HostDesc   `json:"hosts" yaml:"hosts"`
	Routers []RouterDesc `json:"routers" yaml:"routers"`
	Links   []LinkDesc   `json:"links" yaml:"links"`
	Flows   []FlowDesc   `json:"flows" yaml:"flows"`
}

// WriteToFile stores the TopoCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tc *TopoCfg) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*tc)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*tc, "", "\t")
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

	return werr
}

// ReadTopoCfg deserializes a byte slice holding a representation of a
// TopoCfg struct.  If the input argument of dict (those bytes) is empty,
// the file whose name is given is read to acquire them
func ReadTopoCfg(filename string, useYAML bool, dict []byte) (*TopoCfg, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := TopoCfg{}

	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}

	return &example, nil
}

// AttrbStruct gives a (name, value) pair an object must match for a
// parameter record to apply to it
type AttrbStruct struct {
	AttrbName  string `json:"attrbname" yaml:"attrbname"`
	AttrbValue string `json:"attrbvalue" yaml:"attrbvalue"`
}

// ExpParameter assigns Value to parameter Param of every object of class
// ParamObj whose attributes all match
type ExpParameter struct {
	// object class the parameter applies to: "Host", "Link", "Flow"
	ParamObj string `json:"paramObj" yaml:"paramObj"`

	// attributes an object must match; a single '*' attribute matches all
	Attributes []AttrbStruct `json:"attributes" yaml:"attributes"`

	// parameter name, e.g. "rate", "buffer", "protocol", "trace"
	Param string `json:"param" yaml:"param"`

	// value to assign, as a string; its type is inferred on application
	Value string `json:"value" yaml:"value"`
}

// ExpCfg aggregates the parameter records of one experiment
type ExpCfg struct {
	Name       string         `json:"name" yaml:"name"`
	Parameters []ExpParameter `json:"parameters" yaml:"parameters"`
}

// CreateExpCfg is an initialization constructor
func CreateExpCfg(name string) *ExpCfg {
	xc := new(ExpCfg)
	xc.Name = name
	xc.Parameters = make([]ExpParameter, 0)
	return xc
}

// AddParameter accepts the four values of an ExpParameter, creates one,
// and adds it to the configuration's parameter list
func (xc *ExpCfg) AddParameter(paramObj string, attributes []AttrbStruct, param, value string) {
	xc.Parameters = append(xc.Parameters,
		ExpParameter{ParamObj: paramObj, Attributes: attributes, Param: param, Value: value})
}

// WriteToFile stores the ExpCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (xc *ExpCfg) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*xc)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*xc, "", "\t")
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

	return werr
}

// ReadExpCfg deserializes a byte slice holding a representation of an
// ExpCfg struct.  If the input argument of dict (those bytes) is empty,
// the file whose name is given is read to acquire them
func ReadExpCfg(filename string, useYAML bool, dict []byte) (*ExpCfg, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := ExpCfg{}

	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}

	return &example, nil
}
