package tcns

// tcns.go has code that builds the system data structures: the object
// registries, the topology assembly from its serialized description,
// and the application of run-time experiment parameters.

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// global variables for finding things given an id, or a name
var HostByID map[int]*Host = make(map[int]*Host)
var HostByName map[string]*Host = make(map[string]*Host)

var LinkByID map[int]*Link = make(map[int]*Link)
var LinkByName map[string]*Link = make(map[string]*Link)

var FlowByID map[int]*Flow = make(map[int]*Flow)
var FlowByName map[string]*Flow = make(map[string]*Flow)

var routerByName map[string]*routerDev = make(map[string]*routerDev)

// utility for generating unique integer ids on demand
var numIDs int = 0

// nxtID creates an id unique among the objects created within the module
func nxtID() int {
	numIDs += 1
	return numIDs
}

// simTraceMgr is the trace sink shared by every component; nil disables tracing
var simTraceMgr *TraceManager

// SetTraceManager installs the trace sink used by hosts and links whose
// trace parameter is set
func SetTraceManager(tm *TraceManager) {
	simTraceMgr = tm
}

// ClearTopo empties every registry so a fresh topology can be built.
// Used between experiments and by tests
func ClearTopo() {
	HostByID = make(map[int]*Host)
	HostByName = make(map[string]*Host)
	LinkByID = make(map[int]*Link)
	LinkByName = make(map[string]*Link)
	FlowByID = make(map[int]*Flow)
	FlowByName = make(map[string]*Flow)
	routerByName = make(map[string]*routerDev)
	connByName = make(map[string][]string)
}

// A valueStruct holds the different types a parameter value might have;
// which one is used is known from context
type valueStruct struct {
	intValue    int
	floatValue  float64
	stringValue string
	boolValue   bool
}

// stringToValueStruct takes a string from the configuration phase and
// determines whether it is an integer, floating point, bool, or string
func stringToValueStruct(v string) valueStruct {
	vs := valueStruct{intValue: 0, floatValue: 0.0, stringValue: "", boolValue: false}

	// try conversion to int
	ivalue, ierr := strconv.Atoi(v)
	if ierr == nil {
		vs.intValue = ivalue
		vs.floatValue = float64(ivalue)
		return vs
	}

	// failing that, try conversion to float
	fvalue, ferr := strconv.ParseFloat(v, 64)
	if ferr == nil {
		vs.floatValue = fvalue
		return vs
	}

	if v == "true" || v == "True" {
		vs.boolValue = true
		return vs
	}

	vs.stringValue = v
	return vs
}

// ReportErrs transforms a list of errors and transforms the non-nil ones into a single error
func ReportErrs(errs []error) error {
	errMsg := make([]string, 0)
	for _, err := range errs {
		if err != nil {
			errMsg = append(errMsg, err.Error())
		}
	}
	if len(errMsg) == 0 {
		return nil
	}

	return errors.New(fmt.Sprint(errMsg))
}

// paramObj is satisfied by every network object that can be configured
// at run-time with experiment parameters: Host, Link, and Flow
type paramObj interface {
	matchParam(string, string) bool
	setParam(string, valueStruct)
	paramObjName() string
}

// BuildExperimentTopo assembles the runtime topology from its serialized
// description, validates it, and then applies experiment parameters.
// Topology configuration problems are reported with the offending entity
// named; parameter values are not validated, and a parameter record
// naming an unknown object class panics
func BuildExperimentTopo(tc *TopoCfg, xc *ExpCfg, tm *TraceManager) error {
	if tc == nil {
		return errors.New("empty topology configuration")
	}

	ClearTopo()
	SetTraceManager(tm)

	var errs []error

	// create hosts and routers before links so endpoints resolve
	for _, hostDesc := range tc.Hosts {
		if _, present := HostByName[hostDesc.Name]; present {
			errs = append(errs, fmt.Errorf("host name %s over-used", hostDesc.Name))
			continue
		}
		host := CreateHost(hostDesc.Name)
		host.groups = hostDesc.Groups
		if tm != nil {
			tm.AddName(host.number, host.hostName, "host")
		}
	}

	for _, rtrDesc := range tc.Routers {
		if _, present := routerByName[rtrDesc.Name]; present {
			errs = append(errs, fmt.Errorf("router name %s over-used", rtrDesc.Name))
			continue
		}
		router := createRouterDev(rtrDesc.Name)
		routerByName[rtrDesc.Name] = router
		if tm != nil {
			tm.AddName(router.number, router.routerName, "router")
		}
	}

	for _, linkDesc := range tc.Links {
		err := buildLink(&linkDesc, tm)
		if err != nil {
			errs = append(errs, err)
		}
	}

	for _, flowDesc := range tc.Flows {
		err := buildFlow(&flowDesc)
		if err != nil {
			errs = append(errs, err)
		}
	}

	if err := ReportErrs(errs); err != nil {
		return err
	}

	// every host must have a link before traffic can move
	for _, host := range HostByName {
		if host.link == nil {
			errs = append(errs, fmt.Errorf("host %s has no link", host.hostName))
		}
	}

	// flows must be able to reach their destinations through the graph
	if err := validateReachability(); err != nil {
		errs = append(errs, err)
	}

	if err := ReportErrs(errs); err != nil {
		return err
	}

	if xc != nil {
		setModelParameters(xc)
	}

	// jittered start times are resolved at registration, after parameters
	// have had their chance to set the jitter model
	for _, flowDesc := range tc.Flows {
		flow := FlowByName[flowDesc.Name]
		flow.Src.AddFlow(flow)
	}

	return nil
}

// buildLink creates the runtime link from its description and wires its
// endpoints, reporting rather than panicking on description errors
func buildLink(linkDesc *LinkDesc, tm *TraceManager) error {
	if _, present := LinkByName[linkDesc.Name]; present {
		return fmt.Errorf("link name %s over-used", linkDesc.Name)
	}
	if linkDesc.Rate <= 0 || linkDesc.Delay <= 0 || linkDesc.Buffer <= 0 {
		return fmt.Errorf("link %s needs positive rate, delay, and buffer", linkDesc.Name)
	}
	if linkDesc.LeftEndpoint == linkDesc.RightEndpoint {
		return fmt.Errorf("link %s connects %s to itself", linkDesc.Name, linkDesc.LeftEndpoint)
	}

	left, lerr := endpointByName(linkDesc.LeftEndpoint)
	right, rerr := endpointByName(linkDesc.RightEndpoint)
	if lerr != nil || rerr != nil {
		return fmt.Errorf("link %s names an unknown endpoint", linkDesc.Name)
	}

	if err := attachEndpoint(left, linkDesc.Name); err != nil {
		return err
	}
	if err := attachEndpoint(right, linkDesc.Name); err != nil {
		return err
	}

	lnk := CreateLink(linkDesc.Name, linkDesc.Rate, linkDesc.Delay, linkDesc.Buffer)
	lnk.groups = linkDesc.Groups
	lnk.setEndpoints(left, right)
	wireEndpoint(left, lnk)
	wireEndpoint(right, lnk)
	connectNames(linkDesc.LeftEndpoint, linkDesc.RightEndpoint)

	if tm != nil {
		tm.AddName(lnk.number, lnk.linkName, "link")
	}
	return nil
}

// endpointByName resolves a link endpoint name to a host or router
func endpointByName(name string) (Node, error) {
	if host, present := HostByName[name]; present {
		return host, nil
	}
	if router, present := routerByName[name]; present {
		return router, nil
	}
	return nil, fmt.Errorf("no device named %s", name)
}

// attachEndpoint checks that the endpoint has room for another link,
// reporting the configuration error when it does not
func attachEndpoint(node Node, linkName string) error {
	switch dev := node.(type) {
	case *Host:
		if dev.link != nil {
			return fmt.Errorf("link %s attaches host %s to a second link", linkName, dev.hostName)
		}
	case *routerDev:
		if len(dev.links) == 2 {
			return fmt.Errorf("link %s attaches router %s to a third link", linkName, dev.routerName)
		}
	}
	return nil
}

// wireEndpoint records the link on the endpoint's side
func wireEndpoint(node Node, lnk *Link) {
	switch dev := node.(type) {
	case *Host:
		dev.setLink(lnk)
	case *routerDev:
		dev.addLink(lnk)
	}
}

// buildFlow creates the runtime flow from its description
func buildFlow(flowDesc *FlowDesc) error {
	if _, present := FlowByName[flowDesc.Name]; present {
		return fmt.Errorf("flow name %s over-used", flowDesc.Name)
	}

	src, srcPresent := HostByName[flowDesc.Src]
	dst, dstPresent := HostByName[flowDesc.Dst]
	if !srcPresent || !dstPresent {
		return fmt.Errorf("flow %s has a source or destination that is not a host", flowDesc.Name)
	}
	if src == dst {
		return fmt.Errorf("flow %s sends %s to itself", flowDesc.Name, flowDesc.Src)
	}
	if flowDesc.DataSize <= 0 {
		return fmt.Errorf("flow %s needs a positive data size", flowDesc.Name)
	}
	if flowDesc.StartTime < 0 {
		return fmt.Errorf("flow %s needs a non-negative start time", flowDesc.Name)
	}

	protocol, err := protocolFromStr(flowDesc.Protocol)
	if err != nil {
		return fmt.Errorf("flow %s: %w", flowDesc.Name, err)
	}

	flow := CreateFlow(flowDesc.Name, src, dst, flowDesc.DataSize, flowDesc.StartTime, protocol)
	flow.Groups = flowDesc.Groups
	flow.JitterModel = flowDesc.JitterModel
	flow.JitterMean = flowDesc.JitterMean
	return nil
}

// reorderExpParams puts parameter records in most-general-first order:
// wildcard records apply before attribute-matched records, which apply
// before records naming a specific object, so that narrower assignments
// overwrite broader ones
func reorderExpParams(pL []ExpParameter) []ExpParameter {
	wc := []ExpParameter{}
	nm := []ExpParameter{}
	sg := []ExpParameter{}

	for _, param := range pL {
		assigned := false
		for _, attrb := range param.Attributes {
			if attrb.AttrbName == "*" {
				wc = append(wc, param)
				assigned = true
				break
			} else if attrb.AttrbName == "name" {
				nm = append(nm, param)
				assigned = true
				break
			}
		}
		if !assigned {
			sg = append(sg, param)
		}
	}

	sort.SliceStable(wc, func(i, j int) bool { return wc[i].Param < wc[j].Param })
	sort.SliceStable(sg, func(i, j int) bool { return sg[i].Param < sg[j].Param })
	sort.SliceStable(nm, func(i, j int) bool { return nm[i].Param < nm[j].Param })

	wc = append(wc, sg...)
	wc = append(wc, nm...)
	return wc
}

// setModelParameters applies the experiment configuration's parameter
// records to the objects whose attributes they match, most general first
func setModelParameters(xc *ExpCfg) {
	hostParams := []ExpParameter{}
	linkParams := []ExpParameter{}
	flowParams := []ExpParameter{}

	for _, param := range xc.Parameters {
		switch param.ParamObj {
		case "Host":
			hostParams = append(hostParams, param)
		case "Link":
			linkParams = append(linkParams, param)
		case "Flow":
			flowParams = append(flowParams, param)
		default:
			panic(fmt.Errorf("surprise ParamObj %s", param.ParamObj))
		}
	}

	applyParams(reorderExpParams(hostParams), hostParamObjs())
	applyParams(reorderExpParams(linkParams), linkParamObjs())
	applyParams(reorderExpParams(flowParams), flowParamObjs())
}

// applyParams tests every object in the constrained list against each
// parameter record's attributes, applying the value on a match.  A '*'
// attribute matches everything; otherwise every attribute must match
func applyParams(params []ExpParameter, objs []paramObj) {
	for _, param := range params {
		for _, testObj := range objs {
			matched := true
			for _, attrb := range param.Attributes {
				if attrb.AttrbName == "*" {
					break
				}
				if !testObj.matchParam(attrb.AttrbName, attrb.AttrbValue) {
					matched = false
					break
				}
			}
			if matched {
				testObj.setParam(param.Param, stringToValueStruct(param.Value))
			}
		}
	}
}

// the *ParamObjs functions collect each object class in deterministic
// id order for parameter application

func hostParamObjs() []paramObj {
	objs := make([]paramObj, 0, len(HostByID))
	for _, id := range sortedKeys(HostByID) {
		objs = append(objs, HostByID[id])
	}
	return objs
}

func linkParamObjs() []paramObj {
	objs := make([]paramObj, 0, len(LinkByID))
	for _, id := range sortedKeys(LinkByID) {
		objs = append(objs, LinkByID[id])
	}
	return objs
}

func flowParamObjs() []paramObj {
	objs := make([]paramObj, 0, len(FlowByID))
	for _, id := range sortedKeys(FlowByID) {
		objs = append(objs, FlowByID[id])
	}
	return objs
}
