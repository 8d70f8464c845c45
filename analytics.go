package tcns

// analytics.go holds the write-only observers the simulation feeds as it
// runs: per-flow and per-link time series, gathered each tick and
// serialized at the end of the experiment together with summary
// statistics over each series.

import (
	"encoding/json"
	"os"
	"path"

	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"
)

// SeriesPoint is one sample of a reported series, keyed by simulation time
type SeriesPoint struct {
	Time  int     `json:"time" yaml:"time"`
	Value float64 `json:"value" yaml:"value"`
}

// SeriesSummary condenses a series for the report header
type SeriesSummary struct {
	Count  int     `json:"count" yaml:"count"`
	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"stddev" yaml:"stddev"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
}

// summarize computes a SeriesSummary over the values of a series
func summarize(series []SeriesPoint) SeriesSummary {
	if len(series) == 0 {
		return SeriesSummary{}
	}

	values := make([]float64, 0, len(series))
	minValue := series[0].Value
	maxValue := series[0].Value
	for _, pt := range series {
		values = append(values, pt.Value)
		if pt.Value < minValue {
			minValue = pt.Value
		}
		if pt.Value > maxValue {
			maxValue = pt.Value
		}
	}

	summary := SeriesSummary{Count: len(values), Mean: stat.Mean(values, nil),
		Min: minValue, Max: maxValue}
	if len(values) > 1 {
		summary.StdDev = stat.StdDev(values, nil)
	}
	return summary
}

// FlowAnalytics collects the series reported for one flow
type FlowAnalytics struct {
	FlowID int    `json:"flowid" yaml:"flowid"`
	Name   string `json:"name" yaml:"name"`

	// congestion window, in packets
	WindowSize []SeriesPoint `json:"windowsize" yaml:"windowsize"`

	// sending rate, Mbps averaged over each tick
	FlowRate []SeriesPoint `json:"flowrate" yaml:"flowrate"`
}

// createFlowAnalytics is a constructor
func createFlowAnalytics(flowID int, name string) *FlowAnalytics {
	fa := new(FlowAnalytics)
	fa.FlowID = flowID
	fa.Name = name
	fa.WindowSize = make([]SeriesPoint, 0)
	fa.FlowRate = make([]SeriesPoint, 0)
	return fa
}

func (fa *FlowAnalytics) addWindowSize(cwnd, now int) {
	fa.WindowSize = append(fa.WindowSize, SeriesPoint{Time: now, Value: float64(cwnd)})
}

func (fa *FlowAnalytics) addFlowRate(rate float64, now int) {
	fa.FlowRate = append(fa.FlowRate, SeriesPoint{Time: now, Value: rate})
}

// LinkAnalytics collects the series reported for one link
type LinkAnalytics struct {
	LinkID int    `json:"linkid" yaml:"linkid"`
	Name   string `json:"name" yaml:"name"`

	// per-direction buffer occupancy, bits averaged per second
	LeftBuffer  []SeriesPoint `json:"leftbuffer" yaml:"leftbuffer"`
	RightBuffer []SeriesPoint `json:"rightbuffer" yaml:"rightbuffer"`

	// cumulative packet drops
	PacketLoss []SeriesPoint `json:"packetloss" yaml:"packetloss"`

	// throughput, Mbps averaged over each tick
	LinkRate []SeriesPoint `json:"linkrate" yaml:"linkrate"`
}

// createLinkAnalytics is a constructor
func createLinkAnalytics(linkID int, name string) *LinkAnalytics {
	la := new(LinkAnalytics)
	la.LinkID = linkID
	la.Name = name
	la.LeftBuffer = make([]SeriesPoint, 0)
	la.RightBuffer = make([]SeriesPoint, 0)
	la.PacketLoss = make([]SeriesPoint, 0)
	la.LinkRate = make([]SeriesPoint, 0)
	return la
}

func (la *LinkAnalytics) addLeftBuffer(occupancy float64, now int) {
	la.LeftBuffer = append(la.LeftBuffer, SeriesPoint{Time: now, Value: occupancy})
}

func (la *LinkAnalytics) addRightBuffer(occupancy float64, now int) {
	la.RightBuffer = append(la.RightBuffer, SeriesPoint{Time: now, Value: occupancy})
}

func (la *LinkAnalytics) addPacketLoss(drops, now int) {
	la.PacketLoss = append(la.PacketLoss, SeriesPoint{Time: now, Value: float64(drops)})
}

func (la *LinkAnalytics) addLinkRate(rate float64, now int) {
	la.LinkRate = append(la.LinkRate, SeriesPoint{Time: now, Value: rate})
}

// FlowReport is the serialized form of one flow's analytics
type FlowReport struct {
	Name       string        `json:"name" yaml:"name"`
	Protocol   string        `json:"protocol" yaml:"protocol"`
	Completed  bool          `json:"completed" yaml:"completed"`
	WindowSize SeriesSummary `json:"windowsize" yaml:"windowsize"`
	FlowRate   SeriesSummary `json:"flowrate" yaml:"flowrate"`

	Series *FlowAnalytics `json:"series,omitempty" yaml:"series,omitempty"`
}

// LinkReport is the serialized form of one link's analytics
type LinkReport struct {
	Name        string        `json:"name" yaml:"name"`
	Drops       int           `json:"drops" yaml:"drops"`
	LeftBuffer  SeriesSummary `json:"leftbuffer" yaml:"leftbuffer"`
	RightBuffer SeriesSummary `json:"rightbuffer" yaml:"rightbuffer"`
	LinkRate    SeriesSummary `json:"linkrate" yaml:"linkrate"`

	Series *LinkAnalytics `json:"series,omitempty" yaml:"series,omitempty"`
}

// ExperimentReport gathers every collector's output for serialization
type ExperimentReport struct {
	ExpName string `json:"expname" yaml:"expname"`
	EndTime int    `json:"endtime" yaml:"endtime"`

	Flows []FlowReport `json:"flows" yaml:"flows"`
	Links []LinkReport `json:"links" yaml:"links"`
}

// BuildReport assembles an ExperimentReport from the registries.
// fullSeries selects whether the raw series ride along with the summaries
func BuildReport(expName string, endTime int, fullSeries bool) *ExperimentReport {
	report := new(ExperimentReport)
	report.ExpName = expName
	report.EndTime = endTime

	for _, id := range sortedKeys(FlowByID) {
		flow := FlowByID[id]
		fr := FlowReport{
			Name:       flow.Name,
			Protocol:   protocolToStr(flow.Protocol),
			Completed:  flow.Completed,
			WindowSize: summarize(flow.analytics.WindowSize),
			FlowRate:   summarize(flow.analytics.FlowRate),
		}
		if fullSeries {
			fr.Series = flow.analytics
		}
		report.Flows = append(report.Flows, fr)
	}

	for _, id := range sortedKeys(LinkByID) {
		lnk := LinkByID[id]
		lr := LinkReport{
			Name:        lnk.linkName,
			Drops:       lnk.drops,
			LeftBuffer:  summarize(lnk.analytics.LeftBuffer),
			RightBuffer: summarize(lnk.analytics.RightBuffer),
			LinkRate:    summarize(lnk.analytics.LinkRate),
		}
		if fullSeries {
			lr.Series = lnk.analytics
		}
		report.Links = append(report.Links, lr)
	}

	return report
}

// WriteToFile stores the report to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (report *ExperimentReport) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*report)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*report, "", "\t")
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
