package api

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"hpc-job-metrics/internal/model"
)

// Metric paths relative to /metrics/{cluster}/{jobid}/.
const (
	PathCapstorGlobal  = "capstor/global"
	PathGPUTemperature = "gpu/temperature"
)

const (
	UnitBandwidth   = "Average bytes/s"
	UnitOps         = "Average number operations/s"
	UnitLoad        = "Number of nodes per 1-min loadavg bucket"
	UnitTemperature = "°C"
)

// LoadBuckets is the number of 1-min loadavg ranges reported per sample:
// [0,20), [20,40), [40,80), [80,160), [160,inf).
const LoadBuckets = 5

var LoadBucketLabels = [LoadBuckets]string{
	"#nodes low load",
	"#nodes moderate load",
	"#nodes elevated load",
	"#nodes high load",
	"#nodes very high load",
}

// Series names of the capstor/global frame.
const (
	ReadBandwidth  = "read_bandwidth"
	WriteBandwidth = "write_bandwidth"
	ReadIOPS       = "read_iops"
	WriteIOPS      = "write_iops"
	MetadataOps    = "metadata_ops"
	NodesLoadavg   = "nodes_loadavg"
)

// CapstorGlobal is the response of the capstor/global endpoint.
type CapstorGlobal struct {
	Time               []int64   `json:"time"`
	ReadBandwidth      []float64 `json:"read_bandwidth"`
	ReadBandwidthUnit  string    `json:"read_bandwidth_unit,omitempty"`
	ReadIOPS           []float64 `json:"read_iops"`
	ReadIOPSUnit       string    `json:"read_iops_unit,omitempty"`
	WriteBandwidth     []float64 `json:"write_bandwidth"`
	WriteBandwidthUnit string    `json:"write_bandwidth_unit,omitempty"`
	WriteIOPS          []float64 `json:"write_iops"`
	WriteIOPSUnit      string    `json:"write_iops_unit,omitempty"`
	MetadataOps        []float64 `json:"metadata_ops"`
	MetadataOpsUnit    string    `json:"metadata_ops_unit,omitempty"`
	NodesLoadavg       [][]int64 `json:"nodes_loadavg"`
	NodesLoadavgUnit   string    `json:"nodes_loadavg_unit,omitempty"`
}

func (c *CapstorGlobal) validate() error {
	if c.Time == nil {
		return &SchemaError{Endpoint: PathCapstorGlobal, Field: "time", Reason: "missing"}
	}
	n := len(c.Time)
	for _, s := range []struct {
		name   string
		values []float64
	}{
		{ReadBandwidth, c.ReadBandwidth},
		{WriteBandwidth, c.WriteBandwidth},
		{ReadIOPS, c.ReadIOPS},
		{WriteIOPS, c.WriteIOPS},
		{MetadataOps, c.MetadataOps},
	} {
		if s.values == nil {
			return &SchemaError{Endpoint: PathCapstorGlobal, Field: s.name, Reason: "missing"}
		}
		if len(s.values) != n {
			return &SchemaError{Endpoint: PathCapstorGlobal, Field: s.name, Reason: fmt.Sprintf("has %d samples, time has %d", len(s.values), n)}
		}
	}
	if c.NodesLoadavg == nil {
		return &SchemaError{Endpoint: PathCapstorGlobal, Field: NodesLoadavg, Reason: "missing"}
	}
	if len(c.NodesLoadavg) != n {
		return &SchemaError{Endpoint: PathCapstorGlobal, Field: NodesLoadavg, Reason: fmt.Sprintf("has %d samples, time has %d", len(c.NodesLoadavg), n)}
	}
	for i, buckets := range c.NodesLoadavg {
		if len(buckets) != LoadBuckets {
			return &SchemaError{Endpoint: PathCapstorGlobal, Field: fmt.Sprintf("%s[%d]", NodesLoadavg, i), Reason: fmt.Sprintf("has %d buckets, want %d", len(buckets), LoadBuckets)}
		}
	}
	return nil
}

// Frame returns the bandwidth, IOPS and metadata series aligned to the response timestamps.
func (c *CapstorGlobal) Frame() model.Frame {
	return model.Frame{
		Time: epochTimes(c.Time),
		Series: []model.Series{
			{Name: ReadBandwidth, Label: "Read bandwidth", Unit: orDefault(c.ReadBandwidthUnit, UnitBandwidth), Values: c.ReadBandwidth},
			{Name: WriteBandwidth, Label: "Write bandwidth", Unit: orDefault(c.WriteBandwidthUnit, UnitBandwidth), Values: c.WriteBandwidth},
			{Name: ReadIOPS, Label: "Read IOPS", Unit: orDefault(c.ReadIOPSUnit, UnitOps), Values: c.ReadIOPS},
			{Name: WriteIOPS, Label: "Write IOPS", Unit: orDefault(c.WriteIOPSUnit, UnitOps), Values: c.WriteIOPS},
			{Name: MetadataOps, Label: "Metadata OPS", Unit: orDefault(c.MetadataOpsUnit, UnitOps), Values: c.MetadataOps},
		},
	}
}

// LoadFrame returns one series per loadavg bucket.
func (c *CapstorGlobal) LoadFrame() model.Frame {
	f := model.Frame{Time: epochTimes(c.Time)}
	for b := 0; b < LoadBuckets; b++ {
		values := make([]float64, len(c.NodesLoadavg))
		for i, buckets := range c.NodesLoadavg {
			values[i] = float64(buckets[b])
		}
		f.Series = append(f.Series, model.Series{
			Name:   loadKey(b),
			Label:  LoadBucketLabels[b],
			Unit:   orDefault(c.NodesLoadavgUnit, UnitLoad),
			Values: values,
		})
	}
	return f
}

// Points flattens the response into one storage point per timestamp.
func (c *CapstorGlobal) Points(job model.JobRef) []model.Point {
	out := make([]model.Point, 0, len(c.Time))
	for i, ts := range c.Time {
		m := map[string]float64{
			ReadBandwidth:  c.ReadBandwidth[i],
			WriteBandwidth: c.WriteBandwidth[i],
			ReadIOPS:       c.ReadIOPS[i],
			WriteIOPS:      c.WriteIOPS[i],
			MetadataOps:    c.MetadataOps[i],
		}
		for b, v := range c.NodesLoadavg[i] {
			m[loadKey(b)] = float64(v)
		}
		out = append(out, model.Point{Job: job, Source: PathCapstorGlobal, Timestamp: time.Unix(ts, 0).UTC(), Metrics: m})
	}
	return out
}

// CapstorGlobalFromPoints rebuilds a response from stored points, ordered as given.
func CapstorGlobalFromPoints(points []model.Point) *CapstorGlobal {
	c := &CapstorGlobal{
		Time:               make([]int64, 0, len(points)),
		ReadBandwidth:      make([]float64, 0, len(points)),
		ReadBandwidthUnit:  UnitBandwidth,
		ReadIOPS:           make([]float64, 0, len(points)),
		ReadIOPSUnit:       UnitOps,
		WriteBandwidth:     make([]float64, 0, len(points)),
		WriteBandwidthUnit: UnitBandwidth,
		WriteIOPS:          make([]float64, 0, len(points)),
		WriteIOPSUnit:      UnitOps,
		MetadataOps:        make([]float64, 0, len(points)),
		MetadataOpsUnit:    UnitOps,
		NodesLoadavg:       make([][]int64, 0, len(points)),
		NodesLoadavgUnit:   UnitLoad,
	}
	for _, p := range points {
		c.Time = append(c.Time, p.Timestamp.Unix())
		c.ReadBandwidth = append(c.ReadBandwidth, p.Metrics[ReadBandwidth])
		c.ReadIOPS = append(c.ReadIOPS, p.Metrics[ReadIOPS])
		c.WriteBandwidth = append(c.WriteBandwidth, p.Metrics[WriteBandwidth])
		c.WriteIOPS = append(c.WriteIOPS, p.Metrics[WriteIOPS])
		c.MetadataOps = append(c.MetadataOps, p.Metrics[MetadataOps])
		buckets := make([]int64, LoadBuckets)
		for b := range buckets {
			buckets[b] = int64(p.Metrics[loadKey(b)])
		}
		c.NodesLoadavg = append(c.NodesLoadavg, buckets)
	}
	return c
}

func loadKey(bucket int) string { return fmt.Sprintf("%s_%d", NodesLoadavg, bucket) }

// GPUSeries is the temperature series of one GPU.
type GPUSeries struct {
	GPUID       int       `json:"gpu_id"`
	Temperature []float64 `json:"temperature"`
	Unit        string    `json:"temperatures_unit,omitempty"`
}

// UnmarshalJSON accepts both "temperature" and the "temperatures" spelling used by the service.
func (g *GPUSeries) UnmarshalJSON(b []byte) error {
	var raw struct {
		GPUID        *int      `json:"gpu_id"`
		Temperature  []float64 `json:"temperature"`
		Temperatures []float64 `json:"temperatures"`
		Unit         string    `json:"temperatures_unit"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.GPUID == nil {
		return &SchemaError{Field: "gpu_id", Reason: "missing"}
	}
	temps := raw.Temperature
	if temps == nil {
		temps = raw.Temperatures
	}
	if temps == nil {
		return &SchemaError{Field: "temperature", Reason: "missing"}
	}
	*g = GPUSeries{GPUID: *raw.GPUID, Temperature: temps, Unit: raw.Unit}
	return nil
}

// GPUTemperature is the response of the gpu/temperature endpoint.
type GPUTemperature struct {
	Time  []int64                `json:"time"`
	Nodes map[string][]GPUSeries `json:"nodes"`
}

func (g *GPUTemperature) validate() error {
	if g.Time == nil {
		return &SchemaError{Endpoint: PathGPUTemperature, Field: "time", Reason: "missing"}
	}
	if g.Nodes == nil {
		return &SchemaError{Endpoint: PathGPUTemperature, Field: "nodes", Reason: "missing"}
	}
	for _, node := range g.NodeIDs() {
		for i, gpu := range g.Nodes[node] {
			if len(gpu.Temperature) != len(g.Time) {
				return &SchemaError{
					Endpoint: PathGPUTemperature,
					Field:    fmt.Sprintf("nodes.%s[%d].temperature", node, i),
					Reason:   fmt.Sprintf("has %d samples, time has %d", len(gpu.Temperature), len(g.Time)),
				}
			}
		}
	}
	return nil
}

// NodeIDs returns the node identifiers in sorted order.
func (g *GPUTemperature) NodeIDs() []string {
	return sortedKeys(g.Nodes)
}

// DefaultNode is the node plotted when none is requested: the first in sorted order.
func (g *GPUTemperature) DefaultNode() (string, bool) {
	ids := g.NodeIDs()
	if len(ids) == 0 {
		return "", false
	}
	return ids[0], true
}

// Frame returns one series per GPU of node, labelled "GPU <id>".
func (g *GPUTemperature) Frame(node string) (model.Frame, error) {
	gpus, ok := g.Nodes[node]
	if !ok {
		return model.Frame{}, fmt.Errorf("node %q not in response (have %v)", node, g.NodeIDs())
	}
	f := model.Frame{Time: epochTimes(g.Time)}
	for _, gpu := range gpus {
		f.Series = append(f.Series, model.Series{
			Name:   fmt.Sprintf("gpu_%d", gpu.GPUID),
			Label:  fmt.Sprintf("GPU %d", gpu.GPUID),
			Unit:   orDefault(gpu.Unit, UnitTemperature),
			Values: gpu.Temperature,
		})
	}
	return f, nil
}

// Points flattens the response into one storage point per timestamp, keyed "<node>/<gpu_id>".
func (g *GPUTemperature) Points(job model.JobRef) []model.Point {
	out := make([]model.Point, 0, len(g.Time))
	for i, ts := range g.Time {
		m := map[string]float64{}
		for node, gpus := range g.Nodes {
			for _, gpu := range gpus {
				m[gpuKey(node, gpu.GPUID)] = gpu.Temperature[i]
			}
		}
		out = append(out, model.Point{Job: job, Source: PathGPUTemperature, Timestamp: time.Unix(ts, 0).UTC(), Metrics: m})
	}
	return out
}

// GPUTemperatureFromPoints rebuilds a response from stored points. A non-empty node keeps only that node.
// A GPU absent from a point reads as 0 at that timestamp.
func GPUTemperatureFromPoints(points []model.Point, node string) *GPUTemperature {
	type gpuRef struct {
		node string
		id   int
	}
	seen := map[gpuRef]bool{}
	var refs []gpuRef
	for _, p := range points {
		for k := range p.Metrics {
			n, id, ok := parseGPUKey(k)
			if !ok || (node != "" && n != node) {
				continue
			}
			r := gpuRef{n, id}
			if !seen[r] {
				seen[r] = true
				refs = append(refs, r)
			}
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].node != refs[j].node {
			return refs[i].node < refs[j].node
		}
		return refs[i].id < refs[j].id
	})

	g := &GPUTemperature{Time: make([]int64, 0, len(points)), Nodes: map[string][]GPUSeries{}}
	for _, p := range points {
		g.Time = append(g.Time, p.Timestamp.Unix())
	}
	for _, r := range refs {
		temps := make([]float64, len(points))
		for i, p := range points {
			temps[i] = p.Metrics[gpuKey(r.node, r.id)]
		}
		g.Nodes[r.node] = append(g.Nodes[r.node], GPUSeries{GPUID: r.id, Temperature: temps, Unit: UnitTemperature})
	}
	return g
}

func epochTimes(epochs []int64) []time.Time {
	out := make([]time.Time, len(epochs))
	for i, e := range epochs {
		out[i] = time.Unix(e, 0)
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func gpuKey(node string, gpu int) string { return node + "/" + strconv.Itoa(gpu) }

func parseGPUKey(k string) (string, int, bool) {
	i := strings.LastIndex(k, "/")
	if i <= 0 {
		return "", 0, false
	}
	id, err := strconv.Atoi(k[i+1:])
	if err != nil {
		return "", 0, false
	}
	return k[:i], id, true
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
