package metrics

import (
	"sort"
	"strings"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Point is one recorded value of a per-generation series
type Point struct {
	Generation int               `json:"generation"`
	Timestamp  time.Time         `json:"timestamp"`
	Name       string            `json:"metric"`
	Value      float64           `json:"value"`
	Labels     map[string]string `json:"labels,omitempty"`
}

// Aggregation summarizes the values of one series
type Aggregation struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
	Last  float64 `json:"last"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
}

// Collector collects per-generation time series for one job
type Collector struct {
	mu sync.RWMutex

	startTime time.Time
	endTime   time.Time

	// metric name -> label key -> points in recording order
	timeSeries map[string]map[string][]Point
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{
		startTime:  time.Now(),
		timeSeries: make(map[string]map[string][]Point),
	}
}

// Start marks the start of collection
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
}

// Stop marks the end of collection
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = time.Now()
}

// Duration returns the collection wall time, up to now while still running
func (c *Collector) Duration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.endTime.IsZero() {
		return time.Since(c.startTime)
	}
	return c.endTime.Sub(c.startTime)
}

// Record appends a value for generation
func (c *Collector) Record(name string, generation int, value float64, timestamp time.Time, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := labelKey(labels)
	if c.timeSeries[name] == nil {
		c.timeSeries[name] = make(map[string][]Point)
	}
	c.timeSeries[name][key] = append(c.timeSeries[name][key], Point{
		Generation: generation,
		Timestamp:  timestamp,
		Name:       name,
		Value:      value,
		Labels:     copyLabels(labels),
	})
}

// RecordNow records a value at the current time
func (c *Collector) RecordNow(name string, generation int, value float64, labels map[string]string) {
	c.Record(name, generation, value, time.Now(), labels)
}

// GetTimeSeries returns a copy of the points of one series
func (c *Collector) GetTimeSeries(name string, labels map[string]string) []Point {
	c.mu.RLock()
	defer c.mu.RUnlock()

	points := c.timeSeries[name][labelKey(labels)]
	if points == nil {
		return nil
	}
	out := make([]Point, len(points))
	for i, p := range points {
		p.Labels = copyLabels(p.Labels)
		out[i] = p
	}
	return out
}

// Since returns every point recorded for a generation after generation,
// ordered by generation then metric name
func (c *Collector) Since(generation int) []Point {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Point
	for _, byLabels := range c.timeSeries {
		for _, points := range byLabels {
			for _, p := range points {
				if p.Generation > generation {
					p.Labels = copyLabels(p.Labels)
					out = append(out, p)
				}
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Generation != out[j].Generation {
			return out[i].Generation < out[j].Generation
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return labelKey(out[i].Labels) < labelKey(out[j].Labels)
	})
	return out
}

// GetAggregation summarizes one series, or returns nil when it is empty
func (c *Collector) GetAggregation(name string, labels map[string]string) *Aggregation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return aggregate(c.timeSeries[name][labelKey(labels)])
}

// GetMetricNames returns the recorded metric names in sorted order
func (c *Collector) GetMetricNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.timeSeries))
	for name := range c.timeSeries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetLabelsForMetric returns every label combination recorded for a metric
func (c *Collector) GetLabelsForMetric(name string) []map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.timeSeries[name]))
	for key, points := range c.timeSeries[name] {
		if len(points) > 0 {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	out := make([]map[string]string, 0, len(keys))
	for _, key := range keys {
		out = append(out, copyLabels(c.timeSeries[name][key][0].Labels))
	}
	return out
}

// labelKey creates a key from labels for map lookup
func labelKey(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}

func copyLabels(labels map[string]string) map[string]string {
	if labels == nil {
		return nil
	}
	out := make(map[string]string, len(labels))
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func aggregate(points []Point) *Aggregation {
	if len(points) == 0 {
		return nil
	}
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	last := values[len(values)-1]
	sort.Float64s(values)

	return &Aggregation{
		Count: len(values),
		Min:   floats.Min(values),
		Max:   floats.Max(values),
		Mean:  stat.Mean(values, nil),
		Last:  last,
		P50:   stat.Quantile(0.50, stat.LinInterp, values, nil),
		P95:   stat.Quantile(0.95, stat.LinInterp, values, nil),
	}
}
