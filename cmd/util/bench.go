package util

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// benchPercentiles are reported for every timer
var benchPercentiles = []float64{0.5, 0.95, 0.99}

// BenchTimers records the latency of benchmark operations by name
type BenchTimers struct {
	registry gometrics.Registry
}

// NewBenchTimers creates an empty set of timers
func NewBenchTimers() *BenchTimers {
	return &BenchTimers{registry: gometrics.NewRegistry()}
}

// Time measures fn and records it under name. Failed calls are counted separately.
func (b *BenchTimers) Time(name string, fn func() error) {
	start := time.Now()
	err := fn()
	if err != nil {
		gometrics.GetOrRegisterCounter(name+"-errors", b.registry).Inc(1)
		return
	}
	gometrics.GetOrRegisterTimer(name, b.registry).UpdateSince(start)
}

// Count increments the counter name by one
func (b *BenchTimers) Count(name string) {
	gometrics.GetOrRegisterCounter(name, b.registry).Inc(1)
}

// Print writes one line per timer and counter to stdout
func (b *BenchTimers) Print() {
	for _, name := range b.names() {
		switch m := b.registry.Get(name).(type) {
		case gometrics.Timer:
			t := m.Snapshot()
			ps := t.Percentiles(benchPercentiles)
			fmt.Printf("%-20s n=%-8d mean=%-12s p50=%-12s p95=%-12s p99=%-12s %.0f ops/sec\n",
				name, t.Count(), time.Duration(t.Mean()), time.Duration(ps[0]), time.Duration(ps[1]), time.Duration(ps[2]), t.RateMean())
		case gometrics.Counter:
			fmt.Printf("%-20s n=%d\n", name, m.Snapshot().Count())
		}
	}
}

// WriteCSV writes the timers to a CSV file, extra columns are appended to every row
func (b *BenchTimers) WriteCSV(path string, extra map[string]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	extraKeys := make([]string, 0, len(extra))
	for k := range extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)

	header := append([]string{"Test", "Count", "MeanNs", "P50Ns", "P95Ns", "P99Ns", "OpsPerSec"}, extraKeys...)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, name := range b.names() {
		t, ok := b.registry.Get(name).(gometrics.Timer)
		if !ok {
			continue
		}
		snap := t.Snapshot()
		ps := snap.Percentiles(benchPercentiles)
		row := []string{
			name,
			strconv.FormatInt(snap.Count(), 10),
			fmt.Sprintf("%.0f", snap.Mean()),
			fmt.Sprintf("%.0f", ps[0]),
			fmt.Sprintf("%.0f", ps[1]),
			fmt.Sprintf("%.0f", ps[2]),
			fmt.Sprintf("%.0f", snap.RateMean()),
		}
		for _, k := range extraKeys {
			row = append(row, extra[k])
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", name, err)
		}
	}
	return writer.Error()
}

func (b *BenchTimers) names() []string {
	var names []string
	b.registry.Each(func(name string, _ interface{}) {
		names = append(names, name)
	})
	sort.Strings(names)
	return names
}
