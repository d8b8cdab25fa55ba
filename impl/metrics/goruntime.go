package metrics

import (
	"fmt"
	"runtime/metrics"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// addGoRuntimeMetrics exports the scalar go runtime metrics (see runtime/metrics) as
// prometheus counters and gauges. Histogram metrics are skipped.
func addGoRuntimeMetrics() {
	for _, desc := range metrics.All() {
		if desc.Kind != metrics.KindUint64 && desc.Kind != metrics.KindFloat64 {
			continue
		}
		opts, ok := runtimeOpts(desc)
		if !ok {
			continue
		}
		name := desc.Name
		read := func() float64 {
			return readRuntimeMetric(name)
		}
		if desc.Cumulative {
			prometheus.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts(opts), read))
		} else {
			prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts(opts), read))
		}
	}
}

// runtimeOpts maps a runtime metric name like "/gc/heap/allocs:bytes" to
// namespace "go_runtime", subsystem "gc_heap", name "allocs_bytes".
func runtimeOpts(desc metrics.Description) (prometheus.Opts, bool) {
	path, unit, found := strings.Cut(strings.TrimPrefix(desc.Name, "/"), ":")
	if !found {
		return prometheus.Opts{}, false
	}
	parts := strings.Split(path, "/")
	leaf := parts[len(parts)-1]
	return prometheus.Opts{
		Namespace: "go_runtime",
		Subsystem: promName(strings.Join(parts[:len(parts)-1], "_")),
		Name:      promName(leaf + "_" + unit),
		Help:      fmt.Sprintf("%s (%s)", desc.Description, desc.Name),
	}, true
}

// promName replaces characters that are legal in runtime metric names but not in
// prometheus names
func promName(s string) string {
	return strings.NewReplacer("-", "_", "*", "x", ".", "_", ":", "_").Replace(s)
}

func readRuntimeMetric(name string) float64 {
	sample := []metrics.Sample{{Name: name}}
	metrics.Read(sample)
	switch sample[0].Value.Kind() {
	case metrics.KindUint64:
		return float64(sample[0].Value.Uint64())
	case metrics.KindFloat64:
		return sample[0].Value.Float64()
	}
	return 0
}
