// Package telemetry keeps process-wide prometheus instruments, registered
// lazily on first use and cached by metric name plus label set. Collection
// happens on the service's /metrics endpoint.
package telemetry

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mu         sync.Mutex
	counterMap = map[string]prometheus.Counter{}
	gaugeMap   = map[string]prometheus.Gauge{}
)

func instrumentKey(metric string, labels map[string]string) string {
	key := metric
	names := make([]string, 0, len(labels))
	for name := range labels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		key += "/" + name + ":" + labels[name]
	}
	return key
}

func NewCounter(metric string, labels map[string]string) prometheus.Counter {
	mu.Lock()
	defer mu.Unlock()
	key := instrumentKey(metric, labels)
	if _, ok := counterMap[key]; !ok {
		counterMap[key] = promauto.NewCounter(prometheus.CounterOpts{Name: metric, ConstLabels: labels})
	}
	return counterMap[key]
}

func NewGauge(metric string, labels map[string]string) prometheus.Gauge {
	mu.Lock()
	defer mu.Unlock()
	key := instrumentKey(metric, labels)
	if _, ok := gaugeMap[key]; !ok {
		gaugeMap[key] = promauto.NewGauge(prometheus.GaugeOpts{Name: metric, ConstLabels: labels})
	}
	return gaugeMap[key]
}
