package metrics

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type manager struct {
	namespace string
	system    string
	registry  *prometheus.Registry
}

var (
	mu      sync.RWMutex
	current = &manager{
		namespace: "default",
		system:    "default",
		registry:  prometheus.NewRegistry(),
	}
)

// SetupMetricsManager replaces the registry that the New* helpers register into.
func SetupMetricsManager(ns, system string, registry *prometheus.Registry) {
	mu.Lock()
	defer mu.Unlock()
	current = &manager{
		namespace: ns,
		system:    system,
		registry:  registry,
	}
	_ = registry.Register(collectors.NewGoCollector())
}

func get() *manager {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Registry returns the active registry.
func Registry() *prometheus.Registry {
	return get().registry
}

func zeroLabels(n int) []string {
	return make([]string, n)
}

// register returns the collector already registered under the same
// descriptor, if any. Tests build Metrics more than once.
func register[T prometheus.Collector](c T) T {
	err := get().registry.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if !errors.As(err, &are) {
		panic(err)
	}
	if existing, ok := are.ExistingCollector.(T); ok {
		return existing
	}
	return c
}

func NewCounterVec(name string, labels []string) *prometheus.CounterVec {
	m := get()
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: FmtFixer(m.namespace),
		Subsystem: FmtFixer(m.system),
		Name:      FmtFixer(name),
		Help:      fmt.Sprintf("%s count of /%s/%s", name, m.namespace, m.system),
	}, labels)
	vec = register(vec)
	vec.WithLabelValues(zeroLabels(len(labels))...).Add(0)
	return vec
}

func NewHistogramVec(name string, labels []string) *prometheus.HistogramVec {
	m := get()
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: FmtFixer(m.namespace),
		Subsystem: FmtFixer(m.system),
		Name:      FmtFixer(name),
		Help:      fmt.Sprintf("%s duration of /%s/%s", name, m.namespace, m.system),
	}, labels)
	return register(vec)
}

func NewGaugeVec(name string, labels []string) *prometheus.GaugeVec {
	m := get()
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: FmtFixer(m.namespace),
		Subsystem: FmtFixer(m.system),
		Name:      FmtFixer(name),
		Help:      fmt.Sprintf("%s gauge of /%s/%s", name, m.namespace, m.system),
	}, labels)
	vec = register(vec)
	vec.WithLabelValues(zeroLabels(len(labels))...).Add(0)
	return vec
}

// DefaultExportHandler exposes the active registry in the Prometheus text format.
func DefaultExportHandler() gin.HandlerFunc {
	reg := get().registry
	h := promhttp.InstrumentMetricHandler(reg, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func FmtFixer(in string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(in)
}
