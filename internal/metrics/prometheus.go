package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Prom struct {
	reg      *prometheus.Registry
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge

	Latency prometheus.Histogram
}

func NewProm() *Prom {
	reg := prometheus.NewRegistry()
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: "commbus", Name: name, Help: help})
	}
	p := &Prom{
		reg: reg,
		counters: map[string]prometheus.Counter{
			Dispatched:        counter(Dispatched, "Descriptions received on the dispatch subject"),
			Failures:          counter(Failures, "Calls that ended in a transport failure"),
			UnparsedBodies:    counter(UnparsedBodies, "Failure bodies that were not structured data"),
			ErrorEvents:       counter(ErrorEvents, "Error events published"),
			ErrorPublishFails: counter(ErrorPublishFails, "Error events the bus refused"),
			JournalRecords:    counter(JournalRecords, "Error events recorded by the journal"),
		},
		gauges: map[string]prometheus.Gauge{
			InFlight: prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "commbus", Name: InFlight, Help: "Calls currently in flight"}),
		},
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "commbus",
			Name:      Latency,
			Help:      "Latency of outgoing calls in ms",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}),
	}
	for _, c := range p.counters {
		reg.MustRegister(c)
	}
	for _, g := range p.gauges {
		reg.MustRegister(g)
	}
	reg.MustRegister(p.Latency)
	return p
}

func (p *Prom) Registry() *prometheus.Registry { return p.reg }

func (p *Prom) Handler() http.Handler { return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{}) }

// Implement Provider
func (p *Prom) SetGauge(name string, value float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(value)
	}
}

func (p *Prom) IncCounter(name string, delta float64) {
	if c, ok := p.counters[name]; ok && delta >= 0 {
		c.Add(delta)
	}
}

// Observe supports selected summaries/histograms
func (p *Prom) Observe(name string, value float64) {
	switch name {
	case Latency:
		p.Latency.Observe(value)
	default:
		// ignore unknown for now
	}
}
