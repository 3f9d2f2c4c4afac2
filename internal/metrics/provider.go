package metrics

// Metric names understood by Prom. Other names are ignored.
const (
	Dispatched        = "requests_dispatched_total"
	Failures          = "requests_failed_total"
	UnparsedBodies    = "failure_bodies_unparsed_total"
	ErrorEvents       = "error_events_total"
	ErrorPublishFails = "error_publish_failed_total"
	InFlight          = "requests_in_flight"
	Latency           = "request_latency_ms"
	JournalRecords    = "journal_records_total"
)

// Provider is the metrics sink used across the module.
type Provider interface {
	SetGauge(name string, value float64)
	IncCounter(name string, delta float64)
	Observe(name string, value float64)
}

type Noop struct{}

func (Noop) SetGauge(string, float64)   {}
func (Noop) IncCounter(string, float64) {}
func (Noop) Observe(string, float64)    {}
