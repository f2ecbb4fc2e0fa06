package merge

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "atmogrid"

// Outcome labels of Metrics.Writes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Forecast adjustment labels of Metrics.ForecastAdjustments.
const (
	AdjustTruncated  = "truncated"
	AdjustSuperseded = "superseded"
)

// Metrics holds the Prometheus collectors of a Controller.
type Metrics struct {
	Writes              *prometheus.CounterVec // labels: tier, outcome={ok,rejected,error}
	StepsWritten        *prometheus.CounterVec // labels: tier
	ForecastAdjustments *prometheus.CounterVec // labels: action={truncated,superseded}
	Watermark           *prometheus.GaugeVec   // labels: dataset, kind; unix seconds
}

// NewMetrics creates the merge metrics and registers them on reg.
//
// A nil reg leaves them unregistered. When reg already holds merge metrics,
// for example from a grid file opened earlier in the process, those
// collectors are reused so counters keep accumulating.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "merge",
			Name:      "writes_total",
			Help:      "Merge write calls by tier and outcome.",
		}, []string{"tier", "outcome"}),
		StepsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "merge",
			Name:      "steps_written_total",
			Help:      "Time steps committed by tier.",
		}, []string{"tier"}),
		ForecastAdjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "merge",
			Name:      "forecast_adjustments_total",
			Help:      "Forecast windows truncated or superseded by observations.",
		}, []string{"action"}),
		Watermark: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "merge",
			Name:      "watermark_timestamp_seconds",
			Help:      "Current watermark per dataset and kind, as a Unix timestamp; 0 when unset.",
		}, []string{"dataset", "kind"}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	if m.Writes, err = register(reg, m.Writes); err != nil {
		return nil, err
	}
	if m.StepsWritten, err = register(reg, m.StepsWritten); err != nil {
		return nil, err
	}
	if m.ForecastAdjustments, err = register(reg, m.ForecastAdjustments); err != nil {
		return nil, err
	}
	if m.Watermark, err = register(reg, m.Watermark); err != nil {
		return nil, err
	}

	return m, nil
}

// Unregister removes the collectors of m from reg.
func (m *Metrics) Unregister(reg prometheus.Registerer) {
	if m == nil || reg == nil {
		return
	}
	reg.Unregister(m.Writes)
	reg.Unregister(m.StepsWritten)
	reg.Unregister(m.ForecastAdjustments)
	reg.Unregister(m.Watermark)
}

// register registers c on reg, or returns the collector reg already holds
// under the same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}

	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}

	return c, fmt.Errorf("register merge metrics: %w", err)
}

func (m *Metrics) observeWrite(tier Tier, outcome string, steps int) {
	if m == nil {
		return
	}
	m.Writes.WithLabelValues(tier.String(), outcome).Inc()
	if steps > 0 {
		m.StepsWritten.WithLabelValues(tier.String()).Add(float64(steps))
	}
}

func (m *Metrics) observeAdjustment(action string) {
	if m == nil || action == "" {
		return
	}
	m.ForecastAdjustments.WithLabelValues(action).Inc()
}

func (m *Metrics) observeWatermarks(dataset string, w Watermarks) {
	if m == nil {
		return
	}
	for _, f := range w.fields() {
		m.Watermark.WithLabelValues(dataset, f.key).Set(unixOrZero(*f.val))
	}
}

func unixOrZero(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}

	return float64(t.Unix())
}
