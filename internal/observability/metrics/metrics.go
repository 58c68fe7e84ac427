package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes the governance-specific instruments. Lock wait durations
// matter most here: transfer/start contention on a plan shows up as
// db_lock_wait_seconds before it shows up anywhere else.
type Metrics struct {
	lockWait          *prometheus.HistogramVec
	transferConflicts prometheus.Counter
	cycleStarts       *prometheus.CounterVec
	scopeResolutions  *prometheus.CounterVec
}

const (
	LockResourcePlan       = "plan"
	LockResourceMembership = "membership"
)

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "governa",
			Name:      "db_lock_wait_seconds",
			Help:      "Row lock wait time for SELECT FOR UPDATE on plan and membership rows.",
			Buckets:   []float64{0.001, 0.005, 0.025, 0.1, 0.5, 1, 2.5, 5, 10},
		}, []string{"resource"}),
		transferConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "governa",
			Name:      "membership_transfer_conflicts_total",
			Help:      "Transfers rejected because the source plan had a started cycle.",
		}),
		cycleStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "governa",
			Name:      "cycle_starts_total",
			Help:      "StartCycle outcomes by result.",
		}, []string{"result"}),
		scopeResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "governa",
			Name:      "scope_resolutions_total",
			Help:      "Cycle scope resolutions by source.",
		}, []string{"source"}),
	}

	reg.MustRegister(m.lockWait, m.transferConflicts, m.cycleStarts, m.scopeResolutions)
	return m
}

func (m *Metrics) ObserveLockWait(resource string, d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(resource).Observe(d.Seconds())
}

func (m *Metrics) RecordTransferConflict() {
	if m == nil {
		return
	}
	m.transferConflicts.Inc()
}

func (m *Metrics) RecordCycleStart(result string) {
	if m == nil {
		return
	}
	m.cycleStarts.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordScopeResolution(source string) {
	if m == nil {
		return
	}
	m.scopeResolutions.WithLabelValues(source).Inc()
}
