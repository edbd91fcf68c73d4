package common

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the pipeline's prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	RefreshTotal   *prometheus.CounterVec
	RefreshWaiters prometheus.Histogram
	RetriedTotal   prometheus.Counter
	LogoutTotal    prometheus.Counter
}

// NewMetrics builds the collectors and registers them on reg when reg is
// non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RefreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authpipe_refresh_total",
			Help: "Refresh endpoint calls by outcome.",
		}, []string{"outcome"}),
		RefreshWaiters: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "authpipe_refresh_waiters",
			Help:    "Callers resolved by a single refresh call.",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
		}),
		RetriedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authpipe_requests_retried_total",
			Help: "Requests replayed after a credential refresh.",
		}),
		LogoutTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authpipe_forced_logout_total",
			Help: "Forced logouts after an unrecoverable refresh failure.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.RefreshTotal, m.RefreshWaiters, m.RetriedTotal, m.LogoutTotal)
	}
	return m
}

// ObserveRefresh records one finished refresh shared by waiters callers.
func (m *Metrics) ObserveRefresh(ok bool, waiters int) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.RefreshTotal.WithLabelValues(outcome).Inc()
	m.RefreshWaiters.Observe(float64(waiters))
}

func (m *Metrics) IncRetried() {
	if m == nil {
		return
	}
	m.RetriedTotal.Inc()
}

func (m *Metrics) IncLogout() {
	if m == nil {
		return
	}
	m.LogoutTotal.Inc()
}
