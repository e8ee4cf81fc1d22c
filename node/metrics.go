package node

import (
	"github.com/fzft/go-mock-kv/proto"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's collectors. A nil *Metrics records nothing.
type Metrics struct {
	active   prometheus.Gauge
	accepted prometheus.Counter
	rejected prometheus.Counter
	closed   *prometheus.CounterVec
	inflight prometheus.Gauge
	ready    prometheus.Gauge

	// frames is indexed by status; statuses outside the table share the last slot.
	frames []prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mockkv", Subsystem: "connections", Name: "active",
			Help: "Connections currently registered with the poller.",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mockkv", Subsystem: "connections", Name: "accepted_total",
			Help: "Connections accepted.",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mockkv", Subsystem: "connections", Name: "rejected_total",
			Help: "Connections refused because max-conns was reached.",
		}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mockkv", Subsystem: "connections", Name: "closed_total",
			Help: "Connections torn down, by reason.",
		}, []string{"reason"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mockkv", Subsystem: "workers", Name: "inflight",
			Help: "Connections handed to workers and not yet returned to the poller.",
		}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mockkv", Subsystem: "ready_queue", Name: "depth",
			Help: "Connections waiting in the ready queue.",
		}),
	}
	frames := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mockkv", Name: "frames_total",
		Help: "Requests served, by response status.",
	}, []string{"status"})
	for s := proto.StatusOK; s <= proto.StatusBadHash; s++ {
		m.frames = append(m.frames, frames.WithLabelValues(s.String()))
	}
	m.frames = append(m.frames, frames.WithLabelValues("other"))

	for _, c := range []prometheus.Collector{m.active, m.accepted, m.rejected, m.closed, m.inflight, m.ready, frames} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) accept() {
	if m == nil {
		return
	}
	m.accepted.Inc()
	m.active.Inc()
}

func (m *Metrics) reject() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

func (m *Metrics) close(reason string) {
	if m == nil {
		return
	}
	m.closed.WithLabelValues(reason).Inc()
	m.active.Dec()
}

func (m *Metrics) frame(s proto.Status) {
	if m == nil {
		return
	}
	i := int(s)
	if i < 0 || i >= len(m.frames)-1 {
		i = len(m.frames) - 1
	}
	m.frames[i].Inc()
}

func (m *Metrics) setInflight(n int64) {
	if m == nil {
		return
	}
	m.inflight.Set(float64(n))
}

func (m *Metrics) setReady(n int) {
	if m == nil {
		return
	}
	m.ready.Set(float64(n))
}
