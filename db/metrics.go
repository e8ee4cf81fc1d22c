package db

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RegisterMetrics exposes keyspace gauges on reg.
func (s *Store) RegisterMetrics(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "mockkv",
			Subsystem: "store",
			Name:      "keys",
			Help:      "Number of keys in the keyspace.",
		}, func() float64 { return float64(s.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "mockkv",
			Subsystem: "store",
			Name:      "used_bytes",
			Help:      "Estimated bytes held by keys and values.",
		}, func() float64 { return float64(s.UsedMemory()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "mockkv",
			Subsystem: "ttl",
			Name:      "expired_total",
			Help:      "Keys removed because their deadline passed.",
		}, func() float64 { return float64(s.Expired()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "mockkv",
			Subsystem: "ttl",
			Name:      "records",
			Help:      "TTL records held in the heap, tombstones included.",
		}, func() float64 { return float64(s.ttl.Len()) }),
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
