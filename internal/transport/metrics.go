package transport

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// RegisterMetrics exposes Stats on reg. Counters are read from the live
// transport at scrape time.
func (t *Transport) RegisterMetrics(reg prometheus.Registerer) error {
	counter := func(name, help string, v func(Stats) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "rovernav",
			Subsystem: "transport",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(v(t.Stats())) })
	}

	collectors := []prometheus.Collector{
		counter("accepted_total", "Inbound connections accepted", func(s Stats) int64 { return s.Accepted }),
		counter("dialed_total", "Outbound connections established", func(s Stats) int64 { return s.Dialed }),
		counter("dial_failures_total", "Failed dial attempts", func(s Stats) int64 { return s.DialFailures }),
		counter("closed_total", "Connections closed", func(s Stats) int64 { return s.Closed }),
		counter("lines_in_total", "Lines received from peers", func(s Stats) int64 { return s.LinesIn }),
		counter("lines_out_total", "Lines written to peers", func(s Stats) int64 { return s.LinesOut }),
		counter("partial_writes_total", "Writes that sent only part of the buffer", func(s Stats) int64 { return s.PartialWrites }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "rovernav",
			Subsystem: "transport",
			Name:      "pending_peers",
			Help:      "Roster peers waiting for a dial",
		}, func() float64 { return float64(t.Stats().Pending) }),
	}

	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
