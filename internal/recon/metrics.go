package recon

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type scanMetrics struct {
	scans     *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	liveHosts *prometheus.CounterVec
	found     *prometheus.GaugeVec
}

func newScanMetrics(reg prometheus.Registerer) *scanMetrics {
	m := &scanMetrics{
		scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "switchbridge",
			Subsystem: "recon",
			Name:      "scans_total",
			Help:      "Discovery scans by device kind and outcome.",
		}, []string{"kind", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "switchbridge",
			Subsystem: "recon",
			Name:      "scan_duration_seconds",
			Help:      "Wall time of completed discovery scans.",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 80},
		}, []string{"kind"}),
		liveHosts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "switchbridge",
			Subsystem: "recon",
			Name:      "live_hosts_total",
			Help:      "Hosts that answered the liveness probe.",
		}, []string{"kind"}),
		found: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "switchbridge",
			Subsystem: "recon",
			Name:      "devices_found",
			Help:      "Devices found by the most recent scan.",
		}, []string{"kind"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.scans, m.duration, m.liveHosts, m.found} {
			register(reg, c)
		}
	}
	return m
}

// register ignores AlreadyRegisteredError and panics on any other failure,
// like MustRegister.
func register(reg prometheus.Registerer, c prometheus.Collector) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
	}
}
