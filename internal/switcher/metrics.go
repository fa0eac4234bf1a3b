package switcher

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type switchMetrics struct {
	requests    *prometheus.CounterVec
	connects    prometheus.Counter
	transitions *prometheus.CounterVec
	connected   prometheus.Gauge
}

func newSwitchMetrics(reg prometheus.Registerer) *switchMetrics {
	m := &switchMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "switchbridge",
			Subsystem: "switcher",
			Name:      "switch_requests_total",
			Help:      "Program switch requests by outcome.",
		}, []string{"outcome"}),
		connects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "switchbridge",
			Subsystem: "switcher",
			Name:      "connect_requests_total",
			Help:      "Connect requests received.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "switchbridge",
			Subsystem: "switcher",
			Name:      "transitions_total",
			Help:      "Transitions issued to the device by kind.",
		}, []string{"kind"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "switchbridge",
			Subsystem: "switcher",
			Name:      "connected",
			Help:      "1 while a switcher connection is established.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.requests, m.connects, m.transitions, m.connected} {
			if err := reg.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					panic(err)
				}
			}
		}
	}
	return m
}
