package downlink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	dmc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "downlink_message_count",
		Help: "The number of messages received from the network server (per message type).",
	}, []string{"msgtype"})

	dmdc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "downlink_message_dropped_count",
		Help: "The number of network-server messages dropped (per drop reason).",
	}, []string{"reason"})

	dmec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "downlink_message_error_count",
		Help: "The number of network-server messages that failed to be processed.",
	})

	tog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "timesync_offset_microseconds",
		Help: "The last observed offset between the network-server clock and the local clock.",
	})
)

func downlinkMessageCounter(m string) prometheus.Counter {
	return dmc.With(prometheus.Labels{"msgtype": m})
}

func downlinkMessageDroppedCounter(r string) prometheus.Counter {
	return dmdc.With(prometheus.Labels{"reason": r})
}

func downlinkMessageErrorCounter() prometheus.Counter {
	return dmec
}

func timesyncOffsetGauge() prometheus.Gauge {
	return tog
}
