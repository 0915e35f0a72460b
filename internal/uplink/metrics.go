package uplink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ufc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uplink_frame_count",
		Help: "The number of radio frames published to the network server (per message type).",
	}, []string{"msgtype"})

	ufdc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uplink_frame_dropped_count",
		Help: "The number of radio frames dropped before publishing (per drop reason).",
	}, []string{"reason"})

	ufec = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uplink_frame_error_count",
		Help: "The number of radio frames that failed to be processed.",
	})
)

func uplinkFrameCounter(m string) prometheus.Counter {
	return ufc.With(prometheus.Labels{"msgtype": m})
}

func uplinkFrameDroppedCounter(r string) prometheus.Counter {
	return ufdc.With(prometheus.Labels{"reason": r})
}

func uplinkFrameErrorCounter() prometheus.Counter {
	return ufec
}
