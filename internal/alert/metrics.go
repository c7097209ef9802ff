package alert

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	severity = "severity"
	reason   = "reason"
	channel  = "channel"
)

var (
	ad = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_dispatched_count",
		Help: "The number of dispatched alerts (per severity).",
	}, []string{severity})
	as = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_suppressed_count",
		Help: "The number of suppressed alerts (per reason).",
	}, []string{reason})
	ce = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alert_channel_error_count",
		Help: "The number of channel dispatch errors (per channel).",
	}, []string{channel})
)

func alertsDispatched(s string) prometheus.Counter {
	return ad.With(prometheus.Labels{severity: s})
}

func alertsSuppressed(r string) prometheus.Counter {
	return as.With(prometheus.Labels{reason: r})
}

func channelErrors(c string) prometheus.Counter {
	return ce.With(prometheus.Labels{channel: c})
}
