package validation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	severity = "severity"
	rule     = "rule"
)

var (
	vc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "validation_violations_count",
		Help: "The number of rule violations (per severity and rule).",
	}, []string{severity, rule})
)

func violationsCount(s, r string) prometheus.Counter {
	return vc.With(prometheus.Labels{severity: s, rule: r})
}
