package mode

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	fromMode = "from"
	toMode   = "to"
)

var (
	mt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mode_transition_count",
		Help: "The number of operating-mode transitions (per from/to pair).",
	}, []string{fromMode, toMode})
)

func modeTransitions(from, to string) prometheus.Counter {
	return mt.With(prometheus.Labels{fromMode: from, toMode: to})
}
