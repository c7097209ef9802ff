package alert

import (
	log "github.com/sirupsen/logrus"

	"github.com/skymesh/skymesh-ground-monitor/internal/validation"
)

// Channel is a single alert sink.
type Channel interface {
	// Name returns the channel name used in logs and counters.
	Name() string

	// Send dispatches the alert. Errors are counted by the manager and
	// never propagate into packet processing.
	Send(a Alert) error
}

// LogChannel writes alerts to the log.
type LogChannel struct{}

// Name implements the Channel interface.
func (c LogChannel) Name() string {
	return "log"
}

// Send implements the Channel interface.
func (c LogChannel) Send(a Alert) error {
	fields := log.Fields{
		"rule":      a.RuleName,
		"system_id": a.SystemID,
		"severity":  a.Severity,
	}

	switch a.Severity {
	case validation.SeverityCritical:
		log.WithFields(fields).Error(a.Message)
	case validation.SeverityWarning:
		log.WithFields(fields).Warning(a.Message)
	default:
		log.WithFields(fields).Info(a.Message)
	}

	return nil
}
