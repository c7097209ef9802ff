// Package alert converts rule violations into externally dispatched alerts
// with deduplication and rate limiting.
package alert

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/skymesh/skymesh-ground-monitor/internal/protocol"
	"github.com/skymesh/skymesh-ground-monitor/internal/validation"
)

// relay latency alerts are synthesized from status payloads rather than
// telemetry messages.
const (
	relayLatencyRule    = "Relay Mode Latency"
	relayLatencyMsgType = "CMD_STATUS_REPORT"
	relayLatencyField   = "relay_latency"
)

// Alert holds a single dispatched alert record.
type Alert struct {
	Timestamp time.Time           `json:"timestamp"`
	Message   string              `json:"message"`
	Severity  validation.Severity `json:"severity"`
	RuleName  string              `json:"rule_name"`
	SystemID  uint8               `json:"system_id"`
}

// ManagerStats holds the manager counters.
type ManagerStats struct {
	TotalAlerts        uint64
	FilteredDuplicates uint64
	ThrottledAlerts    uint64
	RelayLatencyAlerts uint64
	ChannelErrors      uint64
	BySeverity         map[validation.Severity]uint64
}

// Config holds the manager configuration.
type Config struct {
	ThrottleWindow          time.Duration
	DuplicateWindow         time.Duration
	MaxAlertsPerWindow      int
	RelayLatencyThresholdMS float64
	MaxHistory              int
}

// dedupKey identifies duplicate alerts. The actual value is deliberately
// not part of the key: a changing reading within the window is still the
// same condition.
type dedupKey struct {
	ruleName string
	systemID uint8
	field    string
}

// Manager filters, throttles and dispatches alerts. Calls must come from a
// single goroutine or be serialized by the caller; the internal mutex
// protects readers.
type Manager struct {
	mu sync.Mutex

	conf     Config
	channels []Channel

	history       []Alert // chronological, bounded
	lastDispatch  map[dedupKey]time.Time
	dispatchTimes map[string][]time.Time
	relayMode     map[uint8]bool

	totalAlerts        uint64
	filteredDuplicates uint64
	throttledAlerts    uint64
	relayLatencyAlerts uint64
	channelErrors      uint64
	bySeverity         map[validation.Severity]uint64
}

// NewManager creates a new Manager dispatching to the given channels.
func NewManager(conf Config, channels ...Channel) *Manager {
	if conf.ThrottleWindow <= 0 {
		conf.ThrottleWindow = time.Minute
	}
	if conf.DuplicateWindow <= 0 {
		conf.DuplicateWindow = 30 * time.Second
	}
	if conf.MaxAlertsPerWindow <= 0 {
		conf.MaxAlertsPerWindow = 10
	}
	if conf.RelayLatencyThresholdMS <= 0 {
		conf.RelayLatencyThresholdMS = 500
	}
	if conf.MaxHistory <= 0 {
		conf.MaxHistory = 500
	}

	return &Manager{
		conf:          conf,
		channels:      channels,
		lastDispatch:  make(map[dedupKey]time.Time),
		dispatchTimes: make(map[string][]time.Time),
		relayMode:     make(map[uint8]bool),
		bySeverity:    make(map[validation.Severity]uint64),
	}
}

// SendAlert runs the candidate violation through the duplicate filter and
// the throttle, then dispatches it to all channels. It reports whether the
// alert was dispatched.
func (m *Manager) SendAlert(v validation.Violation) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.send(v)
}

// send implements dedup, throttle and dispatch. Caller must hold m.mu.
func (m *Manager) send(v validation.Violation) bool {
	key := dedupKey{ruleName: v.RuleName, systemID: v.SystemID, field: v.Field}
	if last, ok := m.lastDispatch[key]; ok && v.Timestamp.Sub(last) < m.conf.DuplicateWindow {
		m.filteredDuplicates++
		alertsSuppressed("duplicate").Inc()
		return false
	}

	cut := v.Timestamp.Add(-m.conf.ThrottleWindow)
	times := m.dispatchTimes[v.RuleName]
	i := 0
	for i < len(times) && times[i].Before(cut) {
		i++
	}
	times = append(times[:0], times[i:]...)
	m.dispatchTimes[v.RuleName] = times

	if len(times) >= m.conf.MaxAlertsPerWindow {
		m.throttledAlerts++
		alertsSuppressed("throttled").Inc()
		return false
	}

	a := Alert{
		Timestamp: v.Timestamp,
		Message: fmt.Sprintf("%s: %s (%s=%.2f, threshold %.2f)",
			v.RuleName, v.Description, v.Field, v.ActualValue, v.Threshold),
		Severity: v.Severity,
		RuleName: v.RuleName,
		SystemID: v.SystemID,
	}

	for _, ch := range m.channels {
		if err := ch.Send(a); err != nil {
			// a failing sink must never abort packet processing
			m.channelErrors++
			channelErrors(ch.Name()).Inc()
			log.WithError(err).WithFields(log.Fields{
				"channel": ch.Name(),
				"rule":    a.RuleName,
			}).Error("alert: channel dispatch error")
		}
	}

	m.history = append(m.history, a)
	if len(m.history) > m.conf.MaxHistory {
		m.history = m.history[len(m.history)-m.conf.MaxHistory:]
	}

	m.totalAlerts++
	m.bySeverity[a.Severity]++
	m.lastDispatch[key] = v.Timestamp
	m.dispatchTimes[v.RuleName] = append(m.dispatchTimes[v.RuleName], v.Timestamp)
	alertsDispatched(string(a.Severity)).Inc()

	return true
}

// CheckRelayLatency records the relay-mode flag for the system and, when
// relay mode is active, alerts on an excessive last-activity latency. The
// flag is recorded even when no alert is produced.
func (m *Manager) CheckRelayLatency(p protocol.StatusPayload, systemID uint8, ts time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.relayMode[systemID] = p.RelayActive
	if !p.RelayActive {
		return false
	}

	latencyMS := p.LastActivitySec * 1000
	if latencyMS <= m.conf.RelayLatencyThresholdMS {
		return false
	}

	dispatched := m.send(validation.Violation{
		Timestamp:   ts,
		RuleName:    relayLatencyRule,
		MsgType:     relayLatencyMsgType,
		Field:       relayLatencyField,
		ActualValue: latencyMS,
		Threshold:   m.conf.RelayLatencyThresholdMS,
		Severity:    validation.SeverityWarning,
		Description: fmt.Sprintf("Relay link inactive for %.0fms", latencyMS),
		SystemID:    systemID,
	})
	if dispatched {
		m.relayLatencyAlerts++
	}

	return dispatched
}

// GetAlertHistory returns up to limit records, most recent first. A limit
// of zero or less returns the full bounded history.
func (m *Manager) GetAlertHistory(limit int) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.history)
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]Alert, n)
	for i := 0; i < n; i++ {
		out[i] = m.history[len(m.history)-1-i]
	}
	return out
}

// GetRelayModeStatus returns the current system to relay-active mapping.
func (m *Manager) GetRelayModeStatus() map[uint8]bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[uint8]bool, len(m.relayMode))
	for k, v := range m.relayMode {
		out[k] = v
	}
	return out
}

// GetStats returns the manager counters.
func (m *Manager) GetStats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	bySeverity := make(map[validation.Severity]uint64, len(m.bySeverity))
	for k, v := range m.bySeverity {
		bySeverity[k] = v
	}

	return ManagerStats{
		TotalAlerts:        m.totalAlerts,
		FilteredDuplicates: m.filteredDuplicates,
		ThrottledAlerts:    m.throttledAlerts,
		RelayLatencyAlerts: m.relayLatencyAlerts,
		ChannelErrors:      m.channelErrors,
		BySeverity:         bySeverity,
	}
}
