package validation

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/skymesh/skymesh-ground-monitor/internal/telemetry"
)

// anomaly detector rule names.
const (
	ruleGPSAltitudeJump = "GPS Altitude Jump"
	rulePacketLoss      = "Packet Loss"
)

// minimum elapsed time between two GPS fixes used when scaling the climb
// rate threshold, guards against duplicated timestamps.
const minGPSInterval = 100 * time.Millisecond

// Violation holds a single rule violation.
type Violation struct {
	Timestamp   time.Time
	RuleName    string
	MsgType     string
	Field       string
	ActualValue float64
	Threshold   float64
	Severity    Severity
	Description string
	SystemID    uint8
}

// EngineStats holds the engine counters.
type EngineStats struct {
	TotalChecks     uint64
	TotalViolations uint64
	BySeverity      map[Severity]uint64
	ActiveRules     int
}

// Config holds the engine configuration.
type Config struct {
	// MaxViolations bounds the violation history.
	MaxViolations int

	// GPSMaxClimbRate is the maximum accepted altitude change in m/s.
	GPSMaxClimbRate float64
}

type gpsReading struct {
	altitudeMM float64
	timestamp  time.Time
}

// Engine validates decoded telemetry messages against the active rule set
// and two stateful anomaly detectors. The active rule set is swapped
// atomically so an in-flight validation pass always sees one consistent
// snapshot. All other mutable state is guarded by a single mutex.
type Engine struct {
	rules atomic.Value // []Rule

	mu sync.Mutex

	conf Config

	violations      []Violation
	totalChecks     uint64
	totalViolations uint64
	bySeverity      map[Severity]uint64

	lastGPS map[uint8]gpsReading
	lastSeq map[uint8]uint8
}

// NewEngine creates a new Engine.
func NewEngine(conf Config) *Engine {
	if conf.MaxViolations <= 0 {
		conf.MaxViolations = 1000
	}
	if conf.GPSMaxClimbRate <= 0 {
		conf.GPSMaxClimbRate = 50
	}

	e := Engine{
		conf:       conf,
		bySeverity: make(map[Severity]uint64),
		lastGPS:    make(map[uint8]gpsReading),
		lastSeq:    make(map[uint8]uint8),
	}
	e.rules.Store([]Rule(nil))

	return &e
}

// SetRules atomically replaces the active rule set.
func (e *Engine) SetRules(rules []Rule) {
	e.rules.Store(rules)
}

// Rules returns the active rule set.
func (e *Engine) Rules() []Rule {
	return e.rules.Load().([]Rule)
}

// ValidateMessage runs all static rules and anomaly detectors against the
// message and returns the violations it produced, in evaluation order.
func (e *Engine) ValidateMessage(msg telemetry.Message) []Violation {
	rules := e.Rules()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.totalChecks++

	var violations []Violation

	for _, r := range rules {
		if r.MsgType != msg.MsgType {
			continue
		}
		actual, ok := msg.Field(r.Field)
		if !ok {
			continue
		}
		if !r.match(actual) {
			continue
		}

		violations = append(violations, Violation{
			Timestamp:   msg.Timestamp,
			RuleName:    r.Name,
			MsgType:     msg.MsgType,
			Field:       r.Field,
			ActualValue: actual,
			Threshold:   r.Threshold,
			Severity:    r.Severity,
			Description: r.Description,
			SystemID:    msg.SystemID,
		})
	}

	if v := e.checkGPSJump(msg); v != nil {
		violations = append(violations, *v)
	}
	if v := e.checkPacketLoss(msg); v != nil {
		violations = append(violations, *v)
	}

	for _, v := range violations {
		e.record(v)
	}

	return violations
}

// checkGPSJump compares the altitude of a position message against the last
// stored fix for the system. The stored fix is updated regardless of the
// outcome.
func (e *Engine) checkGPSJump(msg telemetry.Message) *Violation {
	if msg.MsgType != telemetry.MsgGlobalPosition {
		return nil
	}
	alt, ok := msg.Field(telemetry.FieldAltitude)
	if !ok {
		return nil
	}

	prev, seen := e.lastGPS[msg.SystemID]
	e.lastGPS[msg.SystemID] = gpsReading{altitudeMM: alt, timestamp: msg.Timestamp}
	if !seen {
		return nil
	}

	elapsed := msg.Timestamp.Sub(prev.timestamp)
	if elapsed < minGPSInterval {
		elapsed = minGPSInterval
	}

	deltaM := math.Abs(alt-prev.altitudeMM) / 1000
	maxDelta := e.conf.GPSMaxClimbRate * elapsed.Seconds()
	if deltaM <= maxDelta {
		return nil
	}

	return &Violation{
		Timestamp:   msg.Timestamp,
		RuleName:    ruleGPSAltitudeJump,
		MsgType:     msg.MsgType,
		Field:       telemetry.FieldAltitude,
		ActualValue: deltaM,
		Threshold:   maxDelta,
		Severity:    SeverityWarning,
		Description: fmt.Sprintf("Altitude changed %.1fm in %.1fs", deltaM, elapsed.Seconds()),
		SystemID:    msg.SystemID,
	}
}

// checkPacketLoss tracks the mod-256 sequence number per system. The first
// message for a system only seeds the tracker.
func (e *Engine) checkPacketLoss(msg telemetry.Message) *Violation {
	prev, seen := e.lastSeq[msg.SystemID]
	e.lastSeq[msg.SystemID] = msg.Sequence
	if !seen {
		return nil
	}

	delta := int(msg.Sequence-prev) & 0xFF
	gap := delta - 1
	if gap <= 0 {
		return nil
	}

	return &Violation{
		Timestamp:   msg.Timestamp,
		RuleName:    rulePacketLoss,
		MsgType:     msg.MsgType,
		Field:       "sequence",
		ActualValue: float64(delta),
		Threshold:   1,
		Severity:    SeverityWarning,
		Description: fmt.Sprintf("Lost %d packet(s)", delta),
		SystemID:    msg.SystemID,
	}
}

// record appends the violation to the bounded history. Caller must hold
// e.mu.
func (e *Engine) record(v Violation) {
	e.totalViolations++
	e.bySeverity[v.Severity]++
	violationsCount(string(v.Severity), v.RuleName).Inc()

	e.violations = append(e.violations, v)
	if len(e.violations) > e.conf.MaxViolations {
		e.violations = e.violations[len(e.violations)-e.conf.MaxViolations:]
	}

	log.WithFields(log.Fields{
		"rule":      v.RuleName,
		"msg_type":  v.MsgType,
		"field":     v.Field,
		"actual":    v.ActualValue,
		"threshold": v.Threshold,
		"severity":  v.Severity,
		"system_id": v.SystemID,
	}).Debug("validation: rule violation")
}

// ViolationFilter filters the violation history. Zero values match
// everything.
type ViolationFilter struct {
	Severity Severity
	SystemID *uint8
	Since    time.Time
}

// GetViolations returns the chronological subset of the violation history
// matching all supplied filters.
func (e *Engine) GetViolations(filter ViolationFilter) []Violation {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Violation
	for _, v := range e.violations {
		if filter.Severity != "" && v.Severity != filter.Severity {
			continue
		}
		if filter.SystemID != nil && v.SystemID != *filter.SystemID {
			continue
		}
		if !filter.Since.IsZero() && v.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, v)
	}

	return out
}

// GetStats returns the engine counters.
func (e *Engine) GetStats() EngineStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	bySeverity := make(map[Severity]uint64, len(e.bySeverity))
	for k, v := range e.bySeverity {
		bySeverity[k] = v
	}

	return EngineStats{
		TotalChecks:     e.totalChecks,
		TotalViolations: e.totalViolations,
		BySeverity:      bySeverity,
		ActiveRules:     len(e.Rules()),
	}
}

// Reset clears the violation history, the counters and all per-system
// detector state. The active rule set is kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.violations = nil
	e.totalChecks = 0
	e.totalViolations = 0
	e.bySeverity = make(map[Severity]uint64)
	e.lastGPS = make(map[uint8]gpsReading)
	e.lastSeq = make(map[uint8]uint8)
}
