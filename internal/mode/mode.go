// Package mode tracks DIRECT/RELAY operating-mode transitions reported by
// the radio module status stream.
package mode

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/skymesh/skymesh-ground-monitor/internal/protocol"
	"github.com/skymesh/skymesh-ground-monitor/internal/stats"
)

// OperatingMode defines the radio operating mode.
type OperatingMode string

// Available operating modes. Unknown is the initial state before the first
// status report has been seen.
const (
	ModeUnknown OperatingMode = "UNKNOWN"
	ModeDirect  OperatingMode = "DIRECT"
	ModeRelay   OperatingMode = "RELAY"
)

// Transition holds a single mode transition.
type Transition struct {
	Timestamp        time.Time
	From             OperatingMode
	To               OperatingMode
	RelayActive      bool
	PacketsRelayed   uint32
	ActivePeerRelays int
}

// TrackerStats holds the tracker counters.
type TrackerStats struct {
	CurrentMode      OperatingMode
	TimeInMode       map[OperatingMode]time.Duration
	PercentOfUptime  map[OperatingMode]float64
	TotalTransitions int
	StatusReports    uint64
	Uptime           time.Duration
}

// Tracker tracks the operating mode from decoded status packets. Updates
// must be serialized by the caller or arrive from a single goroutine; the
// internal mutex protects readers.
type Tracker struct {
	mu sync.Mutex

	current    OperatingMode
	createdAt  time.Time
	lastUpdate time.Time

	timeInMode    map[OperatingMode]time.Duration
	transitions   []Transition
	statusReports uint64

	maxTransitions int
}

// NewTracker creates a new Tracker starting at the given time in the
// UNKNOWN mode.
func NewTracker(now time.Time) *Tracker {
	return &Tracker{
		current:        ModeUnknown,
		createdAt:      now,
		lastUpdate:     now,
		timeInMode:     make(map[OperatingMode]time.Duration),
		maxTransitions: 1000,
	}
}

func modeFor(relayActive bool) OperatingMode {
	if relayActive {
		return ModeRelay
	}
	return ModeDirect
}

// Update processes a status payload. A change of the relay flag records a
// transition, otherwise only time-in-mode and the report counter advance.
func (t *Tracker) Update(p protocol.StatusPayload, ts time.Time) *Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.statusReports++
	t.timeInMode[t.current] += ts.Sub(t.lastUpdate)
	t.lastUpdate = ts

	next := modeFor(p.RelayActive)
	if next == t.current {
		return nil
	}

	tr := Transition{
		Timestamp:        ts,
		From:             t.current,
		To:               next,
		RelayActive:      p.RelayActive,
		PacketsRelayed:   p.PacketsRelayed,
		ActivePeerRelays: p.ActivePeerRelays,
	}
	t.current = next

	t.transitions = append(t.transitions, tr)
	if len(t.transitions) > t.maxTransitions {
		t.transitions = t.transitions[len(t.transitions)-t.maxTransitions:]
	}

	modeTransitions(string(tr.From), string(tr.To)).Inc()
	log.WithFields(log.Fields{
		"from":               tr.From,
		"to":                 tr.To,
		"packets_relayed":    tr.PacketsRelayed,
		"active_peer_relays": tr.ActivePeerRelays,
	}).Info("mode: operating mode changed")

	return &tr
}

// GetCurrentMode returns the current operating mode.
func (t *Tracker) GetCurrentMode() OperatingMode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// GetTransitions returns the chronological transition history.
func (t *Tracker) GetTransitions() []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Transition, len(t.transitions))
	copy(out, t.transitions)
	return out
}

// GetStats returns the tracker counters as of now.
func (t *Tracker) GetStats(now time.Time) TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	uptime := now.Sub(t.createdAt)

	timeInMode := make(map[OperatingMode]time.Duration, len(t.timeInMode)+1)
	for k, v := range t.timeInMode {
		timeInMode[k] = v
	}
	// the running span counts towards the current mode
	timeInMode[t.current] += now.Sub(t.lastUpdate)

	percent := make(map[OperatingMode]float64, len(timeInMode))
	if uptime > 0 {
		for k, v := range timeInMode {
			percent[k] = float64(v) / float64(uptime) * 100
		}
	}

	return TrackerStats{
		CurrentMode:      t.current,
		TimeInMode:       timeInMode,
		PercentOfUptime:  percent,
		TotalTransitions: len(t.transitions),
		StatusReports:    t.statusReports,
		Uptime:           uptime,
	}
}

// Comparison holds the delta between metrics snapshots captured in DIRECT
// and RELAY mode. Deltas are relay minus direct.
type Comparison struct {
	PacketRateDelta  float64
	MessageRateDelta float64
	RSSIDelta        float64
	SNRDelta         float64
	LatencyDelta     time.Duration
}

// Compare produces a structured delta report between a snapshot captured
// in DIRECT mode and one captured in RELAY mode. Pure, stores nothing.
func Compare(direct, relay stats.Snapshot) Comparison {
	return Comparison{
		PacketRateDelta:  relay.PacketRate - direct.PacketRate,
		MessageRateDelta: relay.MessageRate - direct.MessageRate,
		RSSIDelta:        relay.RSSIAvg - direct.RSSIAvg,
		SNRDelta:         relay.SNRAvg - direct.SNRAvg,
		LatencyDelta:     relay.LatencyAvg - direct.LatencyAvg,
	}
}
