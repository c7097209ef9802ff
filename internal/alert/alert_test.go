package alert

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/skymesh/skymesh-ground-monitor/internal/protocol"
	"github.com/skymesh/skymesh-ground-monitor/internal/validation"
)

// testChannel records dispatched alerts and optionally fails.
type testChannel struct {
	alerts []Alert
	err    error
}

func (c *testChannel) Name() string { return "test" }

func (c *testChannel) Send(a Alert) error {
	if c.err != nil {
		return c.err
	}
	c.alerts = append(c.alerts, a)
	return nil
}

func testViolation(rule string, systemID uint8, ts time.Time) validation.Violation {
	return validation.Violation{
		Timestamp:   ts,
		RuleName:    rule,
		MsgType:     "SYS_STATUS",
		Field:       "voltage_battery",
		ActualValue: 9000,
		Threshold:   10500,
		Severity:    validation.SeverityCritical,
		Description: "battery low",
		SystemID:    systemID,
	}
}

func TestDuplicateFilter(t *testing.T) {
	assert := require.New(t)

	ch := testChannel{}
	m := NewManager(Config{DuplicateWindow: 10 * time.Second}, &ch)
	t0 := time.Unix(1000, 0)

	assert.True(m.SendAlert(testViolation("Low Battery", 1, t0)))
	assert.False(m.SendAlert(testViolation("Low Battery", 1, t0.Add(5*time.Second))))

	stats := m.GetStats()
	assert.Equal(uint64(1), stats.TotalAlerts)
	assert.Equal(uint64(1), stats.FilteredDuplicates)
	assert.Len(ch.alerts, 1)

	t.Run("different value within window is still a duplicate", func(t *testing.T) {
		assert := require.New(t)

		v := testViolation("Low Battery", 1, t0.Add(6*time.Second))
		v.ActualValue = 8000
		assert.False(m.SendAlert(v))
	})

	t.Run("different system dispatches", func(t *testing.T) {
		assert := require.New(t)
		assert.True(m.SendAlert(testViolation("Low Battery", 2, t0.Add(6*time.Second))))
	})

	t.Run("window elapses", func(t *testing.T) {
		assert := require.New(t)
		assert.True(m.SendAlert(testViolation("Low Battery", 1, t0.Add(11*time.Second))))
	})
}

func TestThrottle(t *testing.T) {
	assert := require.New(t)

	m := NewManager(Config{
		// alerts from distinct systems dodge the duplicate filter
		DuplicateWindow:    time.Millisecond,
		ThrottleWindow:     10 * time.Second,
		MaxAlertsPerWindow: 3,
	})
	t0 := time.Unix(1000, 0)

	for i := 0; i < 3; i++ {
		v := testViolation("Low Battery", uint8(i), t0.Add(time.Duration(i)*time.Second))
		assert.True(m.SendAlert(v))
	}

	assert.False(m.SendAlert(testViolation("Low Battery", 9, t0.Add(3*time.Second))))

	stats := m.GetStats()
	assert.Equal(uint64(3), stats.TotalAlerts)
	assert.Equal(uint64(1), stats.ThrottledAlerts)

	t.Run("other rule is not throttled", func(t *testing.T) {
		assert := require.New(t)

		v := testViolation("High Altitude", 9, t0.Add(3*time.Second))
		assert.True(m.SendAlert(v))
	})

	t.Run("window elapses", func(t *testing.T) {
		assert := require.New(t)

		v := testViolation("Low Battery", 50, t0.Add(15*time.Second))
		assert.True(m.SendAlert(v))
	})
}

func TestRelayLatency(t *testing.T) {
	assert := require.New(t)

	ch := testChannel{}
	m := NewManager(Config{RelayLatencyThresholdMS: 500}, &ch)
	t0 := time.Unix(1000, 0)

	t.Run("inactive relay never alerts", func(t *testing.T) {
		assert := require.New(t)

		p := protocol.StatusPayload{RelayActive: false, LastActivitySec: 0.75}
		assert.False(m.CheckRelayLatency(p, 1, t0))

		// the flag is still recorded
		assert.Equal(map[uint8]bool{1: false}, m.GetRelayModeStatus())
	})

	t.Run("active relay above threshold alerts", func(t *testing.T) {
		assert := require.New(t)

		p := protocol.StatusPayload{RelayActive: true, LastActivitySec: 0.75}
		assert.True(m.CheckRelayLatency(p, 1, t0.Add(time.Second)))

		assert.Equal(map[uint8]bool{1: true}, m.GetRelayModeStatus())
		assert.Equal(uint64(1), m.GetStats().RelayLatencyAlerts)

		hist := m.GetAlertHistory(1)
		assert.Len(hist, 1)
		assert.Equal("Relay Mode Latency", hist[0].RuleName)
	})

	t.Run("active relay below threshold stays silent", func(t *testing.T) {
		assert := require.New(t)

		p := protocol.StatusPayload{RelayActive: true, LastActivitySec: 0.3}
		assert.False(m.CheckRelayLatency(p, 1, t0.Add(2*time.Second)))
		assert.Equal(uint64(1), m.GetStats().RelayLatencyAlerts)
	})
}

func TestChannelFailureIsolation(t *testing.T) {
	assert := require.New(t)

	failing := testChannel{err: errors.New("broker unavailable")}
	working := testChannel{}
	m := NewManager(Config{}, &failing, &working)

	assert.True(m.SendAlert(testViolation("Low Battery", 1, time.Unix(1000, 0))))

	stats := m.GetStats()
	assert.Equal(uint64(1), stats.TotalAlerts)
	assert.Equal(uint64(1), stats.ChannelErrors)
	assert.Len(working.alerts, 1)
}

func TestAlertHistory(t *testing.T) {
	assert := require.New(t)

	m := NewManager(Config{MaxHistory: 3, DuplicateWindow: time.Millisecond})
	t0 := time.Unix(1000, 0)

	for i := 0; i < 5; i++ {
		v := testViolation("Low Battery", uint8(i), t0.Add(time.Duration(i)*time.Second))
		assert.True(m.SendAlert(v))
	}

	hist := m.GetAlertHistory(0)
	assert.Len(hist, 3)

	// most recent first
	assert.Equal(uint8(4), hist[0].SystemID)
	assert.Equal(uint8(2), hist[2].SystemID)

	assert.Len(m.GetAlertHistory(2), 2)

	stats := m.GetStats()
	assert.Equal(uint64(5), stats.TotalAlerts)
	assert.Equal(uint64(5), stats.BySeverity[validation.SeverityCritical])
}
