package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skymesh/skymesh-ground-monitor/internal/telemetry"
)

func testMessage(msgType string, systemID uint8, seq uint8, fields map[string]float64) telemetry.Message {
	return telemetry.Message{
		Timestamp: time.Unix(1000, 0),
		MsgType:   msgType,
		SystemID:  systemID,
		Sequence:  seq,
		Fields:    fields,
	}
}

func TestStaticRules(t *testing.T) {
	assert := require.New(t)

	e := NewEngine(Config{})
	e.SetRules([]Rule{
		{
			Name:        "Low Battery",
			MsgType:     telemetry.MsgSysStatus,
			Field:       "voltage_battery",
			Operator:    OperatorLT,
			Threshold:   10500,
			Severity:    SeverityCritical,
			Description: "Battery voltage below 10.5V",
		},
		{
			Name:      "High Load",
			MsgType:   telemetry.MsgSysStatus,
			Field:     "load",
			Operator:  OperatorGE,
			Threshold: 900,
			Severity:  SeverityWarning,
		},
	})

	t.Run("no violation", func(t *testing.T) {
		assert := require.New(t)
		vs := e.ValidateMessage(testMessage(telemetry.MsgSysStatus, 1, 0, map[string]float64{
			"voltage_battery": 12000,
			"load":            500,
		}))
		assert.Len(vs, 0)
	})

	t.Run("single violation", func(t *testing.T) {
		assert := require.New(t)
		vs := e.ValidateMessage(testMessage(telemetry.MsgSysStatus, 1, 1, map[string]float64{
			"voltage_battery": 10000,
			"load":            500,
		}))
		assert.Len(vs, 1)
		assert.Equal("Low Battery", vs[0].RuleName)
		assert.Equal(SeverityCritical, vs[0].Severity)
		assert.Equal(float64(10000), vs[0].ActualValue)
		assert.Equal(uint8(1), vs[0].SystemID)
	})

	t.Run("multiple violations", func(t *testing.T) {
		assert := require.New(t)
		vs := e.ValidateMessage(testMessage(telemetry.MsgSysStatus, 1, 2, map[string]float64{
			"voltage_battery": 10000,
			"load":            950,
		}))
		assert.Len(vs, 2)
	})

	t.Run("missing field skipped", func(t *testing.T) {
		assert := require.New(t)
		vs := e.ValidateMessage(testMessage(telemetry.MsgSysStatus, 1, 3, map[string]float64{
			"load": 100,
		}))
		assert.Len(vs, 0)
	})

	t.Run("other msg_type skipped", func(t *testing.T) {
		assert := require.New(t)
		vs := e.ValidateMessage(testMessage(telemetry.MsgHeartbeat, 1, 4, map[string]float64{
			"voltage_battery": 0,
		}))
		assert.Len(vs, 0)
	})
}

func TestOperators(t *testing.T) {
	tests := []struct {
		operator Operator
		actual   float64
		match    bool
	}{
		{OperatorLT, 99, true},
		{OperatorLT, 100, false},
		{OperatorGT, 101, true},
		{OperatorGT, 100, false},
		{OperatorEQ, 100, true},
		{OperatorEQ, 99, false},
		{OperatorNE, 99, true},
		{OperatorNE, 100, false},
		{OperatorLE, 100, true},
		{OperatorLE, 101, false},
		{OperatorGE, 100, true},
		{OperatorGE, 99, false},
	}

	for _, tst := range tests {
		r := Rule{Operator: tst.operator, Threshold: 100}
		require.Equal(t, tst.match, r.match(tst.actual), "%s %f", tst.operator, tst.actual)
	}
}

func TestGPSAltitudeJump(t *testing.T) {
	assert := require.New(t)
	e := NewEngine(Config{GPSMaxClimbRate: 50})

	gps := func(ts int64, altMM float64) telemetry.Message {
		return telemetry.Message{
			Timestamp: time.Unix(ts, 0),
			MsgType:   telemetry.MsgGlobalPosition,
			SystemID:  1,
			Fields:    map[string]float64{telemetry.FieldAltitude: altMM},
		}
	}

	// first fix only seeds the detector
	assert.Len(e.ValidateMessage(gps(1000, 100000)), 0)

	// 60m in one second exceeds the 50m/s rate
	vs := e.ValidateMessage(gps(1001, 160000))
	assert.Len(vs, 1)
	assert.Equal("GPS Altitude Jump", vs[0].RuleName)
	assert.Equal(SeverityWarning, vs[0].Severity)

	// the stored fix was updated, 5m in one second is fine
	assert.Len(e.ValidateMessage(gps(1002, 165000)), 0)

	t.Run("per system", func(t *testing.T) {
		assert := require.New(t)

		msg := gps(1001, 500000)
		msg.SystemID = 2
		assert.Len(e.ValidateMessage(msg), 0)
	})
}

func TestPacketLoss(t *testing.T) {
	assert := require.New(t)
	e := NewEngine(Config{})

	msg := func(seq uint8) telemetry.Message {
		return testMessage(telemetry.MsgHeartbeat, 1, seq, nil)
	}

	assert.Len(e.ValidateMessage(msg(10)), 0)
	assert.Len(e.ValidateMessage(msg(11)), 0)

	vs := e.ValidateMessage(msg(15))
	assert.Len(vs, 1)
	assert.Equal("Packet Loss", vs[0].RuleName)
	assert.Equal("Lost 4 packet(s)", vs[0].Description)
	assert.Equal(SeverityWarning, vs[0].Severity)

	t.Run("wraparound", func(t *testing.T) {
		assert := require.New(t)

		assert.Len(e.ValidateMessage(msg(255)), 1) // 15 -> 255 is itself a gap
		assert.Len(e.ValidateMessage(msg(0)), 0)

		vs := e.ValidateMessage(msg(2))
		assert.Len(vs, 1)
		assert.Equal("Lost 2 packet(s)", vs[0].Description)
	})

	t.Run("independent per system", func(t *testing.T) {
		assert := require.New(t)

		other := testMessage(telemetry.MsgHeartbeat, 9, 200, nil)
		assert.Len(e.ValidateMessage(other), 0)
	})
}

func TestGetViolations(t *testing.T) {
	assert := require.New(t)
	e := NewEngine(Config{})
	e.SetRules([]Rule{
		{
			Name:      "Info Rule",
			MsgType:   telemetry.MsgHeartbeat,
			Field:     "x",
			Operator:  OperatorGT,
			Threshold: 0,
			Severity:  SeverityInfo,
		},
		{
			Name:      "Critical Rule",
			MsgType:   telemetry.MsgHeartbeat,
			Field:     "y",
			Operator:  OperatorGT,
			Threshold: 0,
			Severity:  SeverityCritical,
		},
	})

	m1 := testMessage(telemetry.MsgHeartbeat, 1, 0, map[string]float64{"x": 1})
	m1.Timestamp = time.Unix(100, 0)
	e.ValidateMessage(m1)

	m2 := testMessage(telemetry.MsgHeartbeat, 2, 0, map[string]float64{"x": 1, "y": 1})
	m2.Timestamp = time.Unix(200, 0)
	e.ValidateMessage(m2)

	assert.Len(e.GetViolations(ViolationFilter{}), 3)
	assert.Len(e.GetViolations(ViolationFilter{Severity: SeverityCritical}), 1)

	system := uint8(2)
	assert.Len(e.GetViolations(ViolationFilter{SystemID: &system}), 2)
	assert.Len(e.GetViolations(ViolationFilter{Since: time.Unix(150, 0)}), 2)
	assert.Len(e.GetViolations(ViolationFilter{Severity: SeverityInfo, SystemID: &system}), 1)

	stats := e.GetStats()
	assert.Equal(uint64(2), stats.TotalChecks)
	assert.Equal(uint64(3), stats.TotalViolations)
	assert.Equal(uint64(2), stats.BySeverity[SeverityInfo])
	assert.Equal(uint64(1), stats.BySeverity[SeverityCritical])
}

func TestViolationHistoryBound(t *testing.T) {
	assert := require.New(t)
	e := NewEngine(Config{MaxViolations: 5})
	e.SetRules([]Rule{{
		Name:      "Always",
		MsgType:   telemetry.MsgHeartbeat,
		Field:     "x",
		Operator:  OperatorGE,
		Threshold: 0,
		Severity:  SeverityInfo,
	}})

	for i := 0; i < 20; i++ {
		m := testMessage(telemetry.MsgHeartbeat, 1, uint8(i), map[string]float64{"x": float64(i)})
		e.ValidateMessage(m)
	}

	vs := e.GetViolations(ViolationFilter{Severity: SeverityInfo})
	assert.Len(vs, 5)
	assert.Equal(float64(19), vs[len(vs)-1].ActualValue)
	assert.Equal(uint64(20), e.GetStats().TotalViolations)
}

func TestReset(t *testing.T) {
	assert := require.New(t)
	e := NewEngine(Config{})
	e.SetRules([]Rule{{
		Name:      "Always",
		MsgType:   telemetry.MsgHeartbeat,
		Field:     "x",
		Operator:  OperatorGE,
		Threshold: 0,
		Severity:  SeverityInfo,
	}})

	e.ValidateMessage(testMessage(telemetry.MsgHeartbeat, 1, 10, map[string]float64{"x": 1}))
	e.Reset()

	stats := e.GetStats()
	assert.Equal(uint64(0), stats.TotalChecks)
	assert.Len(e.GetViolations(ViolationFilter{}), 0)
	assert.Equal(1, stats.ActiveRules)

	// sequence state was cleared, a gap right after reset only seeds
	assert.Len(e.ValidateMessage(testMessage(telemetry.MsgHeartbeat, 1, 50, nil)), 0)
}
