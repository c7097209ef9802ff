package mode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skymesh/skymesh-ground-monitor/internal/protocol"
	"github.com/skymesh/skymesh-ground-monitor/internal/stats"
)

func statusPayload(relayActive bool) protocol.StatusPayload {
	return protocol.StatusPayload{
		RelayActive:      relayActive,
		PacketsRelayed:   100,
		ActivePeerRelays: 2,
	}
}

func TestInitialMode(t *testing.T) {
	assert := require.New(t)

	tr := NewTracker(time.Unix(1000, 0))
	assert.Equal(ModeUnknown, tr.GetCurrentMode())
	assert.Len(tr.GetTransitions(), 0)
}

func TestFirstStatusLeavesUnknown(t *testing.T) {
	assert := require.New(t)

	tr := NewTracker(time.Unix(1000, 0))
	trans := tr.Update(statusPayload(false), time.Unix(1001, 0))

	assert.NotNil(trans)
	assert.Equal(ModeUnknown, trans.From)
	assert.Equal(ModeDirect, trans.To)
	assert.Equal(ModeDirect, tr.GetCurrentMode())
}

func TestModeTransition(t *testing.T) {
	assert := require.New(t)

	tr := NewTracker(time.Unix(1000, 0))
	tr.Update(statusPayload(false), time.Unix(1001, 0))

	trans := tr.Update(statusPayload(true), time.Unix(1010, 0))
	assert.NotNil(trans)
	assert.Equal(ModeDirect, trans.From)
	assert.Equal(ModeRelay, trans.To)
	assert.Equal(uint32(100), trans.PacketsRelayed)
	assert.Equal(2, trans.ActivePeerRelays)

	t.Run("unchanged flag records nothing", func(t *testing.T) {
		assert := require.New(t)

		for i := 0; i < 5; i++ {
			assert.Nil(tr.Update(statusPayload(true), time.Unix(1011+int64(i), 0)))
		}
		assert.Len(tr.GetTransitions(), 2)
	})

	t.Run("history is chronological", func(t *testing.T) {
		assert := require.New(t)

		trs := tr.GetTransitions()
		assert.True(trs[0].Timestamp.Before(trs[1].Timestamp))
	})
}

func TestTrackerStats(t *testing.T) {
	assert := require.New(t)

	t0 := time.Unix(1000, 0)
	tr := NewTracker(t0)

	tr.Update(statusPayload(false), t0.Add(10*time.Second)) // unknown 10s
	tr.Update(statusPayload(true), t0.Add(40*time.Second))  // direct 30s
	tr.Update(statusPayload(true), t0.Add(70*time.Second))  // relay running

	s := tr.GetStats(t0.Add(100 * time.Second))
	assert.Equal(ModeRelay, s.CurrentMode)
	assert.Equal(100*time.Second, s.Uptime)
	assert.Equal(10*time.Second, s.TimeInMode[ModeUnknown])
	assert.Equal(30*time.Second, s.TimeInMode[ModeDirect])
	assert.Equal(60*time.Second, s.TimeInMode[ModeRelay])
	assert.InDelta(60.0, s.PercentOfUptime[ModeRelay], 0.001)
	assert.Equal(2, s.TotalTransitions)
	assert.Equal(uint64(3), s.StatusReports)
}

func TestCompare(t *testing.T) {
	assert := require.New(t)

	direct := stats.Snapshot{
		PacketRate:  20,
		MessageRate: 10,
		RSSIAvg:     -70,
		SNRAvg:      10,
		LatencyAvg:  100 * time.Millisecond,
	}
	relay := stats.Snapshot{
		PacketRate:  15,
		MessageRate: 8,
		RSSIAvg:     -75,
		SNRAvg:      7,
		LatencyAvg:  250 * time.Millisecond,
	}

	c := Compare(direct, relay)
	assert.Equal(-5.0, c.PacketRateDelta)
	assert.Equal(-2.0, c.MessageRateDelta)
	assert.Equal(-5.0, c.RSSIDelta)
	assert.Equal(-3.0, c.SNRDelta)
	assert.Equal(150*time.Millisecond, c.LatencyDelta)
}
