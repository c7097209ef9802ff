package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJSONCodec(t *testing.T) {
	c := JSONCodec{}

	t.Run("single object", func(t *testing.T) {
		assert := require.New(t)

		msgs, err := c.Decode(context.Background(), []byte(`{
			"timestamp_ms": 1000,
			"msg_type": "SYS_STATUS",
			"system_id": 1,
			"sequence": 7,
			"fields": {"voltage_battery": 11100}
		}`))
		assert.NoError(err)
		assert.Len(msgs, 1)
		assert.Equal("SYS_STATUS", msgs[0].MsgType)
		assert.Equal(uint8(1), msgs[0].SystemID)
		assert.Equal(uint8(7), msgs[0].Sequence)
		assert.Equal(time.Unix(1, 0), msgs[0].Timestamp)

		v, ok := msgs[0].Field("voltage_battery")
		assert.True(ok)
		assert.Equal(float64(11100), v)
	})

	t.Run("array", func(t *testing.T) {
		assert := require.New(t)

		msgs, err := c.Decode(context.Background(), []byte(`[
			{"msg_type": "HEARTBEAT", "system_id": 1},
			{"msg_type": "GLOBAL_POSITION_INT", "system_id": 2, "fields": {"alt": 100000}}
		]`))
		assert.NoError(err)
		assert.Len(msgs, 2)
		assert.Equal(MsgHeartbeat, msgs[0].MsgType)
		assert.Equal(MsgGlobalPosition, msgs[1].MsgType)
		assert.True(msgs[0].Timestamp.IsZero())
	})

	t.Run("empty input", func(t *testing.T) {
		assert := require.New(t)

		msgs, err := c.Decode(context.Background(), nil)
		assert.NoError(err)
		assert.Len(msgs, 0)
	})

	t.Run("invalid json", func(t *testing.T) {
		assert := require.New(t)

		_, err := c.Decode(context.Background(), []byte(`{not json`))
		assert.Error(err)
	})
}
