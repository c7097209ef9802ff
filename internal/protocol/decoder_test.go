package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testStatusPayload() StatusPayload {
	return StatusPayload{
		RelayActive:      true,
		OwnSystemID:      7,
		PacketsRelayed:   1234,
		BytesRelayed:     56789,
		MeshToUART:       10,
		UARTToMesh:       20,
		GCSToMesh:        30,
		MeshToGCS:        40,
		RSSI:             -71.5,
		SNR:              9.25,
		LastActivitySec:  0.5,
		ActivePeerRelays: 2,
	}
}

func mustEncodeFrame(t *testing.T, cmd CommandKind, payload []byte) []byte {
	t.Helper()
	b, err := EncodeFrame(cmd, payload)
	require.NoError(t, err)
	return b
}

func TestFletcher16(t *testing.T) {
	assert := require.New(t)

	// reference vectors from the Fletcher checksum definition
	assert.Equal(uint16(0x0403), Fletcher16([]byte{0x01, 0x02}))
	assert.Equal(uint16(0x0000), Fletcher16(nil))
	assert.NotEqual(Fletcher16([]byte{0x01, 0x02}), Fletcher16([]byte{0x02, 0x01}))
}

func TestDecoderRoundTrip(t *testing.T) {
	assert := require.New(t)
	d := NewDecoder()
	d.now = func() time.Time { return time.Unix(1000, 0) }

	sp := testStatusPayload()
	frame := mustEncodeFrame(t, CmdStatusReport, sp.Encode())

	packets := d.Feed(frame)
	assert.Len(packets, 1)

	p := packets[0]
	assert.Equal(CmdStatusReport, p.Command)
	assert.True(p.ChecksumValid)
	assert.Equal(frame, p.RawBytes)
	assert.Equal(time.Unix(1000, 0), p.Timestamp)

	got, ok := p.Payload.(StatusPayload)
	assert.True(ok)
	assert.Equal(sp, got)

	stats := d.GetStats()
	assert.Equal(uint64(1), stats.PacketsReceived)
	assert.Equal(uint64(0), stats.ChecksumErrors)
	assert.Equal(0, stats.BufferSize)
}

func TestDecoderChunkedInput(t *testing.T) {
	assert := require.New(t)
	d := NewDecoder()

	frame := mustEncodeFrame(t, CmdRelayActivate, []byte{5, 1})

	// feed the frame a byte at a time, only the last byte completes it
	for i := 0; i < len(frame)-1; i++ {
		assert.Len(d.Feed(frame[i:i+1]), 0)
	}
	packets := d.Feed(frame[len(frame)-1:])
	assert.Len(packets, 1)

	p, ok := packets[0].Payload.(RelayActivationPayload)
	assert.True(ok)
	assert.Equal(uint8(5), p.SystemID)
	assert.True(p.Active)
}

func TestDecoderChecksumRecovery(t *testing.T) {
	d := NewDecoder()

	good := mustEncodeFrame(t, CmdAck, []byte{3, 0})

	// flip the command byte, each payload byte and both checksum bytes.
	// the start and length bytes are covered by the resync and length
	// overflow tests, flipping those changes the framing itself.
	for _, i := range []int{1, 4, 5, 6, 7} {
		t.Run("flip byte", func(t *testing.T) {
			assert := require.New(t)
			d.Reset()

			bad := make([]byte, len(good))
			copy(bad, good)
			bad[i] ^= 0xFF

			stream := append(append([]byte{}, bad...), good...)
			packets := d.Feed(stream)

			assert.Len(packets, 1)
			assert.Equal(CmdAck, packets[0].Command)

			stats := d.GetStats()
			assert.Equal(uint64(1), stats.PacketsReceived)
			assert.Equal(uint64(1), stats.ChecksumErrors)
		})
	}
}

func TestDecoderGarbageResync(t *testing.T) {
	assert := require.New(t)
	d := NewDecoder()

	frame := mustEncodeFrame(t, CmdInit, []byte{1, 2, 3, 0, 0})
	stream := append([]byte{0x00, 0xFF, StartByte, 0x42}, frame...)

	packets := d.Feed(stream)
	assert.Len(packets, 1)
	assert.Equal(CmdInit, packets[0].Command)
}

func TestDecoderLengthOverflow(t *testing.T) {
	assert := require.New(t)
	d := NewDecoder()

	// candidate frame declaring an oversized payload, followed by a
	// valid frame
	garbage := []byte{StartByte, 0x03, 0xFF, 0xFF}
	frame := mustEncodeFrame(t, CmdStatusRequest, nil)

	packets := d.Feed(append(garbage, frame...))
	assert.Len(packets, 1)
	assert.Equal(CmdStatusRequest, packets[0].Command)
	assert.Equal(uint64(1), d.GetStats().ParseErrors)
}

func TestDecoderUnknownCommand(t *testing.T) {
	assert := require.New(t)
	d := NewDecoder()

	payload := []byte{1, 2, 3}
	frame := mustEncodeFrame(t, CommandKind(0x7F), payload)

	packets := d.Feed(frame)
	assert.Len(packets, 1)

	p := packets[0]
	assert.True(p.ChecksumValid)
	raw, ok := p.Payload.(RawPayload)
	assert.True(ok)
	assert.Equal(payload, raw.Data)

	stats := d.GetStats()
	assert.Equal(uint64(1), stats.PacketsReceived)
	assert.Equal(uint64(1), stats.ParseErrors)
}

func TestDecoderMultipleFramesPerFeed(t *testing.T) {
	assert := require.New(t)
	d := NewDecoder()

	var stream []byte
	for i := 0; i < 3; i++ {
		stream = append(stream, mustEncodeFrame(t, CmdAck, []byte{uint8(i), 0})...)
	}

	packets := d.Feed(stream)
	assert.Len(packets, 3)
	for i, p := range packets {
		ack, ok := p.Payload.(AckPayload)
		assert.True(ok)
		assert.Equal(uint8(i), ack.Command_)
	}
}

func TestDecoderSuccessRate(t *testing.T) {
	assert := require.New(t)
	d := NewDecoder()

	good := mustEncodeFrame(t, CmdAck, []byte{1, 0})

	var stream []byte
	for i := 0; i < 10; i++ {
		stream = append(stream, good...)
	}
	// two corrupted copies and one length-overflow candidate
	for i := 0; i < 2; i++ {
		bad := make([]byte, len(good))
		copy(bad, good)
		bad[len(bad)-1] ^= 0x55
		stream = append(stream, bad...)
	}
	stream = append(stream, StartByte, 0x01, 0xFF, 0xFF)

	packets := d.Feed(stream)
	assert.Len(packets, 10)

	stats := d.GetStats()
	assert.Equal(uint64(10), stats.PacketsReceived)
	assert.Equal(uint64(2), stats.ChecksumErrors)
	assert.Equal(uint64(1), stats.ParseErrors)
	assert.InDelta(76.9, stats.SuccessRate, 0.1)
}

func TestBridgePayloadRoundTrip(t *testing.T) {
	assert := require.New(t)
	d := NewDecoder()

	bp := BridgePayload{
		cmd:      CmdBridgeRX,
		SystemID: 3,
		RSSI:     -80.5,
		SNR:      4.75,
		Data:     []byte{0xFD, 0x09, 0x00, 0x01, 0x02},
	}
	frame := mustEncodeFrame(t, CmdBridgeRX, bp.Encode())

	packets := d.Feed(frame)
	assert.Len(packets, 1)

	got, ok := packets[0].Payload.(BridgePayload)
	assert.True(ok)
	assert.Equal(bp, got)
}
