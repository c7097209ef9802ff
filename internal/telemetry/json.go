package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// jsonMessage is the wire representation used by bridges that pre-decode
// vehicle telemetry and forward it as JSON.
type jsonMessage struct {
	Timestamp   int64              `json:"timestamp_ms"`
	MsgType     string             `json:"msg_type"`
	MsgID       uint32             `json:"msg_id"`
	SystemID    uint8              `json:"system_id"`
	ComponentID uint8              `json:"component_id"`
	Sequence    uint8              `json:"sequence"`
	Fields      map[string]float64 `json:"fields"`
	RSSI        *float64           `json:"rssi,omitempty"`
	SNR         *float64           `json:"snr,omitempty"`
}

// JSONCodec implements Codec for bridges forwarding pre-decoded telemetry
// as a JSON object or array of objects.
type JSONCodec struct{}

// Decode implements the Codec interface.
func (c JSONCodec) Decode(ctx context.Context, data []byte) ([]Message, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var raw []jsonMessage
	if data[0] == '[' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, errors.Wrap(err, "unmarshal message array error")
		}
	} else {
		var m jsonMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, errors.Wrap(err, "unmarshal message error")
		}
		raw = append(raw, m)
	}

	out := make([]Message, 0, len(raw))
	for _, m := range raw {
		msg := Message{
			MsgType:     m.MsgType,
			MsgID:       m.MsgID,
			SystemID:    m.SystemID,
			ComponentID: m.ComponentID,
			Sequence:    m.Sequence,
			Fields:      m.Fields,
			RSSI:        m.RSSI,
			SNR:         m.SNR,
		}
		if m.Timestamp > 0 {
			msg.Timestamp = time.Unix(0, m.Timestamp*int64(time.Millisecond))
		}
		out = append(out, msg)
	}

	return out, nil
}
