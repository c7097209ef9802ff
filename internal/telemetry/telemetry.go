// Package telemetry defines the seam to the external vehicle-telemetry
// codec. The monitor does not parse vehicle telemetry itself, it forwards
// embedded payload bytes to a Codec and consumes its typed output.
package telemetry

import (
	"context"
	"time"
)

// Message types with monitor-side semantics. Any other type is carried
// through and only matched against the configured validation rules.
const (
	MsgGlobalPosition = "GLOBAL_POSITION_INT"
	MsgCommandLong    = "COMMAND_LONG"
	MsgCommandAck     = "COMMAND_ACK"
	MsgHeartbeat      = "HEARTBEAT"
	MsgSysStatus      = "SYS_STATUS"
)

// FieldAltitude holds the altitude field name (mm above MSL) on position
// messages.
const FieldAltitude = "alt"

// FieldCommand holds the command-id field name on command and ack messages.
const FieldCommand = "command"

// Message is a single already-decoded vehicle-telemetry message as produced
// by the external codec.
type Message struct {
	Timestamp   time.Time
	MsgType     string
	MsgID       uint32
	SystemID    uint8
	ComponentID uint8
	Sequence    uint8
	Fields      map[string]float64

	// link quality of the radio frame the message arrived in, when known
	RSSI *float64
	SNR  *float64
}

// Field returns the named field value and whether it is present.
func (m Message) Field(name string) (float64, bool) {
	v, ok := m.Fields[name]
	return v, ok
}

// Codec decodes embedded vehicle-telemetry bytes into typed messages. Byte
// ranges that do not contain a complete telemetry frame yield an empty
// slice, not an error.
type Codec interface {
	Decode(ctx context.Context, data []byte) ([]Message, error)
}
