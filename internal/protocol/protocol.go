// Package protocol implements the framed binary link-layer protocol spoken
// by the mesh radio modules: frame encoding, payload decoding per command
// and a streaming decoder with garbage resynchronization.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// StartByte marks the beginning of a frame.
const StartByte = 0xAA

// MaxPayloadSize defines the maximum accepted payload length. A declared
// length above this value marks the candidate frame as garbage.
const MaxPayloadSize = 512

// frame overhead: start byte + command + length (2) + checksum (2).
const (
	headerSize   = 4
	checksumSize = 2
)

// CommandKind defines the frame command type.
type CommandKind uint8

// Available commands.
const (
	CmdAck           CommandKind = 0x01
	CmdInit          CommandKind = 0x02
	CmdStatusReport  CommandKind = 0x03
	CmdStatusRequest CommandKind = 0x04
	CmdBridgeTX      CommandKind = 0x05
	CmdBridgeRX      CommandKind = 0x06
	CmdRelayRequest  CommandKind = 0x07
	CmdRelayActivate CommandKind = 0x08
	CmdRelayRX       CommandKind = 0x09
	CmdRelayTX       CommandKind = 0x0A
)

// String implements fmt.Stringer.
func (c CommandKind) String() string {
	switch c {
	case CmdAck:
		return "ACK"
	case CmdInit:
		return "INIT"
	case CmdStatusReport:
		return "STATUS_REPORT"
	case CmdStatusRequest:
		return "STATUS_REQUEST"
	case CmdBridgeTX:
		return "BRIDGE_TX"
	case CmdBridgeRX:
		return "BRIDGE_RX"
	case CmdRelayRequest:
		return "RELAY_REQUEST"
	case CmdRelayActivate:
		return "RELAY_ACTIVATE"
	case CmdRelayRX:
		return "RELAY_RX"
	case CmdRelayTX:
		return "RELAY_TX"
	default:
		return fmt.Sprintf("UNKNOWN_%02X", uint8(c))
	}
}

// Fletcher16 computes the Fletcher-16 checksum over the given bytes.
func Fletcher16(data []byte) uint16 {
	var sum1, sum2 uint16
	for _, b := range data {
		sum1 = (sum1 + uint16(b)) % 255
		sum2 = (sum2 + sum1) % 255
	}
	return sum2<<8 | sum1
}

// EncodeFrame encodes the given command and payload into a wire frame.
func EncodeFrame(cmd CommandKind, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, errors.New("payload exceeds maximum payload size")
	}

	out := make([]byte, 0, headerSize+len(payload)+checksumSize)
	out = append(out, StartByte, uint8(cmd))
	out = append(out, 0, 0)
	binary.LittleEndian.PutUint16(out[2:4], uint16(len(payload)))
	out = append(out, payload...)

	cs := Fletcher16(out)
	out = append(out, 0, 0)
	binary.LittleEndian.PutUint16(out[len(out)-2:], cs)

	return out, nil
}
