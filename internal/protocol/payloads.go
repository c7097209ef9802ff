package protocol

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Payload is implemented by every decoded payload variant.
type Payload interface {
	// Command returns the command the payload belongs to.
	Command() CommandKind
}

// errShortPayload is returned by payload decoders on truncated input.
var errShortPayload = errors.New("payload too short")

// StatusPayload holds the content of a STATUS_REPORT frame.
type StatusPayload struct {
	RelayActive      bool
	OwnSystemID      uint8
	PacketsRelayed   uint32
	BytesRelayed     uint32
	MeshToUART       uint32
	UARTToMesh       uint32
	GCSToMesh        uint32
	MeshToGCS        uint32
	RSSI             float64
	SNR              float64
	LastActivitySec  float64
	ActivePeerRelays int
}

// Command implements the Payload interface.
func (p StatusPayload) Command() CommandKind { return CmdStatusReport }

const statusPayloadSize = 39

func decodeStatusPayload(b []byte) (Payload, error) {
	if len(b) < statusPayloadSize {
		return nil, errShortPayload
	}

	return StatusPayload{
		RelayActive:      b[0] != 0,
		OwnSystemID:      b[1],
		PacketsRelayed:   binary.LittleEndian.Uint32(b[2:6]),
		BytesRelayed:     binary.LittleEndian.Uint32(b[6:10]),
		MeshToUART:       binary.LittleEndian.Uint32(b[10:14]),
		UARTToMesh:       binary.LittleEndian.Uint32(b[14:18]),
		GCSToMesh:        binary.LittleEndian.Uint32(b[18:22]),
		MeshToGCS:        binary.LittleEndian.Uint32(b[22:26]),
		RSSI:             float32LE(b[26:30]),
		SNR:              float32LE(b[30:34]),
		LastActivitySec:  float32LE(b[34:38]),
		ActivePeerRelays: int(b[38]),
	}, nil
}

// Encode encodes the payload into its fixed binary layout.
func (p StatusPayload) Encode() []byte {
	b := make([]byte, statusPayloadSize)
	if p.RelayActive {
		b[0] = 1
	}
	b[1] = p.OwnSystemID
	binary.LittleEndian.PutUint32(b[2:6], p.PacketsRelayed)
	binary.LittleEndian.PutUint32(b[6:10], p.BytesRelayed)
	binary.LittleEndian.PutUint32(b[10:14], p.MeshToUART)
	binary.LittleEndian.PutUint32(b[14:18], p.UARTToMesh)
	binary.LittleEndian.PutUint32(b[18:22], p.GCSToMesh)
	binary.LittleEndian.PutUint32(b[22:26], p.MeshToGCS)
	putFloat32LE(b[26:30], p.RSSI)
	putFloat32LE(b[30:34], p.SNR)
	putFloat32LE(b[34:38], p.LastActivitySec)
	b[38] = uint8(p.ActivePeerRelays)
	return b
}

// InitPayload holds the content of an INIT frame.
type InitPayload struct {
	SystemID     uint8
	FirmwareMaj  uint8
	FirmwareMin  uint8
	Capabilities uint16
}

// Command implements the Payload interface.
func (p InitPayload) Command() CommandKind { return CmdInit }

func decodeInitPayload(b []byte) (Payload, error) {
	if len(b) < 5 {
		return nil, errShortPayload
	}

	return InitPayload{
		SystemID:     b[0],
		FirmwareMaj:  b[1],
		FirmwareMin:  b[2],
		Capabilities: binary.LittleEndian.Uint16(b[3:5]),
	}, nil
}

// BridgePayload holds the content of a BRIDGE_TX / BRIDGE_RX frame. Data may
// contain an embedded vehicle-telemetry frame for the external codec.
type BridgePayload struct {
	cmd      CommandKind
	SystemID uint8
	RSSI     float64
	SNR      float64
	Data     []byte
}

// Command implements the Payload interface.
func (p BridgePayload) Command() CommandKind { return p.cmd }

func decodeBridgePayload(cmd CommandKind) payloadDecoderFunc {
	return func(b []byte) (Payload, error) {
		if len(b) < 11 {
			return nil, errShortPayload
		}

		dataLen := int(binary.LittleEndian.Uint16(b[9:11]))
		if len(b) < 11+dataLen {
			return nil, errShortPayload
		}

		data := make([]byte, dataLen)
		copy(data, b[11:11+dataLen])

		return BridgePayload{
			cmd:      cmd,
			SystemID: b[0],
			RSSI:     float32LE(b[1:5]),
			SNR:      float32LE(b[5:9]),
			Data:     data,
		}, nil
	}
}

// Encode encodes the payload into its fixed binary layout.
func (p BridgePayload) Encode() []byte {
	b := make([]byte, 11, 11+len(p.Data))
	b[0] = p.SystemID
	putFloat32LE(b[1:5], p.RSSI)
	putFloat32LE(b[5:9], p.SNR)
	binary.LittleEndian.PutUint16(b[9:11], uint16(len(p.Data)))
	return append(b, p.Data...)
}

// RelayRequestPayload holds the content of a RELAY_REQUEST frame.
type RelayRequestPayload struct {
	SystemID     uint8
	TargetSystem uint8
	Reason       uint8
}

// Command implements the Payload interface.
func (p RelayRequestPayload) Command() CommandKind { return CmdRelayRequest }

func decodeRelayRequestPayload(b []byte) (Payload, error) {
	if len(b) < 3 {
		return nil, errShortPayload
	}

	return RelayRequestPayload{
		SystemID:     b[0],
		TargetSystem: b[1],
		Reason:       b[2],
	}, nil
}

// RelayActivationPayload holds the content of a RELAY_ACTIVATE frame.
type RelayActivationPayload struct {
	SystemID uint8
	Active   bool
}

// Command implements the Payload interface.
func (p RelayActivationPayload) Command() CommandKind { return CmdRelayActivate }

func decodeRelayActivationPayload(b []byte) (Payload, error) {
	if len(b) < 2 {
		return nil, errShortPayload
	}

	return RelayActivationPayload{
		SystemID: b[0],
		Active:   b[1] != 0,
	}, nil
}

// AckPayload holds the content of an ACK frame.
type AckPayload struct {
	Command_ uint8
	Status   uint8
}

// Command implements the Payload interface.
func (p AckPayload) Command() CommandKind { return CmdAck }

func decodeAckPayload(b []byte) (Payload, error) {
	if len(b) < 2 {
		return nil, errShortPayload
	}

	return AckPayload{
		Command_: b[0],
		Status:   b[1],
	}, nil
}

// RawPayload holds payload bytes for commands without a registered decoder
// and for structurally valid frames that failed payload decoding.
type RawPayload struct {
	cmd  CommandKind
	Data []byte
}

// Command implements the Payload interface.
func (p RawPayload) Command() CommandKind { return p.cmd }

func decodeRawPayload(cmd CommandKind) payloadDecoderFunc {
	return func(b []byte) (Payload, error) {
		data := make([]byte, len(b))
		copy(data, b)
		return RawPayload{cmd: cmd, Data: data}, nil
	}
}

type payloadDecoderFunc func(b []byte) (Payload, error)

// payloadDecoders maps each command to its payload decoder. Registered once
// at init, read-only afterwards.
var payloadDecoders map[CommandKind]payloadDecoderFunc

func init() {
	payloadDecoders = map[CommandKind]payloadDecoderFunc{
		CmdAck:           decodeAckPayload,
		CmdInit:          decodeInitPayload,
		CmdStatusReport:  decodeStatusPayload,
		CmdStatusRequest: decodeRawPayload(CmdStatusRequest),
		CmdBridgeTX:      decodeBridgePayload(CmdBridgeTX),
		CmdBridgeRX:      decodeBridgePayload(CmdBridgeRX),
		CmdRelayRequest:  decodeRelayRequestPayload,
		CmdRelayActivate: decodeRelayActivationPayload,
		CmdRelayRX:       decodeRawPayload(CmdRelayRX),
		CmdRelayTX:       decodeRawPayload(CmdRelayTX),
	}
}

func float32LE(b []byte) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
}

func putFloat32LE(b []byte, f float64) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(float32(f)))
}
