package protocol

import (
	"encoding/binary"
	"time"

	log "github.com/sirupsen/logrus"
)

// Packet holds a checksum-verified frame together with its decoded payload.
type Packet struct {
	Command       CommandKind
	Payload       Payload
	RawBytes      []byte
	PayloadBytes  []byte
	Timestamp     time.Time
	ChecksumValid bool
}

// DecoderStats holds the decoder counters.
type DecoderStats struct {
	PacketsReceived uint64
	ChecksumErrors  uint64
	ParseErrors     uint64
	BytesProcessed  uint64
	BufferSize      int
	SuccessRate     float64
}

// Decoder frames a raw byte stream into packets. It buffers partial input
// across Feed calls and resynchronizes after corrupted data by advancing a
// single byte past a rejected start byte. A Decoder is bound to one byte
// stream and is not safe for concurrent use.
type Decoder struct {
	buf []byte

	packetsReceived uint64
	checksumErrors  uint64
	parseErrors     uint64
	bytesProcessed  uint64

	// now is overridable in tests.
	now func() time.Time
}

// NewDecoder creates a new Decoder.
func NewDecoder() *Decoder {
	return &Decoder{
		now: time.Now,
	}
}

// Feed appends data to the internal buffer and returns all complete,
// checksum-verified packets that could be extracted. Bytes belonging to an
// incomplete trailing frame stay buffered for the next call.
func (d *Decoder) Feed(data []byte) []Packet {
	d.buf = append(d.buf, data...)
	d.bytesProcessed += uint64(len(data))

	var packets []Packet
	for {
		p, ok := d.next()
		if !ok {
			break
		}
		packets = append(packets, p)
	}

	return packets
}

// next attempts to extract a single frame from the buffer. It returns false
// when no complete frame is available.
func (d *Decoder) next() (Packet, bool) {
	for {
		// scan for the start byte, dropping leading garbage
		start := -1
		for i, b := range d.buf {
			if b == StartByte {
				start = i
				break
			}
		}
		if start < 0 {
			d.buf = d.buf[:0]
			return Packet{}, false
		}
		if start > 0 {
			d.buf = d.buf[start:]
		}

		if len(d.buf) < headerSize {
			return Packet{}, false
		}

		cmd := CommandKind(d.buf[1])
		length := int(binary.LittleEndian.Uint16(d.buf[2:4]))
		if length > MaxPayloadSize {
			// the start byte may recur inside garbage, so advance a
			// single byte rather than the whole candidate frame
			d.parseErrors++
			errFrameLength().Inc()
			d.buf = d.buf[1:]
			continue
		}

		frameSize := headerSize + length + checksumSize
		if len(d.buf) < frameSize {
			return Packet{}, false
		}

		want := binary.LittleEndian.Uint16(d.buf[headerSize+length : frameSize])
		got := Fletcher16(d.buf[:headerSize+length])
		if want != got {
			d.checksumErrors++
			errFrameChecksum().Inc()
			log.WithFields(log.Fields{
				"command":  cmd,
				"expected": want,
				"computed": got,
			}).Debug("protocol: frame checksum mismatch, resyncing")
			d.buf = d.buf[1:]
			continue
		}

		raw := make([]byte, frameSize)
		copy(raw, d.buf[:frameSize])
		d.buf = d.buf[frameSize:]

		payloadBytes := raw[headerSize : headerSize+length]

		p := Packet{
			Command:       cmd,
			RawBytes:      raw,
			PayloadBytes:  payloadBytes,
			Timestamp:     d.now(),
			ChecksumValid: true,
		}

		dec, known := payloadDecoders[cmd]
		if !known {
			// valid frame, undecodable payload: keep it, never drop silently
			d.parseErrors++
			errFramePayload(cmd.String()).Inc()
			p.Payload = RawPayload{cmd: cmd, Data: payloadBytes}
			log.WithFields(log.Fields{
				"command": uint8(cmd),
				"length":  length,
			}).Warning("protocol: frame with unknown command")
		} else {
			payload, err := dec(payloadBytes)
			if err != nil {
				d.parseErrors++
				errFramePayload(cmd.String()).Inc()
				p.Payload = RawPayload{cmd: cmd, Data: payloadBytes}
				log.WithError(err).WithFields(log.Fields{
					"command": cmd,
					"length":  length,
				}).Warning("protocol: payload decode error")
			} else {
				p.Payload = payload
			}
		}

		d.packetsReceived++
		framesReceived(cmd.String()).Inc()

		return p, true
	}
}

// GetStats returns the decoder counters.
func (d *Decoder) GetStats() DecoderStats {
	s := DecoderStats{
		PacketsReceived: d.packetsReceived,
		ChecksumErrors:  d.checksumErrors,
		ParseErrors:     d.parseErrors,
		BytesProcessed:  d.bytesProcessed,
		BufferSize:      len(d.buf),
	}

	total := s.PacketsReceived + s.ChecksumErrors + s.ParseErrors
	if total > 0 {
		s.SuccessRate = float64(s.PacketsReceived) / float64(total) * 100
	}

	return s
}

// Reset drops the buffered bytes and resets all counters.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.packetsReceived = 0
	d.checksumErrors = 0
	d.parseErrors = 0
	d.bytesProcessed = 0
}
