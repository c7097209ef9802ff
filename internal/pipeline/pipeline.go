// Package pipeline wires the protocol decoder, the validation engine, the
// metrics collector, the alert manager and the mode tracker into a single
// packet-processing flow.
package pipeline

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/skymesh/skymesh-ground-monitor/internal/alert"
	"github.com/skymesh/skymesh-ground-monitor/internal/logging"
	"github.com/skymesh/skymesh-ground-monitor/internal/mode"
	"github.com/skymesh/skymesh-ground-monitor/internal/protocol"
	"github.com/skymesh/skymesh-ground-monitor/internal/stats"
	"github.com/skymesh/skymesh-ground-monitor/internal/telemetry"
	"github.com/skymesh/skymesh-ground-monitor/internal/validation"
)

// Pipeline processes the raw byte stream of one physical link. It owns the
// link's decoder; the downstream components hold cross-link state and all
// calls into them are serialized through the pipeline mutex.
type Pipeline struct {
	mu sync.Mutex

	decoder   *protocol.Decoder
	codec     telemetry.Codec
	engine    *validation.Engine
	collector *stats.Collector
	alerts    *alert.Manager
	tracker   *mode.Tracker

	// decoder counters already consumed into the collector
	seenChecksumErrors uint64
	seenParseErrors    uint64
}

// New creates a new Pipeline.
func New(codec telemetry.Codec, engine *validation.Engine, collector *stats.Collector, alerts *alert.Manager, tracker *mode.Tracker) *Pipeline {
	return &Pipeline{
		decoder:   protocol.NewDecoder(),
		codec:     codec,
		engine:    engine,
		collector: collector,
		alerts:    alerts,
		tracker:   tracker,
	}
}

type packetContext struct {
	ctx      context.Context
	pipeline *Pipeline
	packet   protocol.Packet
}

var packetTasks = []func(*packetContext) error{
	countPacket,
	updateLinkQuality,
	trackMode,
	checkRelayLatency,
	forwardEmbedded,
}

// HandleBytes feeds a chunk of raw bytes into the decoder and runs every
// extracted packet through the processing tasks. Task errors are logged,
// never fatal.
func (p *Pipeline) HandleBytes(ctx context.Context, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	packets := p.decoder.Feed(data)
	p.syncDecoderErrors()

	for _, pkt := range packets {
		pctx := packetContext{
			ctx:      ctx,
			pipeline: p,
			packet:   pkt,
		}

		for _, t := range packetTasks {
			if err := t(&pctx); err != nil {
				log.WithError(err).WithFields(log.Fields{
					"command": pkt.Command,
					"ctx_id":  ctx.Value(logging.ContextIDKey),
				}).Error("pipeline: packet processing error")
			}
		}
	}
}

// syncDecoderErrors mirrors new decoder error counts into the metrics
// collector. Caller must hold p.mu.
func (p *Pipeline) syncDecoderErrors() {
	ds := p.decoder.GetStats()
	for ; p.seenChecksumErrors < ds.ChecksumErrors; p.seenChecksumErrors++ {
		p.collector.CountError(stats.ErrorChecksum)
	}
	for ; p.seenParseErrors < ds.ParseErrors; p.seenParseErrors++ {
		p.collector.CountError(stats.ErrorParse)
	}
}

func countPacket(ctx *packetContext) error {
	pkt := ctx.packet
	c := ctx.pipeline.collector

	c.MarkPacket(pkt.Timestamp)
	c.AddThroughput(pkt.Timestamp, len(pkt.RawBytes))
	c.CountType(pkt.Command.String())

	return nil
}

func updateLinkQuality(ctx *packetContext) error {
	switch p := ctx.packet.Payload.(type) {
	case protocol.StatusPayload:
		ctx.pipeline.collector.UpdateLinkQuality(p.RSSI, p.SNR)
	case protocol.BridgePayload:
		ctx.pipeline.collector.UpdateLinkQuality(p.RSSI, p.SNR)
	}
	return nil
}

func trackMode(ctx *packetContext) error {
	p, ok := ctx.packet.Payload.(protocol.StatusPayload)
	if !ok {
		return nil
	}

	ctx.pipeline.tracker.Update(p, ctx.packet.Timestamp)
	return nil
}

func checkRelayLatency(ctx *packetContext) error {
	p, ok := ctx.packet.Payload.(protocol.StatusPayload)
	if !ok {
		return nil
	}

	ctx.pipeline.alerts.CheckRelayLatency(p, p.OwnSystemID, ctx.packet.Timestamp)
	return nil
}

// forwardEmbedded hands embedded vehicle-telemetry bytes of bridge frames
// to the external codec and processes its decoded messages.
func forwardEmbedded(ctx *packetContext) error {
	p, ok := ctx.packet.Payload.(protocol.BridgePayload)
	if !ok || len(p.Data) == 0 {
		return nil
	}

	msgs, err := ctx.pipeline.codec.Decode(ctx.ctx, p.Data)
	if err != nil {
		ctx.pipeline.collector.CountError(stats.ErrorParse)
		log.WithError(err).WithFields(log.Fields{
			"system_id": p.SystemID,
			"ctx_id":    ctx.ctx.Value(logging.ContextIDKey),
		}).Warning("pipeline: embedded telemetry decode error")
		return nil
	}

	for i := range msgs {
		msg := msgs[i]
		if msg.Timestamp.IsZero() {
			msg.Timestamp = ctx.packet.Timestamp
		}
		if msg.RSSI == nil {
			rssi := p.RSSI
			msg.RSSI = &rssi
		}
		if msg.SNR == nil {
			snr := p.SNR
			msg.SNR = &snr
		}

		ctx.pipeline.handleMessage(ctx.ctx, msg)
	}

	return nil
}

// handleMessage processes one decoded vehicle-telemetry message. Caller
// must hold p.mu.
func (p *Pipeline) handleMessage(ctx context.Context, msg telemetry.Message) {
	p.collector.MarkMessage(msg.Timestamp)
	p.collector.CountType(msg.MsgType)
	if msg.RSSI != nil && msg.SNR != nil {
		p.collector.UpdateLinkQuality(*msg.RSSI, *msg.SNR)
	}

	p.correlateLatency(msg)

	for _, v := range p.engine.ValidateMessage(msg) {
		p.alerts.SendAlert(v)
	}
}

// correlateLatency feeds command / ack messages into the latency tracker.
func (p *Pipeline) correlateLatency(msg telemetry.Message) {
	cmd, ok := msg.Field(telemetry.FieldCommand)
	if !ok {
		return
	}

	switch msg.MsgType {
	case telemetry.MsgCommandLong:
		target := msg.SystemID
		if ts, ok := msg.Field("target_system"); ok {
			target = uint8(ts)
		}
		p.collector.RecordCommandIssued(uint16(cmd), target, msg.Timestamp)
	case telemetry.MsgCommandAck:
		p.collector.RecordCommandAck(uint16(cmd), msg.SystemID, msg.Timestamp)
	}
}

// DecoderStats returns the decoder counters of this link.
func (p *Pipeline) DecoderStats() protocol.DecoderStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.decoder.GetStats()
}
