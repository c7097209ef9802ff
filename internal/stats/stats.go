// Package stats maintains rolling-window rates, throughput, command/ack
// latency correlation, link quality and error-rate statistics over the
// decoded packet and message streams.
package stats

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// ErrorKind defines the tracked error counter classes.
type ErrorKind string

// Available error kinds.
const (
	ErrorChecksum       ErrorKind = "checksum_errors"
	ErrorParse          ErrorKind = "parse_errors"
	ErrorBufferOverflow ErrorKind = "buffer_overflows"
	ErrorTimeout        ErrorKind = "timeouts"
)

// Config holds the collector configuration.
type Config struct {
	// RateWindow is the rolling window used for packet / message rates.
	RateWindow time.Duration

	// ThroughputWindow is the bucket size used for throughput grouping.
	ThroughputWindow time.Duration

	// LatencyTimeout drops pending command entries that were never
	// acknowledged.
	LatencyTimeout time.Duration

	// MaxLatencySamples bounds the latency sample set.
	MaxLatencySamples int
}

type pendingKey struct {
	commandID    uint16
	targetSystem uint8
}

// Snapshot is an immutable view of the collector state.
type Snapshot struct {
	Time    time.Time
	Uptime  time.Duration
	Created time.Time

	PacketRate  float64
	MessageRate float64

	// Throughput maps a bucket index (ThroughputWindow offsets from the
	// first entry) to the byte count of that bucket.
	Throughput map[int64]float64

	LatencyAvg      time.Duration
	LatencyStdDev   time.Duration
	LatencySamples  int
	PendingCommands int

	RSSIAvg float64
	SNRAvg  float64

	Errors     map[ErrorKind]uint64
	ErrorRates map[ErrorKind]float64 // per minute since creation

	Distributions map[string]uint64
}

// Collector implements the metrics calculator. All updates and snapshots
// are serialized through a single mutex, window pruning happens lazily at
// call time from the supplied timestamps.
type Collector struct {
	mu sync.Mutex

	conf      Config
	createdAt time.Time

	packetEvents  []time.Time
	messageEvents []time.Time

	throughputStart   time.Time
	throughputBuckets map[int64]float64

	pending        map[pendingKey]time.Time
	latencySamples []float64 // seconds

	rssiSum float64
	snrSum  float64
	linkN   uint64

	errors map[ErrorKind]uint64

	distributions map[string]uint64
}

// NewCollector creates a new Collector.
func NewCollector(conf Config) *Collector {
	if conf.RateWindow <= 0 {
		conf.RateWindow = time.Second
	}
	if conf.ThroughputWindow <= 0 {
		conf.ThroughputWindow = time.Second
	}
	if conf.LatencyTimeout <= 0 {
		conf.LatencyTimeout = 30 * time.Second
	}
	if conf.MaxLatencySamples <= 0 {
		conf.MaxLatencySamples = 1000
	}

	return &Collector{
		conf:              conf,
		createdAt:         time.Now(),
		throughputBuckets: make(map[int64]float64),
		pending:           make(map[pendingKey]time.Time),
		errors:            make(map[ErrorKind]uint64),
		distributions:     make(map[string]uint64),
	}
}

// SetCreated overrides the creation timestamp. Rates are computed relative
// to it.
func (c *Collector) SetCreated(ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createdAt = ts
}

// MarkPacket records a binary-packet arrival.
func (c *Collector) MarkPacket(ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packetEvents = pruneAndAppend(c.packetEvents, ts, c.conf.RateWindow)
}

// MarkMessage records a decoded-message arrival.
func (c *Collector) MarkMessage(ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messageEvents = pruneAndAppend(c.messageEvents, ts, c.conf.RateWindow)
}

// AddThroughput adds a byte-sized entry to its throughput bucket.
func (c *Collector) AddThroughput(ts time.Time, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.throughputStart.IsZero() {
		c.throughputStart = ts
	}

	bucket := int64(ts.Sub(c.throughputStart) / c.conf.ThroughputWindow)
	if bucket < 0 {
		bucket = 0
	}
	c.throughputBuckets[bucket] += float64(size)
}

// RecordCommandIssued records a pending command awaiting acknowledgment.
func (c *Collector) RecordCommandIssued(commandID uint16, targetSystem uint8, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prunePending(ts)
	c.pending[pendingKey{commandID: commandID, targetSystem: targetSystem}] = ts
}

// RecordCommandAck correlates an acknowledgment with its pending command
// and records the round-trip latency. Unmatched acks are ignored.
func (c *Collector) RecordCommandAck(commandID uint16, targetSystem uint8, ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.prunePending(ts)

	key := pendingKey{commandID: commandID, targetSystem: targetSystem}
	issued, ok := c.pending[key]
	if !ok {
		return
	}
	delete(c.pending, key)

	latency := ts.Sub(issued).Seconds()
	if latency < 0 {
		return
	}

	c.latencySamples = append(c.latencySamples, latency)
	if len(c.latencySamples) > c.conf.MaxLatencySamples {
		c.latencySamples = c.latencySamples[len(c.latencySamples)-c.conf.MaxLatencySamples:]
	}
}

// prunePending drops pending entries older than the latency timeout so
// commands that are never acknowledged do not leak. Caller must hold c.mu.
func (c *Collector) prunePending(now time.Time) {
	for k, issued := range c.pending {
		if now.Sub(issued) > c.conf.LatencyTimeout {
			delete(c.pending, k)
		}
	}
}

// UpdateLinkQuality feeds an RSSI/SNR reading into the running averages.
func (c *Collector) UpdateLinkQuality(rssi, snr float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rssiSum += rssi
	c.snrSum += snr
	c.linkN++
}

// CountError increments the given error counter.
func (c *Collector) CountError(kind ErrorKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[kind]++
}

// CountType increments the occurrence counter of the given message or
// command type.
func (c *Collector) CountType(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.distributions[name]++
}

// GetSnapshot returns an immutable snapshot of all metrics as of now.
func (c *Collector) GetSnapshot(now time.Time) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.packetEvents = prune(c.packetEvents, now, c.conf.RateWindow)
	c.messageEvents = prune(c.messageEvents, now, c.conf.RateWindow)

	s := Snapshot{
		Time:            now,
		Created:         c.createdAt,
		Uptime:          now.Sub(c.createdAt),
		PacketRate:      c.rate(len(c.packetEvents), now),
		MessageRate:     c.rate(len(c.messageEvents), now),
		Throughput:      make(map[int64]float64, len(c.throughputBuckets)),
		LatencySamples:  len(c.latencySamples),
		PendingCommands: len(c.pending),
		Errors:          make(map[ErrorKind]uint64, len(c.errors)),
		ErrorRates:      make(map[ErrorKind]float64, len(c.errors)),
		Distributions:   make(map[string]uint64, len(c.distributions)),
	}

	for k, v := range c.throughputBuckets {
		s.Throughput[k] = v
	}
	for k, v := range c.distributions {
		s.Distributions[k] = v
	}

	minutes := now.Sub(c.createdAt).Minutes()
	for k, v := range c.errors {
		s.Errors[k] = v
		if minutes > 0 {
			s.ErrorRates[k] = float64(v) / minutes
		}
	}

	if len(c.latencySamples) > 0 {
		s.LatencyAvg = time.Duration(stat.Mean(c.latencySamples, nil) * float64(time.Second))
	}
	if len(c.latencySamples) > 1 {
		s.LatencyStdDev = time.Duration(stat.StdDev(c.latencySamples, nil) * float64(time.Second))
	}

	if c.linkN > 0 {
		s.RSSIAvg = c.rssiSum / float64(c.linkN)
		s.SNRAvg = c.snrSum / float64(c.linkN)
	}

	return s
}

// rate converts an in-window event count to an events/second rate. Before
// a full window has elapsed since creation the shorter elapsed span is
// used, so early rates are not diluted. Caller must hold c.mu.
func (c *Collector) rate(count int, now time.Time) float64 {
	window := c.conf.RateWindow
	if elapsed := now.Sub(c.createdAt); elapsed > 0 && elapsed < window {
		window = elapsed
	}
	if window <= 0 {
		return 0
	}
	return float64(count) / window.Seconds()
}

// Reset clears all collector state and restarts the uptime clock.
func (c *Collector) Reset(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.createdAt = now
	c.packetEvents = nil
	c.messageEvents = nil
	c.throughputStart = time.Time{}
	c.throughputBuckets = make(map[int64]float64)
	c.pending = make(map[pendingKey]time.Time)
	c.latencySamples = nil
	c.rssiSum = 0
	c.snrSum = 0
	c.linkN = 0
	c.errors = make(map[ErrorKind]uint64)
	c.distributions = make(map[string]uint64)
}

func pruneAndAppend(events []time.Time, ts time.Time, window time.Duration) []time.Time {
	events = prune(events, ts, window)
	return append(events, ts)
}

// prune drops events older than the window relative to now. Events arrive
// in timestamp order, so the cut is a prefix.
func prune(events []time.Time, now time.Time, window time.Duration) []time.Time {
	cut := now.Add(-window)
	i := 0
	for i < len(events) && events[i].Before(cut) {
		i++
	}
	if i == 0 {
		return events
	}
	return append(events[:0], events[i:]...)
}
