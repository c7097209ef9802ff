// Package test provides shared helpers and collaborator fakes for tests.
package test

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/skymesh/skymesh-ground-monitor/internal/config"
	"github.com/skymesh/skymesh-ground-monitor/internal/telemetry"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

// GetConfig returns the test configuration.
func GetConfig() config.Config {
	var c config.Config

	c.Redis.Servers = []string{"localhost:6379"}
	if v := os.Getenv("TEST_REDIS_SERVER"); v != "" {
		c.Redis.Servers = []string{v}
	}

	c.Monitor.Validation.GPSMaxClimbRate = 50
	c.Monitor.Metrics.RateWindow = time.Second
	c.Monitor.Metrics.ThroughputWindow = time.Second
	c.Monitor.Metrics.LatencyTimeout = 30 * time.Second
	c.Monitor.Alerts.ThrottleWindow = 10 * time.Second
	c.Monitor.Alerts.DuplicateWindow = 5 * time.Second
	c.Monitor.Alerts.MaxAlertsPerWindow = 3
	c.Monitor.Alerts.RelayLatencyThresholdMS = 500
	c.Monitor.Metrics.Aggregation.Timezone = "UTC"
	c.Monitor.Metrics.Aggregation.Intervals = []string{"MINUTE", "HOUR", "DAY"}
	c.Monitor.Metrics.Aggregation.MinuteTTL = 2 * time.Hour
	c.Monitor.Metrics.Aggregation.HourTTL = 48 * time.Hour
	c.Monitor.Metrics.Aggregation.DayTTL = 90 * 24 * time.Hour

	return c
}

// Codec implements telemetry.Codec for tests. When DecodeFunc is nil it
// returns Messages / Err for every call and records the received byte
// ranges.
type Codec struct {
	DecodeFunc func(ctx context.Context, data []byte) ([]telemetry.Message, error)
	Messages   []telemetry.Message
	Err        error
	Received   [][]byte
}

// Decode implements the telemetry.Codec interface.
func (c *Codec) Decode(ctx context.Context, data []byte) ([]telemetry.Message, error) {
	c.Received = append(c.Received, data)
	if c.DecodeFunc != nil {
		return c.DecodeFunc(ctx, data)
	}
	return c.Messages, c.Err
}

// RadioBackend implements backend.Backend for tests.
type RadioBackend struct {
	dataChan chan []byte
}

// NewRadioBackend creates a new RadioBackend.
func NewRadioBackend() *RadioBackend {
	return &RadioBackend{
		dataChan: make(chan []byte, 100),
	}
}

// Feed queues a byte chunk on the data channel.
func (b *RadioBackend) Feed(data []byte) {
	b.dataChan <- data
}

// DataChan implements the backend.Backend interface.
func (b *RadioBackend) DataChan() chan []byte {
	return b.dataChan
}

// Close implements the backend.Backend interface.
func (b *RadioBackend) Close() error {
	close(b.dataChan)
	return nil
}
