package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/skymesh/skymesh-ground-monitor/internal/config"
	"github.com/skymesh/skymesh-ground-monitor/internal/logging"
)

// AggregationInterval defines the aggregation type.
type AggregationInterval string

// Metrics aggregation intervals.
const (
	AggregationMinute AggregationInterval = "MINUTE"
	AggregationHour   AggregationInterval = "HOUR"
	AggregationDay    AggregationInterval = "DAY"
)

// metrics key (identifier | aggregation | timestamp)
const metricsKeyTempl = "skymesh:gm:metrics:%s:%s:%d"

var (
	timeLocation         = time.Local
	aggregationIntervals []AggregationInterval
	metricsMinuteTTL     time.Duration
	metricsHourTTL       time.Duration
	metricsDayTTL        time.Duration
)

// MetricsRecord holds a single metrics record.
type MetricsRecord struct {
	Time    time.Time
	Metrics map[string]float64
}

func setupMetrics(c config.Config) error {
	agg := c.Monitor.Metrics.Aggregation

	if agg.Timezone != "" {
		var err error
		timeLocation, err = time.LoadLocation(agg.Timezone)
		if err != nil {
			return errors.Wrap(err, "load timezone location error")
		}
	}

	aggregationIntervals = nil
	for _, i := range agg.Intervals {
		aggregationIntervals = append(aggregationIntervals, AggregationInterval(i))
	}

	metricsMinuteTTL = agg.MinuteTTL
	metricsHourTTL = agg.HourTTL
	metricsDayTTL = agg.DayTTL

	return nil
}

// SaveMetrics stores the given metrics under each configured aggregation
// interval.
func SaveMetrics(ctx context.Context, name string, metrics MetricsRecord) error {
	for _, agg := range aggregationIntervals {
		if err := SaveMetricsForInterval(ctx, agg, name, metrics); err != nil {
			return errors.Wrap(err, "save metrics for interval error")
		}
	}

	log.WithFields(log.Fields{
		"name":        name,
		"aggregation": aggregationIntervals,
		"ctx_id":      ctx.Value(logging.ContextIDKey),
	}).Info("storage: metrics saved")

	return nil
}

// SaveMetricsForInterval aggregates and stores the given metrics.
func SaveMetricsForInterval(ctx context.Context, agg AggregationInterval, name string, metrics MetricsRecord) error {
	if len(metrics.Metrics) == 0 {
		return nil
	}

	var exp time.Duration

	// handle aggregation
	ts := metrics.Time.In(timeLocation)
	switch agg {
	case AggregationMinute:
		// truncate timestamp to minute precision
		ts = time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), ts.Minute(), 0, 0, timeLocation)
		exp = metricsMinuteTTL
	case AggregationHour:
		// truncate timestamp to hour precision
		ts = time.Date(ts.Year(), ts.Month(), ts.Day(), ts.Hour(), 0, 0, 0, timeLocation)
		exp = metricsHourTTL
	case AggregationDay:
		// truncate timestamp to day precision
		ts = time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, timeLocation)
		exp = metricsDayTTL
	default:
		return fmt.Errorf("unexpected aggregation interval: %s", agg)
	}

	key := GetRedisKey(metricsKeyTempl, name, agg, ts.Unix())

	pipe := RedisClient().TxPipeline()
	for k, v := range metrics.Metrics {
		pipe.HIncrByFloat(ctx, key, k, v)
	}
	pipe.PExpire(ctx, key, exp)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "exec error")
	}

	log.WithFields(log.Fields{
		"name":        name,
		"aggregation": agg,
		"ctx_id":      ctx.Value(logging.ContextIDKey),
	}).Debug("storage: metrics saved")

	return nil
}

// GetMetrics returns the metrics for the requested aggregation interval.
func GetMetrics(ctx context.Context, agg AggregationInterval, name string, start, end time.Time) ([]MetricsRecord, error) {
	var keys []string
	var timestamps []time.Time

	start = start.In(timeLocation)
	end = end.In(timeLocation)

	// handle aggregation keys
	switch agg {
	case AggregationMinute:
		end = time.Date(end.Year(), end.Month(), end.Day(), end.Hour(), end.Minute(), 0, 0, timeLocation)
		for i := 0; ; i++ {
			ts := time.Date(start.Year(), start.Month(), start.Day(), start.Hour(), start.Minute()+i, 0, 0, timeLocation)
			if ts.After(end) {
				break
			}
			timestamps = append(timestamps, ts)
			keys = append(keys, GetRedisKey(metricsKeyTempl, name, agg, ts.Unix()))
		}
	case AggregationHour:
		end = time.Date(end.Year(), end.Month(), end.Day(), end.Hour(), 0, 0, 0, timeLocation)
		for i := 0; ; i++ {
			ts := time.Date(start.Year(), start.Month(), start.Day(), start.Hour()+i, 0, 0, 0, timeLocation)
			if ts.After(end) {
				break
			}
			timestamps = append(timestamps, ts)
			keys = append(keys, GetRedisKey(metricsKeyTempl, name, agg, ts.Unix()))
		}
	case AggregationDay:
		end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, timeLocation)
		for i := 0; ; i++ {
			ts := time.Date(start.Year(), start.Month(), start.Day()+i, 0, 0, 0, 0, timeLocation)
			if ts.After(end) {
				break
			}
			timestamps = append(timestamps, ts)
			keys = append(keys, GetRedisKey(metricsKeyTempl, name, agg, ts.Unix()))
		}
	default:
		return nil, fmt.Errorf("unexpected aggregation interval: %s", agg)
	}

	if len(keys) == 0 {
		return nil, nil
	}

	pipe := RedisClient().Pipeline()
	cmds := make([]*redis.StringStringMapCmd, 0, len(keys))
	for _, k := range keys {
		cmds = append(cmds, pipe.HGetAll(ctx, k))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrap(err, "exec error")
	}

	var out []MetricsRecord

	for i, ts := range timestamps {
		metrics := MetricsRecord{
			Time:    ts,
			Metrics: make(map[string]float64),
		}

		vals, err := cmds[i].Result()
		if err != nil {
			return nil, errors.Wrap(err, "hgetall error")
		}

		for k, v := range vals {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, errors.Wrap(err, "parse float error")
			}
			metrics.Metrics[k] = f
		}

		out = append(out, metrics)
	}

	return out, nil
}
