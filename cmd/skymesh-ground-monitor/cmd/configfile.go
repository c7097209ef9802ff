package cmd

import (
	"os"
	"text/template"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/skymesh/skymesh-ground-monitor/internal/config"
)

const configTemplate = `[general]
# Log level
#
# debug=5, info=4, warning=3, error=2, fatal=1, panic=0
log_level={{ .General.LogLevel }}

# Log to syslog.
#
# When set to true, log messages are being written to syslog.
log_to_syslog={{ .General.LogToSyslog }}


# Redis settings
#
# Please note that Redis 2.6.0+ is required.
[redis]
# Server address or addresses.
#
# Set multiple addresses when connecting to a cluster or sentinel setup.
servers=[{{ range $index, $elm := .Redis.Servers }}{{ if $index }}, {{ end }}"{{ $elm }}"{{ end }}]

# Password.
#
# Set the password when connecting to a Redis instance requiring
# authentication.
password="{{ .Redis.Password }}"

# Database index.
database={{ .Redis.Database }}

# Redis Cluster.
#
# Set this to true when the provided servers are pointing to a Redis Cluster
# instance.
cluster={{ .Redis.Cluster }}

# Master name.
#
# Set the master name when the provided servers are pointing to a Redis
# Sentinel instance.
master_name="{{ .Redis.MasterName }}"

# Connection pool size.
#
# Default (when set to 0) is 10 connections per every CPU.
pool_size={{ .Redis.PoolSize }}

# TLS enabled.
tls_enabled={{ .Redis.TLSEnabled }}


# Monitor settings.
[monitor]

  # Radio backend settings.
  #
  # The radio backend supplies the raw link-layer byte stream of the ground
  # radio.
  [monitor.backend]
  # Backend type.
  #
  # Valid options are:
  #  * mqtt
  #  * udp
  type="{{ .Monitor.Backend.Type }}"

    # MQTT radio backend settings.
    [monitor.backend.mqtt]
    # MQTT server (e.g. scheme://host:port where scheme is tcp, ssl or ws)
    server="{{ .Monitor.Backend.MQTT.Server }}"

    # Connect with the given username (optional)
    username="{{ .Monitor.Backend.MQTT.Username }}"

    # Connect with the given password (optional)
    password="{{ .Monitor.Backend.MQTT.Password }}"

    # Event topic.
    #
    # The topic on which the radio bridge publishes raw frame chunks.
    event_topic="{{ .Monitor.Backend.MQTT.EventTopic }}"

    # Quality of service level
    #
    # 0: at most once
    # 1: at least once
    # 2: exactly once
    qos={{ .Monitor.Backend.MQTT.QOS }}

    # Clean session
    clean_session={{ .Monitor.Backend.MQTT.CleanSession }}

    # Client ID
    #
    # When left blank, a random id will be generated. This requires
    # clean_session=true.
    client_id="{{ .Monitor.Backend.MQTT.ClientID }}"

    # Maximum interval that will be waited between reconnection attempts
    # when connection is lost.
    max_reconnect_interval="{{ .Monitor.Backend.MQTT.MaxReconnectInterval }}"

    # UDP radio backend settings.
    [monitor.backend.udp]
    # ip:port to bind the UDP listener to.
    bind="{{ .Monitor.Backend.UDP.Bind }}"


  # Validation settings.
  [monitor.validation]
  # Rules file.
  #
  # Path to the YAML file holding the static validation rules. When left
  # blank only the temporal anomaly detectors are active.
  rules_file="{{ .Monitor.Validation.RulesFile }}"

  # Watch the rules file and hot-reload it on change.
  watch_rules={{ .Monitor.Validation.WatchRules }}

  # Max violations kept in the in-memory history.
  max_violations={{ .Monitor.Validation.MaxViolations }}

  # Max plausible climb / descend rate in m/s, used by the GPS altitude
  # jump detector.
  gps_max_climb_rate={{ .Monitor.Validation.GPSMaxClimbRate }}


  # Metrics calculation settings.
  [monitor.metrics]
  # Rolling window for packet and message rates.
  rate_window="{{ .Monitor.Metrics.RateWindow }}"

  # Bucket size for throughput aggregation.
  throughput_window="{{ .Monitor.Metrics.ThroughputWindow }}"

  # Commands without a matching ack are dropped from the latency
  # correlator after this timeout.
  latency_timeout="{{ .Monitor.Metrics.LatencyTimeout }}"

  # Max latency samples kept for average / standard deviation calculation.
  max_latency_samples={{ .Monitor.Metrics.MaxLatencySamples }}

    # Aggregated metrics storage settings.
    [monitor.metrics.aggregation]
    # Timezone
    #
    # The timezone is used for correctly aggregating the metrics (e.g. per
    # minute, hour or day).
    # Example: "Europe/Amsterdam" or "Local" for the system's local time zone.
    timezone="{{ .Monitor.Metrics.Aggregation.Timezone }}"

    # Aggregation intervals. Valid options are MINUTE, HOUR and DAY.
    intervals=[{{ range $index, $elm := .Monitor.Metrics.Aggregation.Intervals }}{{ if $index }}, {{ end }}"{{ $elm }}"{{ end }}]

    # Storage TTL per aggregation interval.
    minute_ttl="{{ .Monitor.Metrics.Aggregation.MinuteTTL }}"
    hour_ttl="{{ .Monitor.Metrics.Aggregation.HourTTL }}"
    day_ttl="{{ .Monitor.Metrics.Aggregation.DayTTL }}"

    # Interval in which counter deltas are written to storage.
    interval="{{ .Monitor.Metrics.Aggregation.Interval }}"


  # Alert settings.
  [monitor.alerts]
  # Alert channels.
  #
  # Valid options are:
  #  * log
  #  * mqtt
  channels=[{{ range $index, $elm := .Monitor.Alerts.Channels }}{{ if $index }}, {{ end }}"{{ $elm }}"{{ end }}]

  # Per-rule dispatch limit window.
  throttle_window="{{ .Monitor.Alerts.ThrottleWindow }}"

  # Window in which repeated identical alerts are filtered.
  duplicate_window="{{ .Monitor.Alerts.DuplicateWindow }}"

  # Max alerts dispatched per rule per throttle window.
  max_alerts_per_window={{ .Monitor.Alerts.MaxAlertsPerWindow }}

  # Relay latency threshold in milliseconds.
  relay_latency_threshold_ms={{ .Monitor.Alerts.RelayLatencyThresholdMS }}

  # Max alerts kept in the in-memory history.
  max_history={{ .Monitor.Alerts.MaxHistory }}

    # MQTT alert channel settings.
    [monitor.alerts.mqtt]
    # MQTT server (e.g. scheme://host:port where scheme is tcp, ssl or ws)
    server="{{ .Monitor.Alerts.MQTT.Server }}"

    # Connect with the given username (optional)
    username="{{ .Monitor.Alerts.MQTT.Username }}"

    # Connect with the given password (optional)
    password="{{ .Monitor.Alerts.MQTT.Password }}"

    # Quality of service level
    qos={{ .Monitor.Alerts.MQTT.QOS }}

    # Client ID
    client_id="{{ .Monitor.Alerts.MQTT.ClientID }}"

    # Topic on which alerts are published as JSON.
    topic="{{ .Monitor.Alerts.MQTT.Topic }}"


# Monitoring settings.
#
# Note: this is the monitoring of the SkyMesh Ground Monitor process itself,
# not the monitored radio network.
[monitoring]
# ip:port to bind the monitoring endpoint to.
#
# When left blank, the monitoring endpoint will be disabled.
bind="{{ .Monitoring.Bind }}"

# Prometheus metrics endpoint.
#
# When set to true, Prometheus metrics will be served at '/metrics'.
prometheus_endpoint={{ .Monitoring.PrometheusEndpoint }}

# Health check endpoint.
#
# When set to true, the healthcheck endpoint will be served at '/health'.
healthcheck_endpoint={{ .Monitoring.HealthcheckEndpoint }}
`

var configCmd = &cobra.Command{
	Use:   "configfile",
	Short: "Print the SkyMesh Ground Monitor configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		t := template.Must(template.New("config").Parse(configTemplate))
		err := t.Execute(os.Stdout, &config.C)
		if err != nil {
			return errors.Wrap(err, "execute config template error")
		}
		return nil
	},
}
