package config

import (
	"time"
)

// Version defines the SkyMesh Ground Monitor version.
var Version string

// Config defines the configuration structure.
type Config struct {
	General struct {
		LogLevel    int  `mapstructure:"log_level"`
		LogToSyslog bool `mapstructure:"log_to_syslog"`
	} `mapstructure:"general"`

	Redis struct {
		URL        string   `mapstructure:"url"`
		Servers    []string `mapstructure:"servers"`
		Cluster    bool     `mapstructure:"cluster"`
		MasterName string   `mapstructure:"master_name"`
		Password   string   `mapstructure:"password"`
		Database   int      `mapstructure:"database"`
		PoolSize   int      `mapstructure:"pool_size"`
		TLSEnabled bool     `mapstructure:"tls_enabled"`
	} `mapstructure:"redis"`

	Monitor struct {
		Backend struct {
			Type string `mapstructure:"type"`

			MQTT struct {
				Server       string `mapstructure:"server"`
				Username     string `mapstructure:"username"`
				Password     string `mapstructure:"password"`
				QOS          uint8  `mapstructure:"qos"`
				CleanSession bool   `mapstructure:"clean_session"`
				ClientID     string `mapstructure:"client_id"`
				EventTopic   string `mapstructure:"event_topic"`

				MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval"`
			} `mapstructure:"mqtt"`

			UDP struct {
				Bind string `mapstructure:"bind"`
			} `mapstructure:"udp"`
		} `mapstructure:"backend"`

		Validation struct {
			RulesFile       string  `mapstructure:"rules_file"`
			WatchRules      bool    `mapstructure:"watch_rules"`
			MaxViolations   int     `mapstructure:"max_violations"`
			GPSMaxClimbRate float64 `mapstructure:"gps_max_climb_rate"`
		} `mapstructure:"validation"`

		Metrics struct {
			RateWindow        time.Duration `mapstructure:"rate_window"`
			ThroughputWindow  time.Duration `mapstructure:"throughput_window"`
			LatencyTimeout    time.Duration `mapstructure:"latency_timeout"`
			MaxLatencySamples int           `mapstructure:"max_latency_samples"`

			Aggregation struct {
				Timezone  string        `mapstructure:"timezone"`
				Intervals []string      `mapstructure:"intervals"`
				MinuteTTL time.Duration `mapstructure:"minute_ttl"`
				HourTTL   time.Duration `mapstructure:"hour_ttl"`
				DayTTL    time.Duration `mapstructure:"day_ttl"`
				Interval  time.Duration `mapstructure:"interval"`
			} `mapstructure:"aggregation"`
		} `mapstructure:"metrics"`

		Alerts struct {
			Channels                []string      `mapstructure:"channels"`
			ThrottleWindow          time.Duration `mapstructure:"throttle_window"`
			DuplicateWindow         time.Duration `mapstructure:"duplicate_window"`
			MaxAlertsPerWindow      int           `mapstructure:"max_alerts_per_window"`
			RelayLatencyThresholdMS float64       `mapstructure:"relay_latency_threshold_ms"`
			MaxHistory              int           `mapstructure:"max_history"`

			MQTT struct {
				Server   string `mapstructure:"server"`
				Username string `mapstructure:"username"`
				Password string `mapstructure:"password"`
				QOS      uint8  `mapstructure:"qos"`
				ClientID string `mapstructure:"client_id"`
				Topic    string `mapstructure:"topic"`
			} `mapstructure:"mqtt"`
		} `mapstructure:"alerts"`
	} `mapstructure:"monitor"`

	Monitoring struct {
		Bind                string `mapstructure:"bind"`
		PrometheusEndpoint  bool   `mapstructure:"prometheus_endpoint"`
		HealthcheckEndpoint bool   `mapstructure:"healthcheck_endpoint"`
	} `mapstructure:"monitoring"`
}

// C holds the global configuration.
var C Config
