package cmd

import (
	"bytes"
	"io/ioutil"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/mitchellh/mapstructure"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/skymesh/skymesh-ground-monitor/internal/config"
)

var (
	cfgFile string
	version string
)

var rootCmd = &cobra.Command{
	Use:   "skymesh-ground-monitor",
	Short: "SkyMesh Ground Monitor",
	Long: `SkyMesh Ground Monitor validates and aggregates the telemetry stream of a SkyMesh relay network
	> source & copyright information: https://github.com/skymesh/skymesh-ground-monitor`,
	RunE: run,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to configuration file (optional)")
	rootCmd.PersistentFlags().Int("log-level", 4, "debug=5, info=4, error=2, fatal=1, panic=0")

	viper.BindPFlag("general.log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	// default values
	viper.SetDefault("redis.servers", []string{"localhost:6379"})

	viper.SetDefault("monitor.backend.type", "mqtt")
	viper.SetDefault("monitor.backend.mqtt.server", "tcp://localhost:1883")
	viper.SetDefault("monitor.backend.mqtt.event_topic", "radio/+/event/up")
	viper.SetDefault("monitor.backend.mqtt.clean_session", true)
	viper.SetDefault("monitor.backend.mqtt.max_reconnect_interval", time.Minute)
	viper.SetDefault("monitor.backend.udp.bind", "0.0.0.0:14650")

	viper.SetDefault("monitor.validation.max_violations", 1000)
	viper.SetDefault("monitor.validation.gps_max_climb_rate", 50)

	viper.SetDefault("monitor.metrics.rate_window", time.Second)
	viper.SetDefault("monitor.metrics.throughput_window", time.Second)
	viper.SetDefault("monitor.metrics.latency_timeout", 30*time.Second)
	viper.SetDefault("monitor.metrics.max_latency_samples", 1000)

	viper.SetDefault("monitor.metrics.aggregation.timezone", "Local")
	viper.SetDefault("monitor.metrics.aggregation.intervals", []string{"MINUTE", "HOUR", "DAY"})
	viper.SetDefault("monitor.metrics.aggregation.minute_ttl", time.Hour*2)
	viper.SetDefault("monitor.metrics.aggregation.hour_ttl", time.Hour*48)
	viper.SetDefault("monitor.metrics.aggregation.day_ttl", time.Hour*24*90)
	viper.SetDefault("monitor.metrics.aggregation.interval", time.Minute)

	viper.SetDefault("monitor.alerts.channels", []string{"log"})
	viper.SetDefault("monitor.alerts.throttle_window", time.Minute)
	viper.SetDefault("monitor.alerts.duplicate_window", 30*time.Second)
	viper.SetDefault("monitor.alerts.max_alerts_per_window", 10)
	viper.SetDefault("monitor.alerts.relay_latency_threshold_ms", 500)
	viper.SetDefault("monitor.alerts.max_history", 500)
	viper.SetDefault("monitor.alerts.mqtt.server", "tcp://localhost:1883")
	viper.SetDefault("monitor.alerts.mqtt.topic", "skymesh/monitor/alerts")

	viper.SetDefault("monitoring.prometheus_endpoint", true)
	viper.SetDefault("monitoring.healthcheck_endpoint", true)

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

// Execute executes the root command.
func Execute(v string) {
	version = v

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func initConfig() {
	config.Version = version

	if cfgFile != "" {
		b, err := ioutil.ReadFile(cfgFile)
		if err != nil {
			log.WithError(err).WithField("config", cfgFile).Fatal("error loading config file")
		}
		viper.SetConfigType("toml")
		if err := viper.ReadConfig(bytes.NewBuffer(b)); err != nil {
			log.WithError(err).WithField("config", cfgFile).Fatal("error loading config file")
		}
	} else {
		viper.SetConfigName("skymesh-ground-monitor")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/skymesh-ground-monitor")
		viper.AddConfigPath("/etc/skymesh-ground-monitor")
		if err := viper.ReadInConfig(); err != nil {
			switch err.(type) {
			case viper.ConfigFileNotFoundError:
				log.Warning("No configuration file found, using defaults.")
			default:
				log.WithError(err).Fatal("read configuration file error")
			}
		}
	}

	for _, pair := range os.Environ() {
		d := strings.SplitN(pair, "=", 2)
		if strings.Contains(d[0], ".") {
			log.Warning("Using dots in env variable is illegal and deprecated. Please use double underscore `__` for: ", d[0])
			underscoreName := strings.ReplaceAll(d[0], ".", "__")
			// Set only when the underscore version doesn't already exist.
			if _, exists := os.LookupEnv(underscoreName); !exists {
				os.Setenv(underscoreName, d[1])
			}
		}
	}

	viperBindEnvs(config.C)

	viperHooks := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	if err := viper.Unmarshal(&config.C, viper.DecodeHook(viperHooks)); err != nil {
		log.WithError(err).Fatal("unmarshal config error")
	}

	if config.C.Redis.URL != "" {
		opt, err := redis.ParseURL(config.C.Redis.URL)
		if err != nil {
			log.WithError(err).Fatal("redis url error")
		}

		config.C.Redis.Servers = []string{opt.Addr}
		config.C.Redis.Database = opt.DB
		config.C.Redis.Password = opt.Password
	}
}

func viperBindEnvs(iface interface{}, parts ...string) {
	ifv := reflect.ValueOf(iface)
	ift := reflect.TypeOf(iface)
	for i := 0; i < ift.NumField(); i++ {
		v := ifv.Field(i)
		t := ift.Field(i)
		tv, ok := t.Tag.Lookup("mapstructure")
		if !ok {
			tv = strings.ToLower(t.Name)
		}
		if tv == "-" {
			continue
		}

		switch v.Kind() {
		case reflect.Struct:
			viperBindEnvs(v.Interface(), append(parts, tv)...)
		default:
			// Bash doesn't allow env variable names with a dot so
			// bind the double underscore version.
			keyDot := strings.Join(append(parts, tv), ".")
			keyUnderscore := strings.Join(append(parts, tv), "__")
			viper.BindEnv(keyDot, strings.ToUpper(keyUnderscore))
		}
	}
}
