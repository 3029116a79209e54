package main

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Zereker/bcp"
)

// config is the host configuration, read from flags, BCP_* environment
// variables and an optional YAML file, in that order of precedence.
type config struct {
	Port              int           `mapstructure:"port"`
	MetricsAddr       string        `mapstructure:"metrics_addr"`
	LogLevel          string        `mapstructure:"log_level"`
	LogMessages       bool          `mapstructure:"log_messages"`
	FrameBudget       time.Duration `mapstructure:"frame_budget"`
	TickInterval      time.Duration `mapstructure:"tick_interval"`
	ControllerName    string        `mapstructure:"controller_name"`
	ControllerVersion string        `mapstructure:"controller_version"`
	Switches          []string      `mapstructure:"switches"`
	Triggers          []string      `mapstructure:"triggers"`
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"port":               "port",
	"metrics-addr":       "metrics_addr",
	"log-level":          "log_level",
	"log-messages":       "log_messages",
	"frame-budget":       "frame_budget",
	"tick-interval":      "tick_interval",
	"controller-name":    "controller_name",
	"controller-version": "controller_version",
	"switch":             "switches",
	"trigger":            "triggers",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("port", bcp.DefaultPort)
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_messages", false)
	v.SetDefault("frame_budget", time.Millisecond)
	v.SetDefault("tick_interval", time.Second/60)
	v.SetDefault("controller_name", bcp.DefaultControllerName)
	v.SetDefault("controller_version", bcp.DefaultControllerVersion)
	v.SetDefault("switches", []string{})
	v.SetDefault("triggers", []string{})

	v.SetEnvPrefix("BCP")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for flag, key := range flagKeys {
		f := flags.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return errors.Wrapf(err, "failed to bind flag %s", flag)
		}
	}
	return nil
}

func loadConfig(v *viper.Viper, path string) (config, error) {
	var cfg config

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return cfg, errors.Wrap(err, "failed to read config")
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "failed to unmarshal config")
	}
	if cfg.Port < 0 || cfg.Port > 65535 {
		return cfg, errors.Errorf("invalid port %d", cfg.Port)
	}
	return cfg, nil
}
