package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ryanhamamura/tally/counter"
	"github.com/ryanhamamura/tally/live"
)

const envPrefix = "TALLY"

// Config keys, also the flag names. TALLY_<KEY> with dashes as underscores
// sets each one from the environment.
const (
	cfgKeyAddr        = "addr"
	cfgKeyLogLevel    = "log-level"
	cfgKeyDev         = "dev"
	cfgKeyTitle       = "title"
	cfgKeySessionDB   = "session-db"
	cfgKeyNATSDir     = "nats-dir"
	cfgKeyContextTTL  = "context-ttl"
	cfgKeyActionRate  = "action-rate"
	cfgKeyActionBurst = "action-burst"
)

type config struct {
	Addr        string
	LogLevel    zerolog.Level
	Dev         bool
	Title       string
	SessionDB   string
	NATSDir     string
	ContextTTL  time.Duration
	ActionRate  float64
	ActionBurst int
}

func registerFlags(fs *pflag.FlagSet) {
	fs.String(cfgKeyAddr, ":3000", "http listen address")
	fs.String(cfgKeyLogLevel, "info", "minimum log level (debug, info, warn, error)")
	fs.Bool(cfgKeyDev, false, "human readable console logs")
	fs.String(cfgKeyTitle, "Tally", "document title")
	fs.String(cfgKeySessionDB, "", "sqlite file for sessions (default: in memory)")
	fs.String(cfgKeyNATSDir, "", "data directory of the embedded NATS server publishing render events (default: disabled)")
	fs.Duration(cfgKeyContextTTL, 30*time.Second, "how long a page may wait for its live stream; negative disables reaping")
	fs.Float64(cfgKeyActionRate, counter.DefaultActionRate, "actions per second allowed per page; -1 disables limiting")
	fs.Int(cfgKeyActionBurst, counter.DefaultActionBurst, "action burst allowed per page")
}

// loadConfig resolves every setting with flag > environment > flag default
// precedence.
func loadConfig(fs *pflag.FlagSet) (config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return config{}, fmt.Errorf("bind flags: %w", err)
	}

	level, err := zerolog.ParseLevel(v.GetString(cfgKeyLogLevel))
	if err != nil {
		return config{}, fmt.Errorf("invalid %s: %w", cfgKeyLogLevel, err)
	}

	cfg := config{
		Addr:        v.GetString(cfgKeyAddr),
		LogLevel:    level,
		Dev:         v.GetBool(cfgKeyDev),
		Title:       v.GetString(cfgKeyTitle),
		SessionDB:   v.GetString(cfgKeySessionDB),
		NATSDir:     v.GetString(cfgKeyNATSDir),
		ContextTTL:  v.GetDuration(cfgKeyContextTTL),
		ActionRate:  v.GetFloat64(cfgKeyActionRate),
		ActionBurst: v.GetInt(cfgKeyActionBurst),
	}
	if cfg.Addr == "" {
		return config{}, fmt.Errorf("%s must not be empty", cfgKeyAddr)
	}
	return cfg, nil
}

// options maps the resolved config onto the server options. Sessions and
// pub/sub are wired by the caller since they own resources.
func (cfg config) options() live.Options {
	level := cfg.LogLevel
	return live.Options{
		DevMode:       cfg.Dev,
		ServerAddress: cfg.Addr,
		LogLevel:      &level,
		DocumentTitle: cfg.Title,
		ContextTTL:    cfg.ContextTTL,
		ActionRateLimit: live.RateLimitConfig{
			Rate:  cfg.ActionRate,
			Burst: cfg.ActionBurst,
		},
	}
}
