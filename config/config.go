// Package config layers command line flags, MOCKKV_* environment variables and an optional config file
// into the server configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fzft/go-mock-kv/node"
	"github.com/fzft/go-mock-kv/proto"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

const EnvPrefix = "MOCKKV"

const (
	keyConfig         = "config"
	keyHost           = "host"
	keyPort           = "port"
	keyWorkers        = "workers"
	keyAdmission      = "admission"
	keyMaxConns       = "max-conns"
	keyBufferSize     = "buffer-size"
	keyMaxMessageSize = "max-message-size"
	keyLogLevel       = "log-level"
	keyLogDevelopment = "log-development"
	keyMetricsListen  = "metrics-listen"
)

type Config struct {
	Host      string
	Port      int
	Workers   int
	Admission int
	MaxConns  int

	BufferSize     int
	MaxMessageSize int

	LogLevel       string
	LogDevelopment bool

	// MetricsListen is the address of the /metrics endpoint. Empty disables it.
	MetricsListen string
}

func Default() Config {
	engine := node.DefaultConfig()
	return Config{
		Host:           engine.Host,
		Port:           engine.Port,
		Workers:        engine.Workers,
		Admission:      engine.Admission,
		MaxConns:       engine.MaxConns,
		BufferSize:     engine.BufferSize,
		MaxMessageSize: engine.MaxMessageSize,
		LogLevel:       "info",
	}
}

// BindFlags registers the server flags on fs and binds each of them, plus the environment, into v.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	def := Default()
	fs.String(keyConfig, "", "config file (any format viper reads: yaml, toml, json, ...)")
	fs.String(keyHost, def.Host, "listen host")
	fs.Int(keyPort, def.Port, "listen port (0 picks a free port)")
	fs.Int(keyWorkers, def.Workers, fmt.Sprintf("worker goroutines [%d, %d]", node.MinWorkers, node.MaxWorkers))
	fs.Int(keyAdmission, def.Admission, "workers allowed inside connections at once (0 means workers-1)")
	fs.Int(keyMaxConns, def.MaxConns, "maximum open client connections (0 means unlimited)")
	fs.String(keyBufferSize, humanize.IBytes(uint64(def.BufferSize)), "initial per-connection buffer size")
	fs.String(keyMaxMessageSize, humanize.IBytes(uint64(def.MaxMessageSize)), "maximum frame size including the length prefix")
	fs.String(keyLogLevel, def.LogLevel, "log level (debug, info, warn, error)")
	fs.Bool(keyLogDevelopment, def.LogDevelopment, "human friendly development logging")
	fs.String(keyMetricsListen, def.MetricsListen, "address for the prometheus /metrics endpoint (empty disables)")

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		err = multierr.Append(err, v.BindPFlag(f.Name, f))
	})
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return err
}

// Load reads the optional config file named by the config key and resolves every setting from v.
func Load(v *viper.Viper) (Config, error) {
	if path := strings.TrimSpace(v.GetString(keyConfig)); path != "" {
		if err := readConfigFile(v, path); err != nil {
			return Config{}, err
		}
	}

	cfg := Config{
		Host:           v.GetString(keyHost),
		Port:           v.GetInt(keyPort),
		Workers:        v.GetInt(keyWorkers),
		Admission:      v.GetInt(keyAdmission),
		MaxConns:       v.GetInt(keyMaxConns),
		LogLevel:       v.GetString(keyLogLevel),
		LogDevelopment: v.GetBool(keyLogDevelopment),
		MetricsListen:  v.GetString(keyMetricsListen),
	}

	var err error
	cfg.BufferSize, err = parseSize(v, keyBufferSize)
	if err != nil {
		return Config{}, err
	}
	cfg.MaxMessageSize, err = parseSize(v, keyMaxMessageSize)
	if err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func readConfigFile(v *viper.Viper, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("config file %q: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("config file %q is a directory", path)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	return nil
}

// parseSize accepts plain byte counts as well as human sizes like 4KiB or 64kB.
func parseSize(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, fmt.Errorf("%s: empty size", key)
	}
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n > proto.MaxMessageSize {
		return 0, fmt.Errorf("%s: %s exceeds %s", key, humanize.IBytes(n), humanize.IBytes(proto.MaxMessageSize))
	}
	return int(n), nil
}

func (c Config) Validate() error {
	err := c.Engine().Validate()
	if _, lerr := zapcore.ParseLevel(c.LogLevel); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("log level %q: %w", c.LogLevel, lerr))
	}
	return err
}

// Engine returns the part of the configuration the node package consumes.
func (c Config) Engine() node.Config {
	return node.Config{
		Host:           c.Host,
		Port:           c.Port,
		Workers:        c.Workers,
		Admission:      c.Admission,
		MaxConns:       c.MaxConns,
		BufferSize:     c.BufferSize,
		MaxMessageSize: c.MaxMessageSize,
	}
}
