package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(fs, v))
	require.NoError(t, fs.Parse(args))
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(t))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 4096, cfg.BufferSize)
	assert.Equal(t, 65536, cfg.MaxMessageSize)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFlags(t *testing.T) {
	cfg, err := Load(newViper(t,
		"--port", "9000", "--workers", "8", "--admission", "3",
		"--buffer-size", "1KiB", "--max-message-size", "32kB", "--metrics-listen", "127.0.0.1:9100"))
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, 3, cfg.Admission)
	assert.Equal(t, 1024, cfg.BufferSize)
	assert.Equal(t, 32000, cfg.MaxMessageSize)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsListen)

	engine := cfg.Engine()
	assert.Equal(t, 8, engine.Workers)
	assert.Equal(t, 1024, engine.BufferSize)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("MOCKKV_WORKERS", "16")
	t.Setenv("MOCKKV_MAX_CONNS", "10")
	t.Setenv("MOCKKV_LOG_LEVEL", "debug")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Workers)
	assert.Equal(t, 10, cfg.MaxConns)
	assert.Equal(t, "debug", cfg.LogLevel)

	// flags win over the environment
	cfg, err = Load(newViper(t, "--workers", "2"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Workers)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mockkv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 6\nmax-message-size: 16KiB\nhost: 127.0.0.1\n"), 0o644))

	cfg, err := Load(newViper(t, "--config", path))
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Workers)
	assert.Equal(t, 16384, cfg.MaxMessageSize)
	assert.Equal(t, "127.0.0.1", cfg.Host)

	_, err = Load(newViper(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
	_, err = Load(newViper(t, "--config", t.TempDir()))
	assert.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"too few workers", []string{"--workers", "1"}},
		{"too many workers", []string{"--workers", "17"}},
		{"admission above workers", []string{"--workers", "2", "--admission", "3"}},
		{"unparsable size", []string{"--buffer-size", "lots"}},
		{"size above protocol limit", []string{"--max-message-size", "1MiB"}},
		{"buffer above max message", []string{"--buffer-size", "8KiB", "--max-message-size", "4KiB"}},
		{"log level", []string{"--log-level", "loud"}},
		{"port", []string{"--port", "65536"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(newViper(t, tt.args...))
			assert.Error(t, err)
		})
	}
}
