package cmd

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/fzft/go-mock-kv/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServe runs serve on loopback until the test ends and returns the engine and metrics addresses.
func startServe(t *testing.T) (engine, metrics *net.TCPAddr) {
	t.Helper()
	cfg := config.Default()
	cfg.Host, cfg.Port = "127.0.0.1", 0
	cfg.MetricsListen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	addrs := make(chan [2]net.Addr, 1)
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, cfg, func(e, m net.Addr) { addrs <- [2]net.Addr{e, m} })
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("serve did not stop")
		}
	})

	select {
	case a := <-addrs:
		return a[0].(*net.TCPAddr), a[1].(*net.TCPAddr)
	case err := <-done:
		t.Fatalf("serve failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not start")
	}
	return nil, nil
}

// runCli executes the cli command once against addr and returns what it printed.
func runCli(t *testing.T, addr *net.TCPAddr, args ...string) string {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(append([]string{"cli", "--host", addr.IP.String(), "-p", strconv.Itoa(addr.Port), "--no-raw"}, args...))
	require.NoError(t, root.ExecuteContext(context.Background()))
	return out.String()
}

func TestCliSingleCommand(t *testing.T) {
	addr, _ := startServe(t)

	assert.Equal(t, "OK\n", runCli(t, addr, "put", "k", `[1, 'two', -3]`))
	assert.Equal(t, "1) (integer) 1\n2) \"two\"\n3) (integer) -3\n", runCli(t, addr, "get", "k"))
	assert.Equal(t, "OK\n", runCli(t, addr, "PUT", "n", "2.5"))
	assert.Equal(t, "(float) 2.5\n", runCli(t, addr, "GET", "n"))
	assert.Equal(t, "(error) BAD_KEY\n", runCli(t, addr, "get", "missing"))
	assert.Equal(t, "(error) BAD_CMD\n", runCli(t, addr, "flush"))

	info := runCli(t, addr, "info")
	assert.Contains(t, info, "keys:2\n")
	assert.Contains(t, info, "expired_keys:0\n")
}

func TestCliConnectError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	root := newRootCommand()
	root.SetOut(io.Discard)
	root.SetArgs([]string{"cli", "--host", "127.0.0.1", "-p", strconv.Itoa(addr.Port), "get", "k"})
	assert.Error(t, root.ExecuteContext(context.Background()))
}

func TestServeMetricsEndpoint(t *testing.T) {
	addr, metrics := startServe(t)
	runCli(t, addr, "put", "k", "v")

	resp, err := http.Get("http://" + metrics.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	for _, name := range []string{
		"mockkv_connections_accepted_total",
		"mockkv_frames_total",
		"mockkv_store_keys 1",
		"go_goroutines",
	} {
		assert.Contains(t, string(body), name)
	}
}

func TestServeRejectsBadMetricsAddress(t *testing.T) {
	cfg := config.Default()
	cfg.Host, cfg.Port = "127.0.0.1", 0
	cfg.MetricsListen = "not an address"
	assert.Error(t, serve(context.Background(), cfg, nil))
}

func TestVersionCommand(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, "go-mock-kv "+Version+"\n", out.String())

	assert.Equal(t, Version, versionString("unknown", "0"))
	assert.Equal(t, Version, versionString("0000000", "1"))
	assert.Equal(t, Version+" (git:1f2e3d)", versionString("1f2e3d", "0"))
	assert.Equal(t, Version+" (git:1f2e3d-dirty)", versionString("1f2e3d", "1"))
}
