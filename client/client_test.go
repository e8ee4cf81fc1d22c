//go:build linux

package client_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fzft/go-mock-kv/client"
	"github.com/fzft/go-mock-kv/commands"
	"github.com/fzft/go-mock-kv/db"
	"github.com/fzft/go-mock-kv/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T) string {
	t.Helper()
	store := db.New()
	cfg := node.DefaultConfig()
	cfg.Host, cfg.Port = "127.0.0.1", 0

	srv := node.NewServer(cfg, commands.NewDispatcher(store), store)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return srv.Addr().String()
}

func dial(t *testing.T, addr string) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := client.Dial(ctx, addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestPutGet(t *testing.T) {
	c := dial(t, startServer(t))
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, int64(1), "hello"))
	v, err := c.Get(ctx, int64(1))
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	require.NoError(t, c.Put(ctx, "list", []any{int64(1), 2.5, "three", []byte("4"), true}))
	v, err = c.Get(ctx, "list")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), 2.5, "three", []byte("4"), true}, v)
}

func TestMissingKey(t *testing.T) {
	c := dial(t, startServer(t))
	ctx := context.Background()

	err := c.Del(ctx, int64(2))
	assert.True(t, errors.Is(err, client.ErrNotFound), "got %v", err)

	_, err = c.Get(ctx, int64(2))
	assert.True(t, errors.Is(err, client.ErrNotFound), "got %v", err)

	var se *client.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "get", se.Cmd)
}

func TestUnknownCommand(t *testing.T) {
	c := dial(t, startServer(t))
	_, err := c.Do(context.Background(), []byte("flush"))
	var se *client.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "BAD_CMD", se.Status.String())

	// the connection is still usable afterwards
	require.NoError(t, c.Put(context.Background(), "k", "v"))
}

func TestExpiry(t *testing.T) {
	c := dial(t, startServer(t))
	ctx := context.Background()

	require.NoError(t, c.PutTTL(ctx, "x", "short lived", time.Second))
	v, err := c.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "short lived", v)

	assert.Eventually(t, func() bool {
		info, err := c.Info(ctx)
		return err == nil && info.Expired == 1 && info.Keys == 0
	}, 3*time.Second, 50*time.Millisecond)

	_, err = c.Get(ctx, "x")
	assert.True(t, errors.Is(err, client.ErrNotFound))

	info, err := c.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Expired)
}

func TestQueue(t *testing.T) {
	c := dial(t, startServer(t))
	ctx := context.Background()

	require.NoError(t, c.Queue(ctx, "jobs", 4))
	for i := int64(0); i < 3; i++ {
		require.NoError(t, c.Push(ctx, "jobs", i))
	}
	for i := int64(0); i < 3; i++ {
		v, err := c.Pop(ctx, "jobs")
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
	_, err := c.Pop(ctx, "jobs")
	assert.True(t, errors.Is(err, client.ErrEmpty))

	_, err = c.Get(ctx, "jobs")
	assert.True(t, errors.Is(err, client.ErrWrongType))
}

func TestPipelineOrder(t *testing.T) {
	c := dial(t, startServer(t))
	ctx := context.Background()

	p := c.Pipeline()
	for i := int64(0); i < 100; i++ {
		p.Put(i, i*10)
	}
	for i := int64(0); i < 100; i++ {
		p.Get(i)
	}
	p.Del(int64(1000))
	require.Equal(t, 201, p.Len())

	results, err := p.Exec(ctx)
	require.NoError(t, err)
	require.Len(t, results, 201)
	for i := 0; i < 100; i++ {
		assert.NoError(t, results[i].Err)
		assert.Nil(t, results[i].Value)
	}
	for i := 0; i < 100; i++ {
		require.NoError(t, results[100+i].Err)
		assert.Equal(t, int64(i*10), results[100+i].Value)
	}
	assert.True(t, errors.Is(results[200].Err, client.ErrNotFound))
	assert.Zero(t, p.Len())
}

func TestPipelineLargeBatch(t *testing.T) {
	c := dial(t, startServer(t))
	ctx := context.Background()

	// several times the default buffer size, so the server reads it in many passes
	value := make([]byte, 1000)
	p := c.Pipeline()
	for i := int64(0); i < 200; i++ {
		p.Put(i, value)
	}
	results, err := p.Exec(ctx)
	require.NoError(t, err)
	require.Len(t, results, 200)
	for _, r := range results {
		assert.NoError(t, r.Err)
	}

	info, err := c.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(200), info.Keys)
}

func TestConcurrentClients(t *testing.T) {
	addr := startServer(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		c := dial(t, addr)
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := int64(w*1000 + i)
				if !assert.NoError(t, c.Put(ctx, key, key)) {
					return
				}
				v, err := c.Get(ctx, key)
				if !assert.NoError(t, err) {
					return
				}
				assert.Equal(t, key, v)
			}
		}(w)
	}
	wg.Wait()
}

func TestContextCancel(t *testing.T) {
	c := dial(t, startServer(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := c.Put(ctx, "k", "v")
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)

	// nothing was sent, so the connection is still usable
	require.NoError(t, c.Put(context.Background(), "k", "v"))

	require.NoError(t, c.Close())
	err = c.Put(context.Background(), "k", "v")
	assert.True(t, errors.Is(err, client.ErrClosed))
}
