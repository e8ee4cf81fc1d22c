//go:build linux

package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/fzft/go-mock-kv/log"
	"github.com/fzft/go-mock-kv/proto"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	MinWorkers = 2
	MaxWorkers = 16

	DefaultPort     = 8513
	DefaultWorkers  = 4
	DefaultMaxConns = 4096
)

// Config is the engine configuration.
type Config struct {
	Host string
	Port int

	// Workers is the number of worker goroutines. Admission bounds how many of them may be inside a
	// connection's state machine at once; zero means Workers-1.
	Workers   int
	Admission int

	MaxConns       int
	BufferSize     int
	MaxMessageSize int
}

func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           DefaultPort,
		Workers:        DefaultWorkers,
		MaxConns:       DefaultMaxConns,
		BufferSize:     proto.DefaultBufferSize,
		MaxMessageSize: proto.MaxMessageSize,
	}
}

func (c Config) admission() int {
	if c.Admission > 0 {
		return c.Admission
	}
	return max(c.Workers-1, 1)
}

func (c Config) Validate() error {
	var err error
	if c.Port < 0 || c.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Workers < MinWorkers || c.Workers > MaxWorkers {
		err = multierr.Append(err, fmt.Errorf("workers must be in [%d, %d], got %d", MinWorkers, MaxWorkers, c.Workers))
	}
	if c.Admission < 0 || c.Admission > c.Workers {
		err = multierr.Append(err, fmt.Errorf("admission must be in [0, workers], got %d", c.Admission))
	}
	if c.MaxMessageSize < proto.ResponseHeaderSize+proto.LenSize || c.MaxMessageSize > proto.MaxMessageSize {
		err = multierr.Append(err, fmt.Errorf("max message size must be in [%d, %d], got %d",
			proto.ResponseHeaderSize+proto.LenSize, proto.MaxMessageSize, c.MaxMessageSize))
	}
	if c.BufferSize < proto.ResponseHeaderSize || c.BufferSize > c.MaxMessageSize {
		err = multierr.Append(err, fmt.Errorf("buffer size must be in [%d, max message size], got %d",
			proto.ResponseHeaderSize, c.BufferSize))
	}
	if c.MaxConns < 0 {
		err = multierr.Append(err, fmt.Errorf("max conns must not be negative, got %d", c.MaxConns))
	}
	return err
}

// Expirer removes keys whose deadline has passed. ExpireNext blocks until the next deadline.
type Expirer interface {
	ExpireNext(ctx context.Context) (key proto.Key, removed bool, err error)
}

type Option func(*Server)

func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server binds the poller, the worker pool and the TTL consumer together. A host either calls Run, or
// calls RunPoller once, RunWorker once per worker goroutine and RunTTLConsumer once.
type Server struct {
	cfg        Config
	dispatcher Dispatcher
	expirer    Expirer
	metrics    *Metrics

	registry *Registry
	ready    *ReadyQueue
	admit    *semaphore.Weighted

	mu     sync.Mutex
	poller *Poller
	addr   *net.TCPAddr
	closed bool
}

func NewServer(cfg Config, d Dispatcher, e Expirer, opts ...Option) *Server {
	s := &Server{
		cfg:        cfg,
		dispatcher: d,
		expirer:    e,
		registry:   NewRegistry(1024),
		ready:      NewReadyQueue(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configure sets the port and worker count. It must be called before the server starts listening.
func (s *Server) Configure(port, workers int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.poller != nil {
		return ErrServerStarted
	}
	cfg := s.cfg
	cfg.Port, cfg.Workers = port, workers
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

func (s *Server) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Listen opens the listening socket and the poller. It is idempotent and is called by the Run methods.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}
	if s.poller != nil {
		return nil
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	lnFd, addr, err := listen(s.cfg.Host, s.cfg.Port)
	if err != nil {
		log.Logger.Error("listen error", zap.Error(err))
		return err
	}
	limits := connLimits{bufferSize: s.cfg.BufferSize, maxMessageSize: s.cfg.MaxMessageSize}
	poller, err := NewPoller(lnFd, s.registry, s.ready, limits, s.cfg.MaxConns, s.metrics)
	if err != nil {
		CloseFd(lnFd)
		return err
	}
	s.poller, s.addr = poller, addr
	s.admit = semaphore.NewWeighted(int64(s.cfg.admission()))
	log.Logger.Info("listening", zap.Stringer("addr", addr),
		zap.Int("workers", s.cfg.Workers), zap.Int("admission", s.cfg.admission()))
	return nil
}

// Addr is the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr == nil {
		return nil
	}
	return s.addr
}

// RunPoller runs the poller until ctx is done, then closes the ready queue so workers drain and exit.
func (s *Server) RunPoller(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	defer s.ready.Close()
	return s.poller.Run(ctx)
}

// RunTTLConsumer removes expired keys until ctx is done.
func (s *Server) RunTTLConsumer(ctx context.Context) error {
	if s.expirer == nil {
		return nil
	}
	for {
		key, removed, err := s.expirer.ExpireNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Logger.Error("ttl consumer failed", zap.Error(err))
			return err
		}
		if removed {
			log.Logger.Debug("key expired", zap.Stringer("key", key))
		}
	}
}

// Run serves until ctx is done or one of the loops fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	workers := s.Config().Workers

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.RunPoller(gctx) })
	for i := 0; i < workers; i++ {
		g.Go(func() error { return s.RunWorker(gctx) })
	}
	g.Go(func() error { return s.RunTTLConsumer(gctx) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	log.Logger.Info("shutting down server")
	return multierr.Append(err, s.Close())
}

// Close releases the listener, the remaining connections and the poller.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.ready.Close()
	if s.poller == nil {
		return nil
	}
	return s.poller.CloseGracefully()
}
