package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/fzft/go-mock-kv/commands"
	"github.com/fzft/go-mock-kv/config"
	"github.com/fzft/go-mock-kv/db"
	"github.com/fzft/go-mock-kv/log"
	"github.com/fzft/go-mock-kv/node"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const metricsShutdownTimeout = 5 * time.Second

func newServeCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the key-value server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if err := log.InitLogger(cfg.LogLevel, cfg.LogDevelopment); err != nil {
				return err
			}
			defer log.Logger.Sync()
			return serve(cmd.Context(), cfg, nil)
		},
	}
	if err := config.BindFlags(cmd.Flags(), v); err != nil {
		panic(err)
	}
	return cmd
}

// serve runs the engine until ctx is done. When non-nil, ready is called with the engine and metrics
// addresses once both listen; metrics is nil when the endpoint is disabled.
func serve(ctx context.Context, cfg config.Config, ready func(engine, metrics net.Addr)) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := node.NewMetrics(reg)
	if err != nil {
		return err
	}
	store := db.New()
	if err := store.RegisterMetrics(reg); err != nil {
		return err
	}

	var ln net.Listener
	if cfg.MetricsListen != "" {
		if ln, err = net.Listen("tcp", cfg.MetricsListen); err != nil {
			return err
		}
	}

	srv := node.NewServer(cfg.Engine(), commands.NewDispatcher(store), store, node.WithMetrics(metrics))
	if err := srv.Listen(); err != nil {
		if ln != nil {
			err = multierr.Append(err, ln.Close())
		}
		return err
	}
	if ready != nil {
		var metricsAddr net.Addr
		if ln != nil {
			metricsAddr = ln.Addr()
		}
		ready(srv.Addr(), metricsAddr)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx)
	})
	if ln != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		hs := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		log.Logger.Info("metrics listening", zap.Stringer("addr", ln.Addr()))

		g.Go(func() error {
			if err := hs.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			return hs.Shutdown(sctx)
		})
	}
	return g.Wait()
}
