package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fxnlabs/gpubridge/internal/config"
	"github.com/fxnlabs/gpubridge/internal/gpu"
	"github.com/fxnlabs/gpubridge/internal/metrics"
)

// channelModule provides the channel and the manager built on it, and
// serves metrics when metrics.listenAddress is set.
func channelModule(cfg *config.Config, log *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, log),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.Named("fx")}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.Provide(newChannel, newManager),
		fx.Invoke(serveMetrics),
	)
}

func newChannel(cfg *config.Config, log *zap.Logger) (gpu.Channel, error) {
	opts, err := cfg.ChannelOptions()
	if err != nil {
		return nil, err
	}
	return gpu.NewChannel(opts, log.Named("channel"))
}

func newManager(lc fx.Lifecycle, ch gpu.Channel, log *zap.Logger) *gpu.Manager {
	m := gpu.NewManager(ch, log)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return m.Cleanup()
		},
	})
	return m
}

func serveMetrics(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) {
	addr := cfg.Metrics.ListenAddress
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			log.Info("serving metrics", zap.String("address", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// onStart runs body once the channel is up. Failures roll the app back,
// which cleans up the manager.
func onStart(body func(ctx context.Context, m *gpu.Manager) error) fx.Option {
	return fx.Invoke(func(lc fx.Lifecycle, m *gpu.Manager) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return body(ctx, m)
			},
		})
	})
}

// runApp starts the app, optionally blocks until a shutdown signal, and
// stops it.
func runApp(ctx context.Context, wait bool, opts ...fx.Option) error {
	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	if wait {
		<-app.Done()
	}
	return app.Stop(context.Background())
}
