// Package app wires the converter and its collaborators with fx.
package app

import (
	"context"

	"github.com/fxnlabs/pixel-bridge/internal/config"
	"github.com/fxnlabs/pixel-bridge/internal/device"
	"github.com/fxnlabs/pixel-bridge/internal/layout"
	"github.com/fxnlabs/pixel-bridge/internal/metrics"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Module provides a *device.Manager, its device.Backend and a
// *layout.Converter. It expects a *config.Config and a *zap.Logger to be
// supplied by the caller.
var Module = fx.Module("pixel-bridge",
	fx.Provide(
		NewDeviceManager,
		func(m *device.Manager) device.Backend { return m.GetBackend() },
		layout.NewConverter,
	),
	fx.Invoke(RegisterMetricsServer),
)

// New builds an fx application around Module with fx's own events routed
// through log.
func New(cfg *config.Config, log *zap.Logger, opts ...fx.Option) *fx.App {
	return fx.New(append([]fx.Option{
		fx.Supply(cfg, log),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx").WithOptions(zap.IncreaseLevel(zap.WarnLevel))}
		}),
		Module,
	}, opts...)...)
}

// NewDeviceManager selects the configured backend and cleans it up when the
// application stops.
func NewDeviceManager(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*device.Manager, error) {
	m, err := device.NewManager(log, device.Options{
		Backend:     cfg.Device.Backend,
		MemoryLimit: cfg.Device.MemoryLimitBytes,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return m.Cleanup()
		},
	})
	return m, nil
}

// RegisterMetricsServer serves /metrics for the lifetime of the application
// when metrics.listenAddress is set.
func RegisterMetricsServer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) {
	if cfg.Metrics.ListenAddress == "" {
		return
	}
	srv := metrics.NewServer(cfg.Metrics.ListenAddress, log.Named("metrics"))
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return srv.Start()
		},
		OnStop: srv.Stop,
	})
}
