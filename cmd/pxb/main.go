package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxnlabs/pixel-bridge/internal/app"
	"github.com/fxnlabs/pixel-bridge/internal/config"
	"github.com/fxnlabs/pixel-bridge/internal/device"
	"github.com/fxnlabs/pixel-bridge/internal/layout"
	"github.com/fxnlabs/pixel-bridge/internal/logger"
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// runtime holds what the Before hook resolves for every command.
type runtime struct {
	configPath string
	verbosity  string
	cfg        *config.Config
	log        *zap.Logger
}

func main() {
	rt := &runtime{}
	if err := newApp(rt).Run(os.Args); err != nil {
		if rt.log != nil {
			rt.log.Fatal("failed to run app", zap.Error(err))
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(rt *runtime) *cli.App {
	return &cli.App{
		Name:  "pxb",
		Usage: "Move images between host and device pixel layouts",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Value:       filepath.Join(config.GetDefaultConfigHome(), config.DefaultConfigName),
				Usage:       "Path to the config file",
				EnvVars:     []string{"PXB_CONFIG"},
				Destination: &rt.configPath,
			},
			&cli.StringFlag{
				Name:        "verbosity",
				Usage:       "Override logger.verbosity from the config",
				Destination: &rt.verbosity,
			},
		},
		Before: func(c *cli.Context) error {
			// init writes the config file, so it must not require one
			if c.Args().First() == "init" {
				rt.cfg = config.DefaultConfig()
			} else {
				cfg, err := config.LoadConfigOrDefault(rt.configPath)
				if err != nil {
					return err
				}
				rt.cfg = cfg
			}
			if rt.verbosity != "" {
				rt.cfg.Logger.Verbosity = rt.verbosity
			}
			log, err := logger.New(rt.cfg.Logger.Verbosity, true)
			if err != nil {
				return err
			}
			rt.log = log.Named("pxb")
			return nil
		},
		After: func(*cli.Context) error {
			if rt.log != nil {
				_ = rt.log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			initCommand(rt),
			infoCommand(rt),
			inspectCommand(rt),
			planesCommand(rt),
		},
	}
}

// withConverter starts the application graph, hands the converter and
// device manager to fn and stops the graph afterwards.
func (rt *runtime) withConverter(ctx context.Context, fn func(*layout.Converter, *device.Manager) error) (err error) {
	var conv *layout.Converter
	var mgr *device.Manager

	fxApp := app.New(rt.cfg, rt.log, fx.Populate(&conv, &mgr))
	if err := fxApp.Err(); err != nil {
		return err
	}
	if err := fxApp.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if stopErr := fxApp.Stop(context.Background()); err == nil {
			err = stopErr
		}
	}()
	return fn(conv, mgr)
}
