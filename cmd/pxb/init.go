package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxnlabs/pixel-bridge/fixtures"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func initCommand(rt *runtime) *cli.Command {
	var force bool
	return &cli.Command{
		Name:  "init",
		Usage: "Write a default config file to --config",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "force",
				Usage:       "Overwrite an existing config file",
				Destination: &force,
			},
		},
		Action: func(c *cli.Context) error {
			if _, err := os.Stat(rt.configPath); err == nil && !force {
				return fmt.Errorf("config %s already exists, use --force to overwrite", rt.configPath)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(rt.configPath), 0o700); err != nil {
				return err
			}
			if err := os.WriteFile(rt.configPath, fixtures.ConfigTemplate, 0o600); err != nil {
				return err
			}
			rt.log.Info("wrote config", zap.String("path", rt.configPath))
			return nil
		},
	}
}
