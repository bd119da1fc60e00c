package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fxnlabs/pixel-bridge/internal/device"
	"github.com/fxnlabs/pixel-bridge/internal/hostimg"
	"github.com/fxnlabs/pixel-bridge/internal/imageio"
	"github.com/fxnlabs/pixel-bridge/internal/layout"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func planesCommand(rt *runtime) *cli.Command {
	var outDir string
	return &cli.Command{
		Name:      "planes",
		Usage:     "Split images into one PNG per device plane",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Value:       ".",
				Usage:       "Directory the plane images are written to",
				Destination: &outDir,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return errors.New("planes needs at least one FILE")
			}
			depth, err := rt.cfg.OutputDepth()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			return rt.withConverter(c.Context, func(conv *layout.Converter, _ *device.Manager) error {
				g, ctx := errgroup.WithContext(c.Context)
				g.SetLimit(rt.cfg.Convert.Workers)
				for _, path := range c.Args().Slice() {
					path := path
					g.Go(func() error {
						if err := ctx.Err(); err != nil {
							return err
						}
						written, err := writePlanes(conv, path, outDir, depth)
						if err != nil {
							return fmt.Errorf("%s: %w", path, err)
						}
						rt.log.Info("wrote planes", zap.String("source", path), zap.Strings("outputs", written))
						return nil
					})
				}
				return g.Wait()
			})
		},
	}
}

// writePlanes writes <name>_p<N>.png into outDir for every device plane of
// the image at path.
func writePlanes(conv *layout.Converter, path, outDir string, depth hostimg.Depth) ([]string, error) {
	img, _, err := imageio.Load(path)
	if err != nil {
		return nil, err
	}
	arr, err := conv.HostToDevice(img)
	if err != nil {
		return nil, err
	}
	defer arr.Release()

	planes, err := conv.ExtractPlanes(arr, depth)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	written := make([]string, 0, len(planes))
	for p, plane := range planes {
		out := filepath.Join(outDir, fmt.Sprintf("%s_p%d.png", base, p))
		if err := imageio.SaveGray(out, plane); err != nil {
			return written, err
		}
		written = append(written, out)
	}
	return written, nil
}
