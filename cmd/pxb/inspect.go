package main

import (
	"errors"
	"fmt"

	"github.com/fxnlabs/pixel-bridge/internal/device"
	"github.com/fxnlabs/pixel-bridge/internal/hostimg"
	"github.com/fxnlabs/pixel-bridge/internal/imageio"
	"github.com/fxnlabs/pixel-bridge/internal/layout"
	"github.com/urfave/cli/v2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// PlaneStats summarises one device plane.
type PlaneStats struct {
	Plane       int
	HostChannel int
	Min, Max    float64
	Mean        float64
	StdDev      float64
}

func inspectCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Upload an image and print per-plane statistics",
		ArgsUsage: "FILE",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("inspect takes exactly one FILE")
			}
			path := c.Args().First()
			img, format, err := imageio.Load(path)
			if err != nil {
				return err
			}
			return rt.withConverter(c.Context, func(conv *layout.Converter, _ *device.Manager) error {
				stats, dims, err := inspectImage(conv, img)
				if err != nil {
					return fmt.Errorf("inspecting %s: %w", path, err)
				}
				w := c.App.Writer
				fmt.Fprintf(w, "%s: %s %s, host %dx%d %s, device %s\n",
					path, format, layout.ChannelLayout(img.Channels()), img.Rows(), img.Cols(), img.Depth(), dims)
				for _, s := range stats {
					fmt.Fprintf(w, "  plane %d (host channel %d): min=%g max=%g mean=%.4f stddev=%.4f\n",
						s.Plane, s.HostChannel, s.Min, s.Max, s.Mean, s.StdDev)
				}
				return nil
			})
		},
	}
}

// inspectImage uploads img and computes statistics of every device plane.
func inspectImage(conv *layout.Converter, img *hostimg.Mat) ([]PlaneStats, device.Dims, error) {
	arr, err := conv.HostToDevice(img)
	if err != nil {
		return nil, device.Dims{}, err
	}
	defer arr.Release()

	planes, err := conv.ExtractPlanes(arr, hostimg.Depth64F)
	if err != nil {
		return nil, device.Dims{}, err
	}
	cl := layout.ChannelLayout(len(planes))
	stats := make([]PlaneStats, len(planes))
	for p, plane := range planes {
		data := plane.Float64s()
		stats[p] = PlaneStats{
			Plane:       p,
			HostChannel: cl.DevicePlane(p),
			Min:         floats.Min(data),
			Max:         floats.Max(data),
			Mean:        stat.Mean(data, nil),
		}
		if len(data) > 1 {
			stats[p].StdDev = stat.StdDev(data, nil)
		}
	}
	return stats, arr.Dims(), nil
}
