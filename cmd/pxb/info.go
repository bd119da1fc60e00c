package main

import (
	"fmt"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/fxnlabs/pixel-bridge/internal/device"
	"github.com/fxnlabs/pixel-bridge/internal/layout"
	"github.com/urfave/cli/v2"
)

func infoCommand(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show the selected device backend",
		Action: func(c *cli.Context) error {
			return rt.withConverter(c.Context, func(_ *layout.Converter, mgr *device.Manager) error {
				w := c.App.Writer
				fmt.Fprintln(w, figure.NewFigure("pixel-bridge", "", true).String())

				info := mgr.GetDeviceInfo()
				fmt.Fprintf(w, "Backend:      %s\n", mgr.GetBackendType())
				fmt.Fprintf(w, "Device:       %s\n", info.Name)
				fmt.Fprintf(w, "Accelerated:  %t\n", mgr.IsAccelerated())
				if info.TotalMemory > 0 {
					fmt.Fprintf(w, "Memory:       %d of %d bytes free\n", info.AvailableMemory, info.TotalMemory)
				} else {
					fmt.Fprintln(w, "Memory:       unlimited")
				}
				fmt.Fprintf(w, "Compute:      %s\n", info.ComputeCapability)
				fmt.Fprintf(w, "Driver:       %s\n", info.DriverVersion)
				fmt.Fprintf(w, "Registered:   %s\n", strings.Join(append([]string{device.CPUName}, device.RegisteredBackends()...), ", "))
				return nil
			})
		},
	}
}
