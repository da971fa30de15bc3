// Command oxyview opens a window and draws demo objects through the renderer core.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts viewOptions

	root := &cobra.Command{
		Use:   "oxyview",
		Short: "Draw demo objects with the oxy renderer core",
		Long: `oxyview opens a window and draws a colored triangle and a textured quad.

Keys: Tab switches object, arrows orbit the camera, +/- zoom,
L simulates a device loss and recovers, Esc quits.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runViewer(cmd.Context(), opts, cmd.Flags().Changed)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVarP(&opts.textureURL, "texture", "t", "", "texture for the quad (http(s) URL, file:// URL or path)")
	flags.StringVar(&opts.attributes, "quad-attributes", defaultQuadAttributes, "quad vertex attributes as name@offset:format list")
	flags.BoolVar(&opts.software, "software", false, "force the fallback (software) adapter")
	flags.StringVar(&opts.presentMode, "present-mode", "vsync", "present mode: vsync or uncapped")
	flags.BoolVar(&opts.profiling, "profile", false, "log frame statistics every second")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")

	root.AddCommand(newConfigCommand())
	return root
}
