// Package cli implements the greenscreen command line front end.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:          "greenscreen <foreground.mp4>",
		Short:        "Composite a green-screen clip over a random stock background",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	// Visible flags
	root.Flags().String("clips-dir", getenvDefault("CLIPS_DIR", "."), "Root directory of stock clip categories")
	root.Flags().String("category", "Clips", "Stock clip category to use for the background")
	root.Flags().String("out", "final_output.mp4", "Output video path")
	root.Flags().Int("workers", 4, "Max clips normalized in parallel")

	// Hidden tuning flags (internal)
	root.Flags().Int("width", 1080, "Output frame width")
	root.Flags().Int("height", 1920, "Output frame height")
	root.Flags().Float64("fps", 30, "Output frame rate")
	root.Flags().String("bitrate", "6M", "Video bitrate")
	root.Flags().String("preset", "veryfast", "libx264 preset")
	root.Flags().Int("crf", 23, "libx264 CRF")
	root.Flags().String("key-color", "0x00FF00", "Chroma key color")
	root.Flags().Float64("similarity", 0.3, "Chroma key similarity")
	root.Flags().Float64("min-clip", 2.0, "Minimum stock clip length in seconds")
	for _, name := range []string{"width", "height", "fps", "bitrate", "preset", "crf", "key-color", "similarity", "min-clip"} {
		_ = root.Flags().MarkHidden(name)
	}

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
