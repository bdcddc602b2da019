// Command gallery runs and talks to the inscription gallery curator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tracgallery/gallery/internal/config"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "0.1.0-dev"

var (
	configPath string
	envFile    string
	socketPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gallery",
	Short: "AI-curated gallery of visual inscriptions",
	Long: `gallery discovers new visual inscriptions, rates them with a vision model,
and serves the curated collection to websocket clients and the local CLI.

Start the daemon with 'gallery serve', then query it with 'gallery status',
'gallery gallery', 'gallery trending', 'gallery rate' and 'gallery curate',
or open an interactive session with 'gallery console'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}
		loaded, err := config.Load(configPath, envFile)
		if err != nil {
			return err
		}
		if socketPath != "" {
			loaded.Control.Socket = socketPath
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./gallery.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before GALLERY_* variables")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Control socket path (overrides control.socket)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
