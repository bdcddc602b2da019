package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tracgallery/gallery/internal/control"
	"github.com/tracgallery/gallery/internal/repl"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive console connected to the running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := repl.New(&repl.Config{
			Client:      control.NewClient(cfg.Control.Socket),
			Out:         cmd.OutOrStdout(),
			HistoryFile: filepath.Join(cfg.DataDir, ".console_history"),
		})
		if err != nil {
			return err
		}
		return r.Run(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
}
