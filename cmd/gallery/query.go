package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tracgallery/gallery/internal/control"
	"github.com/tracgallery/gallery/internal/events"
	"github.com/tracgallery/gallery/internal/repl"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection and discovery loop status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendAndRender(cmd, events.Request{Command: events.CommandStatus})
	},
}

var galleryCmd = &cobra.Command{
	Use:   "gallery",
	Short: "Browse the curated collection",
	Long: `Browse the curated collection with optional filters.

Examples:
  gallery gallery --sort score --limit 10
  gallery gallery --chain ordinals --min-score 70 --style pixel_art`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := events.Request{Command: events.CommandGallery, Args: map[string]any{}}
		for flag, key := range map[string]string{"chain": "chain", "style": "style", "sort": "sort"} {
			if v, _ := cmd.Flags().GetString(flag); v != "" {
				req.Args[key] = v
			}
		}
		if cmd.Flags().Changed("min-score") {
			v, _ := cmd.Flags().GetInt("min-score")
			req.Args["min_score"] = v
		}
		if v, _ := cmd.Flags().GetInt("limit"); v > 0 {
			req.Args["limit"] = v
		}
		return sendAndRender(cmd, req)
	},
}

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "Show the highest-scored items",
	RunE: func(cmd *cobra.Command, args []string) error {
		req := events.Request{Command: events.CommandTrending}
		if v, _ := cmd.Flags().GetInt("limit"); v > 0 {
			req.Args = map[string]any{"limit": v}
		}
		return sendAndRender(cmd, req)
	},
}

var rateCmd = &cobra.Command{
	Use:   "rate --id <inscription-id>",
	Short: "Analyze a single inscription",
	Long: `Fetch one inscription by id, rate it with the vision model and add it to
the collection. Items that already carry a score are returned as stored.
Rate and curate share a per-user cooldown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		if id == "" && len(args) == 1 {
			id = args[0]
		}
		return sendAndRender(cmd, events.Request{Command: events.CommandRate, Args: map[string]any{"id": id}})
	},
}

var curateCmd = &cobra.Command{
	Use:   "curate --theme <theme>",
	Short: "Curate recent inscriptions now",
	Long: `Run an on-demand curation pass over the most recent inscriptions and
broadcast the result tagged with the given theme. Rate and curate share a
per-user cooldown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		theme, _ := cmd.Flags().GetString("theme")
		return sendAndRender(cmd, events.Request{Command: events.CommandCurate, Args: map[string]any{"theme": theme}})
	},
}

func init() {
	galleryCmd.Flags().String("chain", "", "Only items from this chain (ordinals, pipe)")
	galleryCmd.Flags().Int("min-score", 0, "Only items scored at least this high")
	galleryCmd.Flags().String("style", "", "Only items of this style (pixel_art, generative, ...)")
	galleryCmd.Flags().String("sort", "", "Sort order: newest, oldest or score")
	galleryCmd.Flags().Int("limit", 0, "Maximum items to return (default 50)")
	trendingCmd.Flags().Int("limit", 0, "Maximum items to return (default 10)")
	rateCmd.Flags().String("id", "", "Inscription id")
	curateCmd.Flags().String("theme", "", "Theme label for the curation run")

	for _, c := range []*cobra.Command{statusCmd, galleryCmd, trendingCmd, rateCmd, curateCmd} {
		c.Flags().Bool("json", false, "Print the raw response envelope")
		rootCmd.AddCommand(c)
	}
}

func sendAndRender(cmd *cobra.Command, req events.Request) error {
	resp, err := control.NewClient(cfg.Control.Socket).Send(req)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
	} else if err := repl.RenderResponse(cmd.OutOrStdout(), resp); err != nil {
		return err
	}

	if resp.IsError() {
		os.Exit(1)
	}
	return nil
}
