package repl

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tracgallery/gallery/internal/control"
	"github.com/tracgallery/gallery/internal/events"
	"github.com/tracgallery/gallery/internal/types"
)

var titleCaser = cases.Title(language.English)

// Label turns a wire token such as "pixel_art" into "Pixel Art"
func Label(token string) string {
	return titleCaser.String(strings.ReplaceAll(token, "_", " "))
}

// RenderResponse prints an envelope for humans
func RenderResponse(w io.Writer, resp *control.Response) error {
	if resp == nil {
		return fmt.Errorf("empty response")
	}
	if resp.IsError() {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintf(w, "%s %s\n", red("✗"), resp.Error)
		return nil
	}

	if resp.Command == events.CommandStatus {
		status, err := resp.Status()
		if err != nil {
			return err
		}
		RenderStatus(w, status)
		return nil
	}

	items, err := resp.Items()
	if err != nil {
		return err
	}
	header := Label(resp.Command)
	if resp.Theme != "" {
		header = fmt.Sprintf("%s: %q", header, resp.Theme)
	}
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(w, "\n%s (%d)\n\n", cyan(header), len(items))
	RenderItems(w, items)
	return nil
}

// RenderItems prints one block per item
func RenderItems(w io.Writer, items []*types.CuratedItem) {
	if len(items) == 0 {
		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Fprintf(w, "  %s\n\n", yellow("nothing here yet"))
		return
	}
	bold := color.New(color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	for i, item := range items {
		fmt.Fprintf(w, "%3d. %s  %s  %s\n", i+1, bold(item.Title), scoreBadge(item.Score), faint("["+Label(string(item.Chain))+"]"))
		fmt.Fprintf(w, "     id: %s\n", item.ID)
		if item.Collection != nil {
			fmt.Fprintf(w, "     collection: %s\n", *item.Collection)
		}
		if a := item.Analysis; a != nil {
			fmt.Fprintf(w, "     style: %s  q%d o%d t%d a%d\n", Label(string(a.Style)),
				a.Dimensions.Quality, a.Dimensions.Originality, a.Dimensions.Technique, a.Dimensions.Appeal)
			if len(a.Tags) > 0 {
				fmt.Fprintf(w, "     tags: %s\n", strings.Join(a.Tags, ", "))
			}
			if a.CuratorNote != "" {
				fmt.Fprintf(w, "     %s\n", faint(a.CuratorNote))
			}
		}
		if item.MarketURL != nil {
			fmt.Fprintf(w, "     %s\n", *item.MarketURL)
		}
		fmt.Fprintln(w)
	}
}

func scoreBadge(score *int) string {
	if score == nil {
		return color.New(color.Faint).Sprint("unrated")
	}
	c := color.New(color.FgRed)
	switch {
	case *score >= 75:
		c = color.New(color.FgGreen, color.Bold)
	case *score >= 50:
		c = color.New(color.FgYellow)
	}
	return c.Sprintf("%d/100", *score)
}

// RenderStatus prints the status payload
func RenderStatus(w io.Writer, s *events.StatusData) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	loop := yellow("stopped")
	if s.Running {
		loop = green("running")
	}
	chains := make([]string, len(s.Chains))
	for i, c := range s.Chains {
		chains[i] = Label(string(c))
	}
	if len(chains) == 0 {
		chains = []string{"none"}
	}

	fmt.Fprintf(w, "\n%s\n\n", cyan("Gallery Status"))
	fmt.Fprintf(w, "  Loop:      %s (every %s)\n", loop, time.Duration(s.DiscoveryIntervalMs)*time.Millisecond)
	provider := s.Provider
	if !s.ProviderHealthy {
		provider += " " + yellow("(circuit open)")
	}
	fmt.Fprintf(w, "  Provider:  %s\n", provider)
	fmt.Fprintf(w, "  Channel:   %s\n", s.GalleryChannel)
	fmt.Fprintf(w, "  Items:     %d (%d analyzed, avg score %d)\n", s.Total, s.Analyzed, s.AvgScore)
	fmt.Fprintf(w, "  Chains:    %s\n\n", strings.Join(chains, ", "))
}
