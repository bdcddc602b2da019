// Package repl implements the interactive gallery console. Lines are parsed
// as "<command> --key value ..." and sent to the daemon's control socket.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/tracgallery/gallery/internal/control"
	"github.com/tracgallery/gallery/internal/events"
)

// Sender delivers a request to the daemon
type Sender interface {
	Send(req events.Request) (*control.Response, error)
}

// REPL represents the interactive shell
type REPL struct {
	client      Sender
	rl          *readline.Instance
	ctx         context.Context
	out         io.Writer
	historyFile string
	commands    map[string]CommandHandler
}

// CommandHandler handles a built-in console command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Client      Sender
	Out         io.Writer
	HistoryFile string
}

// errExit ends the loop
var errExit = errors.New("exit")

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("control client is required")
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	r := &REPL{
		client:      cfg.Client,
		out:         out,
		historyFile: cfg.HistoryFile,
		commands:    make(map[string]CommandHandler),
		ctx:         context.Background(),
	}
	r.registerCommands()
	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("gallery> "),
		HistoryFile:       r.historyFile,
		AutoComplete:      completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdout:            r.out,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	r.rl = rl

	r.printWelcome()

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			} else if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			return err
		}

		if err := r.processInput(line); err != nil {
			if errors.Is(err, errExit) {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}
	}
}

// processInput runs one console line
func (r *REPL) processInput(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	fields := strings.Fields(line)
	if handler, ok := r.commands[strings.ToLower(fields[0])]; ok {
		return handler(fields[1:])
	}

	req, err := events.ParseCommandLine(line)
	if err != nil {
		return err
	}
	resp, err := r.client.Send(req)
	if err != nil {
		return err
	}
	return RenderResponse(r.out, resp)
}

func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit
}

func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", cyan("Inscription gallery console"))
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(r.out)
}

var helpLines = []struct {
	name string
	desc string
}{
	{"gallery [--chain c] [--min_score n] [--style s] [--sort newest|oldest|score] [--limit n]", "Browse curated items"},
	{"trending [--limit n]", "Highest-scored items"},
	{"rate --id <inscription>", "Analyze one inscription (rate limited)"},
	{"curate --theme <text>", "Curate recent inscriptions now (rate limited)"},
	{"status", "Collection and loop status"},
	{"help, ?", "Show this help message"},
	{"exit, quit", "Exit the console"},
}

func (r *REPL) cmdHelp(_ []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", cyan("Available Commands:"))
	for _, h := range helpLines {
		fmt.Fprintf(r.out, "  %s\n      %s\n", green(h.name), h.desc)
	}
	fmt.Fprintln(r.out)
	return nil
}

func (r *REPL) cmdExit(_ []string) error {
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s Goodbye!\n", green("✓"))
	return errExit
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem(events.CommandGallery,
			readline.PcItem("--chain"),
			readline.PcItem("--min_score"),
			readline.PcItem("--style"),
			readline.PcItem("--sort"),
			readline.PcItem("--limit"),
		),
		readline.PcItem(events.CommandTrending, readline.PcItem("--limit")),
		readline.PcItem(events.CommandRate, readline.PcItem("--id")),
		readline.PcItem(events.CommandCurate, readline.PcItem("--theme")),
		readline.PcItem(events.CommandStatus),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}
