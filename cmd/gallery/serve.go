package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tracgallery/gallery/internal/ai"
	"github.com/tracgallery/gallery/internal/broadcast"
	"github.com/tracgallery/gallery/internal/config"
	"github.com/tracgallery/gallery/internal/control"
	"github.com/tracgallery/gallery/internal/discovery"
	"github.com/tracgallery/gallery/internal/events"
	"github.com/tracgallery/gallery/internal/gallery"
	"github.com/tracgallery/gallery/internal/logging"
	"github.com/tracgallery/gallery/internal/storage"
	"github.com/tracgallery/gallery/internal/storage/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the curation daemon",
	Long: `Run the gallery daemon in the foreground.

The daemon will:
1. Lock the data directory and load the curated collection
2. Run a discovery cycle now and then once per discovery interval
3. Rate new visual inscriptions with the configured vision provider
4. Publish newly curated items to websocket clients on /ws
5. Answer commands on the websocket and on the local control socket
6. Continue until stopped with Ctrl+C`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		if noServer, _ := cmd.Flags().GetBool("no-server"); noServer {
			cfg.Server.Enabled = false
		}
		if once, _ := cmd.Flags().GetBool("once"); once {
			return runOnce(cfg)
		}
		return serve(cfg)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Websocket listen address (overrides server.addr)")
	serveCmd.Flags().Bool("no-server", false, "Disable the websocket server")
	serveCmd.Flags().Bool("once", false, "Run a single discovery cycle and exit")
	rootCmd.AddCommand(serveCmd)
}

// components is everything a daemon process owns
type components struct {
	logger   zerolog.Logger
	store    *storage.Store
	source   *discovery.Client
	curator  *ai.Curator
	lockPath string
}

func (c *components) Close() {
	if err := c.store.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to close store")
	}
	if err := storage.ReleaseLock(c.lockPath); err != nil {
		c.logger.Warn().Err(err).Msg("failed to release data directory lock")
	}
}

func build(ctx context.Context, cfg *config.Config) (*components, error) {
	logger := logging.New(cfg.Log)

	lockPath, err := storage.AcquireLock(cfg.DataDir, version)
	if err != nil {
		return nil, err
	}

	persister, err := openPersister(ctx, cfg, &logger)
	if err != nil {
		_ = storage.ReleaseLock(lockPath)
		return nil, err
	}
	store := storage.Open(ctx, persister, cfg.Storage.MaxItems, &logger)

	source := discovery.NewClient(discovery.Config{
		HiroBaseURL:       cfg.Discovery.HiroBaseURL,
		HiroAPIKey:        cfg.Discovery.HiroAPIKey,
		PipeBaseURL:       cfg.Discovery.PipeBaseURL,
		RequestsPerSecond: cfg.Discovery.RequestsPerSecond,
		Burst:             cfg.Discovery.Burst,
		MaxRetries:        cfg.Discovery.MaxRetries,
		RetryDelay:        cfg.Discovery.RetryDelay,
	}, &logger)

	selected := cfg.AI.Selected()
	provider, err := ai.NewProvider(ctx, ai.Config{
		Provider:  cfg.AI.Provider,
		APIKey:    selected.APIKey,
		Model:     selected.Model,
		BaseURL:   selected.BaseURL,
		MaxTokens: cfg.AI.MaxTokens,
	})
	if err != nil {
		store.Close()
		_ = storage.ReleaseLock(lockPath)
		return nil, fmt.Errorf("failed to create vision provider: %w", err)
	}

	retry := ai.DefaultRetryConfig()
	retry.MaxRetries = cfg.AI.MaxRetries
	if cfg.AI.Timeout > 0 {
		retry.Timeout = cfg.AI.Timeout
	}
	if cfg.AI.MaxConcurrent > 0 {
		retry.MaxConcurrentCalls = cfg.AI.MaxConcurrent
	}
	curator, err := ai.NewCurator(provider, retry, &logger)
	if err != nil {
		store.Close()
		_ = storage.ReleaseLock(lockPath)
		return nil, err
	}

	return &components{logger: logger, store: store, source: source, curator: curator, lockPath: lockPath}, nil
}

func openPersister(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (storage.Persister, error) {
	switch cfg.Storage.Backend {
	case config.BackendSQLite:
		p, err := sqlite.New(ctx, cfg.StorePath(), logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		if p.InMemory() {
			color.New(color.FgYellow).Fprintf(os.Stderr, "Warning: %s is unusable; curated items will not survive a restart\n", cfg.StorePath())
		}
		return p, nil
	default:
		return storage.NewJSONFilePersister(cfg.StorePath()), nil
	}
}

func orchestratorConfig(cfg *config.Config) gallery.Config {
	return gallery.Config{
		Interval:       cfg.Discovery.Interval,
		BatchSize:      cfg.Discovery.BatchSize,
		SecondaryLimit: cfg.Discovery.SecondaryLimit,
		Cooldown:       cfg.RateLimit.Cooldown,
		Channel:        cfg.Channel,
	}
}

func serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	log := logging.Component(&c.logger, "serve")

	var (
		orch        *gallery.Orchestrator
		hub         *broadcast.Hub
		broadcaster gallery.Broadcaster
	)
	if cfg.Server.Enabled {
		hub = broadcast.NewHub(broadcast.HandlerFunc(func(ctx context.Context, req events.Request) *events.Message {
			return orch.HandleCommand(ctx, req)
		}), &c.logger)
		broadcaster = hub
	}

	orch, err = gallery.New(orchestratorConfig(cfg), c.source, c.curator, c.store, broadcaster, &c.logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if hub != nil {
		server := broadcast.NewServer(cfg.Server.Addr, hub)
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
		g.Go(func() error {
			return server.ListenAndServe(gctx)
		})
	}

	ctrl, err := control.NewServer(cfg.Control.Socket, orch, &c.logger)
	if err != nil {
		return err
	}
	if err := ctrl.Start(gctx); err != nil {
		return err
	}
	defer ctrl.Stop()

	if err := orch.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return orch.Stop(shutdownCtx)
	})

	green := color.New(color.FgGreen).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Fprintf(os.Stderr, "%s Gallery daemon started (version %s)\n", green("✓"), cyan(version))
	fmt.Fprintf(os.Stderr, "  Provider: %s, discovery every %v\n", c.curator.ProviderName(), cfg.Discovery.Interval)
	fmt.Fprintf(os.Stderr, "  Store: %s (%d items, max %d)\n", cfg.StorePath(), c.store.Len(), c.store.Capacity())
	if hub != nil {
		fmt.Fprintf(os.Stderr, "  Websocket: ws://%s/ws\n", cfg.Server.Addr)
	}
	fmt.Fprintf(os.Stderr, "  Control socket: %s\n", cfg.Control.Socket)
	fmt.Fprintf(os.Stderr, "  Press Ctrl+C to stop\n\n")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("daemon stopped with error")
		return err
	}
	fmt.Fprintf(os.Stderr, "%s Gallery daemon stopped\n", green("✓"))
	return nil
}

// runOnce runs a single cycle without any servers
func runOnce(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	orch, err := gallery.New(orchestratorConfig(cfg), c.source, c.curator, c.store, nil, &c.logger)
	if err != nil {
		return err
	}
	added := orch.RunCycle(ctx)

	green := color.New(color.FgGreen).SprintFunc()
	fmt.Printf("%s Curated %d new item(s), %d total\n", green("✓"), added, c.store.Len())
	return nil
}
