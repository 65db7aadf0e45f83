package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/italolelis/premiumize_downloader/internal/api"
	"github.com/italolelis/premiumize_downloader/internal/catalog"
	"github.com/italolelis/premiumize_downloader/internal/cleanup"
	"github.com/italolelis/premiumize_downloader/internal/config"
	"github.com/italolelis/premiumize_downloader/internal/downloader"
	"github.com/italolelis/premiumize_downloader/internal/downloader/fetch"
	"github.com/italolelis/premiumize_downloader/internal/entity"
	"github.com/italolelis/premiumize_downloader/internal/logctx"
	"github.com/italolelis/premiumize_downloader/internal/notifier"
	"github.com/italolelis/premiumize_downloader/internal/orchestrator"
	"github.com/italolelis/premiumize_downloader/internal/telemetry"
	"github.com/italolelis/premiumize_downloader/internal/transfer"
	"github.com/italolelis/premiumize_downloader/internal/web"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newCommand(cfg).Run(logctx.WithLogger(ctx, logger), os.Args); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func newCommand(cfg *config.Config) *cli.Command {
	filterFlag := &cli.StringSliceFlag{
		Name:    "filter",
		Aliases: []string{"f"},
		Usage:   "name pattern or torrent hash selecting remote entities",
	}
	targetFlag := &cli.StringFlag{
		Name:        "target-dir",
		Aliases:     []string{"d"},
		Usage:       "directory downloads are written to",
		Value:       cfg.TargetDir,
		Destination: &cfg.TargetDir,
	}
	zipFlag := &cli.BoolFlag{
		Name:  "zip",
		Usage: "fetch folders as remotely generated zip archives",
	}

	return &cli.Command{
		Name:  "premiumize_downloader",
		Usage: "synchronize a premiumize.me cloud account with local storage",
		Commands: []*cli.Command{
			{
				Name:  "download",
				Usage: "download remote entities matching the given filters",
				Flags: []cli.Flag{filterFlag, targetFlag, zipFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withApp(ctx, cfg, cmd, func(ctx context.Context, app *application) error {
						filter, err := entity.NewFilter(cmd.StringSlice("filter"))
						if err != nil {
							return err
						}

						return app.orchestrator.Download(ctx, filter)
					})
				},
			},
			{
				Name:      "upload",
				Usage:     "submit magnet links or URLs as new transfers",
				ArgsUsage: "SOURCE [SOURCE...]",
				Flags: []cli.Flag{
					targetFlag, zipFlag,
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "wait for the submitted transfers and download their results",
					},
					&cli.BoolFlag{
						Name:  "direct",
						Usage: "fetch via direct links without creating transfers",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					sources := cmd.Args().Slice()
					if len(sources) == 0 {
						return fmt.Errorf("no sources given")
					}

					return withApp(ctx, cfg, cmd, func(ctx context.Context, app *application) error {
						if cmd.Bool("direct") {
							return app.orchestrator.FetchDirect(ctx, sources)
						}

						return app.orchestrator.Upload(ctx, sources, cmd.Bool("wait"))
					})
				},
			},
			{
				Name:  "cleanup",
				Usage: "delete failed and stale transfers",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withApp(ctx, cfg, cmd, func(ctx context.Context, app *application) error {
						return app.orchestrator.Cleanup(ctx)
					})
				},
			},
			{
				Name:  "watch",
				Usage: "periodically run cleanup and download passes",
				Flags: []cli.Flag{filterFlag, targetFlag, zipFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withApp(ctx, cfg, cmd, func(ctx context.Context, app *application) error {
						filter, err := entity.NewFilter(cmd.StringSlice("filter"))
						if err != nil {
							return err
						}

						return watch(ctx, cfg, app, filter)
					})
				},
			},
		},
	}
}

// application holds the wired object graph for one invocation.
type application struct {
	client       *api.Client
	telemetry    *telemetry.Telemetry
	orchestrator *orchestrator.Orchestrator
}

// withApp wires the object graph, runs fn and tears everything down.
func withApp(ctx context.Context, cfg *config.Config, cmd *cli.Command, fn func(ctx context.Context, app *application) error) error {
	app, err := buildApplication(ctx, cfg, cmd)
	if err != nil {
		return err
	}

	defer func() {
		app.client.Close()

		if err := app.telemetry.Shutdown(context.Background()); err != nil {
			logctx.LoggerFromContext(ctx).Error("failed to shutdown telemetry", "err", err)
		}
	}()

	return fn(ctx, app)
}

func buildApplication(ctx context.Context, cfg *config.Config, cmd *cli.Command) (*application, error) {
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup telemetry: %w", err)
	}

	client, err := buildClient(cfg, tel)
	if err != nil {
		return nil, err
	}

	cat := catalog.New(client, cfg.CacheTTL)
	waiter := transfer.NewWaiter(cat, cfg.PollInterval, cfg.LoadingTimeout, transfer.WithWaitRecorder(tel))
	submitter := transfer.NewSubmitter(cat, transfer.WithSubmitRecorder(tel))
	cleaner := cleanup.NewCleaner(cat, cfg.SeenFile)

	fetcher, err := buildFetcher(cfg, tel)
	if err != nil {
		return nil, err
	}

	opts := []downloader.Option{
		downloader.WithMaxParallel(cfg.MaxParallel),
	}

	if cmd.Bool("zip") {
		opts = append(opts, downloader.WithZippedFolders())
	}

	if cfg.DeleteAfterDownload || cfg.RetentionDays > 0 {
		opts = append(opts, downloader.WithRetention(cfg.Retention()))
	}

	if cfg.WebhookURL != "" {
		hooks := notifier.Hooks(ctx, &notifier.DiscordNotifier{WebhookURL: cfg.WebhookURL})
		opts = append(opts, downloader.WithHooks(hooks))
	}

	scheduler := downloader.NewScheduler(cat, client, waiter, fetcher, opts...)

	return &application{
		client:       client,
		telemetry:    tel,
		orchestrator: orchestrator.New(cat, client, scheduler, submitter, cleaner, cfg.TargetDir, cfg.UpdateInterval),
	}, nil
}

func buildClient(cfg *config.Config, tel *telemetry.Telemetry) (*api.Client, error) {
	opts := []api.Option{
		api.WithRecorder(tel),
		api.WithRateLimit(cfg.RateLimit),
	}

	var creds api.Credentials

	if cfg.Token != "" {
		opts = append(opts, api.WithToken(cfg.Token))
	} else {
		resolved, err := config.ResolveCredentials(cfg.Auth)
		if err != nil {
			return nil, err
		}

		creds = resolved
	}

	return api.NewClient(cfg.BaseURL, creds, opts...), nil
}

func buildFetcher(cfg *config.Config, tel *telemetry.Telemetry) (fetch.Fetcher, error) {
	var fetcher fetch.Fetcher

	switch cfg.Downloader {
	case "wget":
		fetcher = fetch.NewWgetFetcher(cfg.FetchWorkers, true)
	case "http":
		fetcher = fetch.NewHTTPFetcher(nil)
	default:
		return nil, fmt.Errorf("invalid downloader: %s", cfg.Downloader)
	}

	return fetch.NewInstrumentedFetcher(fetcher, tel), nil
}

// watch runs the orchestration loop next to the status server; either one
// failing brings both down.
func watch(ctx context.Context, cfg *config.Config, app *application, filter *entity.Filter) error {
	g, ctx := errgroup.WithContext(ctx)

	server := web.NewServer(web.Config{
		BindAddress:     cfg.Web.BindAddress,
		ReadTimeout:     cfg.Web.ReadTimeout,
		WriteTimeout:    cfg.Web.WriteTimeout,
		IdleTimeout:     cfg.Web.IdleTimeout,
		ShutdownTimeout: cfg.Web.ShutdownTimeout,
	}, app.telemetry.Handler())

	g.Go(func() error {
		return server.Serve(ctx)
	})

	g.Go(func() error {
		return app.orchestrator.Watch(ctx, filter)
	})

	return g.Wait()
}
