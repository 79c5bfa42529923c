package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nixlim/vf-top/internal/config"
	"github.com/nixlim/vf-top/internal/engine"
	"github.com/nixlim/vf-top/internal/enrich"
	"github.com/nixlim/vf-top/internal/logging"
	"github.com/nixlim/vf-top/internal/source"
	"github.com/nixlim/vf-top/internal/storage"
	"github.com/nixlim/vf-top/internal/tui"
	"github.com/nixlim/vf-top/internal/vehicle"
)

type options struct {
	configPath string
	envPath    string
	logLevel   string
	recordPath string
	vin        string
	view       string
	init       bool
}

func main() {
	var opts options
	flags := pflag.NewFlagSet("vf-top", pflag.ContinueOnError)
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default ~/.config/vf-top/config.toml)")
	flags.StringVar(&opts.envPath, "env", ".env", "dotenv file with VFTOP_* secrets")
	flags.StringVar(&opts.logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	flags.StringVar(&opts.recordPath, "record", "", "append every received signal frame to this file (JSONL)")
	flags.StringVar(&opts.vin, "vin", "", "start with this vehicle active")
	flags.StringVar(&opts.view, "view", "dashboard", "start view: dashboard, history or inspector")
	flags.BoolVar(&opts.init, "init", false, "write or complete the config file with defaults and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "vf-top: %v\n", err)
		os.Exit(2)
	}

	if opts.init {
		RunInit(opts.configPath)
		return
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "vf-top: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	startView, err := tui.ParseView(opts.view)
	if err != nil {
		return err
	}

	if err := config.LoadDotEnv(opts.envPath); err != nil {
		fmt.Fprintf(os.Stderr, "vf-top: %v\n", err)
	}

	var loadResult *config.LoadResult
	if opts.configPath != "" {
		loadResult, err = config.LoadFrom(opts.configPath)
	} else {
		loadResult, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	cfg := loadResult.Config
	for _, w := range loadResult.Warnings {
		fmt.Fprintf(os.Stderr, "vf-top: config warning: %s\n", w)
	}
	config.ApplyEnv(&cfg)
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// The terminal belongs to the TUI.
	log.SetOutput(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, isPersistent, err := storage.NewStore(ctx, cfg.Storage, logger.Named("storage"))
	if err != nil {
		return fmt.Errorf("storage error: %w", err)
	}

	deps := engine.Deps{
		Config: cfg,
		Store:  store,
		Logger: logger,
	}
	wireSources(&deps, cfg, logger)

	var recordFile *os.File
	if opts.recordPath != "" {
		recordFile, err = os.OpenFile(opts.recordPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			_ = store.Close()
			return fmt.Errorf("opening record file %q: %w", opts.recordPath, err)
		}
		deps.Recorder = source.NewFileRecorder(recordFile, nil)
	}

	eng := engine.New(deps)
	sub := eng.Subscribe(64)
	eng.Start(ctx)

	stopBootstrap := startBootstrap(ctx, eng, opts.vin, logger)

	shutdownMgr := tui.NewShutdownManager()
	shutdownMgr.StopSource = func(stopCtx context.Context) error {
		cancel()
		return stopBootstrap(stopCtx)
	}
	shutdownMgr.StopEngine = eng.Close
	shutdownMgr.Cleanup = func() {
		sub.Cancel()
		if err := store.Close(); err != nil {
			logger.Warn("closing storage", zap.Error(err))
		}
		if recordFile != nil {
			_ = recordFile.Close()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	model := tui.NewModel(cfg,
		tui.WithVehicleProvider(eng),
		tui.WithHistoryProvider(eng),
		tui.WithInspectProvider(eng),
		tui.WithNoticeProvider(eng),
		tui.WithNotices(sub.C),
		tui.WithContext(ctx),
		tui.WithStartView(startView),
		tui.WithPersistenceFlag(isPersistent),
		tui.WithOnShutdown(func() {
			_ = shutdownMgr.Shutdown()
		}),
	)

	p := tea.NewProgram(model, tea.WithAltScreen())

	go func() {
		select {
		case <-sigCh:
			_ = shutdownMgr.Shutdown()
			p.Quit()
		case <-ctx.Done():
		}
	}()

	_, runErr := p.Run()
	if err := shutdownMgr.Shutdown(); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	return runErr
}

// wireSources installs the upstream clients that cfg has endpoints for.
func wireSources(d *engine.Deps, cfg config.Config, logger *zap.Logger) {
	timeout := time.Duration(cfg.Source.RequestTimeoutMS) * time.Millisecond

	if cfg.Source.APIBase != "" {
		api := source.NewAPIClient(cfg.Source.APIBase, cfg.Source.Token, cfg.Source.Region, source.NewDefaultHTTPClient(timeout))
		d.History = api
		d.Vehicles = api
	}

	if cfg.Source.SignalURL != "" {
		header := http.Header{}
		if cfg.Source.Token != "" {
			header.Set("Authorization", "Bearer "+cfg.Source.Token)
		}
		d.Signals = source.NewSignalClient(cfg.Source.SignalURL, source.SignalOptions{
			Header: header,
			Logger: logger.Named("signal"),
		})
	}

	if cfg.Enrichment.Enabled {
		httpc := enrich.NewDefaultHTTPClient(time.Duration(cfg.Enrichment.TimeoutMS) * time.Millisecond)
		d.Places = enrich.NewNominatimClient(cfg.Enrichment.NominatimURL, httpc)
		d.Weather = enrich.NewOpenMeteoClient(cfg.Enrichment.OpenMeteoURL, httpc)
	}
}

// startBootstrap runs bootstrap in the background. The returned stop
// function cancels it and waits until it has returned or ctx expires.
func startBootstrap(parent context.Context, eng *engine.Engine, vin string, logger *zap.Logger) func(context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	var g errgroup.Group
	g.Go(func() error {
		bootstrap(ctx, eng, vin, logger)
		return nil
	})

	return func(stopCtx context.Context) error {
		cancel()
		done := make(chan error, 1)
		go func() { done <- g.Wait() }()
		select {
		case err := <-done:
			return err
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}
}

// bootstrap loads the vehicle list and activates the requested VIN. With
// no vehicle-list source, a --vin still gives the dashboard something to
// show from the live feed.
func bootstrap(ctx context.Context, eng *engine.Engine, vin string, logger *zap.Logger) {
	vin = strings.TrimSpace(vin)

	_, err := eng.LoadVehicles(ctx)
	switch {
	case errors.Is(err, engine.ErrNoSource):
		if vin == "" {
			return
		}
		eng.SetVehicles([]vehicle.Identity{{VIN: vin}})
	case ctx.Err() != nil:
		return
	case err != nil:
		logger.Warn("loading vehicles", zap.Error(err))
		return
	}

	if vin == "" {
		return
	}
	if err := eng.SwitchActive(ctx, vin); err != nil {
		logger.Warn("activating vehicle", zap.String("vin", vin), zap.Error(err))
	}
}
