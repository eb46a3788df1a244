// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/orphion/orphion/internal/cloud"
	"github.com/orphion/orphion/internal/config"
	"github.com/orphion/orphion/internal/events"
	"github.com/orphion/orphion/internal/format"
	"github.com/orphion/orphion/internal/inference"
	"github.com/orphion/orphion/internal/logging"
	"github.com/orphion/orphion/internal/model"
	"github.com/orphion/orphion/internal/search"
	"github.com/orphion/orphion/internal/session"
	"github.com/orphion/orphion/internal/storage"
	"github.com/orphion/orphion/internal/tasks"
	"github.com/orphion/orphion/internal/ui/components"
	"github.com/orphion/orphion/internal/ui/styles"
	"github.com/orphion/orphion/internal/vision"
)

// titleTaskTimeout bounds one background title generation.
const titleTaskTimeout = 45 * time.Second

// GlobalFlags are the persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	Backend    string
	DataDir    string
	LogLevel   string
	Color      string
	Ephemeral  bool
	Verbose    bool
}

// App holds the wired dependencies of one command invocation.
type App struct {
	Config *config.Config
	Log    *logging.Logger

	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer

	Theme  *styles.Theme
	Styles Styles
	Width  int

	KV        storage.KV
	Repo      *storage.Repository
	Bus       *events.Bus
	Runner    *tasks.Runner
	Sessions  *session.Service
	Client    *cloud.Client
	Searcher  search.Searcher
	Responder *inference.Responder
	Analyzer  *vision.Analyzer
	Formatter *format.Formatter
	View      *components.MessageView

	origin string
	cancel context.CancelFunc
}

// NewApp loads configuration and wires every component.
func NewApp(ctx context.Context, flags GlobalFlags, in io.Reader, out, errOut io.Writer) (*App, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}

	logOpts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File}
	if flags.Verbose {
		logOpts.Level = "debug"
	}
	log, err := logging.New(logOpts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	a := &App{
		Config: cfg,
		Log:    log,
		In:     in,
		Out:    out,
		ErrOut: errOut,
		origin: fmt.Sprintf("orphion-%d-%s", os.Getpid(), model.NewID()[:8]),
		cancel: cancel,
	}

	if err := a.openStore(ctx); err != nil {
		cancel()
		log.Sync()
		return nil, err
	}
	a.wireInference()
	a.wireRendering(out)
	return a, nil
}

func loadConfig(flags GlobalFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.ConfigPath != "" {
		cfg, err = config.LoadFromPath(flags.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if flags.Backend != "" {
		cfg.Storage.Backend = flags.Backend
	}
	if flags.Ephemeral {
		cfg.Storage.Backend = storage.BackendMemory
	}
	if flags.DataDir != "" {
		cfg.Storage.DataDir = flags.DataDir
	}
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}
	if flags.Color != "" {
		cfg.UI.Color = flags.Color
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore opens the KV backend, the event bus and the repository.
func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config.Storage
	dataDir, err := a.Config.ResolvedDataDir()
	if err != nil {
		return err
	}
	sqlitePath, err := a.Config.ResolvedSQLitePath()
	if err != nil {
		return err
	}

	kv, err := storage.Open(ctx, storage.OpenOptions{
		Backend:     cfg.Backend,
		Dir:         dataDir,
		SQLitePath:  sqlitePath,
		RedisAddr:   cfg.RedisAddr,
		RedisDB:     cfg.RedisDB,
		RedisPrefix: "orphion:",
	})
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Backend, err)
	}
	a.KV = kv
	a.Bus = events.NewBus()

	var pub events.Publisher = a.Bus
	if cfg.Events {
		if rkv, ok := kv.(*storage.RedisKV); ok {
			bridge := events.NewRedisBridge(a.Bus, rkv.Client(), "", a.origin, a.Log)
			if err := bridge.Start(ctx); err != nil {
				a.Log.Warn("event bridge unavailable", "error", err)
			} else {
				pub = bridge
			}
		} else {
			a.Log.Warn("storage events need the redis backend", "backend", cfg.Backend)
		}
	}

	a.Repo = storage.NewRepository(kv,
		storage.WithKey(cfg.Key),
		storage.WithLogger(a.Log),
		storage.WithPublisher(pub, a.origin),
	)
	a.Runner = tasks.NewRunner(tasks.Options{
		MaxConcurrent: 2,
		Timeout:       titleTaskTimeout,
		Logger:        a.Log,
	})
	return nil
}

// wireInference builds the API client and everything that talks to it.
func (a *App) wireInference() {
	ic := a.Config.Inference
	a.Client = cloud.NewClient(ic.APIKey).
		WithBaseURL(ic.BaseURL).
		WithModel(ic.Model).
		WithMaxTokens(ic.MaxTokens).
		WithMaxRetries(ic.MaxRetries).
		WithTimeout(time.Duration(ic.TimeoutSecs) * time.Second).
		WithLogger(a.Log)

	opts := []session.Option{session.WithRunner(a.Runner), session.WithLogger(a.Log)}
	if a.Client.IsConfigured() {
		opts = append(opts, session.WithTitleGenerator(cloud.NewTitleGenerator(a.Client, a.Config.TitleModel())))
	}
	a.Sessions = session.NewService(a.Repo, opts...)

	sc := a.Config.Search
	a.Searcher = search.New(search.Config{
		Provider:          sc.Provider,
		APIKey:            sc.APIKey,
		BaseURL:           sc.BaseURL,
		RequestsPerSecond: sc.RequestsPerSecond,
		Timeout:           search.DefaultTimeout,
	}, a.Log)

	a.Responder = inference.NewResponder(a.Client,
		inference.WithSearcher(a.Searcher),
		inference.WithModel(ic.Model),
		inference.WithSystemPrompt(ic.SystemPrompt),
		inference.WithLogger(a.Log),
	)
	a.Analyzer = vision.NewAnalyzer(a.Client, a.Responder, ic.VisionModel, a.Log)
}

func (a *App) wireRendering(out io.Writer) {
	a.Theme = styles.NewThemeFor(ColorProfile(out, a.Config.UI.Color), a.Config.UI.CodeStyle)
	a.Styles = newStyles(a.Theme)
	a.Width = TerminalWidth(out, a.Config.UI.Width)
	a.Formatter = format.New(format.WithLogger(a.Log))
	a.View = components.NewMessageView(components.NewRenderer(a.Theme, a.Width), a.Formatter)
	a.View.ShowReasoning = a.Config.UI.ShowReasoning
}

// scratch returns a copy of a whose sessions live in memory only and get
// no background titles. Inference components are shared.
func (a *App) scratch() *App {
	s := *a
	s.KV = storage.NewMemoryKV()
	s.Repo = storage.NewRepository(s.KV, storage.WithLogger(a.Log))
	s.Sessions = session.NewService(s.Repo, session.WithLogger(a.Log))
	return &s
}

// SearchMode returns the configured default search mode.
func (a *App) SearchMode() model.SearchMode {
	return model.ParseSearchMode(a.Config.Search.DefaultMode)
}

// WatchStore publishes events.StoreChanged when another process writes
// the session file. Only the file backend can be watched; other backends
// return immediately.
func (a *App) WatchStore(ctx context.Context) {
	fkv, ok := a.KV.(*storage.FileKV)
	if !ok {
		return
	}
	go func() {
		err := fkv.Watch(ctx, []string{a.Repo.Key()}, 0, a.Log, func(string) {
			a.Bus.Publish(events.Event{Type: events.StoreChanged, Origin: "watcher"})
		})
		if err != nil {
			a.Log.Warn("store watch stopped", "error", err)
		}
	}()
}

// Close waits for background title generation and releases resources.
func (a *App) Close() {
	a.Runner.Wait()
	a.Runner.Stop()
	a.cancel()
	a.Bus.Close()
	if err := a.KV.Close(); err != nil {
		a.Log.Warn("failed to close store", "error", err)
	}
	a.Log.Sync()
}
