// Package internal wires configuration, storage, the index, the counters
// and the engine into the operations exposed on the command line.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"golang.org/x/sync/errgroup"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/changeset"
	"github.com/starford/folio/internal/counter"
	"github.com/starford/folio/internal/engine"
	"github.com/starford/folio/internal/flavour"
	"github.com/starford/folio/internal/index"
	"github.com/starford/folio/internal/resolver"
	"github.com/starford/folio/internal/storage"
	"github.com/starford/folio/internal/watch"
)

var (
	_ engine.Consumer = (*index.Consumer)(nil)
	_ engine.Consumer = (*counter.Counter)(nil)
	_ engine.Source   = (*storage.FS)(nil)
	_ engine.Baseline = (*index.DB)(nil)
	_ watch.Filter    = (*storage.FS)(nil)
)

// App is a fully wired content engine.
type App struct {
	cfg      *Config
	logger   *slog.Logger
	out      io.Writer
	content  *storage.FS
	db       *index.DB
	resolver *resolver.Resolver
	counters []*counter.Counter
	engine   *engine.Engine
	flavours *flavour.Resolver
}

// New builds an App from the given options. The caller must Close it.
func New(ctx context.Context, opts ...Option) (*App, error) {
	app := &application{out: os.Stdout, logOut: os.Stderr}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = newLogger(cfg.App, app.logOut)
	}

	logger.Debug("Configuration loaded",
		slog.String("repo_path", cfg.Repo.Path),
		slog.String("content_root", cfg.ContentRoot()),
		slog.String("state_path", cfg.State.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.ContentRoot(), 0o755); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}
	if err := os.MkdirAll(cfg.State.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	content, err := storage.NewFS(cfg.ContentRoot(),
		storage.WithExtensions(cfg.Content.Extensions...),
		storage.WithIgnore(cfg.Content.Ignore...))
	if err != nil {
		return nil, fmt.Errorf("init content storage: %w", err)
	}
	state, err := storage.NewFS(cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("init state storage: %w", err)
	}

	db, err := index.Open(cfg.IndexPath())
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}
	schema := cfg.Index.EffectiveSchema()
	if err := db.InitIndex(ctx, schema, false); err != nil {
		if !errors.Is(err, apperr.ErrSchemaMismatch) {
			db.Close()
			return nil, fmt.Errorf("init index: %w", err)
		}
		logger.Warn("index: schema changed, run a walk to rebuild")
	}

	loc, err := cfg.Archive.Location()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("archive timezone: %w", err)
	}

	resolverOpts := []resolver.Option{
		resolver.WithLogger(logger),
		resolver.WithEnrichers(app.enrichers...),
	}
	if app.history != nil {
		resolverOpts = append(resolverOpts, resolver.WithHistory(app.history, cfg.Content.Dir))
	}
	res := resolver.New(content, cfg.Content.Extensions, resolverOpts...)

	counters := []*counter.Counter{
		counter.NewCategories(state, logger),
		counter.NewTags(state, logger),
		counter.NewArchive(state, loc, logger),
	}
	consumers := []engine.Consumer{index.NewConsumer(db, schema, logger)}
	for _, c := range counters {
		consumers = append(consumers, c)
	}

	return &App{
		cfg:      cfg,
		logger:   logger,
		out:      app.out,
		content:  content,
		db:       db,
		resolver: res,
		counters: counters,
		engine: engine.New(content, res,
			engine.WithContentDir(cfg.Content.Dir),
			engine.WithConsumers(consumers...),
			engine.WithLogger(logger)),
		flavours: flavour.NewResolver(cfg.Templates.DefaultName),
	}, nil
}

func newLogger(cfg ApplicationConfig, w io.Writer) *slog.Logger {
	if cfg.LogFormat == LogFormatText {
		noColor := true
		if f, ok := w.(*os.File); ok {
			noColor = !isatty.IsTerminal(f.Fd())
		}
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:   cfg.LogLevel,
			NoColor: noColor,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
}

// Close releases the index.
func (a *App) Close() error {
	return a.db.Close()
}

// Walk rebuilds the index and every counter from the content root.
func (a *App) Walk(ctx context.Context) error {
	return a.engine.Walk(ctx)
}

// Update applies a change set of repository-relative paths.
func (a *App) Update(ctx context.Context, cs changeset.ChangeSet) error {
	return a.engine.Update(ctx, cs)
}

// Scan brings the index and counters up to date with the content root and
// prints what changed.
func (a *App) Scan(ctx context.Context) error {
	cs, err := a.engine.Scan(ctx, a.db)
	if err != nil {
		return err
	}
	for _, p := range cs.Added {
		fmt.Fprintf(a.out, "A %s\n", p)
	}
	for _, p := range cs.Modified {
		fmt.Fprintf(a.out, "M %s\n", p)
	}
	for _, p := range cs.Deleted {
		fmt.Fprintf(a.out, "D %s\n", p)
	}
	return nil
}

// Watch catches up with the content root and then applies file system
// changes as they settle, until ctx is cancelled or a signal arrives.
func (a *App) Watch(ctx context.Context) error {
	if _, err := a.engine.Scan(ctx, a.db); err != nil {
		a.logger.Warn("initial scan failed, rebuilding", slog.String("error", err.Error()))
		if err := a.engine.Walk(ctx); err != nil {
			return fmt.Errorf("initial walk: %w", err)
		}
	}

	reconcile := func(ctx context.Context) error {
		_, err := a.engine.Scan(ctx, a.db)
		return err
	}
	w := watch.New(a.content.Root(), a.content, a.engine.Update,
		watch.WithPrefix(a.cfg.Content.Dir),
		watch.WithDebounce(a.cfg.Watch.Debounce),
		watch.WithReconcile(reconcile),
		watch.WithLogger(a.logger))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return w.Run(gCtx)
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			a.logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		a.logger.Error("watch error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Search prints one page of results for query q.
func (a *App) Search(ctx context.Context, q, sortField string, page int, reverse bool) error {
	infos, total, err := a.db.SearchPage(ctx, q, sortField, page, a.cfg.Index.PageLen, reverse)
	if err != nil {
		return err
	}
	for _, info := range infos {
		fmt.Fprintf(a.out, "%s\t%s\n", info.Fullname, info.Title())
	}
	pages := (total + a.cfg.Index.PageLen - 1) / a.cfg.Index.PageLen
	fmt.Fprintf(a.out, "page %d of %d, %d matches\n", page, pages, total)
	return nil
}

// Counts prints the named counter tree.
func (a *App) Counts(name string) error {
	for _, c := range a.counters {
		if c.Name() != name {
			continue
		}
		tree, err := c.Tree()
		if err != nil {
			return err
		}
		// Newest first for dates.
		tree.Sort(name == "archive")
		fmt.Fprint(a.out, tree.Render(name))
		return nil
	}
	return fmt.Errorf("unknown counter %q: %w", name, apperr.ErrNotFound)
}

// CounterNames lists the available counters.
func (a *App) CounterNames() []string {
	out := make([]string, len(a.counters))
	for i, c := range a.counters {
		out[i] = c.Name()
	}
	return out
}

// Resolve prints the merged metadata of one article as JSON. With body the
// article content follows.
func (a *App) Resolve(ctx context.Context, fullname string, body bool) error {
	art, err := a.resolver.Resolve(ctx, fullname)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(art.Info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, string(data))
	if body {
		content, err := art.Content()
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out)
		fmt.Fprint(a.out, content)
	}
	return nil
}

// Templates prints the template candidates for fullname in flavour.
func (a *App) Templates(fullname, flavourName string) {
	for _, c := range a.flavours.Candidates(fullname, flavourName) {
		fmt.Fprintln(a.out, c)
	}
}
