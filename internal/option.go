package internal

import (
	"io"
	"log/slog"

	"github.com/starford/folio/internal/resolver"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config    *Config
	out       io.Writer
	logOut    io.Writer
	logger    *slog.Logger
	history   resolver.History
	enrichers []resolver.Enricher
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithOutput sets where command results are printed. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}

// WithLogOutput sets where logs are written. Defaults to stderr.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithHistory plugs in a version-control metadata source.
func WithHistory(h resolver.History) Option {
	return func(a *application) {
		a.history = h
	}
}

// WithEnrichers registers metadata enrichers, run in the order given.
func WithEnrichers(e ...resolver.Enricher) Option {
	return func(a *application) {
		a.enrichers = append(a.enrichers, e...)
	}
}
