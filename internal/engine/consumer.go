package engine

import (
	"context"

	"github.com/starford/folio/internal/article"
)

// Consumer receives every walk and update the engine drives. Walk hooks
// rebuild state from scratch; update hooks apply one change set. Nothing a
// consumer stages becomes visible before PostWalk or CommitUpdate, and
// Abort discards it.
type Consumer interface {
	Name() string

	PreWalk(ctx context.Context) error
	VisitArticle(ctx context.Context, a *article.Article) error
	PostWalk(ctx context.Context) error

	BeginUpdate(ctx context.Context) error
	// RemoveArticle drops fullname using the consumer's stored state, not
	// the file on disk. A fullname the consumer never recorded fails with
	// apperr.ErrStaleRecordMissing.
	RemoveArticle(ctx context.Context, fullname string) error
	AddArticle(ctx context.Context, a *article.Article) error
	CommitUpdate(ctx context.Context) error

	Abort(ctx context.Context) error
}

// NopConsumer implements every hook as a no-op. Embed it to implement only
// the hooks you need.
type NopConsumer struct{}

func (NopConsumer) Name() string { return "nop" }

func (NopConsumer) PreWalk(context.Context) error { return nil }

func (NopConsumer) VisitArticle(context.Context, *article.Article) error { return nil }

func (NopConsumer) PostWalk(context.Context) error { return nil }

func (NopConsumer) BeginUpdate(context.Context) error { return nil }

func (NopConsumer) RemoveArticle(context.Context, string) error { return nil }

func (NopConsumer) AddArticle(context.Context, *article.Article) error { return nil }

func (NopConsumer) CommitUpdate(context.Context) error { return nil }

func (NopConsumer) Abort(context.Context) error { return nil }
