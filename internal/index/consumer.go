package index

import (
	"context"
	"log/slog"

	"github.com/starford/folio/internal/article"
)

// Consumer drives an ArticleIndex from full walks and incremental updates.
// A walk stages a cleared index and publishes it on PostWalk; an update is
// published on CommitUpdate. Abort discards whatever was staged.
type Consumer struct {
	idx    ArticleIndex
	schema Schema
	logger *slog.Logger
}

// NewConsumer creates a Consumer writing documents with schema s.
func NewConsumer(idx ArticleIndex, s Schema, logger *slog.Logger) *Consumer {
	return &Consumer{idx: idx, schema: s, logger: logger}
}

// Name identifies the consumer in logs and errors.
func (c *Consumer) Name() string { return "index" }

func (c *Consumer) PreWalk(ctx context.Context) error {
	return c.idx.InitIndex(ctx, c.schema, true)
}

func (c *Consumer) VisitArticle(ctx context.Context, a *article.Article) error {
	return c.idx.AddArticle(ctx, a)
}

func (c *Consumer) PostWalk(ctx context.Context) error {
	if err := c.idx.Commit(); err != nil {
		return err
	}
	if n, err := c.idx.Count(ctx); err == nil {
		c.logger.Info("index: rebuilt", slog.Int("documents", n))
	}
	return nil
}

// BeginUpdate reopens the index; a changed schema requires a walk.
func (c *Consumer) BeginUpdate(ctx context.Context) error {
	return c.idx.InitIndex(ctx, c.schema, false)
}

func (c *Consumer) RemoveArticle(ctx context.Context, fullname string) error {
	return c.idx.RemoveArticle(ctx, fullname)
}

func (c *Consumer) AddArticle(ctx context.Context, a *article.Article) error {
	return c.idx.AddArticle(ctx, a)
}

func (c *Consumer) CommitUpdate(_ context.Context) error {
	return c.idx.Commit()
}

func (c *Consumer) Abort(_ context.Context) error {
	return c.idx.Rollback()
}
