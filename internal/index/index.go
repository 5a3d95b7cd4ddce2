package index

import (
	"context"

	"github.com/starford/folio/internal/article"
)

// ArticleIndex is the index surface used by the engine and the query side.
// Consumers should depend on this interface rather than the concrete *DB.
type ArticleIndex interface {
	InitIndex(ctx context.Context, s Schema, clear bool) error
	AddArticle(ctx context.Context, a *article.Article) error
	RemoveArticle(ctx context.Context, fullname string) error
	Commit() error
	Rollback() error
	Search(ctx context.Context, q, sortField string, reverse bool) ([]article.Info, error)
	SearchPage(ctx context.Context, q, sortField string, page, pageLen int, reverse bool) ([]article.Info, int, error)
	Document(ctx context.Context, fullname string) (map[string]any, error)
	Checksums(ctx context.Context) (map[string]string, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Verify *DB satisfies ArticleIndex at compile time.
var _ ArticleIndex = (*DB)(nil)
