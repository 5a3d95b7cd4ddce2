package counter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/starford/folio/internal/apperr"
	"github.com/starford/folio/internal/article"
	"github.com/starford/folio/internal/storage"
	"github.com/starford/folio/internal/testutil"
)

func stateStore(t *testing.T) *storage.FS {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	require.NoError(t, err)
	return store
}

func art(fullname string, created int64, tags ...string) *article.Article {
	info := article.NewInfo(fullname, "md")
	info.CreateTime = created
	if len(tags) > 0 {
		info.SetMeta("tags", tags)
	}
	return article.New(info, nil)
}

func walk(t *testing.T, c *Counter, arts ...*article.Article) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.PreWalk(ctx))
	for _, a := range arts {
		require.NoError(t, c.VisitArticle(ctx, a))
	}
	require.NoError(t, c.PostWalk(ctx))
}

func TestCategories_WalkPersists(t *testing.T) {
	store := stateStore(t)
	c := NewCategories(store, testutil.Logger())
	walk(t, c, art("cooking/indian/madras", 0), art("cooking/italian/risotto", 0), art("about", 0))

	tree, err := c.Tree()
	require.NoError(t, err)
	require.Equal(t, 3, tree.Count)
	require.Equal(t, 1, tree.Direct())
	require.Equal(t, 2, tree.Find("cooking").Count)
	require.Equal(t, 1, tree.Find("cooking/indian").Count)

	// A fresh counter over the same store sees the snapshot.
	again, err := NewCategories(store, testutil.Logger()).Tree()
	require.NoError(t, err)
	require.True(t, tree.Equal(again))
}

func TestTags_CountsEachTag(t *testing.T) {
	c := NewTags(stateStore(t), testutil.Logger())
	walk(t, c, art("a", 0, "go", "sql"), art("b", 0, "go"), art("c", 0))

	tree, err := c.Tree()
	require.NoError(t, err)
	require.Equal(t, 2, tree.Child("go").Count)
	require.Equal(t, 1, tree.Child("sql").Count)
	require.Equal(t, 3, tree.Count)
}

func TestTags_SlashStaysOneSegment(t *testing.T) {
	c := NewTags(stateStore(t), testutil.Logger())
	walk(t, c, art("a", 0, "c/c++"), art("b", 0, "c"), art("d", 0, "50%"))

	tree, err := c.Tree()
	require.NoError(t, err)
	require.Len(t, tree.Children, 3)
	require.Equal(t, 1, tree.Child("c").Count)
	require.Empty(t, tree.Child("c").Children)
	require.Equal(t, 1, tree.Child(TagSegment("c/c++")).Count)
	require.Equal(t, "c%2Fc++", TagSegment("c/c++"))
	require.Equal(t, 1, tree.Child("50%25").Count)
}

func TestArchive_UsesTimezone(t *testing.T) {
	// 2024-03-01 01:30 UTC is still February 29th in New York.
	ts := time.Date(2024, 3, 1, 1, 30, 0, 0, time.UTC).Unix()

	utc := NewArchive(stateStore(t), time.UTC, testutil.Logger())
	walk(t, utc, art("x", ts))
	tree, err := utc.Tree()
	require.NoError(t, err)
	require.NotNil(t, tree.Find("2024/03/01"))

	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	local := NewArchive(stateStore(t), ny, testutil.Logger())
	walk(t, local, art("x", ts))
	tree, err = local.Tree()
	require.NoError(t, err)
	require.NotNil(t, tree.Find("2024/02/29"))
}

func TestUpdate_RemoveUsesStoredKeys(t *testing.T) {
	ctx := context.Background()
	c := NewTags(stateStore(t), testutil.Logger())
	walk(t, c, art("a", 0, "go"), art("b", 0, "go"))

	// The article's tags changed on disk; removal must use the recorded ones.
	require.NoError(t, c.BeginUpdate(ctx))
	require.NoError(t, c.RemoveArticle(ctx, "a"))
	require.NoError(t, c.AddArticle(ctx, art("a", 0, "rust")))
	require.NoError(t, c.CommitUpdate(ctx))

	tree, err := c.Tree()
	require.NoError(t, err)
	require.Equal(t, 1, tree.Child("go").Count)
	require.Equal(t, 1, tree.Child("rust").Count)
}

func TestUpdate_StaleRecordMissing(t *testing.T) {
	ctx := context.Background()
	c := NewCategories(stateStore(t), testutil.Logger())

	// No snapshot on disk: treated as empty.
	require.NoError(t, c.BeginUpdate(ctx))
	err := c.RemoveArticle(ctx, "ghost")
	require.ErrorIs(t, err, apperr.ErrStaleRecordMissing)
	require.NoError(t, c.Abort(ctx))
}

func TestUpdate_AbortKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	c := NewCategories(stateStore(t), testutil.Logger())
	walk(t, c, art("news/a", 0))

	require.NoError(t, c.BeginUpdate(ctx))
	require.NoError(t, c.AddArticle(ctx, art("news/b", 0)))
	require.NoError(t, c.RemoveArticle(ctx, "news/a"))
	require.NoError(t, c.Abort(ctx))

	tree, err := c.Tree()
	require.NoError(t, err)
	require.Equal(t, 1, tree.Find("news").Count)
}

func TestAdd_ReplacesExistingRecord(t *testing.T) {
	ctx := context.Background()
	c := NewCategories(stateStore(t), testutil.Logger())
	walk(t, c, art("news/a", 0))

	require.NoError(t, c.BeginUpdate(ctx))
	require.NoError(t, c.AddArticle(ctx, art("news/a", 0)))
	require.NoError(t, c.CommitUpdate(ctx))

	tree, err := c.Tree()
	require.NoError(t, err)
	require.Equal(t, 1, tree.Count)
}

func TestRemoveOutsideUpdate(t *testing.T) {
	c := NewCategories(stateStore(t), testutil.Logger())
	require.Error(t, c.RemoveArticle(context.Background(), "x"))
}

func TestTree_EmptyWhenNeverFlushed(t *testing.T) {
	tree, err := NewArchive(stateStore(t), nil, testutil.Logger()).Tree()
	require.NoError(t, err)
	require.Equal(t, 0, tree.Count)
	require.Empty(t, tree.Children)
}
