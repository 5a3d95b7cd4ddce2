package index

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/starford/folio/internal/apperr"
)

func TestConsumer_WalkPublishesOnPostWalk(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustAdd(t, db, doc{fullname: "stale"})

	c := NewConsumer(db, DefaultSchema(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := c.PreWalk(ctx); err != nil {
		t.Fatalf("PreWalk: %v", err)
	}
	if err := c.VisitArticle(ctx, makeArticle(doc{fullname: "fresh"})); err != nil {
		t.Fatalf("VisitArticle: %v", err)
	}
	got, _ := db.Search(ctx, "", "", false)
	if !equalStrings(fullnames(got), []string{"stale"}) {
		t.Fatalf("walk visible before PostWalk: %v", fullnames(got))
	}
	if err := c.PostWalk(ctx); err != nil {
		t.Fatalf("PostWalk: %v", err)
	}
	got, _ = db.Search(ctx, "", "", false)
	if !equalStrings(fullnames(got), []string{"fresh"}) {
		t.Errorf("after walk = %v, want [fresh]", fullnames(got))
	}
}

func TestConsumer_UpdateAndAbort(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	mustAdd(t, db, doc{fullname: "a"}, doc{fullname: "b"})
	c := NewConsumer(db, DefaultSchema(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := c.BeginUpdate(ctx); err != nil {
		t.Fatalf("BeginUpdate: %v", err)
	}
	if err := c.RemoveArticle(ctx, "a"); err != nil {
		t.Fatalf("RemoveArticle: %v", err)
	}
	if err := c.AddArticle(ctx, makeArticle(doc{fullname: "c"})); err != nil {
		t.Fatalf("AddArticle: %v", err)
	}
	if err := c.RemoveArticle(ctx, "missing"); !errors.Is(err, apperr.ErrStaleRecordMissing) {
		t.Fatalf("stale remove err = %v", err)
	}
	if err := c.Abort(ctx); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	got, _ := db.Search(ctx, "", "", false)
	if !equalStrings(fullnames(got), []string{"a", "b"}) {
		t.Fatalf("after abort = %v, want [a b]", fullnames(got))
	}

	_ = c.BeginUpdate(ctx)
	_ = c.RemoveArticle(ctx, "a")
	_ = c.AddArticle(ctx, makeArticle(doc{fullname: "c"}))
	if err := c.CommitUpdate(ctx); err != nil {
		t.Fatalf("CommitUpdate: %v", err)
	}
	got, _ = db.Search(ctx, "", "", false)
	if !equalStrings(fullnames(got), []string{"b", "c"}) {
		t.Errorf("after update = %v, want [b c]", fullnames(got))
	}
}

func TestConsumer_UpdateRejectsChangedSchema(t *testing.T) {
	db := testDB(t)
	s := Schema{Fields: []Field{{Name: "title", Type: FieldText}}}
	c := NewConsumer(db, s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := c.BeginUpdate(context.Background()); !errors.Is(err, apperr.ErrSchemaMismatch) {
		t.Errorf("BeginUpdate err = %v, want ErrSchemaMismatch", err)
	}
}
