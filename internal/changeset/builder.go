package changeset

// Builder accumulates raw file events between two snapshots. It records
// events as reported; Build normalises the result.
type Builder struct {
	added    set
	modified set
	deleted  set
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	b := &Builder{}
	b.Reset()
	return b
}

// Created records a new file.
func (b *Builder) Created(p string) { b.added.add(p) }

// Written records a content change.
func (b *Builder) Written(p string) { b.modified.add(p) }

// Removed records a deletion, including the old side of a rename.
func (b *Builder) Removed(p string) { b.deleted.add(p) }

// Len returns the number of distinct recorded events.
func (b *Builder) Len() int {
	return len(b.added) + len(b.modified) + len(b.deleted)
}

// Build returns the normalised change set and resets the builder.
func (b *Builder) Build() ChangeSet {
	cs := Normalize(ChangeSet{
		Added:    b.added.sorted(),
		Modified: b.modified.sorted(),
		Deleted:  b.deleted.sorted(),
	})
	b.Reset()
	return cs
}

// Reset discards every recorded event.
func (b *Builder) Reset() {
	b.added, b.modified, b.deleted = make(set), make(set), make(set)
}
