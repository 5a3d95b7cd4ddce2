// Package changeset normalises raw added/modified/deleted/renamed file lists
// reported by a version-control collaborator or a file watcher.
package changeset

import (
	"sort"
	"strings"
)

// ChangeSet is a set of repository-relative, slash-separated paths.
type ChangeSet struct {
	Added    []string          `json:"added,omitempty"`
	Modified []string          `json:"modified,omitempty"`
	Deleted  []string          `json:"deleted,omitempty"`
	Renamed  map[string]string `json:"renamed,omitempty"`
}

// Empty reports whether the change set carries no paths.
func (c ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0 && len(c.Renamed) == 0
}

// Paths returns every path mentioned, including both ends of renames.
func (c ChangeSet) Paths() []string {
	s := make(set)
	s.add(c.Added...)
	s.add(c.Modified...)
	s.add(c.Deleted...)
	for o, n := range c.Renamed {
		s.add(o, n)
	}
	return s.sorted()
}

// Normalize folds renames into a delete of the old path plus an add of the
// new one, dedupes and sorts every list, and drops modified entries that are
// also added or deleted. A path both added and deleted stays in both lists:
// consumers process deletes before adds.
//
// Normalize is idempotent.
func Normalize(c ChangeSet) ChangeSet {
	added, modified, deleted := make(set), make(set), make(set)
	added.add(c.Added...)
	modified.add(c.Modified...)
	deleted.add(c.Deleted...)
	for o, n := range c.Renamed {
		deleted.add(o)
		added.add(n)
	}
	for p := range modified {
		if added.has(p) || deleted.has(p) {
			delete(modified, p)
		}
	}
	return ChangeSet{
		Added:    added.sorted(),
		Modified: modified.sorted(),
		Deleted:  deleted.sorted(),
	}
}

// ContentChanges keeps only paths under root. Paths are not rewritten. A
// rename that crosses the root boundary becomes a plain add or delete.
func ContentChanges(c ChangeSet, root string) ChangeSet {
	out := ChangeSet{
		Added:    filter(c.Added, root),
		Modified: filter(c.Modified, root),
		Deleted:  filter(c.Deleted, root),
	}
	for o, n := range c.Renamed {
		oldIn, newIn := Under(o, root), Under(n, root)
		switch {
		case oldIn && newIn:
			if out.Renamed == nil {
				out.Renamed = make(map[string]string)
			}
			out.Renamed[o] = n
		case oldIn:
			out.Deleted = append(out.Deleted, o)
		case newIn:
			out.Added = append(out.Added, n)
		}
	}
	return out
}

// Under reports whether p lies inside the root directory. An empty root
// contains every path.
func Under(p, root string) bool {
	root = strings.Trim(root, "/")
	if root == "" || root == "." {
		return true
	}
	return strings.HasPrefix(p, root+"/")
}

// Diff derives a change set from two path→checksum snapshots.
func Diff(previous, current map[string]string) ChangeSet {
	var out ChangeSet
	for p, sum := range current {
		prev, ok := previous[p]
		switch {
		case !ok:
			out.Added = append(out.Added, p)
		case prev != sum:
			out.Modified = append(out.Modified, p)
		}
	}
	for p := range previous {
		if _, ok := current[p]; !ok {
			out.Deleted = append(out.Deleted, p)
		}
	}
	return Normalize(out)
}

func filter(paths []string, root string) []string {
	var out []string
	for _, p := range paths {
		if Under(p, root) {
			out = append(out, p)
		}
	}
	return out
}

type set map[string]struct{}

func (s set) add(paths ...string) {
	for _, p := range paths {
		if p != "" {
			s[p] = struct{}{}
		}
	}
}

func (s set) has(p string) bool {
	_, ok := s[p]
	return ok
}

func (s set) sorted() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
