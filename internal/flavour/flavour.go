// Package flavour computes the ordered list of template candidates for an
// article rendered in a given flavour.
package flavour

import (
	"path"
	"strings"
)

// DefaultTemplate is the fallback template name when none is configured.
const DefaultTemplate = "article"

// Resolver produces template candidates. It performs no file checks.
type Resolver struct {
	defaultName string
}

// NewResolver returns a Resolver using defaultName for category and global
// fallbacks.
func NewResolver(defaultName string) *Resolver {
	if defaultName == "" {
		defaultName = DefaultTemplate
	}
	return &Resolver{defaultName: defaultName}
}

// Candidates returns template identifiers, most specific first: the
// per-article override, then the default template of each ancestor
// category from the parent upwards, then the global default.
func (r *Resolver) Candidates(fullname, flavour string) []string {
	fullname = strings.Trim(fullname, "/")
	leaf := r.defaultName + "." + flavour

	out := []string{fullname + "." + flavour}
	for dir := path.Dir(fullname); dir != "." && dir != "/" && dir != ""; dir = path.Dir(dir) {
		out = append(out, dir+"/"+leaf)
	}
	return append(out, leaf)
}
