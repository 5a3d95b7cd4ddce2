// Package hierarchy implements a recursive counter keyed by slash-delimited
// paths. The same structure backs category, tag and date-archive counts.
package hierarchy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/disiqueira/gotree/v3"

	"github.com/starford/folio/internal/apperr"
)

// Count is one node of the tree. Count is the number of items counted at or
// below the node. Each node owns its children; child categories are unique.
type Count struct {
	Category string   `json:"category"`
	Count    int      `json:"count"`
	Children []*Count `json:"children,omitempty"`
}

// New returns an empty root node.
func New() *Count {
	return &Count{}
}

// Split turns a path into its non-empty segments. The empty path addresses
// the root.
func Split(path string) []string {
	var out []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// Child returns the direct child with the given category, or nil.
func (c *Count) Child(segment string) *Count {
	for _, ch := range c.Children {
		if ch.Category == segment {
			return ch
		}
	}
	return nil
}

// Find follows path from c and returns the node, or nil.
func (c *Count) Find(path string) *Count {
	node := c
	for _, seg := range Split(path) {
		if node = node.Child(seg); node == nil {
			return nil
		}
	}
	return node
}

// Direct returns the number of items counted at this node itself.
func (c *Count) Direct() int {
	n := c.Count
	for _, ch := range c.Children {
		n -= ch.Count
	}
	return n
}

// Add counts one item at path, creating missing nodes along the way.
func (c *Count) Add(path string) {
	node := c
	node.Count++
	for _, seg := range Split(path) {
		next := node.Child(seg)
		if next == nil {
			next = &Count{Category: seg}
			node.Children = append(node.Children, next)
		}
		next.Count++
		node = next
	}
}

// Remove uncounts one item at path and prunes children whose count drops
// to zero. Removing an item that was never added fails with
// ErrCounterUnderflow and leaves the tree untouched.
func (c *Count) Remove(path string) error {
	segs := Split(path)
	chain := make([]*Count, 0, len(segs)+1)
	chain = append(chain, c)
	node := c
	for _, seg := range segs {
		if node = node.Child(seg); node == nil {
			return fmt.Errorf("%w: %q not counted", apperr.ErrCounterUnderflow, path)
		}
		chain = append(chain, node)
	}
	if node.Direct() < 1 {
		return fmt.Errorf("%w: no item counted at %q", apperr.ErrCounterUnderflow, path)
	}

	for _, n := range chain {
		n.Count--
	}
	for i := len(chain) - 1; i > 0; i-- {
		if chain[i].Count > 0 {
			break
		}
		chain[i-1].removeChild(chain[i].Category)
	}
	return nil
}

func (c *Count) removeChild(segment string) {
	for i, ch := range c.Children {
		if ch.Category == segment {
			c.Children = append(c.Children[:i], c.Children[i+1:]...)
			return
		}
	}
}

// Sort orders children by category at every level; reverse sorts
// descending (e.g. newest year first in archives).
func (c *Count) Sort(reverse bool) {
	sort.SliceStable(c.Children, func(i, j int) bool {
		if reverse {
			return c.Children[i].Category > c.Children[j].Category
		}
		return c.Children[i].Category < c.Children[j].Category
	})
	for _, ch := range c.Children {
		ch.Sort(reverse)
	}
}

// Equal compares two trees ignoring child order.
func (c *Count) Equal(other *Count) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.Category != other.Category || c.Count != other.Count || len(c.Children) != len(other.Children) {
		return false
	}
	for _, ch := range c.Children {
		if !ch.Equal(other.Child(ch.Category)) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy.
func (c *Count) Clone() *Count {
	out := &Count{Category: c.Category, Count: c.Count}
	for _, ch := range c.Children {
		out.Children = append(out.Children, ch.Clone())
	}
	return out
}

// Render draws the tree with counts, labelling the root with label.
func (c *Count) Render(label string) string {
	root := gotree.New(fmt.Sprintf("%s (%d)", label, c.Count))
	c.renderChildren(root)
	return root.Print()
}

func (c *Count) renderChildren(t gotree.Tree) {
	for _, ch := range c.Children {
		ch.renderChildren(t.Add(fmt.Sprintf("%s (%d)", ch.Category, ch.Count)))
	}
}
