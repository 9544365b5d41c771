// Package forest holds the normalized comment forest: one ordered list of root nodes
// per post, each node a comment or a "load more" placeholder.
//
// A Forest is an immutable value. Every operation that changes it returns a new
// Forest which copies only the path from the post's root list down to the changed
// node and shares every untouched sibling subtree, so callers can compare node
// pointers to find what changed.
package forest

import (
	"sort"

	"discussfront/internal/model"
)

// Forest maps post ids to their ordered root nodes.
type Forest struct {
	posts map[string][]model.Node
}

// New returns an empty forest.
func New() Forest {
	return Forest{posts: map[string][]model.Node{}}
}

// Get returns the root nodes of a post. The result is empty when the post has no
// loaded comments and must not be modified.
func (f Forest) Get(postID string) []model.Node {
	return f.posts[postID]
}

// Loaded reports whether a tree was installed for the post, even an empty one.
func (f Forest) Loaded(postID string) bool {
	_, ok := f.posts[postID]
	return ok
}

// Posts returns the ids of all loaded posts in sorted order.
func (f Forest) Posts() []string {
	ids := make([]string, 0, len(f.posts))
	for id := range f.posts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// WithPost returns a forest with the post's roots replaced by roots.
func (f Forest) WithPost(postID string, roots []model.Node) Forest {
	if roots == nil {
		roots = []model.Node{}
	}
	return f.with(postID, roots)
}

// Evict returns a forest without the post.
func (f Forest) Evict(postID string) Forest {
	if _, ok := f.posts[postID]; !ok {
		return f
	}
	posts := make(map[string][]model.Node, len(f.posts))
	for id, roots := range f.posts {
		if id != postID {
			posts[id] = roots
		}
	}
	return Forest{posts: posts}
}

func (f Forest) with(postID string, roots []model.Node) Forest {
	posts := make(map[string][]model.Node, len(f.posts)+1)
	for id, r := range f.posts {
		posts[id] = r
	}
	posts[postID] = roots
	return Forest{posts: posts}
}

// Resolve returns the node at addr. The root list is not a node, so a root
// address never resolves.
func (f Forest) Resolve(addr NodeAddress) (model.Node, bool) {
	if addr.IsRoot() {
		return nil, false
	}
	nodes, ok := f.posts[addr.PostID]
	if !ok {
		return nil, false
	}
	for depth, idx := range addr.Path {
		if idx < 0 || idx >= len(nodes) {
			return nil, false
		}
		n := nodes[idx]
		if depth == len(addr.Path)-1 {
			return n, true
		}
		c, ok := n.(*model.Comment)
		if !ok {
			return nil, false
		}
		nodes = c.Children
	}
	return nil, false
}

// ResolveComment is Resolve restricted to comments.
func (f Forest) ResolveComment(addr NodeAddress) (*model.Comment, bool) {
	n, ok := f.Resolve(addr)
	if !ok {
		return nil, false
	}
	c, ok := n.(*model.Comment)
	return c, ok
}

// ReplaceAt returns a forest in which the node at addr is replaced by
// updater(node). Ancestors along the path are copied; everything else is shared.
//
// An address that does not resolve, or an updater that changes a comment's id or
// post, panics with *StructuralError.
func (f Forest) ReplaceAt(addr NodeAddress, updater func(model.Node) model.Node) Forest {
	nodes, ok := f.posts[addr.PostID]
	if !ok || addr.IsRoot() {
		structural("ReplaceAt", addr, "address does not resolve")
	}
	roots, ok := replaceIn(nodes, addr.Path, func(old model.Node) model.Node {
		updated := updater(old)
		checkIdentity(addr, old, updated)
		return updated
	})
	if !ok {
		structural("ReplaceAt", addr, "address does not resolve")
	}
	return f.with(addr.PostID, roots)
}

// ReplaceChildren returns a forest in which the sibling list under parent is
// replaced by updater(children). A root address replaces the post's root list.
// The updater must build a new slice instead of writing into the one it receives.
func (f Forest) ReplaceChildren(parent NodeAddress, updater func([]model.Node) []model.Node) Forest {
	if parent.IsRoot() {
		roots, ok := f.posts[parent.PostID]
		if !ok {
			structural("ReplaceChildren", parent, "post is not loaded")
		}
		return f.with(parent.PostID, updater(roots))
	}
	return f.ReplaceAt(parent, func(n model.Node) model.Node {
		c, ok := n.(*model.Comment)
		if !ok {
			structural("ReplaceChildren", parent, "parent is not a comment")
		}
		cp := c.Clone()
		cp.Children = updater(c.Children)
		return cp
	})
}

// AppendChild adds node under parent after the materialized children and before
// a trailing placeholder. A root parent appends a top-level node.
func (f Forest) AppendChild(parent NodeAddress, node model.Node) Forest {
	return f.ReplaceChildren(parent, func(siblings []model.Node) []model.Node {
		out := make([]model.Node, 0, len(siblings)+1)
		n := len(siblings)
		if n > 0 {
			if _, ok := siblings[n-1].(*model.MorePlaceholder); ok {
				out = append(out, siblings[:n-1]...)
				return append(out, node, siblings[n-1])
			}
		}
		out = append(out, siblings...)
		return append(out, node)
	})
}

// InsertChildren replaces the placeholder at addr with nodes, followed by a smaller
// placeholder holding remaining when remaining is not empty. Siblings before and
// after the placeholder keep their order.
func (f Forest) InsertChildren(addr NodeAddress, nodes []model.Node, remaining []string) Forest {
	n, ok := f.Resolve(addr)
	if !ok {
		structural("InsertChildren", addr, "address does not resolve")
	}
	ph, ok := n.(*model.MorePlaceholder)
	if !ok {
		structural("InsertChildren", addr, "node is not a placeholder")
	}
	idx := addr.Index()
	return f.ReplaceChildren(addr.Parent(), func(siblings []model.Node) []model.Node {
		out := make([]model.Node, 0, len(siblings)-1+len(nodes)+1)
		out = append(out, siblings[:idx]...)
		out = append(out, nodes...)
		if next := shrink(ph, remaining); next != nil {
			out = append(out, next)
		}
		return append(out, siblings[idx+1:]...)
	})
}

// shrink builds the placeholder left after part of ph was fetched, or nil.
func shrink(ph *model.MorePlaceholder, remaining []string) *model.MorePlaceholder {
	if len(remaining) == 0 {
		return nil
	}
	ids := make([]string, len(remaining))
	copy(ids, remaining)
	count := ph.Count - (len(ph.RemainingIDs) - len(remaining))
	if count < len(ids) {
		count = len(ids)
	}
	return &model.MorePlaceholder{
		PostID:       ph.PostID,
		ParentID:     ph.ParentID,
		RemainingIDs: ids,
		Count:        count,
	}
}

func replaceIn(nodes []model.Node, path []int, updater func(model.Node) model.Node) ([]model.Node, bool) {
	idx := path[0]
	if idx < 0 || idx >= len(nodes) {
		return nil, false
	}
	var updated model.Node
	if len(path) == 1 {
		updated = updater(nodes[idx])
	} else {
		c, ok := nodes[idx].(*model.Comment)
		if !ok {
			return nil, false
		}
		children, ok := replaceIn(c.Children, path[1:], updater)
		if !ok {
			return nil, false
		}
		cp := c.Clone()
		cp.Children = children
		updated = cp
	}
	out := make([]model.Node, len(nodes))
	copy(out, nodes)
	out[idx] = updated
	return out, true
}

func checkIdentity(addr NodeAddress, old, updated model.Node) {
	switch o := old.(type) {
	case *model.Comment:
		u, ok := updated.(*model.Comment)
		if !ok {
			structural("ReplaceAt", addr, "comment %s replaced by a non-comment", o.ID)
		}
		if u.ID != o.ID || u.PostID != o.PostID {
			structural("ReplaceAt", addr, "identity changed from %s/%s to %s/%s", o.PostID, o.ID, u.PostID, u.ID)
		}
	case *model.MorePlaceholder:
		u, ok := updated.(*model.MorePlaceholder)
		if !ok || u.PostID != o.PostID {
			structural("ReplaceAt", addr, "placeholder replaced by a different node")
		}
	}
}
