// Package orphan keeps comments that were seen outside a loaded thread, such as
// permalinks and user contribution feeds.
package orphan

import (
	"discussfront/internal/forest"
	"discussfront/internal/model"
)

type entry struct {
	postID  string
	comment *model.Comment // detached copy, may be nil
}

// Registry maps comment ids to their post and an optional detached copy.
// Entries are never evicted proactively. Not safe for concurrent use.
type Registry struct {
	entries map[string]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register records c. The stored copy has no children: an orphan is a single node.
func (r *Registry) Register(c *model.Comment) {
	if c == nil || c.ID == "" {
		return
	}
	r.entries[c.ID] = entry{postID: c.PostID, comment: detach(c)}
}

// RegisterID records that id belongs to postID without keeping a copy.
func (r *Registry) RegisterID(id, postID string) {
	if e, ok := r.entries[id]; ok && e.comment != nil {
		return
	}
	r.entries[id] = entry{postID: postID}
}

// Lookup returns the post of a registered comment.
func (r *Registry) Lookup(id string) (string, bool) {
	e, ok := r.entries[id]
	return e.postID, ok
}

// Get returns the detached copy of id, if one is held.
func (r *Registry) Get(id string) (*model.Comment, bool) {
	e, ok := r.entries[id]
	if !ok || e.comment == nil {
		return nil, false
	}
	return e.comment, true
}

// Put replaces the detached copy of an already registered comment. It is a no-op
// for unknown ids.
func (r *Registry) Put(c *model.Comment) {
	if _, ok := r.entries[c.ID]; !ok {
		return
	}
	r.entries[c.ID] = entry{postID: c.PostID, comment: detach(c)}
}

func (r *Registry) Len() int { return len(r.entries) }

// PseudoForest returns a forest holding only the detached copy of id, and the
// copy's address in it.
func (r *Registry) PseudoForest(id string) (forest.Forest, forest.NodeAddress, bool) {
	c, ok := r.Get(id)
	if !ok {
		return forest.Forest{}, forest.NodeAddress{}, false
	}
	return forest.New().WithPost(c.PostID, []model.Node{c}), forest.At(c.PostID, 0), true
}

// Extract pulls the single node back out of a pseudo-forest and stores it.
func (r *Registry) Extract(f forest.Forest, postID string) {
	roots := f.Get(postID)
	if len(roots) != 1 {
		return
	}
	if c, ok := roots[0].(*model.Comment); ok {
		r.Put(c)
	}
}

// Reconcile refreshes every detached copy of postID's comments from the loaded
// tree. The tree version wins.
func (r *Registry) Reconcile(f forest.Forest, postID string) int {
	n := 0
	for id, e := range r.entries {
		if e.postID != postID || e.comment == nil {
			continue
		}
		addr, ok := f.LocateInPost(postID, id)
		if !ok {
			continue
		}
		if c, ok := f.ResolveComment(addr); ok {
			r.entries[id] = entry{postID: postID, comment: detach(c)}
			n++
		}
	}
	return n
}

func detach(c *model.Comment) *model.Comment {
	cp := c.Clone()
	cp.Children = nil
	return cp
}
