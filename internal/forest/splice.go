package forest

import "discussfront/internal/model"

// SpliceResult describes what Splice did.
type SpliceResult struct {
	// Applied is false when the placeholder is no longer present and nothing changed.
	Applied bool
	// Replaced is true when the placeholder was swapped for new nodes.
	Replaced bool
	// Address is where the placeholder was found. It differs from the requested
	// address when siblings were inserted or removed since the fetch started.
	Address NodeAddress
	// Inserted counts the top-level comments added in place of the placeholder.
	Inserted int
	// Unexpected counts inserted comments whose ids the placeholder did not list.
	Unexpected int
	// Skipped counts batch comments dropped because they were already materialized
	// or belonged under a different parent.
	Skipped int
	// Remaining is the number of ids left in the replacement placeholder.
	Remaining int
}

// Splice expands the placeholder at addr with a fetched batch.
//
// The placeholder is replaced by the batch comments it listed, in batch order,
// followed by comments it did not list (tolerated server inconsistency), followed
// by a placeholder for the ids the batch did not cover. Top-level "more" records of
// the batch are ignored: what remains is computed from the placeholder alone.
//
// When the placeholder is no longer present, for instance because an earlier
// response for the same click was already spliced, Splice returns f unchanged.
// See Batch.Origin for how a placeholder that moved is found again.
func Splice(f Forest, addr NodeAddress, batch Batch) (Forest, SpliceResult) {
	addr, ph, ok := findPlaceholder(f, addr, batch)
	if !ok {
		return f, SpliceResult{}
	}

	seen := f.CommentIDs(addr.PostID)
	listed := make(map[string]struct{}, len(ph.RemainingIDs))
	for _, id := range ph.RemainingIDs {
		listed[id] = struct{}{}
	}

	res := SpliceResult{Address: addr}
	covered := make(map[string]struct{}, len(batch.Comments)+len(batch.Missing))
	for _, id := range batch.Missing {
		covered[id] = struct{}{}
	}
	var fetched, extra []model.Node
	for _, c := range batch.Comments {
		covered[c.ID] = struct{}{}
		if _, dup := seen[c.ID]; dup || !model.SameParent(c.ParentID, ph.ParentID) || c.PostID != ph.PostID {
			res.Skipped++
			continue
		}
		c = dedupe(c, seen)
		if _, ok := listed[c.ID]; ok {
			fetched = append(fetched, c)
		} else {
			extra = append(extra, c)
		}
	}

	var remaining []string
	for _, id := range ph.RemainingIDs {
		if _, ok := covered[id]; !ok {
			remaining = append(remaining, id)
		}
	}

	if len(fetched)+len(extra) == 0 && len(remaining) == len(ph.RemainingIDs) {
		res.Applied = true
		res.Remaining = len(remaining)
		return f, res
	}

	nodes := append(fetched, extra...)
	res.Applied = true
	res.Replaced = true
	res.Inserted = len(nodes)
	res.Unexpected = len(extra)
	res.Remaining = len(remaining)
	return f.InsertChildren(addr, nodes, remaining), res
}

// findPlaceholder returns the placeholder batch belongs to. Without an origin
// only addr is tried. With one, the node at addr must be a placeholder under
// the origin's parent that still lists an id of the batch; otherwise the
// parent's children are searched for such a placeholder.
func findPlaceholder(f Forest, addr NodeAddress, batch Batch) (NodeAddress, *model.MorePlaceholder, bool) {
	n, _ := f.Resolve(addr)
	ph, isPh := n.(*model.MorePlaceholder)
	if batch.Origin == nil {
		return addr, ph, isPh
	}

	covered := batch.coveredIDs()
	matches := func(p *model.MorePlaceholder) bool {
		if !model.SameParent(p.ParentID, batch.Origin.ParentID) {
			return false
		}
		if len(covered) == 0 {
			return true
		}
		for _, id := range p.RemainingIDs {
			if _, ok := covered[id]; ok {
				return true
			}
		}
		return false
	}
	if isPh && matches(ph) {
		return addr, ph, true
	}

	parent := Root(addr.PostID)
	siblings := f.Get(addr.PostID)
	if pid := batch.Origin.ParentID; pid != nil {
		pa, ok := f.LocateInPost(addr.PostID, *pid)
		if !ok {
			return addr, nil, false
		}
		c, _ := f.ResolveComment(pa)
		parent, siblings = pa, c.Children
	}
	for i, n := range siblings {
		if p, ok := n.(*model.MorePlaceholder); ok && matches(p) {
			return parent.Child(i), p, true
		}
	}
	return addr, nil, false
}

// dedupe marks c and its descendants as seen, pruning descendants whose ids were
// already materialized.
func dedupe(c *model.Comment, seen map[string]struct{}) *model.Comment {
	seen[c.ID] = struct{}{}
	if len(c.Children) == 0 {
		return c
	}
	kids := make([]model.Node, 0, len(c.Children))
	changed := false
	for _, n := range c.Children {
		child, ok := n.(*model.Comment)
		if !ok {
			kids = append(kids, n)
			continue
		}
		if _, dup := seen[child.ID]; dup {
			changed = true
			continue
		}
		d := dedupe(child, seen)
		if d != child {
			changed = true
		}
		kids = append(kids, d)
	}
	if !changed {
		return c
	}
	cp := c.Clone()
	cp.Children = kids
	return cp
}
