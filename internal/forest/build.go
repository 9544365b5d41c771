package forest

import "discussfront/internal/model"

// Batch is a fetched set of comment records assembled into subtrees. Comments are
// the top-level subtrees of the batch, i.e. records whose parent is not part of the
// batch. More merges the top-level "more" records, if any.
type Batch struct {
	Comments []*model.Comment
	More     *model.MorePlaceholder

	// Missing lists requested ids the backend could not return. Splice drops
	// them from the placeholder like fetched ids.
	Missing []string

	// Origin is the placeholder the batch was fetched for, as it was when the
	// request went out. When set, Splice finds the placeholder again by parent
	// and remaining ids if sibling insertions moved it away from its address.
	Origin *model.MorePlaceholder
}

// coveredIDs returns the ids the batch accounts for: fetched top-level
// comments and missing ids.
func (b Batch) coveredIDs() map[string]struct{} {
	out := make(map[string]struct{}, len(b.Comments)+len(b.Missing))
	for _, c := range b.Comments {
		out[c.ID] = struct{}{}
	}
	for _, id := range b.Missing {
		out[id] = struct{}{}
	}
	return out
}

// Nodes returns the batch as a sibling list: comments, then the placeholder.
func (b Batch) Nodes() []model.Node {
	nodes := make([]model.Node, 0, len(b.Comments)+1)
	for _, c := range b.Comments {
		nodes = append(nodes, c)
	}
	if b.More != nil {
		nodes = append(nodes, b.More)
	}
	return nodes
}

// Assemble turns a flat, ordered list of records into subtrees. A record is nested
// under another record of the batch when its parent id names it; all other records
// are top level. Record order is kept among siblings, comments come before the
// placeholder, and several "more" records under one parent are merged.
// Duplicate comment ids keep their first occurrence.
func Assemble(records []model.CommentRecord) Batch {
	byID := make(map[string]int, len(records))
	for i, r := range records {
		if r.IsMore() || r.ID == "" {
			continue
		}
		if _, dup := byID[r.ID]; !dup {
			byID[r.ID] = i
		}
	}

	children := make(map[string][]int)
	var top []int
	for i, r := range records {
		if !r.IsMore() {
			if first, ok := byID[r.ID]; !ok || first != i {
				continue
			}
		}
		if r.ParentID != nil && *r.ParentID != r.ID {
			if _, ok := byID[*r.ParentID]; ok {
				children[*r.ParentID] = append(children[*r.ParentID], i)
				continue
			}
		}
		top = append(top, i)
	}

	a := assembler{records: records, children: children, visiting: map[string]bool{}}
	comments, more := a.list(top)
	return Batch{Comments: comments, More: more}
}

type assembler struct {
	records  []model.CommentRecord
	children map[string][]int
	visiting map[string]bool
}

func (a *assembler) list(idxs []int) ([]*model.Comment, *model.MorePlaceholder) {
	var comments []*model.Comment
	var more *model.MorePlaceholder
	for _, i := range idxs {
		r := a.records[i]
		if r.IsMore() {
			more = mergeMore(more, r.ToPlaceholder())
			continue
		}
		if a.visiting[r.ID] {
			continue
		}
		comments = append(comments, a.build(r))
	}
	return comments, more
}

func (a *assembler) build(r model.CommentRecord) *model.Comment {
	a.visiting[r.ID] = true
	c := r.ToComment()
	kids, more := a.list(a.children[r.ID])
	if len(kids) > 0 || more != nil {
		c.Children = Batch{Comments: kids, More: more}.Nodes()
	}
	return c
}

func mergeMore(into, next *model.MorePlaceholder) *model.MorePlaceholder {
	if next == nil {
		return into
	}
	if into == nil {
		return next
	}
	seen := make(map[string]struct{}, len(into.RemainingIDs))
	ids := make([]string, 0, len(into.RemainingIDs)+len(next.RemainingIDs))
	for _, id := range into.RemainingIDs {
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, id := range next.RemainingIDs {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	return &model.MorePlaceholder{
		PostID:       into.PostID,
		ParentID:     into.ParentID,
		RemainingIDs: ids,
		Count:        into.Count + next.Count,
	}
}
