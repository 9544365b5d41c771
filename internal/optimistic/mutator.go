// Package optimistic applies speculative comment mutations to a forest and
// reconciles them with the server's answer.
package optimistic

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"discussfront/internal/forest"
	"discussfront/internal/model"
)

// PendingMutation is the token of one outstanding request. It lives until the
// mutation is confirmed, rolled back or discarded.
type PendingMutation struct {
	ID        string
	Kind      Kind
	CommentID string
	PostID    string
	// Address is where the node was at Begin time. It may be stale by the time the
	// request resolves; resolution always re-locates the node by id.
	Address forest.NodeAddress
	// Previous is the node before the patch. Nil for replies.
	Previous *model.Comment
	// ParentKey identifies the reply target for KindReply.
	ParentKey string
	// Orphan is set by the owner when the mutation was applied to a detached copy
	// instead of a loaded tree.
	Orphan    bool
	StartedAt time.Time
}

type flightKey struct {
	target string
	kind   Kind
}

// Mutator tracks outstanding mutations. It is not safe for concurrent use; the
// store serializes access to it.
type Mutator struct {
	pending map[flightKey]*PendingMutation
	now     func() time.Time
}

func NewMutator() *Mutator {
	return &Mutator{
		pending: make(map[flightKey]*PendingMutation),
		now:     time.Now,
	}
}

// Begin applies patch to the comment at addr and returns the patched forest with
// a token. A second Begin for the same comment and kind is rejected with
// model.ErrMutationConflict before anything changes. Remove and moderation
// count as one kind here.
func (m *Mutator) Begin(f forest.Forest, addr forest.NodeAddress, kind Kind, patch Patch) (forest.Forest, *PendingMutation, error) {
	if kind == KindReply {
		return f, nil, fmt.Errorf("begin %s: use BeginReply", kind)
	}
	c, ok := f.ResolveComment(addr)
	if !ok {
		return f, nil, model.ErrCommentNotFound
	}
	key := flightKey{target: c.ID, kind: kind.flight()}
	if _, busy := m.pending[key]; busy {
		return f, nil, model.ErrMutationConflict
	}

	g := f.ReplaceAt(addr, func(n model.Node) model.Node {
		return patch(n.(*model.Comment))
	})
	token := &PendingMutation{
		ID:        uuid.NewString(),
		Kind:      kind,
		CommentID: c.ID,
		PostID:    c.PostID,
		Address:   addr,
		Previous:  c,
		StartedAt: m.now(),
	}
	m.pending[key] = token
	return g, token, nil
}

// BeginReply inserts reply as a provisional child of parent, after the
// materialized children and before a trailing placeholder. A root parent
// address makes it a top-level comment. One reply per parent may be in flight.
func (m *Mutator) BeginReply(f forest.Forest, parent forest.NodeAddress, reply *model.Comment) (forest.Forest, *PendingMutation, error) {
	parentKey := "post:" + parent.PostID
	if !parent.IsRoot() {
		p, ok := f.ResolveComment(parent)
		if !ok {
			return f, nil, model.ErrCommentNotFound
		}
		parentKey = p.ID
	} else if !f.Loaded(parent.PostID) {
		return f, nil, model.ErrPostNotFound
	}
	key := flightKey{target: parentKey, kind: KindReply}
	if _, busy := m.pending[key]; busy {
		return f, nil, model.ErrMutationConflict
	}

	node := reply.Clone()
	node.Provisional = true
	node.PostID = parent.PostID
	node.Children = nil
	g := f.AppendChild(parent, node)
	token := &PendingMutation{
		ID:        uuid.NewString(),
		Kind:      KindReply,
		CommentID: node.ID,
		PostID:    node.PostID,
		Address:   parent,
		ParentKey: parentKey,
		StartedAt: m.now(),
	}
	m.pending[key] = token
	return g, token, nil
}

// Confirm replaces the node's attributes with the server's version. Children are
// kept. The node is located by id, so a splice since Begin does not matter.
func (m *Mutator) Confirm(f forest.Forest, token *PendingMutation, server *model.Comment) (forest.Forest, error) {
	if err := m.release(token); err != nil {
		return f, err
	}
	if token.Kind == KindReply {
		return confirmReply(f, token, server)
	}
	if server.ID != token.CommentID || server.PostID != token.PostID {
		return f, fmt.Errorf("confirm %s %s: server returned comment %s of post %s",
			token.Kind, token.CommentID, server.ID, server.PostID)
	}
	addr, ok := f.LocateInPost(token.PostID, token.CommentID)
	if !ok {
		return f, model.ErrCommentNotFound
	}
	return f.ReplaceAt(addr, func(n model.Node) model.Node {
		return n.(*model.Comment).WithAttributes(server)
	}), nil
}

// ConfirmDeletion handles a deletion acknowledgment, which carries only the id.
func (m *Mutator) ConfirmDeletion(f forest.Forest, token *PendingMutation) (forest.Forest, error) {
	if err := m.release(token); err != nil {
		return f, err
	}
	addr, ok := f.LocateInPost(token.PostID, token.CommentID)
	if !ok {
		return f, model.ErrCommentNotFound
	}
	return f.ReplaceAt(addr, func(n model.Node) model.Node {
		return Delete(n.(*model.Comment))
	}), nil
}

// Rollback undoes the speculative change. For attribute mutations only the
// fields owned by the token's kind are restored from the snapshot.
func (m *Mutator) Rollback(f forest.Forest, token *PendingMutation) (forest.Forest, error) {
	if err := m.release(token); err != nil {
		return f, err
	}
	addr, ok := f.LocateInPost(token.PostID, token.CommentID)
	if !ok {
		return f, model.ErrCommentNotFound
	}
	if token.Kind == KindReply {
		return removeAt(f, addr), nil
	}
	return f.ReplaceAt(addr, func(n model.Node) model.Node {
		return token.Kind.restore(n.(*model.Comment), token.Previous)
	}), nil
}

// Discard forgets token without touching any forest. Used when the node is no
// longer known locally.
func (m *Mutator) Discard(token *PendingMutation) {
	_ = m.release(token)
}

// Pending reports whether a mutation of kind is outstanding for target, which is
// a comment id, or the parent id for replies.
func (m *Mutator) Pending(target string, kind Kind) bool {
	_, ok := m.pending[flightKey{target: target, kind: kind.flight()}]
	return ok
}

func (m *Mutator) Len() int { return len(m.pending) }

func (m *Mutator) release(token *PendingMutation) error {
	if token == nil {
		return model.ErrUnknownMutation
	}
	key := flightKey{target: token.CommentID, kind: token.Kind.flight()}
	if token.Kind == KindReply {
		key.target = token.ParentKey
	}
	if m.pending[key] != token {
		return model.ErrUnknownMutation
	}
	delete(m.pending, key)
	return nil
}

func confirmReply(f forest.Forest, token *PendingMutation, server *model.Comment) (forest.Forest, error) {
	addr, ok := f.LocateInPost(token.PostID, token.CommentID)
	if !ok {
		return f, model.ErrCommentNotFound
	}
	// A live update may have materialized the real comment already.
	if _, dup := f.LocateInPost(token.PostID, server.ID); dup {
		return removeAt(f, addr), nil
	}
	confirmed := server.Clone()
	confirmed.Provisional = false
	confirmed.Children = nil
	idx := addr.Index()
	return f.ReplaceChildren(addr.Parent(), func(siblings []model.Node) []model.Node {
		out := make([]model.Node, len(siblings))
		copy(out, siblings)
		out[idx] = confirmed
		return out
	}), nil
}

func removeAt(f forest.Forest, addr forest.NodeAddress) forest.Forest {
	idx := addr.Index()
	return f.ReplaceChildren(addr.Parent(), func(siblings []model.Node) []model.Node {
		out := make([]model.Node, 0, len(siblings)-1)
		out = append(out, siblings[:idx]...)
		return append(out, siblings[idx+1:]...)
	})
}
