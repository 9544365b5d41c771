// Package store is the single owner of the comment forest, the orphan registry
// and the outstanding optimistic mutations.
//
// Every entry point takes the store lock, derives a complete new forest value
// from the current one and swaps it in, so concurrent callers never see or
// produce a partially applied change. Readers get immutable snapshots.
package store

import (
	"errors"
	"log"
	"sync"

	"discussfront/internal/forest"
	"discussfront/internal/model"
	"discussfront/internal/optimistic"
	"discussfront/internal/orphan"
)

type Store struct {
	mu      sync.Mutex
	forest  forest.Forest
	orphans *orphan.Registry
	mutator *optimistic.Mutator

	// expanded holds, per post, the addresses of placeholders a splice has
	// replaced since the thread was last received.
	expanded map[string]map[string]struct{}
}

func New() *Store {
	return &Store{
		forest:   forest.New(),
		orphans:  orphan.NewRegistry(),
		mutator:  optimistic.NewMutator(),
		expanded: make(map[string]map[string]struct{}),
	}
}

// =============================================================================
// Reads
// =============================================================================

// Snapshot returns the current forest value.
func (s *Store) Snapshot() forest.Forest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forest
}

// Thread returns the root nodes of postID. Empty for a post with no comments and
// for a post that is not loaded; use Loaded to tell them apart.
func (s *Store) Thread(postID string) []model.Node {
	return s.Snapshot().Get(postID)
}

func (s *Store) Loaded(postID string) bool {
	return s.Snapshot().Loaded(postID)
}

// Comment returns a comment by id from a loaded thread, falling back to the
// orphan registry.
func (s *Store) Comment(id string) (*model.Comment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, _, ok := s.forest.Find(id); ok {
		return c, true
	}
	return s.orphans.Get(id)
}

// Placeholder returns the placeholder at addr. An address whose placeholder
// was already expanded reports model.ErrPlaceholderExpanded, any other
// address that holds no placeholder model.ErrNotPlaceholder.
func (s *Store) Placeholder(addr forest.NodeAddress) (*model.MorePlaceholder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.forest.Loaded(addr.PostID) {
		return nil, model.ErrPostNotFound
	}
	n, _ := s.forest.Resolve(addr)
	if ph, ok := n.(*model.MorePlaceholder); ok {
		return ph, nil
	}
	if _, ok := s.expanded[addr.PostID][addr.String()]; ok {
		return nil, model.ErrPlaceholderExpanded
	}
	return nil, model.ErrNotPlaceholder
}

// Pending reports whether a mutation of kind is in flight for commentID.
func (s *Store) Pending(commentID string, kind optimistic.Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mutator.Pending(commentID, kind)
}

// =============================================================================
// Loading
// =============================================================================

// ReceiveThread installs a freshly fetched thread for postID, replacing any
// previous one. Orphan copies of its comments are refreshed from it.
func (s *Store) ReceiveThread(postID string, roots []model.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forest = s.forest.WithPost(postID, roots)
	delete(s.expanded, postID)
	n := s.orphans.Reconcile(s.forest, postID)
	postsLoaded.Set(float64(len(s.forest.Posts())))
	log.Printf("[Store] ReceiveThread OK: post_id=%s roots=%d orphans_reconciled=%d", postID, len(roots), n)
}

// Evict drops postID's thread. Orphans are kept.
func (s *Store) Evict(postID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forest = s.forest.Evict(postID)
	delete(s.expanded, postID)
	postsLoaded.Set(float64(len(s.forest.Posts())))
}

// RegisterOrphans records comments that arrived outside a thread fetch.
func (s *Store) RegisterOrphans(comments ...*model.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range comments {
		s.orphans.Register(c)
	}
	orphansRegistered.Set(float64(s.orphans.Len()))
}

// LookupOrphan returns the post of a comment known only through the registry.
func (s *Store) LookupOrphan(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orphans.Lookup(id)
}

// SpliceMore expands the placeholder at addr with batch. When batch.Origin is
// set, a placeholder moved by sibling inserts or removals since the fetch is
// found again. A placeholder that is already gone makes this a successful no-op.
func (s *Store) SpliceMore(addr forest.NodeAddress, batch forest.Batch) forest.SpliceResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, res := forest.Splice(s.forest, addr, batch)
	s.forest = f
	if !res.Applied {
		splicesTotal.WithLabelValues("stale").Inc()
		log.Printf("[Store] SpliceMore no-op: address=%s placeholder already replaced", addr)
		return res
	}
	if !res.Address.Equal(addr) {
		log.Printf("[Store] SpliceMore: placeholder moved from %s to %s", addr, res.Address)
	}
	if res.Replaced {
		s.markExpanded(addr, res.Address)
	}
	switch {
	case res.Unexpected > 0:
		splicesTotal.WithLabelValues("inconsistent").Inc()
		log.Printf("[Store] SpliceMore: address=%s unexpected=%d", addr, res.Unexpected)
	default:
		splicesTotal.WithLabelValues("applied").Inc()
	}
	spliceInserted.Observe(float64(res.Inserted))
	s.orphans.Reconcile(s.forest, addr.PostID)
	return res
}

func (s *Store) markExpanded(addrs ...forest.NodeAddress) {
	for _, a := range addrs {
		set, ok := s.expanded[a.PostID]
		if !ok {
			set = make(map[string]struct{})
			s.expanded[a.PostID] = set
		}
		set[a.String()] = struct{}{}
	}
}

// =============================================================================
// Optimistic mutations
// =============================================================================

func (s *Store) BeginVote(commentID string) (*model.Comment, *optimistic.PendingMutation, error) {
	return s.begin(commentID, optimistic.KindVote, optimistic.ToggleVote)
}

func (s *Store) BeginSubscribe(commentID string) (*model.Comment, *optimistic.PendingMutation, error) {
	return s.begin(commentID, optimistic.KindSubscribe, optimistic.ToggleSubscribe)
}

func (s *Store) BeginModerationPatch(commentID string, patch optimistic.Moderation) (*model.Comment, *optimistic.PendingMutation, error) {
	return s.begin(commentID, optimistic.KindModeration, patch.Patch())
}

func (s *Store) BeginRemove(commentID string) (*model.Comment, *optimistic.PendingMutation, error) {
	return s.begin(commentID, optimistic.KindRemove, optimistic.Remove)
}

func (s *Store) BeginDelete(commentID string) (*model.Comment, *optimistic.PendingMutation, error) {
	return s.begin(commentID, optimistic.KindDelete, optimistic.Delete)
}

// begin applies patch to the comment in its loaded thread, or to its orphan copy
// when no thread holds it. An unknown comment yields ErrCommentNotFound and no
// local change.
func (s *Store) begin(commentID string, kind optimistic.Kind, patch optimistic.Patch) (*model.Comment, *optimistic.PendingMutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if addr, ok := s.forest.LocateByID(commentID); ok {
		f, token, err := s.mutator.Begin(s.forest, addr, kind, patch)
		if err != nil {
			return nil, nil, s.rejected(kind, commentID, err)
		}
		s.forest = f
		c, _ := f.ResolveComment(addr)
		s.orphans.Put(c)
		s.begun(kind)
		return c, token, nil
	}

	if pf, addr, ok := s.orphans.PseudoForest(commentID); ok {
		f, token, err := s.mutator.Begin(pf, addr, kind, patch)
		if err != nil {
			return nil, nil, s.rejected(kind, commentID, err)
		}
		token.Orphan = true
		s.orphans.Extract(f, token.PostID)
		c, _ := s.orphans.Get(commentID)
		s.begun(kind)
		return c, token, nil
	}

	mutationsTotal.WithLabelValues(kind.String(), outcomeDropped).Inc()
	log.Printf("[Store] Begin %s dropped: comment_id=%s not known locally", kind, commentID)
	return nil, nil, model.ErrCommentNotFound
}

// BeginReplyInsertion inserts a provisional reply under parentID, or at the top
// level of postID when parentID is nil. The reply must carry a temporary id.
func (s *Store) BeginReplyInsertion(postID string, parentID *string, reply *model.Comment) (*model.Comment, *optimistic.PendingMutation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent := forest.Root(postID)
	if parentID != nil {
		addr, ok := s.forest.LocateInPost(postID, *parentID)
		if !ok {
			mutationsTotal.WithLabelValues(optimistic.KindReply.String(), outcomeDropped).Inc()
			log.Printf("[Store] BeginReplyInsertion dropped: post_id=%s parent_id=%s not in a loaded thread", postID, *parentID)
			return nil, nil, model.ErrCommentNotFound
		}
		parent = addr
	}

	f, token, err := s.mutator.BeginReply(s.forest, parent, reply)
	if err != nil {
		if errors.Is(err, model.ErrPostNotFound) {
			mutationsTotal.WithLabelValues(optimistic.KindReply.String(), outcomeDropped).Inc()
			return nil, nil, err
		}
		return nil, nil, s.rejected(optimistic.KindReply, postID, err)
	}
	s.forest = f
	c, _, _ := f.Find(token.CommentID)
	s.begun(optimistic.KindReply)
	return c, token, nil
}

// Confirm applies the server's version of the mutated comment. It returns the
// comment as now held locally.
func (s *Store) Confirm(token *optimistic.PendingMutation, server *model.Comment) (*model.Comment, error) {
	return s.resolve(token, outcomeConfirmed, func(m *optimistic.Mutator, f forest.Forest) (forest.Forest, error) {
		return m.Confirm(f, token, server)
	}, server)
}

// ConfirmDeletion applies a deletion acknowledgment.
func (s *Store) ConfirmDeletion(token *optimistic.PendingMutation) (*model.Comment, error) {
	return s.resolve(token, outcomeConfirmed, func(m *optimistic.Mutator, f forest.Forest) (forest.Forest, error) {
		return m.ConfirmDeletion(f, token)
	}, nil)
}

// Rollback undoes a failed mutation.
func (s *Store) Rollback(token *optimistic.PendingMutation) (*model.Comment, error) {
	return s.resolve(token, outcomeRolledBack, func(m *optimistic.Mutator, f forest.Forest) (forest.Forest, error) {
		return m.Rollback(f, token)
	}, nil)
}

type resolution func(*optimistic.Mutator, forest.Forest) (forest.Forest, error)

// resolve settles token against wherever its comment now lives: the loaded
// thread first, then the orphan copy. When neither holds it the token is
// discarded.
func (s *Store) resolve(token *optimistic.PendingMutation, outcome string, apply resolution, server *model.Comment) (*model.Comment, error) {
	if token == nil {
		return nil, model.ErrUnknownMutation
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() { mutationsPending.Set(float64(s.mutator.Len())) }()

	resultID := token.CommentID
	if token.Kind == optimistic.KindReply && outcome == outcomeConfirmed && server != nil {
		resultID = server.ID
	}

	if _, ok := s.forest.LocateInPost(token.PostID, token.CommentID); ok {
		f, err := apply(s.mutator, s.forest)
		if err != nil {
			log.Printf("[Store] %s %s FAILED: comment_id=%s err=%v", outcome, token.Kind, token.CommentID, err)
			return nil, err
		}
		s.forest = f
		mutationsTotal.WithLabelValues(token.Kind.String(), outcome).Inc()
		c, _, ok := f.Find(resultID)
		if !ok {
			// Rolled back reply.
			return nil, nil
		}
		s.orphans.Put(c)
		return c, nil
	}

	if token.Kind != optimistic.KindReply {
		if pf, _, ok := s.orphans.PseudoForest(token.CommentID); ok {
			f, err := apply(s.mutator, pf)
			if err != nil {
				log.Printf("[Store] %s %s FAILED: orphan comment_id=%s err=%v", outcome, token.Kind, token.CommentID, err)
				return nil, err
			}
			s.orphans.Extract(f, token.PostID)
			mutationsTotal.WithLabelValues(token.Kind.String(), outcome).Inc()
			c, _ := s.orphans.Get(token.CommentID)
			return c, nil
		}
	}

	s.mutator.Discard(token)
	mutationsTotal.WithLabelValues(token.Kind.String(), outcomeDropped).Inc()
	log.Printf("[Store] %s %s dropped: comment_id=%s no longer known locally", outcome, token.Kind, token.CommentID)
	if token.Kind == optimistic.KindReply && server != nil {
		// The thread went away while the reply was in flight. Keep the result
		// reachable as a permalink.
		s.orphans.Register(server)
		orphansRegistered.Set(float64(s.orphans.Len()))
		return server, nil
	}
	return nil, model.ErrCommentNotFound
}

func (s *Store) begun(kind optimistic.Kind) {
	mutationsTotal.WithLabelValues(kind.String(), outcomeBegun).Inc()
	mutationsPending.Set(float64(s.mutator.Len()))
}

func (s *Store) rejected(kind optimistic.Kind, target string, err error) error {
	if errors.Is(err, model.ErrMutationConflict) {
		mutationsTotal.WithLabelValues(kind.String(), outcomeConflict).Inc()
		log.Printf("[Store] Begin %s rejected: target=%s already in flight", kind, target)
	}
	return err
}

// =============================================================================
// Live updates
// =============================================================================

// ApplyRemote refreshes a comment changed by another writer. Comments not known
// locally are ignored. It reports whether anything changed.
func (s *Store) ApplyRemote(c *model.Comment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := false
	if addr, ok := s.forest.LocateInPost(c.PostID, c.ID); ok {
		s.forest = s.forest.ReplaceAt(addr, func(n model.Node) model.Node {
			return n.(*model.Comment).WithAttributes(c)
		})
		applied = true
	}
	if _, ok := s.orphans.Get(c.ID); ok {
		s.orphans.Put(c)
		applied = true
	}
	return applied
}

// InsertRemote adds a comment created by another writer to its loaded thread.
// It is ignored when the thread is not loaded, when the comment is already
// there, or when its parent has not been materialized.
func (s *Store) InsertRemote(c *model.Comment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.forest.Loaded(c.PostID) {
		return false
	}
	if _, ok := s.forest.LocateInPost(c.PostID, c.ID); ok {
		return false
	}
	parent := forest.Root(c.PostID)
	if c.ParentID != nil {
		addr, ok := s.forest.LocateInPost(c.PostID, *c.ParentID)
		if !ok {
			return false
		}
		parent = addr
	}
	node := c.Clone()
	node.Children = nil
	node.Provisional = false
	s.forest = s.forest.AppendChild(parent, node)
	return true
}

// MarkDeleted sets the deleted flag on a comment removed by another writer.
func (s *Store) MarkDeleted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := false
	if c, addr, ok := s.forest.Find(id); ok && !c.Deleted {
		s.forest = s.forest.ReplaceAt(addr, func(n model.Node) model.Node {
			return optimistic.Delete(n.(*model.Comment))
		})
		applied = true
	}
	if c, ok := s.orphans.Get(id); ok && !c.Deleted {
		s.orphans.Put(optimistic.Delete(c))
		applied = true
	}
	return applied
}
