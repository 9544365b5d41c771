package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discussfront/internal/forest"
	"discussfront/internal/model"
	"discussfront/internal/optimistic"
)

func strPtr(s string) *string { return &s }

func ids(nodes []model.Node) []string {
	var out []string
	for _, n := range nodes {
		switch v := n.(type) {
		case *model.Comment:
			out = append(out, v.ID)
		case *model.MorePlaceholder:
			out = append(out, "more")
		}
	}
	return out
}

// scenarioStore holds P1: C1 (score 5, not upvoted) and more[C2, C3].
func scenarioStore() *Store {
	s := New()
	s.ReceiveThread("P1", []model.Node{
		&model.Comment{ID: "C1", PostID: "P1", Score: 5},
		&model.MorePlaceholder{PostID: "P1", RemainingIDs: []string{"C2", "C3"}, Count: 2},
	})
	return s
}

// =============================================================================
// Scenario
// =============================================================================

func TestStore_VoteLoadMoreRollbackScenario(t *testing.T) {
	s := scenarioStore()

	// beginVote(C1)
	c1, token, err := s.BeginVote("C1")
	require.NoError(t, err)
	assert.Equal(t, 6, c1.Score)
	assert.True(t, c1.Upvoted)

	// loadMore with batch [C2]
	before := s.Thread("P1")
	res := s.SpliceMore(forest.At("P1", 1), forest.Assemble([]model.CommentRecord{
		{Kind: model.KindComment, ID: "C2", PostID: "P1"},
	}))
	require.True(t, res.Applied)
	roots := s.Thread("P1")
	assert.Equal(t, []string{"C1", "C2", "more"}, ids(roots))
	assert.Equal(t, []string{"C3"}, roots[2].(*model.MorePlaceholder).RemainingIDs)
	assert.Same(t, before[0], roots[0], "splice does not touch C1")

	// rollback(token)
	c1, err = s.Rollback(token)
	require.NoError(t, err)
	assert.Equal(t, 5, c1.Score)
	assert.False(t, c1.Upvoted)

	after := s.Thread("P1")
	assert.Equal(t, []string{"C1", "C2", "more"}, ids(after))
	assert.Same(t, roots[1], after[1], "C2 untouched by rollback")
	assert.Same(t, roots[2], after[2], "placeholder untouched by rollback")
}

// =============================================================================
// Mutations
// =============================================================================

func TestStore_BeginRejectsSecondVote(t *testing.T) {
	s := scenarioStore()
	_, _, err := s.BeginVote("C1")
	require.NoError(t, err)
	snapshot := s.Snapshot()

	_, _, err = s.BeginVote("C1")

	assert.ErrorIs(t, err, model.ErrMutationConflict)
	assert.Equal(t, snapshot, s.Snapshot())
	assert.True(t, s.Pending("C1", optimistic.KindVote))
}

func TestStore_ConfirmTakesServerVersion(t *testing.T) {
	s := scenarioStore()
	_, token, err := s.BeginVote("C1")
	require.NoError(t, err)

	got, err := s.Confirm(token, &model.Comment{ID: "C1", PostID: "P1", Score: 9, Upvoted: true})

	require.NoError(t, err)
	assert.Equal(t, 9, got.Score)
	assert.False(t, s.Pending("C1", optimistic.KindVote))
}

func TestStore_UnknownCommentIsDropped(t *testing.T) {
	s := scenarioStore()
	snapshot := s.Snapshot()

	c, token, err := s.BeginSubscribe("nope")

	assert.ErrorIs(t, err, model.ErrCommentNotFound)
	assert.Nil(t, c)
	assert.Nil(t, token)
	assert.Equal(t, snapshot, s.Snapshot())
}

func TestStore_ModerationAndRemoveAreAttributes(t *testing.T) {
	s := New()
	s.ReceiveThread("P1", []model.Node{
		&model.Comment{ID: "C1", PostID: "P1", Children: []model.Node{
			&model.Comment{ID: "R1", PostID: "P1", ParentID: strPtr("C1")},
		}},
	})

	c, _, err := s.BeginRemove("C1")
	require.NoError(t, err)
	assert.True(t, c.Removed)
	assert.Equal(t, []string{"R1"}, ids(c.Children), "replies stay addressable")

	approve := true
	_, _, err = s.BeginModerationPatch("R1", optimistic.Moderation{Approved: &approve})
	require.NoError(t, err)
	r1, ok := s.Comment("R1")
	require.True(t, ok)
	assert.True(t, r1.Approved)
}

func TestStore_RemoveBlocksModerationOfSameComment(t *testing.T) {
	s := scenarioStore()
	_, remove, err := s.BeginRemove("C1")
	require.NoError(t, err)

	approve := true
	_, _, err = s.BeginModerationPatch("C1", optimistic.Moderation{Approved: &approve})
	assert.ErrorIs(t, err, model.ErrMutationConflict)

	c, err := s.Rollback(remove)
	require.NoError(t, err)
	assert.False(t, c.Removed)
	assert.False(t, c.Approved)

	_, token, err := s.BeginModerationPatch("C1", optimistic.Moderation{Approved: &approve})
	require.NoError(t, err)
	c, err = s.Confirm(token, &model.Comment{ID: "C1", PostID: "P1", Score: 5, Approved: true})
	require.NoError(t, err)
	assert.True(t, c.Approved)
}

func TestStore_DeleteConfirmedByAck(t *testing.T) {
	s := scenarioStore()
	_, token, err := s.BeginDelete("C1")
	require.NoError(t, err)

	c, err := s.ConfirmDeletion(token)

	require.NoError(t, err)
	assert.True(t, c.Deleted)
	assert.Equal(t, []string{"C1", "more"}, ids(s.Thread("P1")))
}

func TestStore_ReplyLifecycle(t *testing.T) {
	s := scenarioStore()

	provisional, token, err := s.BeginReplyInsertion("P1", strPtr("C1"), &model.Comment{ID: "tmp-1", ParentID: strPtr("C1"), Text: "hi"})
	require.NoError(t, err)
	assert.True(t, provisional.Provisional)

	got, err := s.Confirm(token, &model.Comment{ID: "R9", PostID: "P1", ParentID: strPtr("C1"), Text: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "R9", got.ID)
	c1, _ := s.Comment("C1")
	assert.Equal(t, []string{"R9"}, ids(c1.Children))
}

func TestStore_ReplyRollbackRemovesProvisional(t *testing.T) {
	s := scenarioStore()
	_, token, err := s.BeginReplyInsertion("P1", nil, &model.Comment{ID: "tmp-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "tmp-1", "more"}, ids(s.Thread("P1")))

	c, err := s.Rollback(token)

	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, []string{"C1", "more"}, ids(s.Thread("P1")))
}

func TestStore_ReplyToUnknownParentIsDropped(t *testing.T) {
	s := scenarioStore()

	_, _, err := s.BeginReplyInsertion("P1", strPtr("C3"), &model.Comment{ID: "tmp-1"})

	assert.ErrorIs(t, err, model.ErrCommentNotFound)
}

// =============================================================================
// Orphans
// =============================================================================

func TestStore_OrphanMutationUsesDetachedCopy(t *testing.T) {
	s := New()
	s.RegisterOrphans(&model.Comment{ID: "X1", PostID: "P9", Score: 2})

	c, token, err := s.BeginVote("X1")
	require.NoError(t, err)
	assert.True(t, token.Orphan)
	assert.Equal(t, 3, c.Score)
	assert.False(t, s.Loaded("P9"))

	c, err = s.Rollback(token)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Score)
}

func TestStore_OrphanReconciledWhenTreeLoads(t *testing.T) {
	s := New()
	s.RegisterOrphans(&model.Comment{ID: "X1", PostID: "P9", Score: 2})
	_, token, err := s.BeginVote("X1")
	require.NoError(t, err)

	s.ReceiveThread("P9", []model.Node{&model.Comment{ID: "X1", PostID: "P9", Score: 7}})

	c, ok := s.Comment("X1")
	require.True(t, ok)
	assert.Equal(t, 7, c.Score, "tree version wins")

	// The pending vote now resolves against the tree.
	c, err = s.Confirm(token, &model.Comment{ID: "X1", PostID: "P9", Score: 8, Upvoted: true})
	require.NoError(t, err)
	assert.Equal(t, 8, c.Score)
	postID, ok := s.LookupOrphan("X1")
	require.True(t, ok)
	assert.Equal(t, "P9", postID)
}

func TestStore_ResolveAfterEvictionIsDropped(t *testing.T) {
	s := scenarioStore()
	_, token, err := s.BeginVote("C1")
	require.NoError(t, err)

	s.Evict("P1")
	_, err = s.Rollback(token)

	assert.ErrorIs(t, err, model.ErrCommentNotFound)
	assert.False(t, s.Pending("C1", optimistic.KindVote))
}

// =============================================================================
// Placeholders and live updates
// =============================================================================

func TestStore_Placeholder(t *testing.T) {
	s := scenarioStore()

	ph, err := s.Placeholder(forest.At("P1", 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"C2", "C3"}, ph.RemainingIDs)

	_, err = s.Placeholder(forest.At("P1", 0))
	assert.ErrorIs(t, err, model.ErrNotPlaceholder)

	_, err = s.Placeholder(forest.At("P2", 0))
	assert.ErrorIs(t, err, model.ErrPostNotFound)
}

func TestStore_SpliceMoreTwiceIsNoOp(t *testing.T) {
	s := scenarioStore()
	batch := forest.Assemble([]model.CommentRecord{{Kind: model.KindComment, ID: "C2", PostID: "P1"}})

	s.SpliceMore(forest.At("P1", 1), batch)
	once := s.Snapshot()
	res := s.SpliceMore(forest.At("P1", 1), batch)

	assert.False(t, res.Applied)
	assert.Equal(t, once, s.Snapshot())
}

func placeholderBatch(t *testing.T, s *Store, addr forest.NodeAddress, recs ...model.CommentRecord) forest.Batch {
	t.Helper()
	ph, err := s.Placeholder(addr)
	require.NoError(t, err)
	batch := forest.Assemble(recs)
	batch.Origin = ph
	return batch
}

func TestStore_SpliceMoreAfterReplyInsertion(t *testing.T) {
	s := scenarioStore()
	batch := placeholderBatch(t, s, forest.At("P1", 1), model.CommentRecord{Kind: model.KindComment, ID: "C2", PostID: "P1"})
	_, _, err := s.BeginReplyInsertion("P1", nil, &model.Comment{ID: "tmp:1", PostID: "P1"})
	require.NoError(t, err)
	require.Equal(t, []string{"C1", "tmp:1", "more"}, ids(s.Thread("P1")))

	res := s.SpliceMore(forest.At("P1", 1), batch)

	require.True(t, res.Applied)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, []string{"C1", "tmp:1", "C2", "more"}, ids(s.Thread("P1")))
	ph, err := s.Placeholder(forest.At("P1", 3))
	require.NoError(t, err)
	assert.Equal(t, []string{"C3"}, ph.RemainingIDs)
}

func TestStore_SpliceMoreAfterReplyRollback(t *testing.T) {
	s := scenarioStore()
	_, token, err := s.BeginReplyInsertion("P1", nil, &model.Comment{ID: "tmp:1", PostID: "P1"})
	require.NoError(t, err)
	batch := placeholderBatch(t, s, forest.At("P1", 2), model.CommentRecord{Kind: model.KindComment, ID: "C2", PostID: "P1"})
	_, err = s.Rollback(token)
	require.NoError(t, err)

	res := s.SpliceMore(forest.At("P1", 2), batch)

	require.True(t, res.Applied)
	assert.Equal(t, forest.At("P1", 1), res.Address)
	assert.Equal(t, []string{"C1", "C2", "more"}, ids(s.Thread("P1")))
}

func TestStore_PlaceholderReportsExpandedAddress(t *testing.T) {
	s := scenarioStore()
	s.SpliceMore(forest.At("P1", 1), placeholderBatch(t, s, forest.At("P1", 1),
		model.CommentRecord{Kind: model.KindComment, ID: "C2", PostID: "P1"}))

	_, err := s.Placeholder(forest.At("P1", 1))
	assert.ErrorIs(t, err, model.ErrPlaceholderExpanded)
	_, err = s.Placeholder(forest.At("P1", 0))
	assert.ErrorIs(t, err, model.ErrNotPlaceholder)

	// A fresh thread forgets earlier expansions.
	s.ReceiveThread("P1", []model.Node{&model.Comment{ID: "C1", PostID: "P1"}, &model.Comment{ID: "C2", PostID: "P1"}})
	_, err = s.Placeholder(forest.At("P1", 1))
	assert.ErrorIs(t, err, model.ErrNotPlaceholder)
}

func TestStore_LiveUpdates(t *testing.T) {
	s := scenarioStore()

	assert.True(t, s.InsertRemote(&model.Comment{ID: "C4", PostID: "P1"}))
	assert.False(t, s.InsertRemote(&model.Comment{ID: "C4", PostID: "P1"}), "already present")
	assert.False(t, s.InsertRemote(&model.Comment{ID: "Z1", PostID: "P1", ParentID: strPtr("C3")}), "parent not materialized")
	assert.False(t, s.InsertRemote(&model.Comment{ID: "Z2", PostID: "P5"}), "post not loaded")
	assert.Equal(t, []string{"C1", "C4", "more"}, ids(s.Thread("P1")))

	assert.True(t, s.ApplyRemote(&model.Comment{ID: "C1", PostID: "P1", Score: 40}))
	c1, _ := s.Comment("C1")
	assert.Equal(t, 40, c1.Score)
	assert.False(t, s.ApplyRemote(&model.Comment{ID: "C9", PostID: "P1"}))

	assert.True(t, s.MarkDeleted("C4"))
	assert.False(t, s.MarkDeleted("C4"))
	c4, _ := s.Comment("C4")
	assert.True(t, c4.Deleted)
}
