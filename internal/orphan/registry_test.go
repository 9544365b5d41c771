package orphan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discussfront/internal/forest"
	"discussfront/internal/model"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	c := &model.Comment{ID: "C7", PostID: "P2", Score: 3, Children: []model.Node{
		&model.Comment{ID: "C8", PostID: "P2"},
	}}

	r.Register(c)

	postID, ok := r.Lookup("C7")
	require.True(t, ok)
	assert.Equal(t, "P2", postID)
	got, ok := r.Get("C7")
	require.True(t, ok)
	assert.Nil(t, got.Children, "orphans are stored as single nodes")
	assert.NotSame(t, c, got)

	_, ok = r.Lookup("nope")
	assert.False(t, ok)
}

func TestRegistry_RegisterIDKeepsExistingCopy(t *testing.T) {
	r := NewRegistry()
	r.Register(&model.Comment{ID: "C7", PostID: "P2"})

	r.RegisterID("C7", "P2")
	r.RegisterID("C9", "P2")

	_, ok := r.Get("C7")
	assert.True(t, ok)
	_, ok = r.Get("C9")
	assert.False(t, ok)
	postID, ok := r.Lookup("C9")
	assert.True(t, ok)
	assert.Equal(t, "P2", postID)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_PutIgnoresUnknown(t *testing.T) {
	r := NewRegistry()

	r.Put(&model.Comment{ID: "C1", PostID: "P1"})

	assert.Equal(t, 0, r.Len())
}

func TestRegistry_PseudoForestRoundTrip(t *testing.T) {
	r := NewRegistry()
	r.Register(&model.Comment{ID: "C7", PostID: "P2", Score: 3})

	f, addr, ok := r.PseudoForest("C7")
	require.True(t, ok)
	g := f.ReplaceAt(addr, func(n model.Node) model.Node {
		c := n.(*model.Comment).Clone()
		c.Score = 4
		return c
	})
	r.Extract(g, "P2")

	got, _ := r.Get("C7")
	assert.Equal(t, 4, got.Score)
}

func TestRegistry_ReconcilePrefersTree(t *testing.T) {
	r := NewRegistry()
	r.Register(&model.Comment{ID: "C7", PostID: "P2", Score: 3, Upvoted: true})
	r.Register(&model.Comment{ID: "X1", PostID: "P3", Score: 9})

	tree := forest.New().WithPost("P2", []model.Node{
		&model.Comment{ID: "C6", PostID: "P2", Children: []model.Node{
			&model.Comment{ID: "C7", PostID: "P2", ParentID: strPtr("C6"), Score: 10},
		}},
	})

	n := r.Reconcile(tree, "P2")

	assert.Equal(t, 1, n)
	got, _ := r.Get("C7")
	assert.Equal(t, 10, got.Score)
	assert.False(t, got.Upvoted)
	other, _ := r.Get("X1")
	assert.Equal(t, 9, other.Score)
}

func strPtr(s string) *string { return &s }
