package forest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discussfront/internal/model"
)

// =============================================================================
// Fixtures
// =============================================================================

func strPtr(s string) *string { return &s }

// cm builds a comment of post P1. An empty parent makes it top level.
func cm(id, parent string, children ...model.Node) *model.Comment {
	c := &model.Comment{ID: id, PostID: "P1", Score: 1, Children: children}
	if parent != "" {
		c.ParentID = strPtr(parent)
	}
	return c
}

func more(parent string, ids ...string) *model.MorePlaceholder {
	m := &model.MorePlaceholder{PostID: "P1", RemainingIDs: ids, Count: len(ids)}
	if parent != "" {
		m.ParentID = strPtr(parent)
	}
	return m
}

// sample returns:
//
//	C1
//	  C11
//	  C12
//	    C121
//	  more(C1: C13 C14)
//	C2
//	more(root: C3 C4)
func sample() Forest {
	return New().WithPost("P1", []model.Node{
		cm("C1", "",
			cm("C11", "C1"),
			cm("C12", "C1", cm("C121", "C12")),
			more("C1", "C13", "C14"),
		),
		cm("C2", ""),
		more("", "C3", "C4"),
	})
}

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

// =============================================================================
// NodeAddress
// =============================================================================

func TestNodeAddress_Navigation(t *testing.T) {
	a := At("P1", 0, 2, 1)

	assert.Equal(t, 3, a.Depth())
	assert.Equal(t, 1, a.Index())
	assert.Equal(t, "P1/0.2.1", a.String())
	assert.True(t, a.Parent().Equal(At("P1", 0, 2)))
	assert.True(t, a.Sibling(0).Equal(At("P1", 0, 2, 0)))
	assert.True(t, At("P1", 3).Parent().IsRoot())
	assert.Equal(t, -1, Root("P1").Index())
	assert.False(t, a.Equal(At("P2", 0, 2, 1)))
}

func TestNodeAddress_ChildDoesNotAlias(t *testing.T) {
	parent := At("P1", 0)
	a := parent.Child(1)
	b := parent.Child(2)

	assert.Equal(t, []int{0, 1}, a.Path)
	assert.Equal(t, []int{0, 2}, b.Path)
	assert.Equal(t, []int{0}, parent.Path)
}

// =============================================================================
// Get / Resolve
// =============================================================================

func TestForest_GetDistinguishesEmptyFromUnloaded(t *testing.T) {
	f := New().WithPost("P1", nil)

	assert.Empty(t, f.Get("P1"))
	assert.True(t, f.Loaded("P1"))
	assert.Empty(t, f.Get("P2"))
	assert.False(t, f.Loaded("P2"))
}

func TestForest_Resolve(t *testing.T) {
	f := sample()

	n, ok := f.Resolve(At("P1", 0, 1, 0))
	require.True(t, ok)
	assert.Equal(t, "C121", n.(*model.Comment).ID)

	n, ok = f.Resolve(At("P1", 0, 2))
	require.True(t, ok)
	assert.IsType(t, &model.MorePlaceholder{}, n)

	_, ok = f.Resolve(At("P1", 5))
	assert.False(t, ok)
	_, ok = f.Resolve(At("P1", 2, 0)) // below a placeholder
	assert.False(t, ok)
	_, ok = f.Resolve(Root("P1"))
	assert.False(t, ok)
	_, ok = f.Resolve(At("P9", 0))
	assert.False(t, ok)
}

// =============================================================================
// LocateByID
// =============================================================================

func TestForest_LocateByID(t *testing.T) {
	f := sample().WithPost("P2", []model.Node{
		&model.Comment{ID: "D1", PostID: "P2"},
	})

	tests := []struct {
		id   string
		want NodeAddress
	}{
		{"C1", At("P1", 0)},
		{"C12", At("P1", 0, 1)},
		{"C121", At("P1", 0, 1, 0)},
		{"C2", At("P1", 1)},
		{"D1", At("P2", 0)},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got, ok := f.LocateByID(tt.id)
			require.True(t, ok)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
		})
	}
}

func TestForest_LocateByID_PlaceholderIDsAreNotFound(t *testing.T) {
	f := sample()

	_, ok := f.LocateByID("C13")
	assert.False(t, ok, "ids listed by a placeholder are not materialized")

	_, ok = f.LocateInPost("P2", "C1")
	assert.False(t, ok)
}

// =============================================================================
// ReplaceAt
// =============================================================================

func TestForest_ReplaceAt_StructuralSharing(t *testing.T) {
	f := sample()
	before := f.Get("P1")

	g := f.ReplaceAt(At("P1", 0, 1, 0), func(n model.Node) model.Node {
		c := n.(*model.Comment).Clone()
		c.Score = 42
		return c
	})

	after := g.Get("P1")
	c121, _ := g.ResolveComment(At("P1", 0, 1, 0))
	assert.Equal(t, 42, c121.Score)

	// Path copied.
	assert.NotSame(t, before[0], after[0])
	c1Before := before[0].(*model.Comment)
	c1After := after[0].(*model.Comment)
	assert.NotSame(t, c1Before.Children[1], c1After.Children[1])

	// Untouched subtrees shared.
	assert.Same(t, before[1], after[1])
	assert.Same(t, before[2], after[2])
	assert.Same(t, c1Before.Children[0], c1After.Children[0])
	assert.Same(t, c1Before.Children[2], c1After.Children[2])

	// Original unchanged.
	old, _ := f.ResolveComment(At("P1", 0, 1, 0))
	assert.Equal(t, 1, old.Score)
}

func TestForest_ReplaceAt_UnresolvedAddressPanics(t *testing.T) {
	f := sample()

	defer func() {
		r := recover()
		require.NotNil(t, r)
		_, ok := r.(*StructuralError)
		assert.True(t, ok, "panic value should be *StructuralError, got %T", r)
	}()
	f.ReplaceAt(At("P1", 9), func(n model.Node) model.Node { return n })
}

func TestForest_ReplaceAt_IdentityChangePanics(t *testing.T) {
	f := sample()

	assert.Panics(t, func() {
		f.ReplaceAt(At("P1", 1), func(n model.Node) model.Node {
			c := n.(*model.Comment).Clone()
			c.ID = "other"
			return c
		})
	})
	assert.Panics(t, func() {
		f.ReplaceAt(At("P1", 1), func(n model.Node) model.Node {
			return more("", "X")
		})
	})
}

func TestForest_ReplaceChildren_Root(t *testing.T) {
	f := sample()

	g := f.ReplaceChildren(Root("P1"), func(nodes []model.Node) []model.Node {
		out := append([]model.Node{}, nodes[:2]...)
		return append(out, cm("C5", ""), nodes[2])
	})

	assert.Equal(t, []string{"C1", "C2", "C5", "more"}, ids(g.Get("P1")))
	assert.Equal(t, []string{"C1", "C2", "more"}, ids(f.Get("P1")))
}

func TestForest_Evict(t *testing.T) {
	f := sample().WithPost("P2", nil)

	g := f.Evict("P1")

	assert.False(t, g.Loaded("P1"))
	assert.True(t, g.Loaded("P2"))
	assert.True(t, f.Loaded("P1"))
	assert.Equal(t, []string{"P1", "P2"}, f.Posts())
}

// =============================================================================
// InsertChildren
// =============================================================================

func TestForest_InsertChildren(t *testing.T) {
	f := sample()

	g := f.InsertChildren(At("P1", 0, 2), []model.Node{cm("C13", "C1")}, []string{"C14"})

	c1, _ := g.ResolveComment(At("P1", 0))
	assert.Equal(t, []string{"C11", "C12", "C13", "more"}, ids(c1.Children))
	ph := c1.Children[3].(*model.MorePlaceholder)
	assert.Equal(t, []string{"C14"}, ph.RemainingIDs)
	assert.Equal(t, 1, ph.Count)
	assert.Equal(t, "C1", *ph.ParentID)
}

func TestForest_InsertChildren_ExhaustedPlaceholderDisappears(t *testing.T) {
	f := sample()

	g := f.InsertChildren(At("P1", 2), []model.Node{cm("C3", ""), cm("C4", "")}, nil)

	assert.Equal(t, []string{"C1", "C2", "C3", "C4"}, ids(g.Get("P1")))
}

func TestForest_InsertChildren_NotAPlaceholderPanics(t *testing.T) {
	assert.Panics(t, func() {
		sample().InsertChildren(At("P1", 1), nil, nil)
	})
}

func TestForest_AppendChild(t *testing.T) {
	f := sample()

	g := f.AppendChild(At("P1", 0), cm("C15", "C1"))
	g = g.AppendChild(At("P1", 1), cm("C21", "C2"))

	c1, _ := g.ResolveComment(At("P1", 0))
	assert.Equal(t, []string{"C11", "C12", "C15", "more"}, ids(c1.Children))
	c2, _ := g.ResolveComment(At("P1", 1))
	assert.Equal(t, []string{"C21"}, ids(c2.Children))
}
