package forest

import (
	"strconv"
	"strings"
)

// NodeAddress locates a node inside a forest: the post whose tree holds it and the
// child indices walked from that post's root list. An empty path addresses the
// root list itself rather than a node.
//
// Addresses are values; every derived address owns a fresh path slice.
type NodeAddress struct {
	PostID string
	Path   []int
}

// Root returns the address of a post's root list.
func Root(postID string) NodeAddress {
	return NodeAddress{PostID: postID}
}

// At returns the address of the node reached by path under postID.
func At(postID string, path ...int) NodeAddress {
	p := make([]int, len(path))
	copy(p, path)
	return NodeAddress{PostID: postID, Path: p}
}

// IsRoot reports whether the address names the root list.
func (a NodeAddress) IsRoot() bool {
	return len(a.Path) == 0
}

// Depth is the number of indices in the path. Forest roots have depth 1.
func (a NodeAddress) Depth() int {
	return len(a.Path)
}

// Index returns the position of the node among its siblings, or -1 for the root list.
func (a NodeAddress) Index() int {
	if len(a.Path) == 0 {
		return -1
	}
	return a.Path[len(a.Path)-1]
}

// Child returns the address of the i-th child of the addressed node.
func (a NodeAddress) Child(i int) NodeAddress {
	p := make([]int, len(a.Path)+1)
	copy(p, a.Path)
	p[len(a.Path)] = i
	return NodeAddress{PostID: a.PostID, Path: p}
}

// Parent returns the address of the node's parent. The parent of a forest root is
// the root list; the root list is its own parent.
func (a NodeAddress) Parent() NodeAddress {
	if len(a.Path) <= 1 {
		return Root(a.PostID)
	}
	return At(a.PostID, a.Path[:len(a.Path)-1]...)
}

// Sibling returns the address of the i-th sibling of the addressed node.
func (a NodeAddress) Sibling(i int) NodeAddress {
	return a.Parent().Child(i)
}

// Equal reports whether both addresses name the same location.
func (a NodeAddress) Equal(b NodeAddress) bool {
	if a.PostID != b.PostID || len(a.Path) != len(b.Path) {
		return false
	}
	for i := range a.Path {
		if a.Path[i] != b.Path[i] {
			return false
		}
	}
	return true
}

// String formats the address as "post/i.j.k".
func (a NodeAddress) String() string {
	var b strings.Builder
	b.WriteString(a.PostID)
	b.WriteByte('/')
	for i, idx := range a.Path {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(idx))
	}
	return b.String()
}
