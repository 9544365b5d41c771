package forest

import "discussfront/internal/model"

// LocateByID finds the address of the comment with the given id in any loaded post.
// A miss is the normal signal to fall back to the orphan registry.
func (f Forest) LocateByID(id string) (NodeAddress, bool) {
	for postID, roots := range f.posts {
		if path, ok := locate(roots, id, nil); ok {
			return NodeAddress{PostID: postID, Path: path}, true
		}
	}
	return NodeAddress{}, false
}

// LocateInPost is LocateByID restricted to one post's tree.
func (f Forest) LocateInPost(postID, id string) (NodeAddress, bool) {
	path, ok := locate(f.posts[postID], id, nil)
	if !ok {
		return NodeAddress{}, false
	}
	return NodeAddress{PostID: postID, Path: path}, true
}

// Find returns the comment with the given id together with its address.
func (f Forest) Find(id string) (*model.Comment, NodeAddress, bool) {
	addr, ok := f.LocateByID(id)
	if !ok {
		return nil, NodeAddress{}, false
	}
	c, _ := f.ResolveComment(addr)
	return c, addr, true
}

// locate walks depth first. Placeholders are skipped: their children are unfetched.
func locate(nodes []model.Node, id string, prefix []int) ([]int, bool) {
	for i, n := range nodes {
		c, ok := n.(*model.Comment)
		if !ok {
			continue
		}
		if c.ID == id {
			path := make([]int, len(prefix)+1)
			copy(path, prefix)
			path[len(prefix)] = i
			return path, true
		}
		if len(c.Children) == 0 {
			continue
		}
		if path, ok := locate(c.Children, id, append(prefix, i)); ok {
			return path, true
		}
	}
	return nil, false
}

// Walk visits every node of a post in depth-first order until fn returns false.
func (f Forest) Walk(postID string, fn func(addr NodeAddress, n model.Node) bool) {
	walk(f.posts[postID], Root(postID), fn)
}

func walk(nodes []model.Node, parent NodeAddress, fn func(NodeAddress, model.Node) bool) bool {
	for i, n := range nodes {
		addr := parent.Child(i)
		if !fn(addr, n) {
			return false
		}
		if c, ok := n.(*model.Comment); ok {
			if !walk(c.Children, addr, fn) {
				return false
			}
		}
	}
	return true
}

// CommentIDs returns the ids of every materialized comment of a post.
func (f Forest) CommentIDs(postID string) map[string]struct{} {
	ids := make(map[string]struct{})
	f.Walk(postID, func(_ NodeAddress, n model.Node) bool {
		if c, ok := n.(*model.Comment); ok {
			ids[c.ID] = struct{}{}
		}
		return true
	})
	return ids
}
