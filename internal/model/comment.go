package model

import (
	"encoding/json"
	"time"
)

// Node kinds as they appear on the wire and in rendered threads.
const (
	KindComment = "comment"
	KindMore    = "more"
)

// Node is one element of a comment forest: either a *Comment or a *MorePlaceholder.
// Nodes are treated as immutable values once they are part of a forest.
type Node interface {
	node()
}

// UserSummary is the author metadata attached to a comment.
type UserSummary struct {
	ID          string  `db:"id" json:"id"`
	Username    string  `db:"username" json:"username"`
	DisplayName *string `db:"display_name" json:"display_name,omitempty"`
	AvatarURL   *string `db:"avatar_url" json:"avatar_url,omitempty"`
}

// Comment represents one user comment inside a post's thread.
type Comment struct {
	ID         string       `json:"id"`
	PostID     string       `json:"post_id"`
	ParentID   *string      `json:"parent_id,omitempty"` // nil for top-level comments
	Text       string       `json:"text"`
	Author     *UserSummary `json:"author,omitempty"`
	Score      int          `json:"score"`
	Upvoted    bool         `json:"upvoted"`
	Subscribed bool         `json:"subscribed"`
	Removed    bool         `json:"removed"`
	Deleted    bool         `json:"deleted"`
	Approved   bool         `json:"approved"`
	CreatedAt  time.Time    `json:"created_at"`

	// Provisional marks a locally inserted reply that the backend has not accepted yet.
	Provisional bool `json:"provisional,omitempty"`

	Children []Node `json:"-"`
}

func (*Comment) node() {}

// Clone returns a shallow copy. The children slice is shared and must be
// replaced, never written through, by whoever modifies the copy.
func (c *Comment) Clone() *Comment {
	cp := *c
	return &cp
}

// WithAttributes returns a copy of src that keeps c's children.
func (c *Comment) WithAttributes(src *Comment) *Comment {
	cp := *src
	cp.Children = c.Children
	return &cp
}

// MarshalJSON renders the comment with its replies for the view layer.
func (c *Comment) MarshalJSON() ([]byte, error) {
	type alias Comment
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*alias
		Replies []Node `json:"replies,omitempty"`
	}{
		Kind:    KindComment,
		alias:   (*alias)(c),
		Replies: c.Children,
	})
}

// MorePlaceholder stands in for siblings that have not been fetched yet.
// RemainingIDs is never empty; an exhausted placeholder is removed instead.
type MorePlaceholder struct {
	PostID       string   `json:"post_id"`
	ParentID     *string  `json:"parent_id,omitempty"`
	RemainingIDs []string `json:"remaining_ids"`
	Count        int      `json:"count"` // hidden replies reported by the backend
}

func (*MorePlaceholder) node() {}

// MarshalJSON tags the placeholder so clients can render "load more".
func (m *MorePlaceholder) MarshalJSON() ([]byte, error) {
	type alias MorePlaceholder
	return json.Marshal(struct {
		Kind string `json:"kind"`
		*alias
	}{
		Kind:  KindMore,
		alias: (*alias)(m),
	})
}

// SameParent reports whether two nullable parent ids are equal.
func SameParent(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Comment constraints
const (
	MaxCommentLength = 10000
)
