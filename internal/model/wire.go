package model

import "time"

// CommentRecord is one element of a comment batch as sent by the forum backend.
// Records with Kind "more" describe an unfetched tail of replies.
type CommentRecord struct {
	Kind       string       `json:"kind,omitempty"`
	ID         string       `json:"id,omitempty"`
	PostID     string       `json:"post_id"`
	ParentID   *string      `json:"parent_id,omitempty"`
	Text       string       `json:"text,omitempty"`
	Author     *UserSummary `json:"author,omitempty"`
	Score      int          `json:"score"`
	Upvoted    bool         `json:"upvoted"`
	Subscribed bool         `json:"subscribed"`
	Removed    bool         `json:"removed"`
	Deleted    bool         `json:"deleted"`
	Approved   bool         `json:"approved"`
	CreatedAt  time.Time    `json:"created_at"`

	// "more" records only
	Children []string `json:"children,omitempty"`
	Count    int      `json:"count,omitempty"`
}

// IsMore reports whether the record is a placeholder rather than a comment.
func (r CommentRecord) IsMore() bool {
	return r.Kind == KindMore
}

// ToComment converts a comment record to a childless Comment.
func (r CommentRecord) ToComment() *Comment {
	return &Comment{
		ID:         r.ID,
		PostID:     r.PostID,
		ParentID:   r.ParentID,
		Text:       r.Text,
		Author:     r.Author,
		Score:      r.Score,
		Upvoted:    r.Upvoted,
		Subscribed: r.Subscribed,
		Removed:    r.Removed,
		Deleted:    r.Deleted,
		Approved:   r.Approved,
		CreatedAt:  r.CreatedAt,
	}
}

// ToPlaceholder converts a "more" record. It returns nil when nothing remains.
func (r CommentRecord) ToPlaceholder() *MorePlaceholder {
	if len(r.Children) == 0 {
		return nil
	}
	count := r.Count
	if count < len(r.Children) {
		count = len(r.Children)
	}
	ids := make([]string, len(r.Children))
	copy(ids, r.Children)
	return &MorePlaceholder{
		PostID:       r.PostID,
		ParentID:     r.ParentID,
		RemainingIDs: ids,
		Count:        count,
	}
}

// RecordFromComment converts a comment back to its wire shape, without children.
func RecordFromComment(c *Comment) CommentRecord {
	return CommentRecord{
		Kind:       KindComment,
		ID:         c.ID,
		PostID:     c.PostID,
		ParentID:   c.ParentID,
		Text:       c.Text,
		Author:     c.Author,
		Score:      c.Score,
		Upvoted:    c.Upvoted,
		Subscribed: c.Subscribed,
		Removed:    c.Removed,
		Deleted:    c.Deleted,
		Approved:   c.Approved,
		CreatedAt:  c.CreatedAt,
	}
}

// CommentBatch is the response for a post's comment tree.
type CommentBatch struct {
	PostID   string          `json:"post_id"`
	Comments []CommentRecord `json:"comments"`
}

// MoreCommentsResponse is the response for a "load more" request.
// Requested lists the ids asked for; Fulfilled the ids the backend returned.
type MoreCommentsResponse struct {
	PostID    string          `json:"post_id"`
	ParentID  *string         `json:"parent_id,omitempty"`
	Requested []string        `json:"requested"`
	Fulfilled []string        `json:"fulfilled"`
	Comments  []CommentRecord `json:"comments"`
}

// CommentResponse wraps a single comment returned by create/patch operations.
type CommentResponse struct {
	Comment CommentRecord `json:"comment"`
}

// DeletionAck acknowledges a comment deletion.
type DeletionAck struct {
	ID string `json:"id"`
}

// UserCommentsResponse is a user's contribution feed: a flat list without ancestors.
type UserCommentsResponse struct {
	Username   string          `json:"username"`
	Comments   []CommentRecord `json:"comments"`
	NextCursor *string         `json:"next_cursor,omitempty"`
}

// CreateReplyRequest is the request body for replying to a post or a comment.
type CreateReplyRequest struct {
	ParentID *string `json:"parent_id,omitempty"`
	Text     string  `json:"text" validate:"required,max=10000"`
}

// ModerationRequest is the request body for a moderation patch.
// At least one field must be set.
type ModerationRequest struct {
	Approved *bool `json:"approved,omitempty" validate:"required_without=Removed"`
	Removed  *bool `json:"removed,omitempty" validate:"required_without=Approved"`
}

// LoadMoreRequest addresses the placeholder to expand by its index path.
type LoadMoreRequest struct {
	Path []int `json:"path" validate:"required,min=1,dive,min=0"`
}
