package model

// ThreadResponse is a post's comment forest as rendered for clients.
type ThreadResponse struct {
	PostID   string `json:"post_id"`
	Comments []Node `json:"comments"`
}

// LoadMoreResponse is the thread after a placeholder was expanded.
type LoadMoreResponse struct {
	PostID    string `json:"post_id"`
	Inserted  int    `json:"inserted"`
	Remaining int    `json:"remaining"`
	Comments  []Node `json:"comments"`
}

// MutationResponse is returned as soon as a mutation has been started.
// Comment is the speculative local state; nil when the comment is not known
// locally and the action was only forwarded to the backend.
type MutationResponse struct {
	MutationID string   `json:"mutation_id,omitempty"`
	Comment    *Comment `json:"comment"`
}

// VoteRequest is the optional body of a vote. Up is only consulted when the
// comment is not known locally; otherwise the vote toggles.
type VoteRequest struct {
	Up *bool `json:"up,omitempty"`
}

// SubscribeRequest mirrors VoteRequest for reply subscriptions.
type SubscribeRequest struct {
	Subscribed *bool `json:"subscribed,omitempty"`
}

// OrphanListResponse is a flat list of comments fetched outside their thread.
type OrphanListResponse struct {
	Username   string     `json:"username,omitempty"`
	Comments   []*Comment `json:"comments"`
	NextCursor *string    `json:"next_cursor,omitempty"`
}
