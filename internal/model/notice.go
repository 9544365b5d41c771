package model

import "time"

// Notice levels
const (
	NoticeError = "error"
	NoticeInfo  = "info"
)

// Notice is a transient message for one viewer session, such as a failed vote.
type Notice struct {
	ID        string    `json:"id"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Action    string    `json:"action,omitempty"`
	CommentID string    `json:"comment_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NoticeListResponse is the response for GET /notices.
type NoticeListResponse struct {
	Notices []Notice `json:"notices"`
}
