package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"discussfront/internal/model"
)

// Event types for the comment stream
const (
	EventCommentCreated = "comment_created"
	EventCommentUpdated = "comment_updated"
	EventCommentDeleted = "comment_deleted"
)

// Stream names
const (
	StreamComments = "stream:comments"
)

// ConsumerGroupPrefix names the per-instance consumer groups. Every front
// instance holds its own forest, so each one needs every event.
const ConsumerGroupPrefix = "comment_sync"

// CommentEvent represents a confirmed comment change published to the stream.
type CommentEvent struct {
	Type      string `json:"type"`      // EventCommentCreated, EventCommentUpdated, EventCommentDeleted
	Timestamp int64  `json:"timestamp"` // Unix timestamp when event occurred
	Origin    string `json:"origin"`    // instance that published it

	PostID    string `json:"post_id"`
	CommentID string `json:"comment_id"`

	// Created and updated events carry the authoritative comment.
	Comment *model.CommentRecord `json:"comment,omitempty"`
}

// NewCommentCreatedEvent creates an event for a reply the backend accepted.
// Workers insert it into loaded threads.
func NewCommentCreatedEvent(origin string, c *model.Comment) CommentEvent {
	rec := model.RecordFromComment(c)
	return CommentEvent{
		Type:      EventCommentCreated,
		Timestamp: time.Now().Unix(),
		Origin:    origin,
		PostID:    c.PostID,
		CommentID: c.ID,
		Comment:   &rec,
	}
}

// NewCommentUpdatedEvent creates an event for a confirmed attribute change.
func NewCommentUpdatedEvent(origin string, c *model.Comment) CommentEvent {
	rec := model.RecordFromComment(c)
	return CommentEvent{
		Type:      EventCommentUpdated,
		Timestamp: time.Now().Unix(),
		Origin:    origin,
		PostID:    c.PostID,
		CommentID: c.ID,
		Comment:   &rec,
	}
}

// NewCommentDeletedEvent creates an event for an acknowledged deletion.
func NewCommentDeletedEvent(origin, postID, commentID string) CommentEvent {
	return CommentEvent{
		Type:      EventCommentDeleted,
		Timestamp: time.Now().Unix(),
		Origin:    origin,
		PostID:    postID,
		CommentID: commentID,
	}
}

// ToMap converts the event to a map for Redis XADD.
// Redis Streams store field-value pairs, so the event is JSON in a "data" field.
func (e CommentEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseCommentEvent parses a CommentEvent from Redis stream message values.
func ParseCommentEvent(values map[string]interface{}) (CommentEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return CommentEvent{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event CommentEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return CommentEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
