package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"discussfront/internal/model"
	"discussfront/internal/queue"
)

// CommentSink is the part of the comment store that live updates write to.
// Each method reports whether a locally known comment changed.
type CommentSink interface {
	ApplyRemote(c *model.Comment) bool
	InsertRemote(c *model.Comment) bool
	MarkDeleted(id string) bool
}

// Handler applies comment events from other writers to the local store.
type Handler struct {
	sink   CommentSink
	origin string // events published by this instance are skipped
}

// NewHandler creates a new event handler. origin is this instance's id.
func NewHandler(sink CommentSink, origin string) *Handler {
	return &Handler{
		sink:   sink,
		origin: origin,
	}
}

// HandleEvent routes an event to the appropriate handler based on type.
func (h *Handler) HandleEvent(ctx context.Context, event queue.CommentEvent) error {
	if event.Origin != "" && event.Origin == h.origin {
		return nil
	}

	startTime := time.Now()
	var (
		applied bool
		err     error
	)

	switch event.Type {
	case queue.EventCommentCreated:
		applied, err = h.handleCommentCreated(ctx, event)
	case queue.EventCommentUpdated:
		applied, err = h.handleCommentUpdated(ctx, event)
	case queue.EventCommentDeleted:
		applied = h.sink.MarkDeleted(event.CommentID)
	default:
		return fmt.Errorf("unknown event type: %s", event.Type)
	}

	if err != nil {
		log.Printf("[Handler] %s FAILED: post=%s comment=%s err=%v", event.Type, event.PostID, event.CommentID, err)
		return err
	}
	log.Printf("[Handler] %s OK: post=%s comment=%s applied=%t duration=%v",
		event.Type, event.PostID, event.CommentID, applied, time.Since(startTime))
	return nil
}

// handleCommentCreated inserts a new comment into its loaded thread.
func (h *Handler) handleCommentCreated(ctx context.Context, event queue.CommentEvent) (bool, error) {
	c, err := commentOf(event)
	if err != nil {
		return false, err
	}
	return h.sink.InsertRemote(c), nil
}

// handleCommentUpdated refreshes a comment's attributes wherever it is held.
func (h *Handler) handleCommentUpdated(ctx context.Context, event queue.CommentEvent) (bool, error) {
	c, err := commentOf(event)
	if err != nil {
		return false, err
	}
	return h.sink.ApplyRemote(c), nil
}

func commentOf(event queue.CommentEvent) (*model.Comment, error) {
	if event.Comment == nil || event.Comment.ID == "" {
		return nil, fmt.Errorf("%s event without comment", event.Type)
	}
	return event.Comment.ToComment(), nil
}
