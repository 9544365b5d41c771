package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"discussfront/internal/httputil"
	"discussfront/internal/model"
	"discussfront/internal/service"
)

// CommentHandler serves single comments: permalinks, contribution feeds and
// per-comment actions. Actions answer 202 with the speculative comment; the
// outcome arrives later through the thread or a notice.
type CommentHandler struct {
	commentService *service.CommentService
}

func NewCommentHandler(commentService *service.CommentService) *CommentHandler {
	return &CommentHandler{
		commentService: commentService,
	}
}

// Get handles GET /comments/{id}
func (h *CommentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	comment, err := h.commentService.GetComment(r.Context(), id)
	if err != nil {
		writeServiceError(w, "Get comment", err, "Failed to get comment")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, comment)
}

// ListByUser handles GET /users/{username}/comments
func (h *CommentHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = &c
	}

	limit := 25 // default
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			httputil.WriteBadRequest(w, "Invalid limit parameter")
			return
		}
		limit = parsed
	}

	resp, err := h.commentService.GetUserComments(r.Context(), username, cursor, limit)
	if err != nil {
		writeServiceError(w, "List user comments", err, "Failed to get comments")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Vote handles POST /comments/{id}/vote
func (h *CommentHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req model.VoteRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	resp, err := h.commentService.Vote(r.Context(), sessionID(r), chi.URLParam(r, "id"), req.Up)
	if err != nil {
		writeServiceError(w, "Vote", err, "Failed to vote")
		return
	}

	httputil.WriteAccepted(w, resp)
}

// Subscribe handles POST /comments/{id}/subscribe
func (h *CommentHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req model.SubscribeRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	resp, err := h.commentService.Subscribe(r.Context(), sessionID(r), chi.URLParam(r, "id"), req.Subscribed)
	if err != nil {
		writeServiceError(w, "Subscribe", err, "Failed to update subscription")
		return
	}

	httputil.WriteAccepted(w, resp)
}

// Moderate handles PATCH /comments/{id}/moderation
func (h *CommentHandler) Moderate(w http.ResponseWriter, r *http.Request) {
	var req model.ModerationRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	resp, err := h.commentService.Moderate(r.Context(), sessionID(r), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, "Moderate", err, "Failed to moderate comment")
		return
	}

	httputil.WriteAccepted(w, resp)
}

// Remove handles POST /comments/{id}/remove
func (h *CommentHandler) Remove(w http.ResponseWriter, r *http.Request) {
	resp, err := h.commentService.Remove(r.Context(), sessionID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "Remove", err, "Failed to remove comment")
		return
	}

	httputil.WriteAccepted(w, resp)
}

// Delete handles DELETE /comments/{id}
func (h *CommentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	resp, err := h.commentService.Delete(r.Context(), sessionID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "Delete", err, "Failed to delete comment")
		return
	}

	httputil.WriteAccepted(w, resp)
}
