package handler

import (
	"net/http"

	"discussfront/internal/httputil"
	"discussfront/internal/service"
)

type NoticeHandler struct {
	commentService *service.CommentService
}

func NewNoticeHandler(commentService *service.CommentService) *NoticeHandler {
	return &NoticeHandler{
		commentService: commentService,
	}
}

// List handles GET /notices
// Returns and clears the session's pending notices, oldest first.
func (h *NoticeHandler) List(w http.ResponseWriter, r *http.Request) {
	resp, err := h.commentService.Notices(r.Context(), sessionID(r))
	if err != nil {
		writeServiceError(w, "List notices", err, "Failed to get notices")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}
