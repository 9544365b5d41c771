package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"discussfront/internal/httputil"
	"discussfront/internal/model"
	"discussfront/internal/service"
)

// ThreadHandler serves a post's comment forest.
type ThreadHandler struct {
	commentService *service.CommentService
}

func NewThreadHandler(commentService *service.CommentService) *ThreadHandler {
	return &ThreadHandler{
		commentService: commentService,
	}
}

// Get handles GET /posts/{postID}/comments
// Returns the comment forest, fetched from the backend on first access.
// ?refresh=1 refetches it.
func (h *ThreadHandler) Get(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")

	var (
		thread *model.ThreadResponse
		err    error
	)
	if r.URL.Query().Get("refresh") == "1" {
		thread, err = h.commentService.ReloadThread(r.Context(), postID)
	} else {
		thread, err = h.commentService.GetThread(r.Context(), postID)
	}
	if err != nil {
		writeServiceError(w, "Get thread", err, "Failed to get comments")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, thread)
}

// LoadMore handles POST /posts/{postID}/comments/more
// Expands the "load more" placeholder at the given index path.
func (h *ThreadHandler) LoadMore(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")

	var req model.LoadMoreRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	resp, err := h.commentService.LoadMore(r.Context(), postID, req.Path)
	if err != nil {
		writeServiceError(w, "Load more", err, "Failed to load more comments")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Reply handles POST /posts/{postID}/comments
// Adds a reply to the post, or to parent_id when set. The provisional comment
// is returned at once with 202.
func (h *ThreadHandler) Reply(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "postID")

	var req model.CreateReplyRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	resp, err := h.commentService.Reply(r.Context(), sessionID(r), postID, req)
	if err != nil {
		writeServiceError(w, "Reply", err, "Failed to post reply")
		return
	}

	httputil.WriteAccepted(w, resp)
}
