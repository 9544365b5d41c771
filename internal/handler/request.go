package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"discussfront/internal/httputil"
	"discussfront/internal/model"
	"discussfront/internal/transport/http/middleware"
)

var validate = validator.New()

// decodeBody reads a JSON body into dst and validates it. An empty body is
// accepted when optional is set. It writes the 400 itself and reports false.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}, optional bool) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			httputil.WriteBadRequest(w, "Invalid request body")
			return false
		}
	}
	if err := validate.Struct(dst); err != nil {
		httputil.WriteValidationError(w, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid request body"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func sessionID(r *http.Request) string {
	id, _ := middleware.GetSessionIDFromContext(r.Context())
	return id
}

// writeServiceError maps service errors to responses. Anything unmapped is
// logged and reported as a 500 with msg.
func writeServiceError(w http.ResponseWriter, op string, err error, msg string) {
	switch {
	case errors.Is(err, model.ErrMutationConflict):
		httputil.WriteConflict(w, "Another change to this comment is still in progress")
	case errors.Is(err, model.ErrPostNotFound):
		httputil.WriteNotFound(w, "Post not found")
	case errors.Is(err, model.ErrCommentNotFound):
		httputil.WriteNotFound(w, "Comment not found")
	case errors.Is(err, model.ErrNotPlaceholder):
		httputil.WriteNotFound(w, "Nothing to load at this position")
	case errors.Is(err, model.ErrContentRequired):
		httputil.WriteValidationError(w, "Comment text is required")
	case errors.Is(err, model.ErrContentTooLong):
		httputil.WriteValidationError(w, "Comment text too long")
	case errors.Is(err, model.ErrEmptyModeration):
		httputil.WriteValidationError(w, "Set approved or removed")
	default:
		log.Printf("[ERROR] %s handler: err=%v", op, err)
		httputil.WriteInternalError(w, msg)
	}
}
