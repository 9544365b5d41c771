package model

import "errors"

// Lookup errors
var (
	// ErrCommentNotFound is returned when a comment is neither in a loaded thread
	// nor in the orphan registry.
	ErrCommentNotFound = errors.New("comment not found")

	// ErrPostNotFound is returned when the backend does not know the post.
	ErrPostNotFound = errors.New("post not found")

	// ErrNotPlaceholder is returned when a "load more" address does not point at a placeholder.
	ErrNotPlaceholder = errors.New("address does not resolve to a placeholder")

	// ErrPlaceholderExpanded is returned for a "load more" address whose
	// placeholder an earlier load already replaced.
	ErrPlaceholderExpanded = errors.New("placeholder already expanded")
)

// Mutation errors
var (
	// ErrMutationConflict is returned when a mutation of the same kind is already
	// in flight for the same comment.
	ErrMutationConflict = errors.New("mutation already in flight")

	// ErrUnknownMutation is returned when confirming or rolling back a mutation
	// that is not pending.
	ErrUnknownMutation = errors.New("mutation is not pending")

	// ErrActionFailed is the user-facing failure for a rolled back mutation.
	ErrActionFailed = errors.New("action could not be completed")
)

// Validation errors
var (
	ErrContentRequired = errors.New("comment text is required")
	ErrContentTooLong  = errors.New("comment text too long")
)

// ErrEmptyModeration is returned for a moderation patch that sets nothing.
var ErrEmptyModeration = errors.New("moderation patch must set approved or removed")
