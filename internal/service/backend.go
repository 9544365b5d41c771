package service

import (
	"context"

	"discussfront/internal/model"
)

// Backend is the forum backend that owns the comments. It is served either by
// the forum's REST API (upstream.Client) or straight from PostgreSQL
// (repository.CommentRepository).
type Backend interface {
	FetchThread(ctx context.Context, postID string) (*model.CommentBatch, error)
	FetchMore(ctx context.Context, postID string, parentID *string, ids []string) (*model.MoreCommentsResponse, error)
	FetchComment(ctx context.Context, id string) (*model.CommentRecord, error)
	FetchUserComments(ctx context.Context, username string, cursor *string, limit int) (*model.UserCommentsResponse, error)

	Vote(ctx context.Context, id string, up bool) (*model.CommentRecord, error)
	Subscribe(ctx context.Context, id string, subscribed bool) (*model.CommentRecord, error)
	Moderate(ctx context.Context, id string, patch model.ModerationRequest) (*model.CommentRecord, error)
	Delete(ctx context.Context, id string) (*model.DeletionAck, error)
	CreateReply(ctx context.Context, postID string, req model.CreateReplyRequest) (*model.CommentRecord, error)
}
