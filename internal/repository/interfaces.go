package repository

import (
	"context"

	"discussfront/internal/model"
)

// CommentRepository reads and writes comment threads directly in PostgreSQL.
// Its method set matches service.Backend, so it can stand in for the forum API.
type CommentRepository interface {
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
