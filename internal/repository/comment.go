package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"discussfront/internal/model"
)

// Schema:
//
//	users(id, username, display_name, avatar_url)
//	posts(id)
//	comments(id, post_id, parent_id, author_id, body, score, removed, deleted, approved, created_at)
//	comment_votes(comment_id, user_id)          primary key (comment_id, user_id)
//	comment_subscriptions(comment_id, user_id)  primary key (comment_id, user_id)
type commentRepository struct {
	db       *sqlx.DB
	viewerID string
	limits   Limits
}

// NewCommentRepository reads threads as seen by viewerID. Authentication is
// not handled here; the viewer is fixed per process.
func NewCommentRepository(db *sqlx.DB, viewerID string, limits Limits) CommentRepository {
	return &commentRepository{db: db, viewerID: viewerID, limits: limits}
}

// selectComments is the column list shared by every read. $1 is the viewer.
const selectComments = `
	SELECT c.id, c.post_id, c.parent_id, c.body, c.score, c.removed, c.deleted, c.approved, c.created_at,
	       EXISTS(SELECT 1 FROM comment_votes v WHERE v.comment_id = c.id AND v.user_id = $1) AS upvoted,
	       EXISTS(SELECT 1 FROM comment_subscriptions s WHERE s.comment_id = c.id AND s.user_id = $1) AS subscribed,
	       u.id as "author.id", u.username as "author.username",
	       u.display_name as "author.display_name", u.avatar_url as "author.avatar_url"
	FROM comments c
	JOIN users u ON u.id = c.author_id
`

func (r *commentRepository) postRows(ctx context.Context, postID string) ([]commentRow, error) {
	var rows []commentRow
	query := selectComments + `
		WHERE c.post_id = $2
		ORDER BY c.created_at ASC, c.id ASC
	`
	if err := r.db.SelectContext(ctx, &rows, query, r.viewerID, postID); err != nil {
		return nil, fmt.Errorf("get post comments: %w", err)
	}
	return rows, nil
}

func (r *commentRepository) postExists(ctx context.Context, postID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`, postID)
	if err != nil {
		return false, fmt.Errorf("check post exists: %w", err)
	}
	return exists, nil
}

// FetchThread returns the top of a post's thread with "more" records for the rest.
func (r *commentRepository) FetchThread(ctx context.Context, postID string) (*model.CommentBatch, error) {
	exists, err := r.postExists(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, model.ErrPostNotFound
	}
	rows, err := r.postRows(ctx, postID)
	if err != nil {
		return nil, err
	}
	return &model.CommentBatch{
		PostID:   postID,
		Comments: newThreadBuilder(rows, r.limits).thread(postID),
	}, nil
}

// FetchMore returns the requested siblings with their reply trees.
func (r *commentRepository) FetchMore(ctx context.Context, postID string, parentID *string, ids []string) (*model.MoreCommentsResponse, error) {
	rows, err := r.postRows(ctx, postID)
	if err != nil {
		return nil, err
	}
	records, fulfilled := newThreadBuilder(rows, r.limits).subtrees(parentID, ids)
	return &model.MoreCommentsResponse{
		PostID:    postID,
		ParentID:  parentID,
		Requested: ids,
		Fulfilled: fulfilled,
		Comments:  records,
	}, nil
}

// FetchComment returns one comment without its replies.
func (r *commentRepository) FetchComment(ctx context.Context, id string) (*model.CommentRecord, error) {
	return r.getRecord(ctx, r.db, id)
}

func (r *commentRepository) getRecord(ctx context.Context, q sqlx.QueryerContext, id string) (*model.CommentRecord, error) {
	var row commentRow
	err := sqlx.GetContext(ctx, q, &row, selectComments+` WHERE c.id = $2`, r.viewerID, id)
	if err == sql.ErrNoRows {
		return nil, model.ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get comment: %w", err)
	}
	rec := row.record()
	return &rec, nil
}

// FetchUserComments returns a user's comments, newest first, without ancestors.
func (r *commentRepository) FetchUserComments(ctx context.Context, username string, cursor *string, limit int) (*model.UserCommentsResponse, error) {
	if limit <= 0 {
		limit = 25
	}
	if limit > 100 {
		limit = 100
	}

	query := selectComments + ` WHERE u.username = $2`
	args := []interface{}{r.viewerID, username}
	if cursor != nil {
		ts, id, err := parseCommentCursor(*cursor)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		query += ` AND (c.created_at, c.id) < ($3, $4)`
		args = append(args, ts, id)
	}
	query += fmt.Sprintf(` ORDER BY c.created_at DESC, c.id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit+1)

	var rows []commentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("get user comments: %w", err)
	}

	var nextCursor *string
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		c := formatCommentCursor(last.CreatedAt, last.ID)
		nextCursor = &c
	}

	records := make([]model.CommentRecord, len(rows))
	for i, row := range rows {
		records[i] = row.record()
	}
	return &model.UserCommentsResponse{
		Username:   username,
		Comments:   records,
		NextCursor: nextCursor,
	}, nil
}

// Vote sets or clears the viewer's upvote and keeps the score in step.
func (r *commentRepository) Vote(ctx context.Context, id string, up bool) (*model.CommentRecord, error) {
	return r.inTx(ctx, id, func(tx *sqlx.Tx) error {
		var res sql.Result
		var err error
		delta := 1
		if up {
			res, err = tx.ExecContext(ctx, `
				INSERT INTO comment_votes (comment_id, user_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`, id, r.viewerID)
		} else {
			delta = -1
			res, err = tx.ExecContext(ctx, `
				DELETE FROM comment_votes WHERE comment_id = $1 AND user_id = $2
			`, id, r.viewerID)
		}
		if err != nil {
			return fmt.Errorf("write vote: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE comments SET score = score + $1 WHERE id = $2`, delta, id); err != nil {
			return fmt.Errorf("update score: %w", err)
		}
		return nil
	})
}

// Subscribe sets or clears the viewer's reply subscription.
func (r *commentRepository) Subscribe(ctx context.Context, id string, subscribed bool) (*model.CommentRecord, error) {
	return r.inTx(ctx, id, func(tx *sqlx.Tx) error {
		query := `DELETE FROM comment_subscriptions WHERE comment_id = $1 AND user_id = $2`
		if subscribed {
			query = `
				INSERT INTO comment_subscriptions (comment_id, user_id) VALUES ($1, $2)
				ON CONFLICT DO NOTHING
			`
		}
		if _, err := tx.ExecContext(ctx, query, id, r.viewerID); err != nil {
			return fmt.Errorf("write subscription: %w", err)
		}
		return nil
	})
}

// Moderate applies a moderator's patch. Approving without an explicit removed
// value also restores the comment.
func (r *commentRepository) Moderate(ctx context.Context, id string, patch model.ModerationRequest) (*model.CommentRecord, error) {
	removed := patch.Removed
	if removed == nil && patch.Approved != nil && *patch.Approved {
		f := false
		removed = &f
	}
	return r.inTx(ctx, id, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE comments
			SET approved = COALESCE($1, approved),
			    removed  = COALESCE($2, removed)
			WHERE id = $3
		`, patch.Approved, removed, id)
		if err != nil {
			return fmt.Errorf("moderate comment: %w", err)
		}
		return nil
	})
}

// Delete marks the comment deleted. Replies are kept.
func (r *commentRepository) Delete(ctx context.Context, id string) (*model.DeletionAck, error) {
	var deletedID string
	err := r.db.GetContext(ctx, &deletedID, `
		UPDATE comments SET deleted = TRUE WHERE id = $1 RETURNING id
	`, id)
	if err == sql.ErrNoRows {
		return nil, model.ErrCommentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("delete comment: %w", err)
	}
	return &model.DeletionAck{ID: deletedID}, nil
}

// CreateReply inserts a comment on postID, under req.ParentID when set.
func (r *commentRepository) CreateReply(ctx context.Context, postID string, req model.CreateReplyRequest) (*model.CommentRecord, error) {
	exists, err := r.postExists(ctx, postID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, model.ErrPostNotFound
	}
	if req.ParentID != nil {
		var parentPost string
		err := r.db.GetContext(ctx, &parentPost, `SELECT post_id FROM comments WHERE id = $1`, *req.ParentID)
		if err == sql.ErrNoRows {
			return nil, model.ErrCommentNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("get parent comment: %w", err)
		}
		if parentPost != postID {
			return nil, fmt.Errorf("parent comment does not belong to this post")
		}
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO comments (id, post_id, parent_id, author_id, body, score, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, NOW())
	`, id, postID, req.ParentID, r.viewerID, req.Text)
	if err != nil {
		return nil, fmt.Errorf("insert comment: %w", err)
	}
	return r.FetchComment(ctx, id)
}

// inTx runs write, then reads the comment back in the same transaction.
func (r *commentRepository) inTx(ctx context.Context, id string, write func(tx *sqlx.Tx) error) (*model.CommentRecord, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM comments WHERE id = $1)`, id); err != nil {
		return nil, fmt.Errorf("check comment exists: %w", err)
	}
	if !exists {
		return nil, model.ErrCommentNotFound
	}
	if err := write(tx); err != nil {
		return nil, err
	}
	rec, err := r.getRecord(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return rec, nil
}

// Helper: parse comment cursor "timestamp:id"
func parseCommentCursor(cursor string) (time.Time, string, error) {
	parts := strings.SplitN(cursor, ":", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", fmt.Errorf("invalid cursor format")
	}
	var ts int64
	if _, err := fmt.Sscanf(parts[0], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}
	return time.Unix(0, ts), parts[1], nil
}

// Helper: format comment cursor "timestamp:id"
func formatCommentCursor(t time.Time, id string) string {
	return fmt.Sprintf("%d:%s", t.UnixNano(), id)
}
