package repository

import (
	"time"

	"discussfront/internal/model"
)

// commentRow is one comments row joined with its author and the viewer's flags.
type commentRow struct {
	ID         string    `db:"id"`
	PostID     string    `db:"post_id"`
	ParentID   *string   `db:"parent_id"`
	Body       string    `db:"body"`
	Score      int       `db:"score"`
	Removed    bool      `db:"removed"`
	Deleted    bool      `db:"deleted"`
	Approved   bool      `db:"approved"`
	Upvoted    bool      `db:"upvoted"`
	Subscribed bool      `db:"subscribed"`
	CreatedAt  time.Time `db:"created_at"`

	AuthorID       string  `db:"author.id"`
	AuthorUsername string  `db:"author.username"`
	AuthorDisplay  *string `db:"author.display_name"`
	AuthorAvatar   *string `db:"author.avatar_url"`
}

func (r commentRow) record() model.CommentRecord {
	rec := model.CommentRecord{
		Kind:       model.KindComment,
		ID:         r.ID,
		PostID:     r.PostID,
		ParentID:   r.ParentID,
		Text:       r.Body,
		Score:      r.Score,
		Upvoted:    r.Upvoted,
		Subscribed: r.Subscribed,
		Removed:    r.Removed,
		Deleted:    r.Deleted,
		Approved:   r.Approved,
		CreatedAt:  r.CreatedAt,
	}
	if r.AuthorID != "" {
		rec.Author = &model.UserSummary{
			ID:          r.AuthorID,
			Username:    r.AuthorUsername,
			DisplayName: r.AuthorDisplay,
			AvatarURL:   r.AuthorAvatar,
		}
	}
	return rec
}

// Limits bounds how much of a thread is materialized per request. Siblings
// beyond a limit are summarized by a "more" record listing their ids.
type Limits struct {
	Roots    int // top-level comments per thread fetch
	Children int // replies per parent
}

// threadBuilder turns the flat rows of one post into batch records, parents
// before their children. Rows must be in display order.
type threadBuilder struct {
	rows     []commentRow
	byID     map[string]int
	children map[string][]int // parent id -> row indexes; "" holds top level
	limits   Limits
	emitted  map[string]bool
}

func newThreadBuilder(rows []commentRow, limits Limits) *threadBuilder {
	b := &threadBuilder{
		rows:     rows,
		byID:     make(map[string]int, len(rows)),
		children: make(map[string][]int),
		limits:   limits,
		emitted:  make(map[string]bool),
	}
	for i, r := range rows {
		b.byID[r.ID] = i
	}
	for i, r := range rows {
		key := ""
		if r.ParentID != nil {
			if _, ok := b.byID[*r.ParentID]; ok {
				key = *r.ParentID
			}
		}
		b.children[key] = append(b.children[key], i)
	}
	return b
}

// thread emits the top of the post: the first Roots top-level comments with
// their reply trees.
func (b *threadBuilder) thread(postID string) []model.CommentRecord {
	return b.level(postID, nil, b.children[""], b.limits.Roots, nil)
}

// subtrees emits the full records for ids, in the given order. Ids that are
// unknown or not children of parentID are left out and not reported fulfilled.
func (b *threadBuilder) subtrees(parentID *string, ids []string) ([]model.CommentRecord, []string) {
	var out []model.CommentRecord
	fulfilled := make([]string, 0, len(ids))
	for _, id := range ids {
		i, ok := b.byID[id]
		if !ok || !model.SameParent(b.rows[i].ParentID, parentID) {
			continue
		}
		if b.emitted[id] {
			continue
		}
		out = b.subtree(i, out)
		fulfilled = append(fulfilled, id)
	}
	return out, fulfilled
}

func (b *threadBuilder) level(postID string, parentID *string, idxs []int, limit int, out []model.CommentRecord) []model.CommentRecord {
	shown := idxs
	if limit > 0 && len(idxs) > limit {
		shown = idxs[:limit]
	}
	for _, i := range shown {
		out = b.subtree(i, out)
	}
	if len(shown) == len(idxs) {
		return out
	}
	rest := make([]string, 0, len(idxs)-len(shown))
	for _, i := range idxs[len(shown):] {
		rest = append(rest, b.rows[i].ID)
	}
	return append(out, model.CommentRecord{
		Kind:     model.KindMore,
		PostID:   postID,
		ParentID: parentID,
		Children: rest,
		Count:    len(rest),
	})
}

func (b *threadBuilder) subtree(i int, out []model.CommentRecord) []model.CommentRecord {
	r := b.rows[i]
	if b.emitted[r.ID] {
		return out
	}
	b.emitted[r.ID] = true
	out = append(out, r.record())
	id := r.ID
	return b.level(r.PostID, &id, b.children[r.ID], b.limits.Children, out)
}
