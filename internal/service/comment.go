package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"discussfront/internal/cache"
	"discussfront/internal/forest"
	"discussfront/internal/model"
	"discussfront/internal/optimistic"
	"discussfront/internal/queue"
	"discussfront/internal/store"
)

var tracer = otel.Tracer("discussfront.service")

// Defaults for CommentConfig.
const (
	DefaultMorePageSize    = 20
	DefaultUpstreamTimeout = 10 * time.Second
)

// CommentConfig tunes a CommentService.
type CommentConfig struct {
	// Origin identifies this instance on the comment stream.
	Origin string
	// MorePageSize caps the ids requested per "load more".
	MorePageSize int
	// UpstreamTimeout bounds each backend call made to settle a mutation or
	// shared by concurrent readers.
	UpstreamTimeout time.Duration
}

// CommentService serves comment threads from the local store and forwards
// mutations to the backend. Mutations are applied locally first and settled
// in the background once the backend answers.
type CommentService struct {
	backend   Backend
	store     *store.Store
	notices   cache.NoticeCache
	publisher queue.Publisher
	cfg       CommentConfig

	threads singleflight.Group
	loads   singleflight.Group

	inflight sync.WaitGroup
}

// NewCommentService creates a service. publisher may be nil, in which case
// confirmed changes are not broadcast.
func NewCommentService(backend Backend, st *store.Store, notices cache.NoticeCache, publisher queue.Publisher, cfg CommentConfig) *CommentService {
	if cfg.MorePageSize <= 0 {
		cfg.MorePageSize = DefaultMorePageSize
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = DefaultUpstreamTimeout
	}
	return &CommentService{
		backend:   backend,
		store:     st,
		notices:   notices,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Close waits for mutations that are still being settled.
func (s *CommentService) Close() {
	s.inflight.Wait()
}

// =============================================================================
// Reads
// =============================================================================

// GetThread returns the comment forest of postID. The thread is fetched from
// the backend once; later calls are served from the store.
func (s *CommentService) GetThread(ctx context.Context, postID string) (*model.ThreadResponse, error) {
	ctx, span := tracer.Start(ctx, "CommentService.GetThread",
		trace.WithAttributes(attribute.String("post.id", postID)))
	defer span.End()

	if !s.store.Loaded(postID) {
		_, shared, err := s.share(ctx, &s.threads, postID, func(ctx context.Context) (any, error) {
			return nil, s.fetchThread(ctx, postID)
		})
		span.SetAttributes(attribute.Bool("fetch.shared", shared))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	}

	return &model.ThreadResponse{PostID: postID, Comments: s.store.Thread(postID)}, nil
}

// ReloadThread refetches postID, replacing whatever the store holds.
func (s *CommentService) ReloadThread(ctx context.Context, postID string) (*model.ThreadResponse, error) {
	ctx, span := tracer.Start(ctx, "CommentService.ReloadThread",
		trace.WithAttributes(attribute.String("post.id", postID)))
	defer span.End()

	if _, _, err := s.share(ctx, &s.threads, postID, func(ctx context.Context) (any, error) {
		return nil, s.fetchThread(ctx, postID)
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &model.ThreadResponse{PostID: postID, Comments: s.store.Thread(postID)}, nil
}

func (s *CommentService) fetchThread(ctx context.Context, postID string) error {
	startTime := time.Now()
	batch, err := s.backend.FetchThread(ctx, postID)
	if err != nil {
		if errors.Is(err, model.ErrPostNotFound) {
			s.store.Evict(postID)
			return err
		}
		log.Printf("[CommentService] FetchThread FAILED: post_id=%s err=%v", postID, err)
		return fmt.Errorf("fetch thread: %w", err)
	}
	b := forest.Assemble(batch.Comments)
	s.store.ReceiveThread(postID, b.Nodes())
	log.Printf("[CommentService] FetchThread OK: post_id=%s records=%d duration=%v",
		postID, len(batch.Comments), time.Since(startTime))
	return nil
}

// LoadMore expands the placeholder at path in postID's thread with the next
// page of its remaining ids. Concurrent requests for the same placeholder
// share one backend call; a placeholder that was already expanded is a no-op.
func (s *CommentService) LoadMore(ctx context.Context, postID string, path []int) (*model.LoadMoreResponse, error) {
	addr := forest.At(postID, path...)
	ctx, span := tracer.Start(ctx, "CommentService.LoadMore",
		trace.WithAttributes(attribute.String("address", addr.String())))
	defer span.End()

	v, shared, err := s.share(ctx, &s.loads, addr.String(), func(ctx context.Context) (any, error) {
		return s.loadMore(ctx, addr)
	})
	span.SetAttributes(attribute.Bool("fetch.shared", shared))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	res := v.(forest.SpliceResult)
	return &model.LoadMoreResponse{
		PostID:    postID,
		Inserted:  res.Inserted,
		Remaining: res.Remaining,
		Comments:  s.store.Thread(postID),
	}, nil
}

func (s *CommentService) loadMore(ctx context.Context, addr forest.NodeAddress) (forest.SpliceResult, error) {
	ph, err := s.store.Placeholder(addr)
	if errors.Is(err, model.ErrPlaceholderExpanded) {
		// An earlier request for the same click got there first.
		return forest.SpliceResult{}, nil
	}
	if err != nil {
		return forest.SpliceResult{}, err
	}

	ids := ph.RemainingIDs
	if len(ids) > s.cfg.MorePageSize {
		ids = ids[:s.cfg.MorePageSize]
	}
	resp, err := s.backend.FetchMore(ctx, addr.PostID, ph.ParentID, ids)
	if err != nil {
		log.Printf("[CommentService] LoadMore FAILED: address=%s ids=%d err=%v", addr, len(ids), err)
		return forest.SpliceResult{}, fmt.Errorf("fetch more comments: %w", err)
	}

	batch := forest.Assemble(resp.Comments)
	batch.Missing = missing(ids, resp)
	batch.Origin = ph
	res := s.store.SpliceMore(addr, batch)
	log.Printf("[CommentService] LoadMore OK: address=%s requested=%d inserted=%d remaining=%d missing=%d",
		addr, len(ids), res.Inserted, res.Remaining, len(batch.Missing))
	return res, nil
}

// share runs fn once for all concurrent callers with the same key. fn gets a
// context detached from any one caller's cancellation and bounded by
// UpstreamTimeout; a caller whose own context ends stops waiting.
func (s *CommentService) share(ctx context.Context, g *singleflight.Group, key string, fn func(context.Context) (any, error)) (any, bool, error) {
	ch := g.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.UpstreamTimeout)
		defer cancel()
		return fn(callCtx)
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case r := <-ch:
		return r.Val, r.Shared, r.Err
	}
}

// missing returns the requested ids the backend reported as not returned.
// A response without a fulfilled list reports nothing missing.
func missing(requested []string, resp *model.MoreCommentsResponse) []string {
	if resp.Fulfilled == nil {
		return nil
	}
	got := make(map[string]struct{}, len(resp.Fulfilled))
	for _, id := range resp.Fulfilled {
		got[id] = struct{}{}
	}
	var out []string
	for _, id := range requested {
		if _, ok := got[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}

// GetComment fetches a single comment for a permalink and registers it as an
// orphan so it can be mutated without its thread.
func (s *CommentService) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	ctx, span := tracer.Start(ctx, "CommentService.GetComment",
		trace.WithAttributes(attribute.String("comment.id", id)))
	defer span.End()

	if c, ok := s.store.Comment(id); ok {
		return c, nil
	}
	rec, err := s.backend.FetchComment(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	c := rec.ToComment()
	s.store.RegisterOrphans(c)
	// The registry may hold a fresher copy if the thread was loaded meanwhile.
	if local, ok := s.store.Comment(id); ok {
		return local, nil
	}
	return c, nil
}

// GetUserComments fetches a user's contribution feed. Every comment is
// registered as an orphan; comments already in a loaded thread are returned
// as the store holds them.
func (s *CommentService) GetUserComments(ctx context.Context, username string, cursor *string, limit int) (*model.OrphanListResponse, error) {
	ctx, span := tracer.Start(ctx, "CommentService.GetUserComments",
		trace.WithAttributes(attribute.String("user.username", username)))
	defer span.End()

	resp, err := s.backend.FetchUserComments(ctx, username, cursor, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("fetch user comments: %w", err)
	}

	comments := make([]*model.Comment, 0, len(resp.Comments))
	for _, rec := range resp.Comments {
		if rec.IsMore() {
			continue
		}
		comments = append(comments, rec.ToComment())
	}
	s.store.RegisterOrphans(comments...)
	for i, c := range comments {
		if local, ok := s.store.Comment(c.ID); ok {
			comments[i] = local
		}
	}
	return &model.OrphanListResponse{
		Username:   username,
		Comments:   comments,
		NextCursor: resp.NextCursor,
	}, nil
}

// =============================================================================
// Mutations
// =============================================================================

// settlement describes how a started mutation is resolved against the backend.
type settlement struct {
	action    string
	sessionID string
	commentID string
	postID    string
	token     *optimistic.PendingMutation // nil when the comment is not known locally

	call    func(ctx context.Context) (*model.Comment, error)
	confirm func(token *optimistic.PendingMutation, server *model.Comment) (*model.Comment, error)
	event   func(server *model.Comment) queue.CommentEvent
}

// Vote toggles the viewer's upvote. When the comment is not known locally,
// up selects the direction sent to the backend (upvote when nil).
func (s *CommentService) Vote(ctx context.Context, sessionID, id string, up *bool) (*model.MutationResponse, error) {
	local, token, err := s.store.BeginVote(id)
	if err != nil && !errors.Is(err, model.ErrCommentNotFound) {
		return nil, err
	}
	direction := valueOr(up, true)
	if local != nil {
		direction = local.Upvoted
	}
	return s.start(ctx, local, settlement{
		action:    "vote",
		sessionID: sessionID,
		commentID: id,
		token:     token,
		call: func(ctx context.Context) (*model.Comment, error) {
			return toComment(s.backend.Vote(ctx, id, direction))
		},
		confirm: s.store.Confirm,
		event:   s.updatedEvent,
	})
}

// Subscribe toggles the viewer's reply subscription.
func (s *CommentService) Subscribe(ctx context.Context, sessionID, id string, subscribed *bool) (*model.MutationResponse, error) {
	local, token, err := s.store.BeginSubscribe(id)
	if err != nil && !errors.Is(err, model.ErrCommentNotFound) {
		return nil, err
	}
	want := valueOr(subscribed, true)
	if local != nil {
		want = local.Subscribed
	}
	return s.start(ctx, local, settlement{
		action:    "subscribe",
		sessionID: sessionID,
		commentID: id,
		token:     token,
		call: func(ctx context.Context) (*model.Comment, error) {
			return toComment(s.backend.Subscribe(ctx, id, want))
		},
		confirm: s.store.Confirm,
		event:   s.updatedEvent,
	})
}

// Moderate applies a moderator's approve/remove patch.
func (s *CommentService) Moderate(ctx context.Context, sessionID, id string, req model.ModerationRequest) (*model.MutationResponse, error) {
	if req.Approved == nil && req.Removed == nil {
		return nil, model.ErrEmptyModeration
	}
	local, token, err := s.store.BeginModerationPatch(id, optimistic.Moderation{Approved: req.Approved, Removed: req.Removed})
	if err != nil && !errors.Is(err, model.ErrCommentNotFound) {
		return nil, err
	}
	return s.start(ctx, local, settlement{
		action:    "moderate",
		sessionID: sessionID,
		commentID: id,
		token:     token,
		call: func(ctx context.Context) (*model.Comment, error) {
			return toComment(s.backend.Moderate(ctx, id, req))
		},
		confirm: s.store.Confirm,
		event:   s.updatedEvent,
	})
}

// Remove hides a comment as a moderator. The node and its replies stay in the
// thread with the removed flag set.
func (s *CommentService) Remove(ctx context.Context, sessionID, id string) (*model.MutationResponse, error) {
	local, token, err := s.store.BeginRemove(id)
	if err != nil && !errors.Is(err, model.ErrCommentNotFound) {
		return nil, err
	}
	approved, removed := false, true
	return s.start(ctx, local, settlement{
		action:    "remove",
		sessionID: sessionID,
		commentID: id,
		token:     token,
		call: func(ctx context.Context) (*model.Comment, error) {
			return toComment(s.backend.Moderate(ctx, id, model.ModerationRequest{Approved: &approved, Removed: &removed}))
		},
		confirm: s.store.Confirm,
		event:   s.updatedEvent,
	})
}

// Delete marks the viewer's comment deleted. Replies are kept.
func (s *CommentService) Delete(ctx context.Context, sessionID, id string) (*model.MutationResponse, error) {
	local, token, err := s.store.BeginDelete(id)
	if err != nil && !errors.Is(err, model.ErrCommentNotFound) {
		return nil, err
	}
	postID := ""
	if local != nil {
		postID = local.PostID
	} else if p, ok := s.store.LookupOrphan(id); ok {
		postID = p
	}
	return s.start(ctx, local, settlement{
		action:    "delete",
		sessionID: sessionID,
		commentID: id,
		postID:    postID,
		token:     token,
		call: func(ctx context.Context) (*model.Comment, error) {
			ack, err := s.backend.Delete(ctx, id)
			if err != nil {
				return nil, err
			}
			return &model.Comment{ID: ack.ID, PostID: postID, Deleted: true}, nil
		},
		confirm: func(token *optimistic.PendingMutation, _ *model.Comment) (*model.Comment, error) {
			return s.store.ConfirmDeletion(token)
		},
		event: func(server *model.Comment) queue.CommentEvent {
			return queue.NewCommentDeletedEvent(s.cfg.Origin, server.PostID, server.ID)
		},
	})
}

// Reply adds a reply to postID, under req.ParentID when set. A provisional node
// is shown at once and swapped for the backend's comment when it is accepted.
func (s *CommentService) Reply(ctx context.Context, sessionID, postID string, req model.CreateReplyRequest) (*model.MutationResponse, error) {
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return nil, model.ErrContentRequired
	}
	if len(req.Text) > model.MaxCommentLength {
		return nil, model.ErrContentTooLong
	}

	provisional := &model.Comment{
		ID:        ProvisionalIDPrefix + uuid.NewString(),
		PostID:    postID,
		ParentID:  req.ParentID,
		Text:      req.Text,
		Upvoted:   true,
		Score:     1,
		Approved:  true,
		CreatedAt: time.Now(),
	}
	local, token, err := s.store.BeginReplyInsertion(postID, req.ParentID, provisional)
	if err != nil && !errors.Is(err, model.ErrCommentNotFound) && !errors.Is(err, model.ErrPostNotFound) {
		return nil, err
	}
	return s.start(ctx, local, settlement{
		action:    "reply",
		sessionID: sessionID,
		commentID: provisional.ID,
		postID:    postID,
		token:     token,
		call: func(ctx context.Context) (*model.Comment, error) {
			return toComment(s.backend.CreateReply(ctx, postID, req))
		},
		confirm: s.store.Confirm,
		event: func(server *model.Comment) queue.CommentEvent {
			return queue.NewCommentCreatedEvent(s.cfg.Origin, server)
		},
	})
}

// ProvisionalIDPrefix marks ids of replies the backend has not accepted yet.
const ProvisionalIDPrefix = "tmp:"

// start hands the settlement to a background goroutine and returns the
// speculative state.
func (s *CommentService) start(ctx context.Context, local *model.Comment, st settlement) (*model.MutationResponse, error) {
	resp := &model.MutationResponse{Comment: local}
	if st.token != nil {
		resp.MutationID = st.token.ID
	}

	// Settlement outlives the request but keeps its trace.
	bg := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.settle(bg, st)
	}()
	return resp, nil
}

func (s *CommentService) settle(ctx context.Context, st settlement) {
	ctx, span := tracer.Start(ctx, "CommentService.settle",
		trace.WithAttributes(
			attribute.String("action", st.action),
			attribute.String("comment.id", st.commentID),
			attribute.Bool("local", st.token != nil),
		))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.UpstreamTimeout)
	defer cancel()

	startTime := time.Now()
	server, err := st.call(callCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Printf("[CommentService] %s FAILED: comment_id=%s err=%v", st.action, st.commentID, err)
		if st.token != nil {
			if _, rbErr := s.store.Rollback(st.token); rbErr != nil && !errors.Is(rbErr, model.ErrCommentNotFound) {
				log.Printf("[CommentService] %s rollback FAILED: comment_id=%s err=%v", st.action, st.commentID, rbErr)
			}
		}
		s.notify(ctx, st)
		return
	}

	if st.token != nil {
		if _, err := st.confirm(st.token, server); err != nil && !errors.Is(err, model.ErrCommentNotFound) {
			log.Printf("[CommentService] %s confirm FAILED: comment_id=%s err=%v", st.action, st.commentID, err)
		}
	} else if st.action == "reply" && server != nil {
		// The thread was not loaded; keep the new comment reachable.
		s.store.RegisterOrphans(server)
	}
	log.Printf("[CommentService] %s OK: comment_id=%s duration=%v", st.action, st.commentID, time.Since(startTime))

	if s.publisher != nil && server != nil {
		if _, err := s.publisher.Publish(ctx, queue.StreamComments, st.event(server)); err != nil {
			log.Printf("[CommentService] Failed to publish %s event: %v", st.action, err)
		}
	}
}

// notify tells the session that its action failed. The transport error is
// only logged.
func (s *CommentService) notify(ctx context.Context, st settlement) {
	if s.notices == nil || st.sessionID == "" {
		return
	}
	n := model.Notice{
		ID:        uuid.NewString(),
		Level:     model.NoticeError,
		Message:   model.ErrActionFailed.Error(),
		Action:    st.action,
		CommentID: st.commentID,
		CreatedAt: time.Now(),
	}
	if err := s.notices.Push(ctx, st.sessionID, n); err != nil {
		log.Printf("[CommentService] Push notice FAILED: session=%s err=%v", st.sessionID, err)
	}
}

// Notices drains the pending notices of a session.
func (s *CommentService) Notices(ctx context.Context, sessionID string) (*model.NoticeListResponse, error) {
	if s.notices == nil {
		return &model.NoticeListResponse{Notices: []model.Notice{}}, nil
	}
	notices, err := s.notices.Drain(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("drain notices: %w", err)
	}
	if notices == nil {
		notices = []model.Notice{}
	}
	return &model.NoticeListResponse{Notices: notices}, nil
}

func (s *CommentService) updatedEvent(server *model.Comment) queue.CommentEvent {
	return queue.NewCommentUpdatedEvent(s.cfg.Origin, server)
}

func toComment(rec *model.CommentRecord, err error) (*model.Comment, error) {
	if err != nil {
		return nil, err
	}
	return rec.ToComment(), nil
}

func valueOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
