// Package upstream talks to the forum backend's REST API.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"discussfront/internal/model"
)

// StatusError is returned for a non-2xx answer that has no sentinel mapping.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream returned %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream returned %d", e.Status)
}

// Client is a forum backend client. The zero value is not usable; use NewClient.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// NewClient creates a client for the API rooted at baseURL. Every request is
// bounded by timeout in addition to the caller's context.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse upstream url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("upstream url %q must be absolute", baseURL)
	}
	return &Client{
		baseURL: u,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

// FetchThread returns the top of a post's thread.
func (c *Client) FetchThread(ctx context.Context, postID string) (*model.CommentBatch, error) {
	var out model.CommentBatch
	if err := c.do(ctx, http.MethodGet, "/posts/"+url.PathEscape(postID)+"/comments", nil, nil, model.ErrPostNotFound, &out); err != nil {
		return nil, err
	}
	if out.PostID == "" {
		out.PostID = postID
	}
	return &out, nil
}

type moreRequest struct {
	ParentID *string  `json:"parent_id,omitempty"`
	IDs      []string `json:"ids"`
}

// FetchMore returns the subtrees of ids, siblings under parentID.
func (c *Client) FetchMore(ctx context.Context, postID string, parentID *string, ids []string) (*model.MoreCommentsResponse, error) {
	var out model.MoreCommentsResponse
	body := moreRequest{ParentID: parentID, IDs: ids}
	if err := c.do(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/comments/more", nil, body, model.ErrPostNotFound, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchComment returns a single comment without its replies.
func (c *Client) FetchComment(ctx context.Context, id string) (*model.CommentRecord, error) {
	return c.comment(ctx, http.MethodGet, "/comments/"+url.PathEscape(id), nil)
}

// FetchUserComments returns a page of a user's comments.
func (c *Client) FetchUserComments(ctx context.Context, username string, cursor *string, limit int) (*model.UserCommentsResponse, error) {
	q := url.Values{}
	if cursor != nil {
		q.Set("cursor", *cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out model.UserCommentsResponse
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(username)+"/comments", q, nil, model.ErrCommentNotFound, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Vote sets (up) or clears the viewer's upvote.
func (c *Client) Vote(ctx context.Context, id string, up bool) (*model.CommentRecord, error) {
	return c.comment(ctx, http.MethodPost, "/comments/"+url.PathEscape(id)+"/vote", map[string]bool{"up": up})
}

// Subscribe sets or clears the viewer's reply subscription.
func (c *Client) Subscribe(ctx context.Context, id string, subscribed bool) (*model.CommentRecord, error) {
	return c.comment(ctx, http.MethodPost, "/comments/"+url.PathEscape(id)+"/subscription", map[string]bool{"subscribed": subscribed})
}

// Moderate applies a moderation patch.
func (c *Client) Moderate(ctx context.Context, id string, patch model.ModerationRequest) (*model.CommentRecord, error) {
	return c.comment(ctx, http.MethodPatch, "/comments/"+url.PathEscape(id)+"/moderation", patch)
}

// Delete deletes the viewer's comment.
func (c *Client) Delete(ctx context.Context, id string) (*model.DeletionAck, error) {
	var out model.DeletionAck
	if err := c.do(ctx, http.MethodDelete, "/comments/"+url.PathEscape(id), nil, nil, model.ErrCommentNotFound, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		out.ID = id
	}
	return &out, nil
}

// CreateReply posts a new comment.
func (c *Client) CreateReply(ctx context.Context, postID string, req model.CreateReplyRequest) (*model.CommentRecord, error) {
	notFound := model.ErrPostNotFound
	if req.ParentID != nil {
		notFound = model.ErrCommentNotFound
	}
	var out model.CommentResponse
	if err := c.do(ctx, http.MethodPost, "/posts/"+url.PathEscape(postID)+"/comments", nil, req, notFound, &out); err != nil {
		return nil, err
	}
	return &out.Comment, nil
}

func (c *Client) comment(ctx context.Context, method, path string, body any) (*model.CommentRecord, error) {
	var out model.CommentResponse
	if err := c.do(ctx, method, path, nil, body, model.ErrCommentNotFound, &out); err != nil {
		return nil, err
	}
	return &out.Comment, nil
}

// errorEnvelope is the backend's error body: {"error": {"code", "message"}}.
type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do sends one request and decodes a JSON answer into out. A 404 is reported
// as notFound.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, notFound error, out any) error {
	target := c.baseURL.String() + path
	if q := query.Encode(); q != "" {
		target += "?" + q
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		io.Copy(io.Discard, resp.Body)
		return notFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Status: resp.StatusCode}
		var env errorEnvelope
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&env); err == nil {
			se.Code = env.Error.Code
			se.Message = env.Error.Message
		}
		return se
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}
