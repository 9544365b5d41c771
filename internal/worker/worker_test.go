package worker_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"discussfront/internal/model"
	"discussfront/internal/queue"
	"discussfront/internal/store"
	"discussfront/internal/worker"
)

// =============================================================================
// Mock Implementations
// =============================================================================

// mockConsumer hands out one batch of messages and records acks.
type mockConsumer struct {
	mu      sync.Mutex
	batches [][]queue.Message
	acked   []string
	reads   []queue.ReadOptions
}

func newMockConsumer(batches ...[]queue.Message) *mockConsumer {
	return &mockConsumer{batches: batches}
}

func (m *mockConsumer) EnsureGroup(ctx context.Context) error {
	return nil
}

func (m *mockConsumer) Read(ctx context.Context, consumer string, opts queue.ReadOptions) ([]queue.Message, error) {
	m.mu.Lock()
	m.reads = append(m.reads, opts)
	if len(m.batches) > 0 {
		batch := m.batches[0]
		m.batches = m.batches[1:]
		m.mu.Unlock()
		return batch, nil
	}
	m.mu.Unlock()

	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Millisecond):
	}
	return nil, nil
}

func (m *mockConsumer) Ack(ctx context.Context, messageIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, messageIDs...)
	return nil
}

func (m *mockConsumer) Pending(ctx context.Context) (int64, error) {
	return 0, nil
}

func (m *mockConsumer) readCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reads)
}

func (m *mockConsumer) ackedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.acked)
}

// =============================================================================
// Test Helpers
// =============================================================================

func strPtr(s string) *string { return &s }

// loadedStore returns a store with P1 holding C1 and a placeholder for C2.
func loadedStore() *store.Store {
	s := store.New()
	s.ReceiveThread("P1", []model.Node{
		&model.Comment{ID: "C1", PostID: "P1", Score: 5},
		&model.MorePlaceholder{PostID: "P1", RemainingIDs: []string{"C2"}, Count: 1},
	})
	return s
}

func setupTestRedis(t *testing.T) *redis.Client {
	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("Failed to parse Redis URL: %v", err)
	}

	// Use DB 1 for testing to avoid conflicts with dev data
	opts.DB = 1

	client := redis.NewClient(opts)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available, skipping test: %v", err)
	}
	client.FlushDB(ctx)

	return client
}

func cleanupTestRedis(client *redis.Client) {
	ctx := context.Background()
	client.FlushDB(ctx)
	client.Close()
}

// =============================================================================
// Handler Tests
// =============================================================================

func TestHandler_CommentCreatedInsertsIntoLoadedThread(t *testing.T) {
	s := loadedStore()
	handler := worker.NewHandler(s, "front-a")

	c := &model.Comment{ID: "R1", PostID: "P1", ParentID: strPtr("C1"), Text: "hi"}
	err := handler.HandleEvent(context.Background(), queue.NewCommentCreatedEvent("front-b", c))
	if err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	c1, ok := s.Comment("C1")
	if !ok {
		t.Fatal("C1 missing")
	}
	if len(c1.Children) != 1 || c1.Children[0].(*model.Comment).ID != "R1" {
		t.Errorf("R1 not inserted under C1: %+v", c1.Children)
	}
}

func TestHandler_CommentUpdatedRefreshesAttributes(t *testing.T) {
	s := loadedStore()
	handler := worker.NewHandler(s, "front-a")

	updated := &model.Comment{ID: "C1", PostID: "P1", Score: 12, Removed: true}
	if err := handler.HandleEvent(context.Background(), queue.NewCommentUpdatedEvent("front-b", updated)); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	c1, _ := s.Comment("C1")
	if c1.Score != 12 || !c1.Removed {
		t.Errorf("C1 not refreshed: score=%d removed=%t", c1.Score, c1.Removed)
	}
}

func TestHandler_CommentDeletedSetsFlag(t *testing.T) {
	s := loadedStore()
	handler := worker.NewHandler(s, "front-a")

	if err := handler.HandleEvent(context.Background(), queue.NewCommentDeletedEvent("front-b", "P1", "C1")); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	c1, _ := s.Comment("C1")
	if !c1.Deleted {
		t.Error("C1 should be marked deleted")
	}
	if len(s.Thread("P1")) != 2 {
		t.Error("deletion must not remove the node")
	}
}

func TestHandler_SkipsOwnEvents(t *testing.T) {
	s := loadedStore()
	handler := worker.NewHandler(s, "front-a")

	updated := &model.Comment{ID: "C1", PostID: "P1", Score: 99}
	if err := handler.HandleEvent(context.Background(), queue.NewCommentUpdatedEvent("front-a", updated)); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}

	c1, _ := s.Comment("C1")
	if c1.Score != 5 {
		t.Errorf("own event applied twice: score=%d", c1.Score)
	}
}

func TestHandler_RejectsMalformedEvents(t *testing.T) {
	handler := worker.NewHandler(loadedStore(), "front-a")
	ctx := context.Background()

	if err := handler.HandleEvent(ctx, queue.CommentEvent{Type: "comment_exploded"}); err == nil {
		t.Error("expected error for unknown event type")
	}
	if err := handler.HandleEvent(ctx, queue.CommentEvent{Type: queue.EventCommentUpdated, PostID: "P1"}); err == nil {
		t.Error("expected error for update without comment")
	}
}

// =============================================================================
// Manager Tests
// =============================================================================

func TestManager_ProcessesAndAcksEveryMessage(t *testing.T) {
	s := loadedStore()
	consumer := newMockConsumer([]queue.Message{
		{ID: "1-0", Event: queue.NewCommentUpdatedEvent("front-b", &model.Comment{ID: "C1", PostID: "P1", Score: 7})},
		{ID: "2-0", Event: queue.CommentEvent{Type: "bogus"}},
		{ID: "3-0", Event: queue.NewCommentDeletedEvent("front-b", "P1", "C1")},
	})
	cfg := worker.DefaultManagerConfig()
	cfg.WorkerCount = 1
	m := worker.NewManager(consumer, worker.NewHandler(s, "front-a"), cfg)

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for consumer.ackedCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()

	if got := consumer.ackedCount(); got != 3 {
		t.Fatalf("acked %d messages, want 3", got)
	}
	c1, _ := s.Comment("C1")
	if c1.Score != 7 || !c1.Deleted {
		t.Errorf("events not applied: score=%d deleted=%t", c1.Score, c1.Deleted)
	}
}

func TestManager_DrainsBacklogBeforeBlocking(t *testing.T) {
	s := loadedStore()
	consumer := newMockConsumer([]queue.Message{
		{ID: "1-0", Event: queue.NewCommentUpdatedEvent("front-b", &model.Comment{ID: "C1", PostID: "P1", Score: 8})},
	})
	m := worker.NewManager(consumer, worker.NewHandler(s, "front-a"), worker.ManagerConfig{Name: "front-a", WorkerCount: 1})

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for consumer.readCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()

	consumer.mu.Lock()
	defer consumer.mu.Unlock()
	if len(consumer.reads) < 3 {
		t.Fatalf("expected at least 3 reads, got %d", len(consumer.reads))
	}
	if !consumer.reads[0].Backlog || !consumer.reads[1].Backlog {
		t.Errorf("first reads should drain the backlog: %+v", consumer.reads[:2])
	}
	if last := consumer.reads[len(consumer.reads)-1]; last.Backlog || last.Block != worker.DefaultBlockTimeout {
		t.Errorf("steady-state read should block for new entries: %+v", last)
	}
	c1, _ := s.Comment("C1")
	if c1.Score != 8 {
		t.Errorf("backlog event not applied: score=%d", c1.Score)
	}
}

// =============================================================================
// Stream + Worker Integration Test
// =============================================================================

// TestStreamToWorkerIntegration tests the complete flow:
// Publisher -> Stream -> Consumer -> Handler -> Store
func TestStreamToWorkerIntegration(t *testing.T) {
	client := setupTestRedis(t)
	defer cleanupTestRedis(client)

	ctx := context.Background()
	s := loadedStore()
	publisher := queue.NewPublisher(client, 1000)
	consumer := queue.NewConsumer(client, queue.StreamComments, queue.ConsumerGroupPrefix+":front-a")
	handler := worker.NewHandler(s, "front-a")

	if err := consumer.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup failed: %v", err)
	}
	// A second call must tolerate the existing group.
	if err := consumer.EnsureGroup(ctx); err != nil {
		t.Fatalf("EnsureGroup (existing) failed: %v", err)
	}

	reply := &model.Comment{ID: "R1", PostID: "P1", ParentID: strPtr("C1"), Text: "from elsewhere"}
	if _, err := publisher.Publish(ctx, queue.StreamComments, queue.NewCommentCreatedEvent("front-b", reply)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	messages, err := consumer.Read(ctx, "test-worker", queue.ReadOptions{Count: 10, Block: time.Second})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}

	msg := messages[0]
	if err := handler.HandleEvent(ctx, msg.Event); err != nil {
		t.Fatalf("HandleEvent failed: %v", err)
	}
	if err := consumer.Ack(ctx, msg.ID); err != nil {
		t.Fatalf("Ack failed: %v", err)
	}

	if _, ok := s.Comment("R1"); !ok {
		t.Error("R1 should be in the store")
	}
	pending, _ := consumer.Pending(ctx)
	if pending != 0 {
		t.Errorf("Expected 0 pending messages, got %d", pending)
	}
}
