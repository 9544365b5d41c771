package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"discussfront/internal/queue"
)

const (
	DefaultWorkerCount  = 2
	DefaultBatchSize    = 10
	DefaultBlockTimeout = 5 * time.Second

	maxBackoff = 30 * time.Second
)

// ManagerConfig holds configuration for the worker manager.
type ManagerConfig struct {
	Name         string        // consumer name prefix, usually the instance id
	WorkerCount  int           // number of worker goroutines
	BatchSize    int64         // entries per read
	BlockTimeout time.Duration // XREADGROUP block time
}

func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Name:         "front",
		WorkerCount:  DefaultWorkerCount,
		BatchSize:    DefaultBatchSize,
		BlockTimeout: DefaultBlockTimeout,
	}
}

// Manager runs the goroutines that apply live comment updates to the store.
type Manager struct {
	consumer queue.Consumer
	handler  *Handler
	cfg      ManagerConfig

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewManager(consumer queue.Consumer, handler *Handler, cfg ManagerConfig) *Manager {
	def := DefaultManagerConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = def.BlockTimeout
	}
	return &Manager{consumer: consumer, handler: handler, cfg: cfg}
}

// Start creates the consumer group and launches the workers. Stop must be
// called to release them.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.consumer.EnsureGroup(ctx); err != nil {
		return err
	}

	ctx, m.cancel = context.WithCancel(ctx)
	for i := 1; i <= m.cfg.WorkerCount; i++ {
		name := fmt.Sprintf("%s-%d", m.cfg.Name, i)
		m.wg.Add(1)
		go m.run(ctx, name)
	}
	log.Printf("[Manager] Start OK: workers=%d name=%s", m.cfg.WorkerCount, m.cfg.Name)
	return nil
}

// Stop cancels the workers and waits for them to return.
func (m *Manager) Stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	m.wg.Wait()
	log.Printf("[Manager] Stop OK: name=%s", m.cfg.Name)
}

func (m *Manager) run(ctx context.Context, name string) {
	defer m.wg.Done()

	// Entries delivered to this name before a restart were never acknowledged.
	m.drainBacklog(ctx, name)

	backoff := time.Second
	for ctx.Err() == nil {
		messages, err := m.consumer.Read(ctx, name, queue.ReadOptions{
			Count: m.cfg.BatchSize,
			Block: m.cfg.BlockTimeout,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[Worker %s] Read FAILED: retry_in=%v err=%v", name, backoff, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = time.Second
		m.apply(ctx, name, messages)
	}
}

func (m *Manager) drainBacklog(ctx context.Context, name string) {
	for ctx.Err() == nil {
		messages, err := m.consumer.Read(ctx, name, queue.ReadOptions{Count: m.cfg.BatchSize, Backlog: true})
		if err != nil {
			log.Printf("[Worker %s] Backlog FAILED: err=%v", name, err)
			return
		}
		if len(messages) == 0 {
			return
		}
		m.apply(ctx, name, messages)
	}
}

// apply hands each event to the handler and acknowledges it whatever the
// outcome: a live update that cannot be applied is not retried.
func (m *Manager) apply(ctx context.Context, name string, messages []queue.Message) {
	for _, msg := range messages {
		if err := m.handler.HandleEvent(ctx, msg.Event); err != nil {
			log.Printf("[Worker %s] Apply FAILED: msgID=%s type=%s err=%v", name, msg.ID, msg.Event.Type, err)
		}
		if err := m.consumer.Ack(ctx, msg.ID); err != nil {
			log.Printf("[Worker %s] Ack FAILED: msgID=%s err=%v", name, msg.ID, err)
		}
	}
}
