package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"discussfront/internal/cache"
	"discussfront/internal/config"
	"discussfront/internal/database"
	"discussfront/internal/handler"
	"discussfront/internal/queue"
	"discussfront/internal/redis"
	"discussfront/internal/repository"
	"discussfront/internal/service"
	"discussfront/internal/store"
	httptransport "discussfront/internal/transport/http"
	"discussfront/internal/upstream"
	"discussfront/internal/worker"
)

func main() {
	root := &cobra.Command{
		Use:   "discussfront",
		Short: "Threaded comment front for a forum backend",
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve comment threads over HTTP",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	})

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]func(context.Context) error{}

	// 2. Backend
	var backend service.Backend
	switch cfg.Backend {
	case config.BackendPostgres:
		db, err := database.Connect(cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		checks["database"] = db.PingContext
		backend = repository.NewCommentRepository(db, cfg.ViewerID, repository.Limits{
			Roots:    cfg.RootLimit,
			Children: cfg.ChildLimit,
		})
	default:
		client, err := upstream.NewClient(cfg.UpstreamURL, cfg.UpstreamTimeout)
		if err != nil {
			return err
		}
		backend = client
	}
	log.Printf("[Server] Backend: %s", cfg.Backend)

	// 3. Store, notices and live updates
	st := store.New()
	var notices cache.NoticeCache = cache.NewMemoryNoticeCache(cfg.NoticeTTL)
	var publisher queue.Publisher

	if cfg.RedisURL != "" {
		rdb, err := redis.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()
		checks["redis"] = rdb.Check

		notices = cache.NewNoticeCache(rdb.Client, cfg.NoticeTTL)
		publisher = queue.NewPublisher(rdb.Client, cfg.StreamMaxLen)

		managerCfg := worker.DefaultManagerConfig()
		managerCfg.WorkerCount = cfg.WorkerCount
		managerCfg.Name = cfg.InstanceID
		consumer := queue.NewConsumer(rdb.Client, queue.StreamComments, queue.ConsumerGroupPrefix+":"+cfg.InstanceID)
		manager := worker.NewManager(consumer, worker.NewHandler(st, cfg.InstanceID), managerCfg)
		if err := manager.Start(ctx); err != nil {
			return fmt.Errorf("start workers: %w", err)
		}
		defer manager.Stop()
	} else {
		log.Println("[Server] REDIS_URL not set: notices in memory, live updates off")
	}

	// 4. Service and HTTP
	svc := service.NewCommentService(backend, st, notices, publisher, service.CommentConfig{
		Origin:          cfg.InstanceID,
		MorePageSize:    cfg.MorePageSize,
		UpstreamTimeout: cfg.UpstreamTimeout,
	})
	defer svc.Close()

	router := httptransport.NewRouter(httptransport.RouterConfig{
		ThreadHandler:  handler.NewThreadHandler(svc),
		CommentHandler: handler.NewCommentHandler(svc),
		NoticeHandler:  handler.NewNoticeHandler(svc),
		HealthChecks:   checks,
	})

	return httptransport.NewServer(cfg.ServerPort, router).Run(ctx)
}
