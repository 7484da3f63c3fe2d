package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"echograph/internal/chunker"
	"echograph/internal/config"
	"echograph/internal/embeddings"
	"echograph/internal/extract"
	"echograph/internal/logger"
	"echograph/internal/pipeline"
	"echograph/internal/queue"
	"echograph/internal/storage"
	"echograph/internal/store"
	"echograph/internal/telemetry"
	"echograph/internal/vectorstore"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	logger.InitLogger(cfg)

	shutdownTracer, err := telemetry.InitTracer(cfg, "echograph-worker")
	if err != nil {
		log.Fatal("Failed to init tracing:", err)
	}
	defer shutdownTracer()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := config.NewPostgresPool(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to connect to Postgres:", err)
	}
	defer pool.Close()

	blob, err := storage.New(cfg)
	if err != nil {
		log.Fatal("Failed to connect to blob store:", err)
	}

	vectors, err := vectorstore.New(cfg)
	if err != nil {
		log.Fatal("Failed to connect to vector index:", err)
	}
	defer vectors.Close()
	if err := vectors.Init(ctx, cfg.EmbeddingDim); err != nil {
		log.Fatal("Failed to init vector collections:", err)
	}

	provider, err := embeddings.NewProvider(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to init embeddings provider:", err)
	}

	st := store.New(pool)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	// The worker enqueues relationship extraction after a document lands in
	// the ready state.
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()
	enqueuer := queue.NewEnqueuer(asynqClient, cfg)

	processor := pipeline.NewProcessor(pipeline.ProcessorDeps{
		Docs:      st.Documents,
		Chunks:    st.Chunks,
		Persister: st,
		Blob:      blob,
		Extractor: extract.NewExtractor(cfg),
		Chunker:   chunker.New(cfg.ChunkSize, cfg.ChunkOverlap),
		Embedder:  provider,
		Vectors:   vectors,
		Scheduler: enqueuer,
		TempDir:   os.TempDir(),
	})
	relExtractor := pipeline.NewRelationshipExtractor(st.Documents, st.Relationships, st, vectors)
	taskProcessor := queue.NewTaskProcessor(processor, relExtractor, cfg)

	// One document at a time: extraction and embedding are memory-heavy, and
	// sequential processing keeps the relationship fan-out deterministic.
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 1,
			Queues: map[string]int{
				queue.QueueDocuments: 6,
				queue.QueueDefault:   3,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "task", task.Type(), "error", err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	// Restart after a bounded number of tasks to cap memory growth; the
	// supervisor brings the process back up.
	mux.Use(queue.NewTaskCountLimiter(cfg.WorkerMaxTasks, func() {
		logger.Info("Task limit reached, shutting down for restart",
			"max_tasks", cfg.WorkerMaxTasks)
		go server.Shutdown()
	}))
	mux.HandleFunc(queue.TaskProcessDocument, taskProcessor.HandleProcessDocument)
	mux.HandleFunc(queue.TaskExtractRelationships, taskProcessor.HandleExtractRelationships)
	mux.HandleFunc(queue.TaskHealthCheck, taskProcessor.HandleHealthCheck)

	logger.Info("Starting worker",
		"redis", cfg.RedisURL,
		"queues", map[string]int{queue.QueueDocuments: 6, queue.QueueDefault: 3},
		"hard_time_limit_s", cfg.JobHardTimeLimit,
		"soft_time_limit_s", cfg.JobSoftTimeLimit,
		"max_tasks", cfg.WorkerMaxTasks)

	if err := server.Run(mux); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
