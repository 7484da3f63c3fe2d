package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hibiken/asynq"

	"echograph/internal/config"
	"echograph/internal/logger"
	"echograph/internal/pipeline"
)

const (
	TaskProcessDocument      = "document:process"
	TaskExtractRelationships = "relationships:extract"
	TaskHealthCheck          = "health:check"

	QueueDocuments = "documents"
	QueueDefault   = "default"
)

type ProcessDocumentPayload struct {
	DocumentID int64 `json:"document_id"`
}

type ExtractRelationshipsPayload struct {
	DocumentID    int64   `json:"document_id"`
	TargetDocIDs  []int64 `json:"target_doc_ids,omitempty"`
	Threshold     float64 `json:"threshold,omitempty"`
	LimitPerChunk int     `json:"limit_per_chunk,omitempty"`
}

// Task creators. Jobs are never retried automatically: a failed document
// lands in the error state and an operator re-enqueues explicitly.

func NewProcessDocumentTask(documentID int64, hardTimeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(ProcessDocumentPayload{DocumentID: documentID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskProcessDocument,
		payload,
		asynq.MaxRetry(0),
		asynq.Timeout(hardTimeout),
		asynq.Queue(QueueDocuments),
	), nil
}

func NewExtractRelationshipsTask(p ExtractRelationshipsPayload, hardTimeout time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskExtractRelationships,
		payload,
		asynq.MaxRetry(0),
		asynq.Timeout(hardTimeout),
		asynq.Queue(QueueDefault),
	), nil
}

func NewHealthCheckTask() (*asynq.Task, error) {
	return asynq.NewTask(
		TaskHealthCheck,
		[]byte("{}"),
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Second),
		asynq.Queue(QueueDefault),
	), nil
}

// Enqueuer wraps the asynq client for the HTTP surface and the pipeline
// fan-out.
type Enqueuer struct {
	client      *asynq.Client
	hardTimeout time.Duration
}

func NewEnqueuer(client *asynq.Client, cfg *config.Config) *Enqueuer {
	return &Enqueuer{
		client:      client,
		hardTimeout: time.Duration(cfg.JobHardTimeLimit) * time.Second,
	}
}

func (e *Enqueuer) EnqueueProcessDocument(ctx context.Context, documentID int64) (string, error) {
	task, err := NewProcessDocumentTask(documentID, e.hardTimeout)
	if err != nil {
		return "", err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", TaskProcessDocument, err)
	}
	return info.ID, nil
}

func (e *Enqueuer) EnqueueExtractRelationships(ctx context.Context, p ExtractRelationshipsPayload) (string, error) {
	task, err := NewExtractRelationshipsTask(p, e.hardTimeout)
	if err != nil {
		return "", err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", TaskExtractRelationships, err)
	}
	return info.ID, nil
}

// ScheduleRelationshipExtraction satisfies pipeline.Scheduler. Threshold and
// limit are left zero so the worker fills in its configured defaults.
func (e *Enqueuer) ScheduleRelationshipExtraction(ctx context.Context, documentID int64) error {
	_, err := e.EnqueueExtractRelationships(ctx, ExtractRelationshipsPayload{DocumentID: documentID})
	return err
}

// DocumentProcessor runs the ingestion pipeline for one document.
type DocumentProcessor interface {
	ProcessDocument(ctx context.Context, documentID int64) pipeline.ProcessResult
}

// RelationshipRunner runs one relationship-extraction pass.
type RelationshipRunner interface {
	Extract(ctx context.Context, params pipeline.ExtractParams) (int, error)
}

// TaskProcessor binds the asynq handlers to the pipeline.
type TaskProcessor struct {
	processor   DocumentProcessor
	extractor   RelationshipRunner
	cfg         *config.Config
	softTimeout time.Duration
}

func NewTaskProcessor(processor DocumentProcessor, extractor RelationshipRunner, cfg *config.Config) *TaskProcessor {
	return &TaskProcessor{
		processor:   processor,
		extractor:   extractor,
		cfg:         cfg,
		softTimeout: time.Duration(cfg.JobSoftTimeLimit) * time.Second,
	}
}

// withSoftDeadline tightens the task context to the soft time limit, leaving
// the hard limit to asynq. A job that overruns the soft limit fails cleanly
// via context cancellation instead of being killed at the hard limit.
func (p *TaskProcessor) withSoftDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.softTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.softTimeout)
}

func (p *TaskProcessor) HandleProcessDocument(ctx context.Context, t *asynq.Task) error {
	var payload ProcessDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	ctx, cancel := p.withSoftDeadline(ctx)
	defer cancel()

	logger.Info("Processing document", "document_id", payload.DocumentID)

	result := p.processor.ProcessDocument(ctx, payload.DocumentID)
	if result.Err != nil {
		logger.Error("Document processing failed",
			"document_id", payload.DocumentID, "error", result.Err)
		return result.Err
	}

	logger.Info("Document processed",
		"document_id", payload.DocumentID, "chunks", result.ChunkCount)
	return nil
}

func (p *TaskProcessor) HandleExtractRelationships(ctx context.Context, t *asynq.Task) error {
	var payload ExtractRelationshipsPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	if payload.Threshold == 0 {
		payload.Threshold = p.cfg.SimilarityThreshold
	}
	if payload.LimitPerChunk == 0 {
		payload.LimitPerChunk = p.cfg.LimitPerChunk
	}

	ctx, cancel := p.withSoftDeadline(ctx)
	defer cancel()

	logger.Info("Extracting relationships",
		"document_id", payload.DocumentID, "threshold", payload.Threshold)

	created, err := p.extractor.Extract(ctx, pipeline.ExtractParams{
		SourceDocID:   payload.DocumentID,
		TargetDocIDs:  payload.TargetDocIDs,
		Threshold:     payload.Threshold,
		LimitPerChunk: payload.LimitPerChunk,
	})
	if err != nil {
		logger.Error("Relationship extraction failed",
			"document_id", payload.DocumentID, "error", err)
		return err
	}

	logger.Info("Relationships extracted",
		"document_id", payload.DocumentID, "created", created)
	return nil
}

func (p *TaskProcessor) HandleHealthCheck(_ context.Context, _ *asynq.Task) error {
	logger.Debug("Worker health check", "status", "healthy")
	return nil
}

// NewTaskCountLimiter returns mux middleware that invokes onLimit exactly once
// after maxTasks tasks have finished, so the worker can shut down and let its
// supervisor restart it with fresh memory. A maxTasks of zero disables the
// limit.
func NewTaskCountLimiter(maxTasks int, onLimit func()) func(asynq.Handler) asynq.Handler {
	var count int64
	var once sync.Once
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, t *asynq.Task) error {
			err := next.ProcessTask(ctx, t)
			if maxTasks > 0 && atomic.AddInt64(&count, 1) >= int64(maxTasks) {
				once.Do(onLimit)
			}
			return err
		})
	}
}
