package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echograph/internal/config"
	"echograph/internal/pipeline"
)

type fakeDocProcessor struct {
	lastID      int64
	hadDeadline bool
	deadline    time.Time
	result      pipeline.ProcessResult
}

func (f *fakeDocProcessor) ProcessDocument(ctx context.Context, documentID int64) pipeline.ProcessResult {
	f.lastID = documentID
	f.deadline, f.hadDeadline = ctx.Deadline()
	f.result.DocumentID = documentID
	return f.result
}

type fakeRelRunner struct {
	lastParams  pipeline.ExtractParams
	hadDeadline bool
	created     int
	err         error
}

func (f *fakeRelRunner) Extract(ctx context.Context, params pipeline.ExtractParams) (int, error) {
	f.lastParams = params
	_, f.hadDeadline = ctx.Deadline()
	return f.created, f.err
}

func testConfig() *config.Config {
	return &config.Config{
		JobHardTimeLimit:    3600,
		JobSoftTimeLimit:    3300,
		SimilarityThreshold: 0.75,
		LimitPerChunk:       5,
	}
}

func TestHandleProcessDocumentAppliesSoftDeadline(t *testing.T) {
	proc := &fakeDocProcessor{result: pipeline.ProcessResult{Status: "ready"}}
	tp := NewTaskProcessor(proc, &fakeRelRunner{}, testConfig())

	task, err := NewProcessDocumentTask(42, time.Hour)
	require.NoError(t, err)

	require.NoError(t, tp.HandleProcessDocument(context.Background(), task))
	assert.Equal(t, int64(42), proc.lastID)
	assert.True(t, proc.hadDeadline)
	// The soft limit, not the hard one, bounds the handler context.
	assert.WithinDuration(t, time.Now().Add(3300*time.Second), proc.deadline, 5*time.Second)
}

func TestHandleProcessDocumentPropagatesFailure(t *testing.T) {
	proc := &fakeDocProcessor{result: pipeline.ProcessResult{
		Status: "error",
		Err:    errors.New("extraction produced no text"),
	}}
	tp := NewTaskProcessor(proc, &fakeRelRunner{}, testConfig())

	task, err := NewProcessDocumentTask(7, time.Hour)
	require.NoError(t, err)

	err = tp.HandleProcessDocument(context.Background(), task)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text")
}

func TestHandleProcessDocumentRejectsBadPayload(t *testing.T) {
	tp := NewTaskProcessor(&fakeDocProcessor{}, &fakeRelRunner{}, testConfig())

	task := asynq.NewTask(TaskProcessDocument, []byte("not json"))
	err := tp.HandleProcessDocument(context.Background(), task)

	require.Error(t, err)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestHandleExtractRelationshipsFillsDefaults(t *testing.T) {
	runner := &fakeRelRunner{created: 2}
	tp := NewTaskProcessor(&fakeDocProcessor{}, runner, testConfig())

	task, err := NewExtractRelationshipsTask(ExtractRelationshipsPayload{DocumentID: 9}, time.Hour)
	require.NoError(t, err)

	require.NoError(t, tp.HandleExtractRelationships(context.Background(), task))
	assert.Equal(t, int64(9), runner.lastParams.SourceDocID)
	assert.Equal(t, 0.75, runner.lastParams.Threshold)
	assert.Equal(t, 5, runner.lastParams.LimitPerChunk)
	assert.True(t, runner.hadDeadline)
}

func TestHandleExtractRelationshipsKeepsExplicitParams(t *testing.T) {
	runner := &fakeRelRunner{}
	tp := NewTaskProcessor(&fakeDocProcessor{}, runner, testConfig())

	task, err := NewExtractRelationshipsTask(ExtractRelationshipsPayload{
		DocumentID:    9,
		TargetDocIDs:  []int64{3, 4},
		Threshold:     0.85,
		LimitPerChunk: 10,
	}, time.Hour)
	require.NoError(t, err)

	require.NoError(t, tp.HandleExtractRelationships(context.Background(), task))
	assert.Equal(t, []int64{3, 4}, runner.lastParams.TargetDocIDs)
	assert.Equal(t, 0.85, runner.lastParams.Threshold)
	assert.Equal(t, 10, runner.lastParams.LimitPerChunk)
}

func TestTaskCountLimiterFiresOnceAtLimit(t *testing.T) {
	fired := 0
	mw := NewTaskCountLimiter(2, func() { fired++ })

	handler := mw(asynq.HandlerFunc(func(_ context.Context, _ *asynq.Task) error {
		return nil
	}))

	task := asynq.NewTask(TaskHealthCheck, nil)
	for i := 0; i < 5; i++ {
		require.NoError(t, handler.ProcessTask(context.Background(), task))
	}
	assert.Equal(t, 1, fired)
}

func TestTaskCountLimiterDisabledWhenZero(t *testing.T) {
	fired := 0
	mw := NewTaskCountLimiter(0, func() { fired++ })

	handler := mw(asynq.HandlerFunc(func(_ context.Context, _ *asynq.Task) error {
		return nil
	}))

	task := asynq.NewTask(TaskHealthCheck, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, handler.ProcessTask(context.Background(), task))
	}
	assert.Equal(t, 0, fired)
}
