package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
	"github.com/SaintWyss/rag-corp-sub003/pkg/queue"
)

type fakeQueue struct {
	dispatchErr error
	dispatched  []string
	deleted     []string
}

func (q *fakeQueue) Receive(ctx context.Context, maxMessages, waitSeconds int32) ([]queue.Job, []string, error) {
	return nil, nil, nil
}

func (q *fakeQueue) Dispatch(ctx context.Context, job queue.Job) error {
	if q.dispatchErr != nil {
		return q.dispatchErr
	}
	q.dispatched = append(q.dispatched, job.JobID)
	return nil
}

func (q *fakeQueue) DeleteMessage(ctx context.Context, receiptHandle string) error {
	q.deleted = append(q.deleted, receiptHandle)
	return nil
}

type memLedger struct {
	seen map[string]bool
}

func newMemLedger() *memLedger { return &memLedger{seen: make(map[string]bool)} }

func (l *memLedger) Seen(ctx context.Context, jobID string) bool { return l.seen[jobID] }

func (l *memLedger) MarkDone(ctx context.Context, jobID string) { l.seen[jobID] = true }

func testJob(id string) queue.Job {
	return queue.Job{JobID: id, Path: queue.ProcessDocumentJobPath, DocumentID: "doc-1", WorkspaceID: "ws-1"}
}

func TestConsumerHandle(t *testing.T) {
	ctx := context.Background()

	t.Run("success marks ledger and acknowledges", func(t *testing.T) {
		q := &fakeQueue{}
		ledger := newMemLedger()
		c := &consumer{queue: q, ledger: ledger, logger: observability.NewNoopLogger()}

		c.handle(ctx, testJob("job-1"), "receipt-1")

		assert.Equal(t, []string{"job-1"}, q.dispatched)
		assert.Equal(t, []string{"receipt-1"}, q.deleted)
		assert.True(t, ledger.Seen(ctx, "job-1"))
	})

	t.Run("failed dispatch leaves message and ledger untouched", func(t *testing.T) {
		q := &fakeQueue{dispatchErr: errors.New("database unreachable")}
		ledger := newMemLedger()
		c := &consumer{queue: q, ledger: ledger, logger: observability.NewNoopLogger()}

		c.handle(ctx, testJob("job-1"), "receipt-1")

		assert.Empty(t, q.deleted)
		assert.False(t, ledger.Seen(ctx, "job-1"))
	})

	t.Run("redelivery after transient failure is processed", func(t *testing.T) {
		q := &fakeQueue{dispatchErr: errors.New("database unreachable")}
		ledger := newMemLedger()
		c := &consumer{queue: q, ledger: ledger, logger: observability.NewNoopLogger()}

		c.handle(ctx, testJob("job-1"), "receipt-1")
		require.Empty(t, q.deleted)

		q.dispatchErr = nil
		c.handle(ctx, testJob("job-1"), "receipt-2")

		assert.Equal(t, []string{"job-1"}, q.dispatched)
		assert.Equal(t, []string{"receipt-2"}, q.deleted)
		assert.True(t, ledger.Seen(ctx, "job-1"))
	})

	t.Run("duplicate of a completed job is acknowledged without dispatch", func(t *testing.T) {
		q := &fakeQueue{}
		ledger := newMemLedger()
		ledger.MarkDone(ctx, "job-1")
		c := &consumer{queue: q, ledger: ledger, logger: observability.NewNoopLogger()}

		c.handle(ctx, testJob("job-1"), "receipt-2")

		assert.Empty(t, q.dispatched)
		assert.Equal(t, []string{"receipt-2"}, q.deleted)
	})

	t.Run("poison message is dropped", func(t *testing.T) {
		q := &fakeQueue{}
		c := &consumer{queue: q, ledger: newMemLedger(), logger: observability.NewNoopLogger()}

		c.handle(ctx, queue.Job{}, "receipt-1")

		assert.Empty(t, q.dispatched)
		assert.Equal(t, []string{"receipt-1"}, q.deleted)
	})

	t.Run("without a ledger every delivery is dispatched", func(t *testing.T) {
		q := &fakeQueue{}
		c := &consumer{queue: q, logger: observability.NewNoopLogger()}

		c.handle(ctx, testJob("job-1"), "receipt-1")
		c.handle(ctx, testJob("job-1"), "receipt-2")

		assert.Equal(t, []string{"job-1", "job-1"}, q.dispatched)
	})
}

func TestRedisLedger(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ledger := &redisLedger{client: client, ttl: time.Minute, logger: observability.NewNoopLogger()}
	ctx := context.Background()

	assert.False(t, ledger.Seen(ctx, "job-1"))
	ledger.MarkDone(ctx, "job-1")
	assert.True(t, ledger.Seen(ctx, "job-1"))

	mr.FastForward(2 * time.Minute)
	assert.False(t, ledger.Seen(ctx, "job-1"))
}
