// Package syncq implements the durable write-behind queue between local note
// mutations and the backend. Mutations are upserted per note id, batched,
// and flushed on a change threshold, a timer, visibility loss, and shutdown.
// Failed items are retried a bounded number of times and then dropped; that
// data loss is an accepted trade-off of the design, not a bug.
package syncq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/g1mliii/anchored/internal/common"
	"github.com/g1mliii/anchored/internal/kv"
	"github.com/g1mliii/anchored/internal/logging"
	"github.com/g1mliii/anchored/internal/models"
)

const (
	// BatchThreshold is the pending-change count that triggers a flush.
	BatchThreshold = 10
	// FlushInterval is the periodic flush cadence.
	FlushInterval = 30 * time.Minute
	// MaxRetries bounds per-item delivery attempts before the mutation is
	// abandoned.
	MaxRetries = 3

	bestEffortTimeout = 3 * time.Second
)

// Backend delivers batched mutations. The call must be idempotent per
// (id, updatedAt) so ambiguous failures are safe to retry.
type Backend interface {
	Sync(ctx context.Context, req *models.SyncRequest) (*models.SyncResponse, error)
}

// KeyProvider returns the note encryption key for the active session.
type KeyProvider interface {
	Key(ctx context.Context) ([]byte, error)
}

// Queue is the sole owner of the pending-mutation list in the kv store.
type Queue struct {
	store   kv.Store
	backend Backend
	keys    KeyProvider
	log     logging.Logger
	now     func() time.Time

	mu    sync.Mutex // guards queue and counter state in the store
	group singleflight.Group
}

func New(store kv.Store, backend Backend, keys KeyProvider, log logging.Logger) *Queue {
	return &Queue{
		store:   store,
		backend: backend,
		keys:    keys,
		log:     log,
		now:     time.Now,
	}
}

// Enqueue records a pending mutation for the note. Any earlier unflushed
// mutation for the same id is replaced, so per-note ordering is
// last-write-wins before the batch even reaches the backend. Reaching the
// batch threshold triggers an asynchronous flush.
func (q *Queue) Enqueue(ctx context.Context, note *models.Note, op models.Operation) error {
	if note == nil || note.ID == "" {
		return fmt.Errorf("%w: note id required", common.ErrValidation)
	}

	q.mu.Lock()
	items, err := q.load(ctx)
	if err != nil {
		q.mu.Unlock()
		return err
	}

	next := make([]models.SyncQueueItem, 0, len(items)+1)
	for _, it := range items {
		if it.NoteID != note.ID {
			next = append(next, it)
		}
	}

	item := models.SyncQueueItem{
		NoteID:    note.ID,
		Operation: op,
		Timestamp: q.now(),
	}
	if op == models.OperationUpdate {
		item.Note = note.Clone()
	}
	next = append(next, item)

	if err := q.persist(ctx, next); err != nil {
		q.mu.Unlock()
		return err
	}
	pending := q.pending(ctx) + 1
	q.setPending(ctx, pending)
	q.mu.Unlock()

	if pending >= BatchThreshold {
		go func() {
			if err := q.Flush(context.WithoutCancel(ctx)); err != nil {
				q.log.Warn(ctx, "threshold flush failed", "err", err)
			}
		}()
	}
	return nil
}

// Flush delivers the queue to the backend. Concurrent triggers coalesce into
// the in-flight flush instead of running a second one against the same
// snapshot.
func (q *Queue) Flush(ctx context.Context) error {
	_, err, _ := q.group.Do("flush", func() (any, error) {
		return nil, q.flush(ctx)
	})
	return err
}

// FlushBestEffort is the unload-beacon analog: fire-and-forget with a short
// deadline. Failures are unobservable by contract.
func (q *Queue) FlushBestEffort() {
	ctx, cancel := context.WithTimeout(context.Background(), bestEffortTimeout)
	defer cancel()
	_ = q.Flush(ctx)
}

// NotifyHidden is the visibility-change trigger: flush when the app loses
// the foreground.
func (q *Queue) NotifyHidden(ctx context.Context) {
	if err := q.Flush(ctx); err != nil {
		q.log.Warn(ctx, "flush on hide failed", "err", err)
	}
}

// Run flushes on a fixed interval until ctx is cancelled, then makes one
// final best-effort flush.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			q.FlushBestEffort()
			return
		case <-ticker.C:
			if err := q.Flush(ctx); err != nil {
				q.log.Warn(ctx, "periodic flush failed", "err", err)
			}
		}
	}
}

func (q *Queue) flush(ctx context.Context) error {
	q.mu.Lock()
	items, err := q.load(ctx)
	if err != nil {
		q.mu.Unlock()
		return err
	}
	if len(items) == 0 {
		q.setPending(ctx, 0)
		q.mu.Unlock()
		return nil
	}
	snapshot := make([]models.SyncQueueItem, len(items))
	copy(snapshot, items)
	q.mu.Unlock()

	key, err := q.keys.Key(ctx)
	if err != nil {
		// No usable session: leave the queue intact, sync resumes after
		// sign-in. Retries are not consumed.
		return fmt.Errorf("flush requires a session: %w", err)
	}

	failed := make(map[string]bool)
	var notes []*models.EncryptedNote
	var deletions []models.Deletion
	for _, it := range snapshot {
		switch it.Operation {
		case models.OperationDelete:
			deletions = append(deletions, models.Deletion{ID: it.NoteID, DeletedAt: it.Timestamp})
		case models.OperationUpdate:
			if it.Note == nil {
				failed[it.NoteID] = true
				continue
			}
			encrypted, err := it.Note.EncryptForCloud(key)
			if err != nil {
				q.log.Error(ctx, "encrypting queued note", "noteId", it.NoteID, "err", err)
				failed[it.NoteID] = true
				continue
			}
			notes = append(notes, encrypted)
		}
	}

	req := &models.SyncRequest{
		Operation:    models.OperationSync,
		Notes:        notes,
		Deletions:    deletions,
		LastSyncTime: q.LastSync(ctx),
		Timestamp:    q.now().UnixMilli(),
	}

	resp, sendErr := q.backend.Sync(ctx, req)
	if sendErr != nil {
		q.log.Warn(ctx, "sync flush failed", "items", len(snapshot), "err", sendErr)
		for _, it := range snapshot {
			failed[it.NoteID] = true
		}
	} else {
		for _, id := range resp.FailedIDs {
			failed[id] = true
		}
		syncTime := resp.SyncTime
		if syncTime.IsZero() {
			syncTime = q.now()
		}
		if err := q.store.Set(ctx, kv.KeyLastSync, []byte(syncTime.Format(time.RFC3339Nano))); err != nil {
			q.log.Warn(ctx, "persisting last sync time", "err", err)
		}
	}

	if err := q.settle(ctx, snapshot, failed); err != nil {
		return err
	}
	if sendErr != nil {
		return fmt.Errorf("flush: %w", sendErr)
	}
	return nil
}

// settle reconciles the persisted queue with the outcome of one delivery
// attempt. Items re-enqueued while the flush was in flight keep their newer
// payload untouched.
func (q *Queue) settle(ctx context.Context, snapshot []models.SyncQueueItem, failed map[string]bool) error {
	byID := make(map[string]models.SyncQueueItem, len(snapshot))
	for _, it := range snapshot {
		byID[it.NoteID] = it
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	current, err := q.load(ctx)
	if err != nil {
		return err
	}

	next := make([]models.SyncQueueItem, 0, len(current))
	for _, it := range current {
		sent, inFlight := byID[it.NoteID]
		if !inFlight || !it.Timestamp.Equal(sent.Timestamp) {
			next = append(next, it)
			continue
		}
		if !failed[it.NoteID] {
			continue // acknowledged
		}
		it.Retries++
		if it.Retries >= MaxRetries {
			// Abandoned: the change is silently lost from the queue.
			q.log.Error(ctx, "dropping mutation after max retries",
				"noteId", it.NoteID, "operation", it.Operation)
			continue
		}
		next = append(next, it)
	}

	if err := q.persist(ctx, next); err != nil {
		return err
	}
	q.setPending(ctx, len(next))
	return nil
}

// Items returns a copy of the pending queue.
func (q *Queue) Items(ctx context.Context) ([]models.SyncQueueItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// PendingChanges returns the persisted change counter.
func (q *Queue) PendingChanges(ctx context.Context) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending(ctx)
}

// LastSync returns the time of the last successful flush, or nil.
func (q *Queue) LastSync(ctx context.Context) *time.Time {
	raw, err := q.store.Get(ctx, kv.KeyLastSync)
	if err != nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		return nil
	}
	return &t
}

func (q *Queue) load(ctx context.Context) ([]models.SyncQueueItem, error) {
	raw, err := q.store.Get(ctx, kv.KeySyncQueue)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var items []models.SyncQueueItem
	if err := json.Unmarshal(raw, &items); err != nil {
		// A corrupt queue is unrecoverable; start over rather than wedge
		// every future flush.
		q.log.Error(ctx, "corrupt sync queue, resetting", "err", err)
		return nil, nil
	}
	return items, nil
}

func (q *Queue) persist(ctx context.Context, items []models.SyncQueueItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return q.store.Set(ctx, kv.KeySyncQueue, raw)
}

func (q *Queue) pending(ctx context.Context) int {
	raw, err := q.store.Get(ctx, kv.KeyPendingChanges)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0
	}
	return n
}

func (q *Queue) setPending(ctx context.Context, n int) {
	if err := q.store.Set(ctx, kv.KeyPendingChanges, []byte(strconv.Itoa(n))); err != nil {
		q.log.Warn(ctx, "persisting change counter", "err", err)
	}
}
