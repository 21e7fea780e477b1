package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/g1mliii/anchored/internal/common"
	"github.com/g1mliii/anchored/internal/models"
)

// MemoryRepository is the in-memory Repository used in tests and for
// development runs without a database.
type MemoryRepository struct {
	mu    sync.RWMutex
	notes map[string]*models.EncryptedNote
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{notes: make(map[string]*models.EncryptedNote)}
}

func (r *MemoryRepository) List(ctx context.Context, userID string) ([]*models.EncryptedNote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.EncryptedNote
	for _, n := range r.notes {
		if n.UserID == userID && !n.IsDeleted {
			out = append(out, clone(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, userID, id string) (*models.EncryptedNote, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.notes[id]
	if !ok || n.UserID != userID {
		return nil, common.ErrNotFound
	}
	return clone(n), nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, note *models.EncryptedNote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.notes[note.ID]
	if ok {
		if stored.UserID != note.UserID {
			return common.ErrNotFound
		}
		if !note.UpdatedAt.After(stored.UpdatedAt) {
			return nil // idempotent redelivery
		}
	}
	r.notes[note.ID] = clone(note)
	return nil
}

func (r *MemoryRepository) Replace(ctx context.Context, note *models.EncryptedNote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.notes[note.ID]
	if !ok || stored.UserID != note.UserID {
		return common.ErrNotFound
	}
	r.notes[note.ID] = clone(note)
	return nil
}

func (r *MemoryRepository) MarkDeleted(ctx context.Context, userID, id string, deletedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok || n.UserID != userID || n.IsDeleted {
		return nil
	}
	n.IsDeleted = true
	t := deletedAt
	n.DeletedAt = &t
	n.UpdatedAt = deletedAt
	return nil
}

func (r *MemoryRepository) PurgeTombstones(ctx context.Context, userID string, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var purged int64
	for id, n := range r.notes {
		if n.UserID == userID && n.IsDeleted && n.DeletedAt != nil && n.DeletedAt.Before(olderThan) {
			delete(r.notes, id)
			purged++
		}
	}
	return purged, nil
}

func (r *MemoryRepository) Close() error { return nil }

func clone(n *models.EncryptedNote) *models.EncryptedNote {
	out := *n
	if n.DeletedAt != nil {
		t := *n.DeletedAt
		out.DeletedAt = &t
	}
	return &out
}
