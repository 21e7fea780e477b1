// Package repository stores encrypted notes server-side, scoped by user.
// The server never sees plaintext: title, content, and tags arrive as opaque
// AES-GCM records and are stored as such.
package repository

import (
	"context"
	"time"

	"github.com/g1mliii/anchored/internal/models"
)

// Repository describes the note storage operations the sync, conflict, and
// cleanup services need. Implementations are Postgres in production and an
// in-memory map in tests.
type Repository interface {
	// List returns all non-deleted notes belonging to userID.
	List(ctx context.Context, userID string) ([]*models.EncryptedNote, error)

	// GetByID returns the note (tombstoned or not) or common.ErrNotFound.
	// Never leaks notes across users.
	GetByID(ctx context.Context, userID, id string) (*models.EncryptedNote, error)

	// Upsert inserts or updates idempotently per (id, updatedAt): an
	// incoming version whose UpdatedAt is not newer than the stored row is
	// a no-op, so redelivered sync batches cannot corrupt state.
	Upsert(ctx context.Context, note *models.EncryptedNote) error

	// Replace overwrites the stored note unconditionally. Used by conflict
	// resolution, which has already decided the winner.
	Replace(ctx context.Context, note *models.EncryptedNote) error

	// MarkDeleted tombstones the note. Deleting a missing or already
	// tombstoned note is a no-op, keeping deletion delivery idempotent.
	MarkDeleted(ctx context.Context, userID, id string, deletedAt time.Time) error

	// PurgeTombstones removes the user's tombstones deleted before the
	// cutoff and reports how many were removed. Safe to call repeatedly.
	PurgeTombstones(ctx context.Context, userID string, olderThan time.Time) (int64, error)

	Close() error
}
