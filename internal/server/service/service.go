// Package service implements the server-side note operations: batched sync
// application, conflict resolution, and tombstone cleanup. Everything is
// scoped to the authenticated user; cross-user requests fail as not-found
// and never leak existence.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/g1mliii/anchored/internal/common"
	"github.com/g1mliii/anchored/internal/logging"
	"github.com/g1mliii/anchored/internal/models"
	"github.com/g1mliii/anchored/internal/server/repository"
)

// TombstoneRetention is how long soft-deleted notes are kept before cleanup
// may remove them, so deletions have time to propagate to other devices.
const TombstoneRetention = 24 * time.Hour

type NoteService struct {
	repo repository.Repository
	log  logging.Logger
	now  func() time.Time
}

func NewNoteService(repo repository.Repository, log logging.Logger) *NoteService {
	return &NoteService{repo: repo, log: log, now: time.Now}
}

// FetchAll returns the user's non-deleted encrypted notes.
func (s *NoteService) FetchAll(ctx context.Context, userID string) ([]*models.EncryptedNote, error) {
	return s.repo.List(ctx, userID)
}

// Fetch returns one encrypted note.
func (s *NoteService) Fetch(ctx context.Context, userID, id string) (*models.EncryptedNote, error) {
	note, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if note.IsDeleted {
		return nil, common.ErrNotFound
	}
	return note, nil
}

// Sync applies a batched mutation payload. The repository is idempotent per
// (id, updatedAt), so redelivering the same batch after an ambiguous network
// failure leaves the stored set unchanged. Per-item failures are reported
// back so the client requeues only those.
func (s *NoteService) Sync(ctx context.Context, userID string, req *models.SyncRequest) (*models.SyncResponse, error) {
	resp := &models.SyncResponse{
		SyncedIDs: []string{},
		FailedIDs: []string{},
	}

	for _, note := range req.Notes {
		if note == nil || note.ID == "" {
			continue
		}
		note.UserID = userID
		if err := s.repo.Upsert(ctx, note); err != nil {
			s.log.Error(ctx, "upserting synced note", "noteId", note.ID, "err", err)
			resp.FailedIDs = append(resp.FailedIDs, note.ID)
			continue
		}
		resp.SyncedIDs = append(resp.SyncedIDs, note.ID)
	}

	for _, del := range req.Deletions {
		if del.ID == "" {
			continue
		}
		if err := s.repo.MarkDeleted(ctx, userID, del.ID, del.DeletedAt); err != nil {
			s.log.Error(ctx, "tombstoning note", "noteId", del.ID, "err", err)
			resp.FailedIDs = append(resp.FailedIDs, del.ID)
			continue
		}
		resp.SyncedIDs = append(resp.SyncedIDs, del.ID)
	}

	resp.SyncTime = s.now()
	return resp, nil
}

// Resolve reconciles two divergent versions of a note per the requested
// strategy.
//
// merge is deliberately not a field-level merge: it prefers the client's
// encrypted title/content wholesale and stamps a fresh updatedAt. A true
// merge would require decrypting ciphertext server-side, which the
// zero-knowledge design forbids; this method never decrypts or diffs.
func (s *NoteService) Resolve(ctx context.Context, userID string, req *models.ResolveRequest) (*models.ResolveResponse, error) {
	stored, err := s.repo.GetByID(ctx, userID, req.NoteID)
	if err != nil {
		return nil, err
	}

	var winner *models.EncryptedNote
	switch req.Resolution {
	case models.ResolutionKeepLocal:
		winner, err = s.applyClientVersion(ctx, userID, stored, req, stored.UpdatedAt)

	case models.ResolutionUseServer:
		winner = stored

	case models.ResolutionMerge:
		winner, err = s.applyClientVersion(ctx, userID, stored, req, s.now())

	default:
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidResolution, req.Resolution)
	}
	if err != nil {
		return nil, err
	}

	return &models.ResolveResponse{
		Status:     "resolved",
		Resolution: req.Resolution,
		Note:       winner,
	}, nil
}

func (s *NoteService) applyClientVersion(ctx context.Context, userID string, stored *models.EncryptedNote, req *models.ResolveRequest, updatedAt time.Time) (*models.EncryptedNote, error) {
	if req.NoteData == nil {
		return nil, fmt.Errorf("%w: %s requires noteData", common.ErrValidation, req.Resolution)
	}
	if req.NoteData.ID != req.NoteID {
		return nil, fmt.Errorf("%w: noteData id mismatch", common.ErrValidation)
	}

	winner := *req.NoteData
	winner.UserID = userID
	winner.CreatedAt = stored.CreatedAt
	if updatedAt.After(winner.UpdatedAt) {
		winner.UpdatedAt = updatedAt
	}
	if err := s.repo.Replace(ctx, &winner); err != nil {
		return nil, err
	}
	return &winner, nil
}

// Cleanup purges the user's tombstones past the retention window. Idempotent
// by construction; repeated calls purge nothing further.
func (s *NoteService) Cleanup(ctx context.Context, userID string) (int64, error) {
	purged, err := s.repo.PurgeTombstones(ctx, userID, s.now().Add(-TombstoneRetention))
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		s.log.Info(ctx, "purged tombstones", "count", purged)
	}
	return purged, nil
}
