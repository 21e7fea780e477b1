package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g1mliii/anchored/internal/common"
	"github.com/g1mliii/anchored/internal/logging"
	"github.com/g1mliii/anchored/internal/models"
	"github.com/g1mliii/anchored/internal/server/repository"
)

func newTestService(t *testing.T) (*NoteService, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	svc := NewNoteService(repo, logging.Nop{})
	tick := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return svc, repo
}

func encNote(id string, updatedAt time.Time) *models.EncryptedNote {
	return &models.EncryptedNote{
		ID:          id,
		Domain:      "example.com",
		ContentHash: "hash-" + id,
		CreatedAt:   updatedAt.Add(-time.Hour),
		UpdatedAt:   updatedAt,
	}
}

func TestNoteService_Sync_AppliesNotesAndDeletions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	resp, err := svc.Sync(ctx, "u1", &models.SyncRequest{
		Notes:     []*models.EncryptedNote{encNote("n1", at), encNote("n2", at)},
		Deletions: []models.Deletion{{ID: "n2", DeletedAt: at.Add(time.Minute)}},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"n1", "n2", "n2"}, resp.SyncedIDs)
	assert.Empty(t, resp.FailedIDs)
	assert.False(t, resp.SyncTime.IsZero())

	notes, err := svc.FetchAll(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "n1", notes[0].ID)

	// Tombstoned notes read as missing.
	_, err = svc.Fetch(ctx, "u1", "n2")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestNoteService_Sync_RedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	req := &models.SyncRequest{
		Notes:     []*models.EncryptedNote{encNote("n1", at)},
		Deletions: []models.Deletion{{ID: "gone", DeletedAt: at}},
	}

	resp1, err := svc.Sync(ctx, "u1", req)
	require.NoError(t, err)
	before, err := svc.Fetch(ctx, "u1", "n1")
	require.NoError(t, err)

	// The client re-sends the identical batch after an ambiguous failure.
	resp2, err := svc.Sync(ctx, "u1", req)
	require.NoError(t, err)
	assert.Equal(t, resp1.SyncedIDs, resp2.SyncedIDs)

	after, err := svc.Fetch(ctx, "u1", "n1")
	require.NoError(t, err)
	assert.Equal(t, before, after, "redelivery must not change stored state")
}

func TestNoteService_Sync_OlderVersionDoesNotRegress(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	newer := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := svc.Sync(ctx, "u1", &models.SyncRequest{
		Notes: []*models.EncryptedNote{encNote("n1", newer)},
	})
	require.NoError(t, err)

	stale := encNote("n1", newer.Add(-time.Hour))
	stale.ContentHash = "stale"
	_, err = svc.Sync(ctx, "u1", &models.SyncRequest{
		Notes: []*models.EncryptedNote{stale},
	})
	require.NoError(t, err)

	got, err := svc.Fetch(ctx, "u1", "n1")
	require.NoError(t, err)
	assert.Equal(t, "hash-n1", got.ContentHash)
	assert.True(t, got.UpdatedAt.Equal(newer))
}

func TestNoteService_Fetch_CrossUserReadsAsMissing(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := svc.Sync(ctx, "u1", &models.SyncRequest{
		Notes: []*models.EncryptedNote{encNote("n1", at)},
	})
	require.NoError(t, err)

	_, err = svc.Fetch(ctx, "u2", "n1")
	assert.ErrorIs(t, err, common.ErrNotFound)

	notes, err := svc.FetchAll(ctx, "u2")
	require.NoError(t, err)
	assert.Empty(t, notes)
}

func seedConflict(t *testing.T, svc *NoteService) (server, client *models.EncryptedNote) {
	t.Helper()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	server = encNote("n1", at)
	server.ContentHash = "server-version"
	_, err := svc.Sync(context.Background(), "u1", &models.SyncRequest{
		Notes: []*models.EncryptedNote{server},
	})
	require.NoError(t, err)

	client = encNote("n1", at.Add(-time.Minute))
	client.ContentHash = "client-version"
	return server, client
}

func TestNoteService_Resolve_KeepLocal(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	server, client := seedConflict(t, svc)

	resp, err := svc.Resolve(ctx, "u1", &models.ResolveRequest{
		NoteID:     "n1",
		Resolution: models.ResolutionKeepLocal,
		NoteData:   client,
	})
	require.NoError(t, err)
	assert.Equal(t, "resolved", resp.Status)
	assert.Equal(t, "client-version", resp.Note.ContentHash)
	// keep_local adopts the stored timestamp when it is newer, so the winner
	// cannot be shadowed by the version it just replaced.
	assert.True(t, resp.Note.UpdatedAt.Equal(server.UpdatedAt))

	got, err := svc.Fetch(ctx, "u1", "n1")
	require.NoError(t, err)
	assert.Equal(t, "client-version", got.ContentHash)
}

func TestNoteService_Resolve_UseServer(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, client := seedConflict(t, svc)

	resp, err := svc.Resolve(ctx, "u1", &models.ResolveRequest{
		NoteID:     "n1",
		Resolution: models.ResolutionUseServer,
		NoteData:   client,
	})
	require.NoError(t, err)
	assert.Equal(t, "server-version", resp.Note.ContentHash)

	got, err := svc.Fetch(ctx, "u1", "n1")
	require.NoError(t, err)
	assert.Equal(t, "server-version", got.ContentHash)
}

func TestNoteService_Resolve_MergeStampsFreshTimestamp(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	server, client := seedConflict(t, svc)

	resp, err := svc.Resolve(ctx, "u1", &models.ResolveRequest{
		NoteID:     "n1",
		Resolution: models.ResolutionMerge,
		NoteData:   client,
	})
	require.NoError(t, err)
	assert.Equal(t, "client-version", resp.Note.ContentHash)
	assert.True(t, resp.Note.UpdatedAt.After(server.UpdatedAt))
	assert.True(t, resp.Note.CreatedAt.Equal(server.CreatedAt), "creation time survives resolution")
}

func TestNoteService_Resolve_Deterministic(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, client := seedConflict(t, svc)

	req := &models.ResolveRequest{
		NoteID:     "n1",
		Resolution: models.ResolutionKeepLocal,
		NoteData:   client,
	}
	first, err := svc.Resolve(ctx, "u1", req)
	require.NoError(t, err)
	second, err := svc.Resolve(ctx, "u1", req)
	require.NoError(t, err)
	assert.Equal(t, first.Note, second.Note, "same inputs resolve to the same winner")
}

func TestNoteService_Resolve_Errors(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	_, client := seedConflict(t, svc)

	_, err := svc.Resolve(ctx, "u1", &models.ResolveRequest{
		NoteID:     "n1",
		Resolution: "newest_wins",
		NoteData:   client,
	})
	assert.ErrorIs(t, err, common.ErrInvalidResolution)

	_, err = svc.Resolve(ctx, "u1", &models.ResolveRequest{
		NoteID:     "n1",
		Resolution: models.ResolutionKeepLocal,
	})
	assert.ErrorIs(t, err, common.ErrValidation)

	mismatched := *client
	mismatched.ID = "other"
	_, err = svc.Resolve(ctx, "u1", &models.ResolveRequest{
		NoteID:     "n1",
		Resolution: models.ResolutionKeepLocal,
		NoteData:   &mismatched,
	})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = svc.Resolve(ctx, "u1", &models.ResolveRequest{
		NoteID:     "missing",
		Resolution: models.ResolutionUseServer,
	})
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestNoteService_Cleanup(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := svc.Sync(ctx, "u1", &models.SyncRequest{
		Notes: []*models.EncryptedNote{encNote("old", at), encNote("new", at)},
		Deletions: []models.Deletion{
			{ID: "old", DeletedAt: at.Add(-48 * time.Hour)},
			{ID: "new", DeletedAt: at},
		},
	})
	require.NoError(t, err)

	// Only the tombstone past the retention window goes; the recent one must
	// stay visible to other devices that have not synced yet.
	purged, err := svc.Cleanup(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	purged, err = svc.Cleanup(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), purged, "cleanup is idempotent")
}
