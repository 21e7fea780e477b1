package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/g1mliii/anchored/internal/common"
	"github.com/g1mliii/anchored/internal/cryptox"
	"github.com/g1mliii/anchored/internal/kv"
	"github.com/g1mliii/anchored/internal/logging"
	"github.com/g1mliii/anchored/internal/models"
)

var testCryptoKey = cryptox.DeriveKey([]byte("pw"), []byte("0123456789abcdef"))

type fakeBackend struct {
	mu      sync.Mutex
	fetches int

	notes []*models.Note
	err   error
}

func (f *fakeBackend) FetchNotes(ctx context.Context) ([]*models.EncryptedNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*models.EncryptedNote, 0, len(f.notes))
	for _, n := range f.notes {
		enc, err := n.EncryptForCloud(testCryptoKey)
		if err != nil {
			return nil, err
		}
		out = append(out, enc)
	}
	return out, nil
}

func (f *fakeBackend) FetchNote(ctx context.Context, id string) (*models.EncryptedNote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, n := range f.notes {
		if n.ID == id {
			return n.EncryptForCloud(testCryptoKey)
		}
	}
	return nil, common.ErrNotFound
}

func (f *fakeBackend) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type fixedKeys struct{ err error }

func (f *fixedKeys) Key(ctx context.Context) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return testCryptoKey, nil
}

type recordingQueue struct {
	mu    sync.Mutex
	items []models.SyncQueueItem
}

func (r *recordingQueue) Enqueue(ctx context.Context, note *models.Note, op models.Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	item := models.SyncQueueItem{NoteID: note.ID, Operation: op}
	if op == models.OperationUpdate {
		item.Note = note.Clone()
	}
	r.items = append(r.items, item)
	return nil
}

func (r *recordingQueue) Items(ctx context.Context) ([]models.SyncQueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.SyncQueueItem(nil), r.items...), nil
}

func newTestCache(t *testing.T, backend Backend, queue Enqueuer) *NoteCache {
	t.Helper()
	c := New(kv.NewMemoryStore(), backend, &fixedKeys{}, queue, logging.Nop{})
	tick := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}
	return c
}

func serverNote(id, title string) *models.Note {
	at := time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC)
	return &models.Note{
		ID: id, Title: title, Content: "content " + id, Tags: []string{"remote"},
		Domain: "example.com", CreatedAt: at, UpdatedAt: at,
	}
}

func TestNoteCache_GetAllNotes_ColdFetches(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{notes: []*models.Note{serverNote("n1", "alpha")}}
	c := newTestCache(t, backend, &recordingQueue{})

	notes, err := c.GetAllNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "alpha", notes[0].Title)
	assert.Equal(t, 1, backend.fetchCount())
}

func TestNoteCache_GetAllNotes_ServesCacheWhileOffline(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{notes: []*models.Note{serverNote("n1", "alpha")}}
	c := newTestCache(t, backend, &recordingQueue{})

	_, err := c.GetAllNotes(ctx)
	require.NoError(t, err)

	// The backend goes away; fresh cache still answers without touching it.
	backend.mu.Lock()
	backend.err = fmt.Errorf("%w: offline", common.ErrUnavailable)
	backend.mu.Unlock()

	notes, err := c.GetAllNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, 1, backend.fetchCount())
}

func TestNoteCache_GetAllNotes_StaleServesAndRefreshes(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{notes: []*models.Note{serverNote("n1", "old title")}}
	c := newTestCache(t, backend, &recordingQueue{})

	_, err := c.GetAllNotes(ctx)
	require.NoError(t, err)

	backend.mu.Lock()
	backend.notes = []*models.Note{serverNote("n1", "new title")}
	backend.mu.Unlock()

	// Jump past the TTL: the stale snapshot is returned immediately and a
	// background refresh is scheduled.
	base := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	notes, err := c.GetAllNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "old title", notes[0].Title)

	require.Eventually(t, func() bool {
		ns, err := c.GetAllNotes(ctx)
		return err == nil && len(ns) == 1 && ns[0].Title == "new title"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNoteCache_GetAllNotes_StaleRefreshFailureIsSilent(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{notes: []*models.Note{serverNote("n1", "alpha")}}
	c := newTestCache(t, backend, &recordingQueue{})

	_, err := c.GetAllNotes(ctx)
	require.NoError(t, err)

	backend.mu.Lock()
	backend.err = fmt.Errorf("%w: offline", common.ErrUnavailable)
	backend.mu.Unlock()

	base := time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }

	notes, err := c.GetAllNotes(ctx)
	require.NoError(t, err, "stale reads never surface refresh errors")
	assert.Len(t, notes, 1)
}

func TestNoteCache_SaveNote(t *testing.T) {
	ctx := context.Background()
	queue := &recordingQueue{}
	c := newTestCache(t, &fakeBackend{}, queue)

	saved, err := c.SaveNote(ctx, &models.Note{
		Title:   "GC tuning",
		Content: "notes",
		URL:     "https://blog.example.com/gc?x=1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "blog.example.com", saved.Domain)
	assert.Equal(t, []string{}, saved.Tags)
	assert.False(t, saved.CreatedAt.IsZero())
	assert.False(t, saved.UpdatedAt.Before(saved.CreatedAt))

	got, err := c.GetNote(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "GC tuning", got.Title)

	require.Len(t, queue.items, 1)
	assert.Equal(t, saved.ID, queue.items[0].NoteID)
	assert.Equal(t, models.OperationUpdate, queue.items[0].Operation)

	// Update keeps identity, bumps UpdatedAt, and upserts in place.
	saved.Content = "revised"
	again, err := c.SaveNote(ctx, saved)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, again.ID)
	assert.True(t, again.UpdatedAt.After(again.CreatedAt))

	all, err := c.GetAllNotes(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestNoteCache_SaveNoteWithoutSync(t *testing.T) {
	ctx := context.Background()
	queue := &recordingQueue{}
	c := newTestCache(t, &fakeBackend{}, queue)

	_, err := c.SaveNoteWithoutSync(ctx, &models.Note{Title: "imported"})
	require.NoError(t, err)
	assert.Empty(t, queue.items)
}

func TestNoteCache_DeleteNote(t *testing.T) {
	ctx := context.Background()
	queue := &recordingQueue{}
	c := newTestCache(t, &fakeBackend{}, queue)

	saved, err := c.SaveNote(ctx, &models.Note{Title: "doomed"})
	require.NoError(t, err)
	require.NoError(t, c.DeleteNote(ctx, saved.ID))

	all, err := c.GetAllNotes(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	require.Len(t, queue.items, 2)
	assert.Equal(t, models.OperationDelete, queue.items[1].Operation)
}

func TestNoteCache_GetNote_FallsBackToBackend(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{notes: []*models.Note{serverNote("n9", "remote only")}}
	c := newTestCache(t, backend, &recordingQueue{})

	got, err := c.GetNote(ctx, "n9")
	require.NoError(t, err)
	assert.Equal(t, "remote only", got.Title)

	_, err = c.GetNote(ctx, "nope")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestNoteCache_SearchNotes(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, &fakeBackend{}, &recordingQueue{})

	mk := func(title, content, domain string, tags ...string) {
		_, err := c.SaveNote(ctx, &models.Note{Title: title, Content: content, Domain: domain, Tags: tags})
		require.NoError(t, err)
	}
	mk("Go generics", "type parameters", "go.dev")
	mk("Groceries", "buy milk and Go snacks", "example.com")
	mk("Unrelated", "nothing here", "example.com", "golang")

	// Title matches outrank content/tag matches; newest first within a rank.
	hits, err := c.SearchNotes(ctx, "go", "")
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "Go generics", hits[0].Title)
	assert.Equal(t, "Unrelated", hits[1].Title)
	assert.Equal(t, "Groceries", hits[2].Title)

	hits, err = c.SearchNotes(ctx, "go", "example.com")
	require.NoError(t, err)
	require.Len(t, hits, 2)

	hits, err = c.SearchNotes(ctx, "", "go.dev")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Go generics", hits[0].Title)

	hits, err = c.SearchNotes(ctx, "zzz", "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestNoteCache_SearchNotes_EmptyCache(t *testing.T) {
	c := newTestCache(t, &fakeBackend{}, &recordingQueue{})
	hits, err := c.SearchNotes(context.Background(), "anything", "")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestNoteCache_Refresh_KeepsPendingLocalWrites(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{notes: []*models.Note{serverNote("n1", "remote")}}
	queue := &recordingQueue{}
	c := newTestCache(t, backend, queue)

	// A local save and a local delete that have not flushed yet.
	saved, err := c.SaveNote(ctx, &models.Note{Title: "unflushed edit"})
	require.NoError(t, err)
	require.NoError(t, c.DeleteNote(ctx, "n1"))

	// The server knows about neither mutation.
	require.NoError(t, c.Refresh(ctx))

	notes, err := c.GetAllNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1, "refresh must not regress optimistic writes")
	assert.Equal(t, saved.ID, notes[0].ID)
	assert.Equal(t, "unflushed edit", notes[0].Title)
}

func TestNoteCache_Refresh_SkipsUndecryptable(t *testing.T) {
	ctx := context.Background()
	good := serverNote("n1", "good")
	bad := serverNote("n2", "bad")
	backend := &fakeBackend{notes: []*models.Note{good, bad}}
	c := newTestCache(t, backend, &recordingQueue{})

	// Corrupt one note's title on the wire.
	encGood, err := good.EncryptForCloud(testCryptoKey)
	require.NoError(t, err)
	encBad, err := bad.EncryptForCloud(testCryptoKey)
	require.NoError(t, err)
	encBad.TitleEncrypted.Ciphertext[0] ^= 0xff

	c.backend = staticBackend{encGood, encBad}

	require.NoError(t, c.Refresh(ctx))
	notes, err := c.GetAllNotes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "good", notes[0].Title)
}

type staticBackend []*models.EncryptedNote

func (s staticBackend) FetchNotes(ctx context.Context) ([]*models.EncryptedNote, error) {
	return s, nil
}

func (s staticBackend) FetchNote(ctx context.Context, id string) (*models.EncryptedNote, error) {
	for _, n := range s {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, common.ErrNotFound
}
