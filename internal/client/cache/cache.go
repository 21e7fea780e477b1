// Package cache implements the local note cache: cache-first reads that
// survive restarts, optimistic writes, and asynchronous background refresh
// from the backend. The cache is the sole owner of the note keys in the kv
// store; the UI layer never writes storage directly.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/g1mliii/anchored/internal/common"
	"github.com/g1mliii/anchored/internal/kv"
	"github.com/g1mliii/anchored/internal/logging"
	"github.com/g1mliii/anchored/internal/models"
)

// Backend is the read side of the backend client the cache needs.
type Backend interface {
	FetchNotes(ctx context.Context) ([]*models.EncryptedNote, error)
	FetchNote(ctx context.Context, id string) (*models.EncryptedNote, error)
}

// KeyProvider returns the note encryption key for the active session.
type KeyProvider interface {
	Key(ctx context.Context) ([]byte, error)
}

// Enqueuer is the sync queue as the cache sees it: it records pending
// mutations and exposes them so a refresh can overlay unflushed local writes
// onto the server's view.
type Enqueuer interface {
	Enqueue(ctx context.Context, note *models.Note, op models.Operation) error
	Items(ctx context.Context) ([]models.SyncQueueItem, error)
}

// NoteCache provides cache-first access to the note collection. There is no
// eviction: per-user note volumes are thousands, not millions, and expiry
// only schedules a background refresh, never blocks a read.
type NoteCache struct {
	store   kv.Store
	backend Backend
	keys    KeyProvider
	queue   Enqueuer
	log     logging.Logger
	now     func() time.Time

	mu         sync.Mutex // guards snapshot read-modify-write
	refreshing atomic.Bool
}

func New(store kv.Store, backend Backend, keys KeyProvider, queue Enqueuer, log logging.Logger) *NoteCache {
	return &NoteCache{
		store:   store,
		backend: backend,
		keys:    keys,
		queue:   queue,
		log:     log,
		now:     time.Now,
	}
}

// GetAllNotes returns the cached snapshot immediately when one exists, even
// if stale; staleness only schedules a background refresh whose failure is
// logged and swallowed. Only when no cache exists at all is the fetch
// awaited, and then its error is surfaced.
func (c *NoteCache) GetAllNotes(ctx context.Context) ([]*models.Note, error) {
	entry, err := c.readSnapshot(ctx)
	if err == nil {
		if entry.Stale(c.now()) {
			c.refreshInBackground(ctx)
		}
		return visible(entry.Value), nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	entry, err = c.readSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	return visible(entry.Value), nil
}

// GetNote looks the note up in the cache first and falls back to a
// single-note backend fetch on a miss.
func (c *NoteCache) GetNote(ctx context.Context, id string) (*models.Note, error) {
	if note, err := c.readNote(ctx, id); err == nil {
		if note.IsDeleted {
			return nil, common.ErrNotFound
		}
		return note.Clone(), nil
	}

	key, err := c.keys.Key(ctx)
	if err != nil {
		return nil, err
	}
	encrypted, err := c.backend.FetchNote(ctx, id)
	if err != nil {
		return nil, err
	}
	note, err := encrypted.Decrypt(key)
	if err != nil {
		return nil, err
	}
	c.writeNote(ctx, note)
	return note.Clone(), nil
}

// SaveNote applies the mutation to the cache synchronously and enqueues the
// backend write; it returns as soon as the local write lands. Queue failures
// are logged, never surfaced to the caller.
func (c *NoteCache) SaveNote(ctx context.Context, note *models.Note) (*models.Note, error) {
	return c.save(ctx, note, true)
}

// SaveNoteWithoutSync is SaveNote minus the enqueue. Bulk import uses it so
// many notes collapse into one queued flush managed by the caller.
func (c *NoteCache) SaveNoteWithoutSync(ctx context.Context, note *models.Note) (*models.Note, error) {
	return c.save(ctx, note, false)
}

func (c *NoteCache) save(ctx context.Context, note *models.Note, enqueue bool) (*models.Note, error) {
	now := c.now()
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.UpdatedAt = now
	if note.UpdatedAt.Before(note.CreatedAt) {
		note.UpdatedAt = note.CreatedAt
	}
	if note.Tags == nil {
		note.Tags = []string{}
	}
	if note.Domain == "" && note.URL != "" {
		if u, err := url.Parse(note.URL); err == nil {
			note.Domain = u.Hostname()
		}
	}

	if err := c.writeNote(ctx, note); err != nil {
		return nil, err
	}
	c.updateSnapshot(ctx, func(notes []*models.Note) []*models.Note {
		return upsertByID(notes, note.Clone())
	})

	if enqueue {
		if err := c.queue.Enqueue(ctx, note, models.OperationUpdate); err != nil {
			c.log.Error(ctx, "enqueueing note update", "noteId", note.ID, "err", err)
		}
	}
	return note, nil
}

// DeleteNote removes the note from the cache immediately and enqueues a
// delete carrying just the id.
func (c *NoteCache) DeleteNote(ctx context.Context, id string) error {
	if err := c.store.Delete(ctx, kv.NoteKey(id)); err != nil {
		return err
	}
	c.updateSnapshot(ctx, func(notes []*models.Note) []*models.Note {
		return removeByID(notes, id)
	})

	if err := c.queue.Enqueue(ctx, &models.Note{ID: id}, models.OperationDelete); err != nil {
		c.log.Error(ctx, "enqueueing note delete", "noteId", id, "err", err)
	}
	return nil
}

// SearchNotes is a cache-only, case-insensitive substring match over title,
// content, and tags, optionally filtered by domain. Title matches sort
// first, then descending UpdatedAt. No backend round trip: results may be
// stale.
func (c *NoteCache) SearchNotes(ctx context.Context, query, domain string) ([]*models.Note, error) {
	entry, err := c.readSnapshot(ctx)
	if errors.Is(err, common.ErrNotFound) {
		return []*models.Note{}, nil
	}
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	type hit struct {
		note       *models.Note
		titleMatch bool
	}
	var hits []hit
	for _, n := range visible(entry.Value) {
		if domain != "" && n.Domain != domain {
			continue
		}
		titleMatch := strings.Contains(strings.ToLower(n.Title), q)
		if q != "" && !titleMatch && !contentOrTagMatch(n, q) {
			continue
		}
		hits = append(hits, hit{note: n, titleMatch: titleMatch && q != ""})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].titleMatch != hits[j].titleMatch {
			return hits[i].titleMatch
		}
		return hits[i].note.UpdatedAt.After(hits[j].note.UpdatedAt)
	})

	result := make([]*models.Note, len(hits))
	for i, h := range hits {
		result[i] = h.note
	}
	return result, nil
}

// Refresh forces a synchronous refetch-and-decrypt cycle.
func (c *NoteCache) Refresh(ctx context.Context) error {
	return c.refresh(ctx)
}

func (c *NoteCache) refreshInBackground(ctx context.Context) {
	if !c.refreshing.CompareAndSwap(false, true) {
		return
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		defer c.refreshing.Store(false)
		if err := c.refresh(bg); err != nil {
			c.log.Warn(bg, "background cache refresh failed", "err", err)
		}
	}()
}

func (c *NoteCache) refresh(ctx context.Context) error {
	key, err := c.keys.Key(ctx)
	if err != nil {
		return err
	}
	rows, err := c.backend.FetchNotes(ctx)
	if err != nil {
		return fmt.Errorf("fetching notes: %w", err)
	}

	notes := make([]*models.Note, 0, len(rows))
	for _, row := range rows {
		note, err := row.Decrypt(key)
		if err != nil {
			// One undecryptable note never takes down the whole view.
			c.log.Error(ctx, "skipping undecryptable note", "noteId", row.ID, "err", err)
			continue
		}
		if note.IsDeleted {
			continue
		}
		notes = append(notes, note)
		if err := c.writeNote(ctx, note); err != nil {
			return err
		}
	}
	notes = c.overlayPending(ctx, notes)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeSnapshot(ctx, notes)
}

// overlayPending replays unflushed queue mutations on top of the server's
// rows: a local edit the server has not seen yet must not vanish from the
// list view just because a refresh landed first.
func (c *NoteCache) overlayPending(ctx context.Context, notes []*models.Note) []*models.Note {
	pending, err := c.queue.Items(ctx)
	if err != nil {
		c.log.Warn(ctx, "reading pending mutations during refresh", "err", err)
		return notes
	}
	for _, it := range pending {
		switch it.Operation {
		case models.OperationUpdate:
			if it.Note != nil {
				notes = upsertByID(notes, it.Note.Clone())
			}
		case models.OperationDelete:
			notes = removeByID(notes, it.NoteID)
		}
	}
	return notes
}

func (c *NoteCache) readNote(ctx context.Context, id string) (*models.Note, error) {
	raw, err := c.store.Get(ctx, kv.NoteKey(id))
	if err != nil {
		return nil, err
	}
	var entry models.CacheEntry[*models.Note]
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("corrupt cache entry for %s: %w", id, err)
	}
	return entry.Value, nil
}

func (c *NoteCache) writeNote(ctx context.Context, note *models.Note) error {
	entry := models.CacheEntry[*models.Note]{Value: note, Timestamp: c.now()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, kv.NoteKey(note.ID), raw)
}

func (c *NoteCache) readSnapshot(ctx context.Context) (models.CacheEntry[[]*models.Note], error) {
	var entry models.CacheEntry[[]*models.Note]
	raw, err := c.store.Get(ctx, kv.KeyAllNotes)
	if err != nil {
		return entry, err
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, fmt.Errorf("corrupt notes snapshot: %w", err)
	}
	return entry, nil
}

func (c *NoteCache) writeSnapshot(ctx context.Context, notes []*models.Note) error {
	entry := models.CacheEntry[[]*models.Note]{Value: notes, Timestamp: c.now()}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, kv.KeyAllNotes, raw)
}

func (c *NoteCache) updateSnapshot(ctx context.Context, mutate func([]*models.Note) []*models.Note) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var notes []*models.Note
	if entry, err := c.readSnapshot(ctx); err == nil {
		notes = entry.Value
	}
	if err := c.writeSnapshot(ctx, mutate(notes)); err != nil {
		c.log.Error(ctx, "updating notes snapshot", "err", err)
	}
}

func visible(notes []*models.Note) []*models.Note {
	out := make([]*models.Note, 0, len(notes))
	for _, n := range notes {
		if n == nil || n.IsDeleted {
			continue
		}
		out = append(out, n.Clone())
	}
	return out
}

func contentOrTagMatch(n *models.Note, q string) bool {
	if strings.Contains(strings.ToLower(n.Content), q) {
		return true
	}
	for _, tag := range n.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func upsertByID(notes []*models.Note, note *models.Note) []*models.Note {
	for i, n := range notes {
		if n != nil && n.ID == note.ID {
			notes[i] = note
			return notes
		}
	}
	return append(notes, note)
}

func removeByID(notes []*models.Note, id string) []*models.Note {
	for i, n := range notes {
		if n != nil && n.ID == id {
			return append(notes[:i], notes[i+1:]...)
		}
	}
	return notes
}
