// Package session persists the authentication session and derives the note
// encryption key from cached key material. The auth provider itself is an
// external collaborator; this package only consumes its artifacts to gate
// sync operations.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/g1mliii/anchored/internal/common"
	"github.com/g1mliii/anchored/internal/cryptox"
	"github.com/g1mliii/anchored/internal/kv"
	"github.com/g1mliii/anchored/internal/models"
)

// Manager owns the session and key-material keys in the kv store.
type Manager struct {
	store kv.Store
	now   func() time.Time

	// Key derivation is expensive (100k PBKDF2 rounds), so the derived key
	// is memoized until the underlying material changes.
	mu       sync.Mutex
	memoKey  []byte
	memoSeed []byte
}

func NewManager(store kv.Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Load returns the persisted session, or common.ErrNotFound.
func (m *Manager) Load(ctx context.Context) (*models.Session, error) {
	raw, err := m.store.Get(ctx, kv.KeySession)
	if err != nil {
		return nil, err
	}
	var s models.Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("corrupt session record: %w", err)
	}
	return &s, nil
}

// Save persists the session, stamping LastActivity.
func (m *Manager) Save(ctx context.Context, s *models.Session) error {
	s.LastActivity = m.now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = s.LastActivity
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, kv.KeySession, raw)
}

// Clear removes the session but leaves key material in place so notes stay
// decryptable offline after a token expires.
func (m *Manager) Clear(ctx context.Context) error {
	return m.store.Delete(ctx, kv.KeySession)
}

// Session returns the current session if it is valid, otherwise an error
// matching common.ErrUnauthorized. Sync paths call this to decide between
// online and local-only operation.
func (m *Manager) Session(ctx context.Context) (*models.Session, error) {
	s, err := m.Load(ctx)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: not signed in", common.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if !s.Valid(m.now()) {
		return nil, fmt.Errorf("%w: session expired", common.ErrUnauthorized)
	}
	return s, nil
}

// StoreKeyMaterial persists the password-like secret and salt the note key
// is derived from, and invalidates the memoized key.
func (m *Manager) StoreKeyMaterial(ctx context.Context, secret, salt []byte) error {
	if err := m.store.Set(ctx, kv.KeyKeyMaterial, secret); err != nil {
		return err
	}
	if err := m.store.Set(ctx, kv.KeySalt, salt); err != nil {
		return err
	}
	m.mu.Lock()
	m.memoKey, m.memoSeed = nil, nil
	m.mu.Unlock()
	return nil
}

// Key rederives the note encryption key from the cached key material and
// salt. The key itself is never persisted.
func (m *Manager) Key(ctx context.Context) ([]byte, error) {
	secret, err := m.store.Get(ctx, kv.KeyKeyMaterial)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: no key material", common.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	salt, err := m.store.Get(ctx, kv.KeySalt)
	if errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("%w: no key salt", common.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}

	seed := append(append([]byte(nil), secret...), salt...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.memoKey == nil || !bytes.Equal(m.memoSeed, seed) {
		m.memoKey = cryptox.DeriveKey(secret, salt)
		m.memoSeed = seed
	}
	// Callers get a copy: a mutated return value must not corrupt the
	// memoized key shared across the session.
	return append([]byte(nil), m.memoKey...), nil
}
