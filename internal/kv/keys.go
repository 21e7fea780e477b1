package kv

// Storage key layout. Everything Anchored persists lives under one stable
// prefix. All keys except KeyCacheVersion are protected: housekeeping that
// rolls the cache version must never touch them.
const (
	Prefix = "anchored_"

	KeyNotePrefix     = Prefix + "note_"
	KeyAllNotes       = Prefix + "notes_all"
	KeySyncQueue      = Prefix + "sync_queue"
	KeyLastSync       = Prefix + "last_sync"
	KeyPendingChanges = Prefix + "pending_changes"
	KeySession        = Prefix + "session"
	KeyKeyMaterial    = Prefix + "key_material"
	KeySalt           = Prefix + "salt"
	KeyCacheVersion   = Prefix + "cache_version"
)

// NoteKey returns the per-note cache key for the given note id.
func NoteKey(id string) string {
	return KeyNotePrefix + id
}
