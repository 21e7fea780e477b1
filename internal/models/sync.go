package models

import "time"

// OperationSync is the logical operation name carried in SyncRequest bodies.
const OperationSync = "sync"

// SyncRequest is the batched mutation payload sent to the backend. Delivery
// must be idempotent per (id, updatedAt): re-sending the same payload after
// an ambiguous failure must not corrupt server state.
type SyncRequest struct {
	Operation    string           `json:"operation"`
	Notes        []*EncryptedNote `json:"notes"`
	Deletions    []Deletion       `json:"deletions"`
	LastSyncTime *time.Time       `json:"lastSyncTime"`
	Timestamp    int64            `json:"timestamp"`
}

// Deletion is a tombstone reference carried in a sync batch.
type Deletion struct {
	ID        string    `json:"id"`
	DeletedAt time.Time `json:"deletedAt"`
}

// SyncResponse reports per-item outcomes so the client can requeue only the
// failed mutations.
type SyncResponse struct {
	SyncedIDs []string  `json:"syncedIds"`
	FailedIDs []string  `json:"failedIds"`
	SyncTime  time.Time `json:"syncTime"`
}

// Resolution selects a conflict resolution strategy.
type Resolution string

const (
	ResolutionKeepLocal Resolution = "keep_local"
	ResolutionUseServer Resolution = "use_server"

	// ResolutionMerge is not a field-level merge: it prefers the client's
	// encrypted title/content wholesale and stamps a fresh updatedAt. A true
	// merge would require decrypting server-side, which the zero-knowledge
	// design forbids.
	ResolutionMerge Resolution = "merge"
)

// ResolveRequest asks the backend to reconcile two divergent versions of a
// note. NoteData is required for keep_local and merge.
type ResolveRequest struct {
	NoteID     string         `json:"noteId"`
	Resolution Resolution     `json:"resolution"`
	NoteData   *EncryptedNote `json:"noteData,omitempty"`
}

// ResolveResponse reports the winning version.
type ResolveResponse struct {
	Status     string         `json:"status"`
	Resolution Resolution     `json:"resolution"`
	Note       *EncryptedNote `json:"note"`
}

// CleanupResponse reports how many tombstones were purged.
type CleanupResponse struct {
	Cleaned int64 `json:"cleaned"`
}
