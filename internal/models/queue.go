package models

import "time"

// Operation is a pending mutation kind.
type Operation string

const (
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// SyncQueueItem is one pending mutation. The queue holds at most one item
// per note id; a newer mutation replaces the pending one rather than
// appending. An item is abandoned after MaxRetries consecutive failures.
type SyncQueueItem struct {
	NoteID    string    `json:"noteId"`
	Note      *Note     `json:"note,omitempty"` // nil for deletes
	Operation Operation `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
	Retries   int       `json:"retries"`
}
