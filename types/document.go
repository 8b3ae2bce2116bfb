package types

import "time"

// DocumentStatus is the processing status of an uploaded document.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Predecessors returns the statuses a document may be in when it is moved to s.
// The status itself is included so that repeating a write is a no-op.
func (s DocumentStatus) Predecessors() []DocumentStatus {
	switch s {
	case StatusProcessing:
		return []DocumentStatus{StatusPending, StatusProcessing}
	case StatusCompleted:
		return []DocumentStatus{StatusProcessing, StatusCompleted}
	case StatusFailed:
		return []DocumentStatus{StatusProcessing, StatusFailed}
	}
	return nil
}

// CanTransition reports whether a document in status from may be moved to status to.
func CanTransition(from, to DocumentStatus) bool {
	for _, p := range to.Predecessors() {
		if p == from {
			return true
		}
	}
	return false
}

// Document is an uploaded file record owned by a user.
type Document struct {
	ID               string         `json:"id"`
	Owner            string         `json:"owner"`
	Filename         string         `json:"filename"`
	StoragePath      string         `json:"storage_path"`
	Size             int64          `json:"size"`
	MimeType         string         `json:"mime_type"`
	ProcessingStatus DocumentStatus `json:"processing_status"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}
