package pool

import (
	"time"

	"murmur/internal/artifact"
)

// Status represents the lifecycle of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transition may leave this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Task is one submitted transcription job tracked through its lifecycle.
// The pool owns every Task; callers receive copies.
type Task struct {
	ID           string
	Metadata     artifact.Metadata
	Status       Status
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
	// ArtifactPath is the still-encrypted submitted container on disk.
	// Cleared when the task leaves the pool or reaches a terminal status.
	ArtifactPath string
}

// NewTask builds a pending task for an admitted submission.
func NewTask(id string, meta artifact.Metadata, artifactPath string) *Task {
	return &Task{
		ID:           id,
		Metadata:     meta,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
		ArtifactPath: artifactPath,
	}
}

// Result is the persisted product of a completed task. Never mutated after
// creation; deleted on explicit clear or by the retention sweep.
type Result struct {
	TaskID    string
	Content   string
	CreatedAt time.Time
	// Length is the subtitle size in bytes, available even when Content
	// was not loaded (listings skip file reads).
	Length     int
	StoredPath string
}

// PoolStatus is a point-in-time admission snapshot. Derived, never stored.
type PoolStatus struct {
	IsFull          bool `json:"is_full"`
	CurrentSize     int  `json:"current_size"`
	MaxSize         int  `json:"max_size"`
	ProcessingCount int  `json:"processing_count"`
}
