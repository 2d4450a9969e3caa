// Package api defines the JSON payloads exchanged between murmurd's HTTP
// surface and its clients. Field names are part of the wire contract shared
// with the client package and with third-party submitters.
package api

import (
	"time"

	"murmur/internal/pool"
)

// Response is the generic envelope returned by mutation endpoints.
type Response struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// HealthResponse reports daemon liveness plus a pool snapshot.
type HealthResponse struct {
	Status        string          `json:"status"`
	WorkerRunning bool            `json:"worker_running"`
	PoolStatus    pool.PoolStatus `json:"pool_status"`
	Timestamp     string          `json:"timestamp"`
}

// TaskStatus describes one task's lifecycle position.
type TaskStatus struct {
	TaskID       string `json:"task_id"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	StartedAt    string `json:"started_at,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// TaskResult carries subtitle text for a finished task. SRTContent is null
// while the task is still in the pool, which is how clients distinguish
// "not done yet" from an empty transcript.
type TaskResult struct {
	TaskID     string  `json:"task_id"`
	SRTContent *string `json:"srt_content"`
	Status     string  `json:"status"`
}

// ResultSummary lists a stored result without shipping its content.
type ResultSummary struct {
	TaskID    string `json:"task_id"`
	CreatedAt string `json:"created_at"`
	SRTLength int    `json:"srt_length"`
}

// TaskList is the combined view of live tasks and retained results.
type TaskList struct {
	Tasks   []TaskStatus    `json:"tasks"`
	Results []ResultSummary `json:"results"`
}

// WorkerStatus reports whether the processing loop is running.
type WorkerStatus struct {
	Running bool `json:"running"`
}

// Stats aggregates pool, task, and worker counters.
type Stats struct {
	PoolStatus  pool.PoolStatus `json:"pool_status"`
	TaskCounts  map[string]int  `json:"task_counts"`
	Worker      WorkerStatus    `json:"worker_status"`
	ResultCount int             `json:"result_count"`
}

// FromTask converts a pool task into its transport form.
func FromTask(t pool.Task) TaskStatus {
	out := TaskStatus{
		TaskID:       t.ID,
		Status:       string(t.Status),
		CreatedAt:    t.CreatedAt.Format(time.RFC3339),
		ErrorMessage: t.ErrorMessage,
	}
	if t.StartedAt != nil {
		out.StartedAt = t.StartedAt.Format(time.RFC3339)
	}
	if t.CompletedAt != nil {
		out.CompletedAt = t.CompletedAt.Format(time.RFC3339)
	}
	return out
}

// FromResult converts a stored result into its list form.
func FromResult(r pool.Result) ResultSummary {
	return ResultSummary{
		TaskID:    r.TaskID,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
		SRTLength: r.Length,
	}
}
