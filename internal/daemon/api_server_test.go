package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"murmur/internal/api"
	"murmur/internal/artifact"
	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/pool"
	"murmur/internal/worker"
)

type stubTranscriber struct{}

func (stubTranscriber) Transcribe(context.Context, string, string, string) (string, error) {
	return "", nil
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.UploadDir = filepath.Join(dir, "uploads")
	cfg.Paths.ResultDir = filepath.Join(dir, "results")
	cfg.Paths.TempDir = filepath.Join(dir, "temp")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	store, err := pool.OpenResultStore(cfg.Paths.ResultDir)
	if err != nil {
		t.Fatalf("open result store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	p := pool.New(store, cfg.Pool.MaxSize, 24*time.Hour, logging.NewNop())
	loop := worker.New(p, stubTranscriber{}, worker.Options{
		TempDir:      cfg.Paths.TempDir,
		DefaultModel: cfg.Whisper.Model,
	}, logging.NewNop())

	d, err := New(&cfg, store, p, loop, logging.NewNop())
	if err != nil {
		t.Fatalf("new daemon: %v", err)
	}
	return d
}

func encodeContainer(t *testing.T, taskID string) []byte {
	t.Helper()
	meta := artifact.Metadata{
		TaskID:     taskID,
		Filename:   "episode.mkv",
		Password:   artifact.SharedPassword,
		Model:      "base",
		SubmitTime: artifact.NewSubmitTime(),
	}
	container, err := artifact.Encode(meta, []byte("opus-audio"), artifact.SharedPassword)
	if err != nil {
		t.Fatalf("encode container: %v", err)
	}
	return container
}

func submitRequest(t *testing.T, taskID, filename string, container []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("task_id", taskID); err != nil {
		t.Fatalf("write field: %v", err)
	}
	fw, err := mw.CreateFormFile("task_file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write(container); err != nil {
		t.Fatalf("write file part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/tasks/submit", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestAPISubmitAdmitsTask(t *testing.T) {
	d := newTestDaemon(t)
	container := encodeContainer(t, "task-1")

	w := httptest.NewRecorder()
	d.api.handleSubmit(w, submitRequest(t, "task-1", "task-1.zip.enc", container))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success response, got %+v", resp)
	}

	task, ok := d.pool.Get("task-1")
	if !ok {
		t.Fatal("expected task in pool after submit")
	}
	if task.Status != pool.StatusPending {
		t.Fatalf("expected pending status, got %s", task.Status)
	}
}

func TestAPISubmitRejectsBadContainer(t *testing.T) {
	d := newTestDaemon(t)

	w := httptest.NewRecorder()
	d.api.handleSubmit(w, submitRequest(t, "task-1", "task-1.zip.enc", []byte("not an encrypted archive")))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if _, ok := d.pool.Get("task-1"); ok {
		t.Fatal("rejected submission must not be admitted")
	}
}

func TestAPISubmitRejectsWrongExtension(t *testing.T) {
	d := newTestDaemon(t)
	container := encodeContainer(t, "task-1")

	w := httptest.NewRecorder()
	d.api.handleSubmit(w, submitRequest(t, "task-1", "task-1.zip", container))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAPISubmitPoolFull(t *testing.T) {
	d := newTestDaemon(t)
	for i := 0; i < d.cfg.Pool.MaxSize; i++ {
		id := string(rune('a' + i))
		meta := artifact.Metadata{TaskID: id, Filename: "f.mkv", Password: "p", Model: "base", SubmitTime: artifact.NewSubmitTime()}
		if !d.pool.TryAdmit(pool.NewTask(id, meta, "")) {
			t.Fatalf("seed admission %d failed", i)
		}
	}

	w := httptest.NewRecorder()
	d.api.handleSubmit(w, submitRequest(t, "task-overflow", "task-overflow.zip.enc", encodeContainer(t, "task-overflow")))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestAPITaskStatusNotFound(t *testing.T) {
	d := newTestDaemon(t)

	req := httptest.NewRequest(http.MethodGet, "/tasks/missing/status", nil)
	w := httptest.NewRecorder()
	d.api.handleTask(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAPIResultLifecycle(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()

	meta := artifact.Metadata{TaskID: "task-1", Filename: "f.mkv", Password: "p", Model: "base", SubmitTime: artifact.NewSubmitTime()}
	if !d.pool.TryAdmit(pool.NewTask("task-1", meta, "")) {
		t.Fatal("admission failed")
	}

	// Result is null while the task is still live.
	req := httptest.NewRequest(http.MethodGet, "/tasks/task-1/result", nil)
	w := httptest.NewRecorder()
	d.api.handleTask(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var pendingResult api.TaskResult
	if err := json.Unmarshal(w.Body.Bytes(), &pendingResult); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if pendingResult.SRTContent != nil {
		t.Fatalf("expected null srt_content for live task, got %q", *pendingResult.SRTContent)
	}
	if pendingResult.Status != string(pool.StatusPending) {
		t.Fatalf("expected pending status, got %s", pendingResult.Status)
	}

	if task := d.pool.DequeueNext(); task == nil {
		t.Fatal("expected dequeued task")
	}
	if err := d.pool.Complete(ctx, "task-1", "1\n00:00:00,000 --> 00:00:01,000\nhello\n"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/tasks/task-1/result", nil)
	w = httptest.NewRecorder()
	d.api.handleTask(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var done api.TaskResult
	if err := json.Unmarshal(w.Body.Bytes(), &done); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if done.SRTContent == nil || *done.SRTContent == "" {
		t.Fatal("expected subtitle content for completed task")
	}
	if done.Status != string(pool.StatusCompleted) {
		t.Fatalf("expected completed status, got %s", done.Status)
	}

	req = httptest.NewRequest(http.MethodGet, "/tasks/task-1/result/download", nil)
	w = httptest.NewRecorder()
	d.api.handleTask(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for download, got %d", w.Code)
	}
	if got := w.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected content type %q", got)
	}
	if w.Body.Len() == 0 {
		t.Fatal("expected subtitle body in download")
	}

	req = httptest.NewRequest(http.MethodDelete, "/tasks/task-1/result", nil)
	w = httptest.NewRecorder()
	d.api.handleTask(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for clear, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/tasks/task-1/result", nil)
	w = httptest.NewRecorder()
	d.api.handleTask(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for second clear, got %d", w.Code)
	}
}

func TestAPICancelTask(t *testing.T) {
	d := newTestDaemon(t)
	meta := artifact.Metadata{TaskID: "task-1", Filename: "f.mkv", Password: "p", Model: "base", SubmitTime: artifact.NewSubmitTime()}
	if !d.pool.TryAdmit(pool.NewTask("task-1", meta, "")) {
		t.Fatal("admission failed")
	}

	req := httptest.NewRequest(http.MethodDelete, "/tasks/task-1", nil)
	w := httptest.NewRecorder()
	d.api.handleTask(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	task, ok := d.pool.Get("task-1")
	if !ok {
		t.Fatal("cancelled task should remain visible")
	}
	if task.Status != pool.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", task.Status)
	}

	req = httptest.NewRequest(http.MethodDelete, "/tasks/missing", nil)
	w = httptest.NewRecorder()
	d.api.handleTask(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown task, got %d", w.Code)
	}
}

func TestAPIPoolStatusAndStats(t *testing.T) {
	d := newTestDaemon(t)
	meta := artifact.Metadata{TaskID: "task-1", Filename: "f.mkv", Password: "p", Model: "base", SubmitTime: artifact.NewSubmitTime()}
	if !d.pool.TryAdmit(pool.NewTask("task-1", meta, "")) {
		t.Fatal("admission failed")
	}

	req := httptest.NewRequest(http.MethodGet, "/pool/status", nil)
	w := httptest.NewRecorder()
	d.api.handlePoolStatus(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status pool.PoolStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode pool status: %v", err)
	}
	if status.CurrentSize != 1 {
		t.Fatalf("expected current_size 1, got %d", status.CurrentSize)
	}

	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	w = httptest.NewRecorder()
	d.api.handleStats(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var stats api.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.TaskCounts[string(pool.StatusPending)] != 1 {
		t.Fatalf("expected one pending task, got %+v", stats.TaskCounts)
	}
}

func TestAPITaskList(t *testing.T) {
	d := newTestDaemon(t)
	meta := artifact.Metadata{TaskID: "task-1", Filename: "f.mkv", Password: "p", Model: "base", SubmitTime: artifact.NewSubmitTime()}
	if !d.pool.TryAdmit(pool.NewTask("task-1", meta, "")) {
		t.Fatal("admission failed")
	}

	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	w := httptest.NewRecorder()
	d.api.handleTaskList(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list api.TaskList
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode task list: %v", err)
	}
	if len(list.Tasks) != 1 || list.Tasks[0].TaskID != "task-1" {
		t.Fatalf("unexpected task list %+v", list.Tasks)
	}
}
