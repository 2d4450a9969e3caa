package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"murmur/internal/api"
	"murmur/internal/logging"
	"murmur/internal/pool"
	"murmur/internal/services/ffmpeg"
)

func TestScanVideosSkipsSubtitled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.mkv"))
	writeFile(t, filepath.Join(dir, "b.mp4"))
	writeFile(t, filepath.Join(dir, "b.srt"))
	writeFile(t, filepath.Join(dir, "notes.txt"))
	writeFile(t, filepath.Join(dir, "nested", "c.webm"))

	videos, err := ScanVideos(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{
		filepath.Join(dir, "a.mkv"),
		filepath.Join(dir, "nested", "c.webm"),
	}
	if len(videos) != len(want) {
		t.Fatalf("expected %d videos, got %v", len(want), videos)
	}
	for i := range want {
		if videos[i] != want[i] {
			t.Fatalf("expected %s at %d, got %s", want[i], i, videos[i])
		}
	}
}

func TestSubtitlePath(t *testing.T) {
	got := SubtitlePath("/media/show/episode.01.mkv")
	if got != "/media/show/episode.01.srt" {
		t.Fatalf("unexpected subtitle path %q", got)
	}
}

func TestAudioFileNameSanitizes(t *testing.T) {
	name := audioFileName("/media/A Very Long Title With Punctuation!!! (2024).mkv")
	if !strings.HasSuffix(name, ".ogg") {
		t.Fatalf("expected .ogg suffix, got %q", name)
	}
	if strings.ContainsAny(name, "!()") {
		t.Fatalf("expected punctuation stripped, got %q", name)
	}
	if len(name) > 40 {
		t.Fatalf("expected capped name, got %q (%d bytes)", name, len(name))
	}
}

func TestWaitForResultFailedTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/status") {
			writeJSON(t, w, api.TaskStatus{
				TaskID:       "task-1",
				Status:       string(pool.StatusFailed),
				ErrorMessage: "whisper exploded",
			})
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if _, err := c.waitForResult(context.Background(), "task-1"); err == nil {
		t.Fatal("expected error for failed task")
	}
}

func TestWaitForResultReturnsContent(t *testing.T) {
	content := "1\n00:00:00,000 --> 00:00:01,000\nhello\n"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/status"):
			// Completed tasks leave the pool.
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "task not found"})
		case strings.HasSuffix(r.URL.Path, "/result"):
			writeJSON(t, w, api.TaskResult{
				TaskID:     "task-1",
				SRTContent: &content,
				Status:     string(pool.StatusCompleted),
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	got, err := c.waitForResult(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("wait for result: %v", err)
	}
	if got != content {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestWaitForResultHonorsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/status") {
			writeJSON(t, w, api.TaskStatus{TaskID: "task-1", Status: string(pool.StatusPending)})
			return
		}
		writeJSON(t, w, api.TaskResult{TaskID: "task-1", Status: string(pool.StatusPending)})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.opts.WaitTimeout = time.Nanosecond

	if _, err := c.waitForResult(context.Background(), "task-1"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestRunEndToEnd(t *testing.T) {
	content := "1\n00:00:00,000 --> 00:00:01,000\nhello\n"
	var submitted string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/pool/status":
			writeJSON(t, w, pool.PoolStatus{IsFull: false, MaxSize: 5})
		case r.URL.Path == "/tasks/submit":
			if err := r.ParseMultipartForm(32 << 20); err != nil {
				t.Errorf("parse multipart: %v", err)
			}
			submitted = r.FormValue("task_id")
			writeJSON(t, w, api.Response{Success: true, Message: "ok"})
		case strings.HasSuffix(r.URL.Path, "/status"):
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "task not found"})
		case strings.HasSuffix(r.URL.Path, "/result"):
			writeJSON(t, w, api.TaskResult{SRTContent: &content, Status: string(pool.StatusCompleted)})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	video := filepath.Join(dir, "episode.mkv")
	writeFile(t, video)

	c := newTestClient(t, srv.URL)
	summary, err := c.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Succeeded != 1 || summary.Failed != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if submitted == "" {
		t.Fatal("expected a submitted task id")
	}

	data, err := os.ReadFile(SubtitlePath(video))
	if err != nil {
		t.Fatalf("read subtitle: %v", err)
	}
	if string(data) != content {
		t.Fatalf("unexpected subtitle content %q", data)
	}
}

func TestRunRecordsExtractionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s when extraction fails", r.URL.Path)
	}))
	defer srv.Close()

	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.mkv"))

	c := newTestClient(t, srv.URL)
	c.ffmpeg.WithCommandRunner(func(context.Context, string, ...string) error {
		return os.ErrInvalid
	})

	summary, err := c.Run(context.Background(), dir)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Succeeded != 0 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	apiClient, err := NewAPIClient(serverURL)
	if err != nil {
		t.Fatalf("new api client: %v", err)
	}

	encoder := ffmpeg.NewService("ffmpeg")
	encoder.WithCommandRunner(func(_ context.Context, _ string, args ...string) error {
		// The destination path is the final argument of the template.
		return os.WriteFile(args[len(args)-1], []byte("opus"), 0o600)
	})

	c, err := New(apiClient, encoder, Options{
		Model:                  "base",
		ProcessingPollInterval: time.Millisecond,
		PendingPollInterval:    time.Millisecond,
		PoolFullWaitInterval:   time.Millisecond,
	}, logging.NewNop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func writeJSON(t *testing.T, w http.ResponseWriter, payload any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode payload: %v", err)
	}
}
