package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"murmur/internal/artifact"
	"murmur/internal/pool"
)

type stubTranscriber struct {
	content string
	err     error
	calls   chan string
}

func (s *stubTranscriber) Transcribe(_ context.Context, audioPath, model, _ string) (string, error) {
	if s.calls != nil {
		s.calls <- audioPath + "|" + model
	}
	return s.content, s.err
}

func newTestPool(t *testing.T) *pool.Pool {
	t.Helper()
	store, err := pool.OpenResultStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return pool.New(store, 5, time.Hour, nil)
}

func admitEncodedTask(t *testing.T, p *pool.Pool, dir, id string) *pool.Task {
	t.Helper()
	meta := artifact.Metadata{
		TaskID:     id,
		Filename:   id + ".mkv",
		Password:   artifact.SharedPassword,
		Model:      "base",
		SubmitTime: artifact.NewSubmitTime(),
	}
	container, err := artifact.Encode(meta, []byte("OggS fake audio"), artifact.SharedPassword)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, id+artifact.ContainerExt)
	if err := os.WriteFile(path, container, 0o644); err != nil {
		t.Fatal(err)
	}
	task := pool.NewTask(id, meta, path)
	if !p.TryAdmit(task) {
		t.Fatal("admission failed")
	}
	return task
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		TempDir:            t.TempDir(),
		DefaultModel:       "large-v3-turbo",
		PollInterval:       10 * time.Millisecond,
		ErrorRetryInterval: 10 * time.Millisecond,
	}
}

func TestLoopCompletesTask(t *testing.T) {
	p := newTestPool(t)
	dir := t.TempDir()
	admitEncodedTask(t, p, dir, "task-ok")

	loop := New(p, &stubTranscriber{content: "1\n00:00:00,000 --> 00:00:01,000\nhello\n"}, testOptions(t), nil)
	if err := loop.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer loop.Stop()

	waitFor(t, "completion", func() bool {
		_, ok := p.Get("task-ok")
		return !ok
	})

	result, err := p.GetResult(context.Background(), "task-ok")
	if err != nil {
		t.Fatal(err)
	}
	if result.Content == "" {
		t.Fatal("empty result content")
	}
	if got := p.Status().CurrentSize; got != 0 {
		t.Fatalf("pool size after completion: %d", got)
	}
}

func TestLoopRecordsTranscriberFailure(t *testing.T) {
	p := newTestPool(t)
	dir := t.TempDir()
	admitEncodedTask(t, p, dir, "task-bad")

	loop := New(p, &stubTranscriber{err: errors.New("model exploded")}, testOptions(t), nil)
	if err := loop.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer loop.Stop()

	waitFor(t, "failure", func() bool {
		task, ok := p.Get("task-bad")
		return ok && task.Status == pool.StatusFailed
	})

	task, _ := p.Get("task-bad")
	if task.ErrorMessage == "" {
		t.Fatal("failure message not recorded")
	}
}

func TestLoopSurvivesBadTask(t *testing.T) {
	p := newTestPool(t)
	dir := t.TempDir()

	// First task has a corrupt artifact; the next must still process.
	meta := artifact.Metadata{TaskID: "corrupt", Filename: "a.mkv", Password: artifact.SharedPassword, SubmitTime: artifact.NewSubmitTime()}
	badPath := filepath.Join(dir, "corrupt"+artifact.ContainerExt)
	if err := os.WriteFile(badPath, []byte("not a container"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !p.TryAdmit(pool.NewTask("corrupt", meta, badPath)) {
		t.Fatal("admission failed")
	}
	admitEncodedTask(t, p, dir, "task-after")

	loop := New(p, &stubTranscriber{content: "subs"}, testOptions(t), nil)
	if err := loop.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer loop.Stop()

	waitFor(t, "bad task failure", func() bool {
		task, ok := p.Get("corrupt")
		return ok && task.Status == pool.StatusFailed
	})
	waitFor(t, "subsequent completion", func() bool {
		_, ok := p.Get("task-after")
		return !ok
	})
}

func TestLoopUsesDefaultModelWhenUnset(t *testing.T) {
	p := newTestPool(t)
	dir := t.TempDir()

	meta := artifact.Metadata{
		TaskID:     "no-model",
		Filename:   "a.mkv",
		Password:   artifact.SharedPassword,
		SubmitTime: artifact.NewSubmitTime(),
	}
	container, err := artifact.Encode(meta, []byte("audio"), artifact.SharedPassword)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "no-model"+artifact.ContainerExt)
	if err := os.WriteFile(path, container, 0o644); err != nil {
		t.Fatal(err)
	}
	p.TryAdmit(pool.NewTask("no-model", meta, path))

	calls := make(chan string, 1)
	loop := New(p, &stubTranscriber{content: "subs", calls: calls}, testOptions(t), nil)
	if err := loop.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer loop.Stop()

	select {
	case call := <-calls:
		if want := "|large-v3-turbo"; !strings.HasSuffix(call, want) {
			t.Fatalf("transcriber call %q missing default model", call)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("transcriber never invoked")
	}
}

func TestStartStopIdempotence(t *testing.T) {
	p := newTestPool(t)
	loop := New(p, &stubTranscriber{}, testOptions(t), nil)

	if err := loop.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := loop.Start(context.Background()); err == nil {
		t.Fatal("second start should fail")
	}
	loop.Stop()
	loop.Stop() // second stop is a no-op
	if loop.Running() {
		t.Fatal("loop reports running after stop")
	}
}
