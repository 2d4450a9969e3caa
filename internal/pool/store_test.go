package pool

import (
	"context"
	"errors"
	"os"
	"testing"
)

func TestResultStoreRoundTrip(t *testing.T) {
	store, err := OpenResultStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	saved, err := store.Save(ctx, "task-1", "1\n00:00:00,000 --> 00:00:01,000\nhello\n")
	if err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "task-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "1\n00:00:00,000 --> 00:00:01,000\nhello\n" {
		t.Fatalf("content mismatch: %q", got.Content)
	}
	if got.StoredPath != saved.StoredPath {
		t.Fatalf("stored path mismatch: %q vs %q", got.StoredPath, saved.StoredPath)
	}
}

func TestResultStoreGetMissing(t *testing.T) {
	store, err := OpenResultStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("expected ErrResultNotFound, got %v", err)
	}
}

func TestResultStoreSaveOverwrites(t *testing.T) {
	store, err := OpenResultStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	if _, err := store.Save(ctx, "task-1", "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save(ctx, "task-1", "second"); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "task-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "second" {
		t.Fatalf("content mismatch after overwrite: %q", got.Content)
	}

	results, err := store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("overwrite leaked rows: %d", len(results))
	}
	if results[0].Length != len("second") {
		t.Fatalf("listed length mismatch: %d", results[0].Length)
	}
}

func TestResultStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenResultStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if _, err := store.Save(ctx, "task-1", "persisted"); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenResultStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "task-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Content != "persisted" {
		t.Fatalf("content lost across reopen: %q", got.Content)
	}
}

func TestResultStoreDeleteRemovesFile(t *testing.T) {
	store, err := OpenResultStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	saved, err := store.Save(ctx, "task-1", "content")
	if err != nil {
		t.Fatal(err)
	}

	ok, err := store.Delete(ctx, "task-1")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(saved.StoredPath); !os.IsNotExist(err) {
		t.Fatalf("result file not removed: %v", err)
	}
}
