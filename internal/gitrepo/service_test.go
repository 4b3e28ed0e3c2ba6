package gitrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestRevisionLifecycle(t *testing.T) {
	dir := t.TempDir()
	svc := New(dir)

	first, changed, err := svc.CommitRevision("r1", map[string]any{"title": "Backend", "skills": []any{"Go"}}, "Ada Lovelace", "Create resume")
	if err != nil {
		t.Fatalf("CommitRevision() error = %v", err)
	}
	if !changed || len(first.Hash) != 7 || len(first.FullHash) != 40 || first.Author != "Ada Lovelace" {
		t.Fatalf("unexpected first revision %+v changed=%v", first, changed)
	}
	if _, err := os.Stat(filepath.Join(dir, "r1", payloadFile)); err != nil {
		t.Fatalf("payload file missing: %v", err)
	}

	same, changed, err := svc.CommitRevision("r1", map[string]any{"skills": []any{"Go"}, "title": "Backend"}, "Ada Lovelace", "No-op")
	if err != nil {
		t.Fatalf("CommitRevision(no-op) error = %v", err)
	}
	if changed || same.FullHash != first.FullHash {
		t.Fatalf("identical payload must not create a revision, got %+v changed=%v", same, changed)
	}

	second, changed, err := svc.CommitRevision("r1", map[string]any{"title": "Platform", "skills": []any{"Go"}, "summary": "Hi"}, "Ada Lovelace", "Update resume")
	if err != nil || !changed {
		t.Fatalf("CommitRevision(update) changed=%v err=%v", changed, err)
	}

	history, err := svc.History("r1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].FullHash != second.FullHash || history[1].FullHash != first.FullHash {
		t.Fatalf("unexpected history %+v", history)
	}
	if history[0].Message != "Update resume" {
		t.Fatalf("unexpected message %q", history[0].Message)
	}
	limited, _ := svc.History("r1", 1)
	if len(limited) != 1 {
		t.Fatalf("expected 1 entry with limit, got %d", len(limited))
	}

	payload, rev, changes, err := svc.PayloadAt("r1", second.FullHash)
	if err != nil {
		t.Fatalf("PayloadAt() error = %v", err)
	}
	if payload["title"] != "Platform" || rev.FullHash != second.FullHash {
		t.Fatalf("unexpected payload %+v rev %+v", payload, rev)
	}
	if len(changes) != 2 || changes[0].Field != "summary" || changes[1].Field != "title" {
		t.Fatalf("unexpected changes %+v", changes)
	}
	if changes[1].Before != "Backend" || changes[1].After != "Platform" {
		t.Fatalf("unexpected title change %+v", changes[1])
	}

	old, _, changes, err := svc.PayloadAt("r1", first.FullHash)
	if err != nil {
		t.Fatalf("PayloadAt(first) error = %v", err)
	}
	if old["title"] != "Backend" || len(changes) != 2 {
		t.Fatalf("first revision should diff against empty: %+v %+v", old, changes)
	}
}

func TestHistoryErrors(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.History("missing", 0); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got %v", err)
	}
	if _, err := svc.History("../escape", 0); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory for traversal id, got %v", err)
	}
	if _, _, err := svc.CommitRevision("../escape", map[string]any{}, "a", "m"); err == nil {
		t.Fatal("expected error for traversal id")
	}

	if _, _, err := svc.CommitRevision("r1", map[string]any{"title": "x"}, "", "Create"); err != nil {
		t.Fatalf("CommitRevision: %v", err)
	}
	if _, _, _, err := svc.PayloadAt("r1", "0123456789012345678901234567890123456789"); !errors.Is(err, ErrUnknownRevision) {
		t.Fatalf("expected ErrUnknownRevision, got %v", err)
	}
}

func TestDeleteDropsHistory(t *testing.T) {
	svc := New(t.TempDir())
	if _, _, err := svc.CommitRevision("r1", map[string]any{"title": "x"}, "Ada", "Create"); err != nil {
		t.Fatalf("CommitRevision: %v", err)
	}
	if err := svc.Delete("r1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.History("r1", 0); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory after delete, got %v", err)
	}
}

func TestConcurrentCommitsOnDifferentResumes(t *testing.T) {
	svc := New(t.TempDir())
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("r%d", i%4)
			if _, _, err := svc.CommitRevision(id, map[string]any{"n": i}, "Ada", "Update"); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent commit failed: %v", err)
	}
	for i := 0; i < 4; i++ {
		history, err := svc.History(fmt.Sprintf("r%d", i), 0)
		if err != nil || len(history) != 2 {
			t.Fatalf("r%d: history=%d err=%v", i, len(history), err)
		}
	}
}

func TestDiffFields(t *testing.T) {
	changes := DiffFields(
		map[string]any{"a": 1.0, "b": []any{"x"}, "c": "same"},
		map[string]any{"a": 2.0, "b": []any{"x"}, "c": "same", "d": true},
	)
	if len(changes) != 2 || changes[0].Field != "a" || changes[1].Field != "d" {
		t.Fatalf("unexpected changes %+v", changes)
	}
}
