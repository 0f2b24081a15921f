package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(h1))
	}
}

func TestContentHashHex_EmptyInput(t *testing.T) {
	h := ContentHashHex([]byte{})
	// BLAKE3 of empty input is well-known.
	want := "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262"
	if h != want {
		t.Errorf("expected hash %q, got %q", want, h)
	}
}

func TestContentHashHex_DifferentInputs(t *testing.T) {
	h1 := ContentHashHex([]byte("aaa"))
	h2 := ContentHashHex([]byte("bbb"))
	if h1 == h2 {
		t.Error("expected different hashes for different inputs")
	}
}

func TestNewJob(t *testing.T) {
	data := []byte("some text")
	job := NewJob("notes.txt", data, "pw")

	id, err := uuid.Parse(job.ID)
	if err != nil {
		t.Fatalf("expected a uuid job id, got %q: %v", job.ID, err)
	}
	if id.Version() != 7 {
		t.Errorf("expected uuid version 7, got %d", id.Version())
	}
	if job.DocID != ContentHashHex(data)[:16] {
		t.Errorf("expected doc id from content hash, got %q", job.DocID)
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %q, got %q", StatusQueued, job.Status)
	}
	if job.Password() != "pw" {
		t.Errorf("expected password %q, got %q", "pw", job.Password())
	}
	if string(job.FileData()) != "some text" {
		t.Errorf("expected file data %q, got %q", "some text", job.FileData())
	}
}

func TestNewJob_SameContentSameDoc(t *testing.T) {
	a := NewJob("a.txt", []byte("same"), "")
	b := NewJob("b.txt", []byte("same"), "")
	if a.DocID != b.DocID {
		t.Errorf("expected shared doc id, got %q and %q", a.DocID, b.DocID)
	}
	if a.ID == b.ID {
		t.Error("expected distinct job ids")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{
		ID:        "test-1",
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusLoading, "loading"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJob_Fail(t *testing.T) {
	job := &Job{ID: "fail", UpdatedAt: time.Now()}
	job.Fail(StatusFailed, "malformed_markup", errors.New("unterminated element"))

	snap := job.Snapshot()
	if snap.Status != StatusFailed {
		t.Errorf("expected status %q, got %q", StatusFailed, snap.Status)
	}
	if snap.ErrorCode != "malformed_markup" {
		t.Errorf("expected code %q, got %q", "malformed_markup", snap.ErrorCode)
	}
	if len(snap.Errors) != 1 || snap.Errors[0] != "unterminated element" {
		t.Errorf("expected one recorded error, got %v", snap.Errors)
	}
}

func TestJob_Requeue(t *testing.T) {
	job := &Job{ID: "pw", Status: StatusPasswordRequired}
	if !job.requeue("secret") {
		t.Fatal("expected requeue from password_required")
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %q, got %q", StatusQueued, job.Status)
	}
	if job.Password() != "secret" {
		t.Errorf("expected password %q, got %q", "secret", job.Password())
	}
	if job.requeue("again") {
		t.Error("expected requeue to refuse a queued job")
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{StatusQueued, false},
		{StatusLoading, false},
		{StatusPasswordRequired, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.status, tt.want, got)
		}
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return non-nil errors slice.
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if len(snap.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Errors))
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 job, got %d", store.Len())
	}
}

func TestJobStore_GetMissing(t *testing.T) {
	store := NewJobStore(time.Hour)
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	expired := &Job{ID: "old", UpdatedAt: time.Now()}
	store.Put(expired)

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	// Add a fresh job.
	fresh := &Job{ID: "new", UpdatedAt: time.Now()}
	store.Put(fresh)

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	// Should not panic on empty store.
	store.Cleanup()
}

func TestDocumentStore_TTLCleanup(t *testing.T) {
	store := NewDocumentStore(50 * time.Millisecond)
	store.Put(&StoredDocument{ID: "old"})
	time.Sleep(100 * time.Millisecond)
	store.Put(&StoredDocument{ID: "new"})

	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected idle document to be evicted")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh document to survive cleanup")
	}
}

func TestDocumentStore_GetRefreshesAccess(t *testing.T) {
	store := NewDocumentStore(80 * time.Millisecond)
	store.Put(&StoredDocument{ID: "doc"})
	time.Sleep(50 * time.Millisecond)
	if store.Get("doc") == nil {
		t.Fatal("expected document")
	}
	time.Sleep(50 * time.Millisecond)
	store.Cleanup()
	if store.Get("doc") == nil {
		t.Error("expected read to keep the document alive")
	}
}

func TestDocumentStore_Delete(t *testing.T) {
	store := NewDocumentStore(time.Hour)
	store.Put(&StoredDocument{ID: "doc"})
	if !store.Delete("doc") {
		t.Error("expected delete to report an existing document")
	}
	if store.Delete("doc") {
		t.Error("expected second delete to report nothing removed")
	}
	if len(store.List()) != 0 {
		t.Errorf("expected empty list, got %d", len(store.List()))
	}
}

func TestStoredDocument_Opens(t *testing.T) {
	open := &StoredDocument{ID: "doc"}
	locked := &StoredDocument{ID: "doc", passwordKey: passwordKey("doc", "secret")}

	tests := []struct {
		name     string
		doc      *StoredDocument
		password string
		want     bool
	}{
		{"no key, no password", open, "", true},
		{"no key, any password", open, "x", true},
		{"key, no password", locked, "", false},
		{"key, wrong password", locked, "Secret", false},
		{"key, same password", locked, "secret", true},
	}
	for _, tt := range tests {
		if got := tt.doc.Opens(tt.password); got != tt.want {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, got)
		}
	}

	if passwordKey("doc", "") != "" {
		t.Error("expected empty key without a password")
	}
	if passwordKey("a", "secret") == passwordKey("b", "secret") {
		t.Error("expected key to depend on the document id")
	}
}
