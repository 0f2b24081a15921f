package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dgallion1/docread/internal/config"
	"github.com/dgallion1/docread/internal/doctree"
	"github.com/dgallion1/docread/internal/parser"
)

// lockedAdapter loads any file as one line of text once the right password
// is supplied.
type lockedAdapter struct {
	password string
}

func (a lockedAdapter) Load(path, password string) (*doctree.Document, error) {
	if password != a.password {
		return nil, &parser.ParseError{Code: parser.CodePasswordRequired, Path: path}
	}
	buf := doctree.NewBuffer()
	buf.AppendLine("unlocked")
	return buf.Document(doctree.Meta{Title: "Locked", Author: doctree.UnknownAuthor}), nil
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.WorkerCount = 2
	cfg.MaxQueueSize = 4
	return cfg
}

func startOrchestrator(t *testing.T, registry parser.Registry) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(testConfig(), registry, nil)
	o.Start(context.Background())
	t.Cleanup(o.Stop)
	return o
}

func waitStatus(t *testing.T, job *Job, want JobStatus) JobSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := job.Snapshot()
		if snap.Status == want {
			return snap
		}
		if snap.Status.Terminal() {
			t.Fatalf("expected status %q, job ended as %q (%v)", want, snap.Status, snap.Errors)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for status %q, last %q", want, job.Snapshot().Status)
	return JobSnapshot{}
}

func TestOrchestrator_LoadsText(t *testing.T) {
	o := startOrchestrator(t, parser.BuildRegistry(nil, parser.Options{}))

	job := NewJob("notes.txt", []byte("first line\nsecond line\n"), "")
	if err := o.Submit(job); err != nil {
		t.Fatalf("submit: %v", err)
	}
	snap := waitStatus(t, job, StatusCompleted)
	if snap.Format != "text" {
		t.Errorf("expected format %q, got %q", "text", snap.Format)
	}

	d := o.Document(job.DocID)
	if d == nil {
		t.Fatal("expected document in cache")
	}
	if d.Doc.Text() != "first line\nsecond line\n" {
		t.Errorf("unexpected text %q", d.Doc.Text())
	}
	if job.FileData() != nil {
		t.Error("expected upload bytes to be released after load")
	}
}

func TestOrchestrator_CachedDocument(t *testing.T) {
	o := startOrchestrator(t, parser.BuildRegistry(nil, parser.Options{}))

	first := NewJob("a.md", []byte("# Title\n\nBody\n"), "")
	if err := o.Submit(first); err != nil {
		t.Fatal(err)
	}
	waitStatus(t, first, StatusCompleted)

	second := NewJob("b.md", []byte("# Title\n\nBody\n"), "")
	if err := o.Submit(second); err != nil {
		t.Fatal(err)
	}
	snap := waitStatus(t, second, StatusCompleted)
	if snap.Phase != "cached" {
		t.Errorf("expected phase %q, got %q", "cached", snap.Phase)
	}
	if len(o.Documents()) != 1 {
		t.Errorf("expected 1 cached document, got %d", len(o.Documents()))
	}
}

func TestOrchestrator_MalformedFails(t *testing.T) {
	o := startOrchestrator(t, parser.BuildRegistry(nil, parser.Options{}))

	job := NewJob("broken.xhtml", []byte("<html><body><p>open"), "")
	if err := o.Submit(job); err != nil {
		t.Fatal(err)
	}
	snap := waitStatus(t, job, StatusFailed)
	if snap.ErrorCode != "malformed_markup" {
		t.Errorf("expected code %q, got %q", "malformed_markup", snap.ErrorCode)
	}
	if job.FileData() != nil {
		t.Error("expected upload bytes to be released after a failed load")
	}
}

func TestOrchestrator_UnsupportedReleasesUpload(t *testing.T) {
	o := startOrchestrator(t, parser.Registry{})

	job := NewJob("notes.txt", []byte("plain"), "")
	if err := o.Submit(job); err != nil {
		t.Fatal(err)
	}
	snap := waitStatus(t, job, StatusFailed)
	if snap.ErrorCode != "unsupported" {
		t.Errorf("expected code %q, got %q", "unsupported", snap.ErrorCode)
	}
	if job.FileData() != nil {
		t.Error("expected upload bytes to be released after a failed job")
	}
}

func TestOrchestrator_PasswordFlow(t *testing.T) {
	o := startOrchestrator(t, parser.Registry{parser.FormatText: lockedAdapter{password: "secret"}})

	job := NewJob("locked.txt", []byte("ciphertext"), "")
	if err := o.Submit(job); err != nil {
		t.Fatal(err)
	}
	snap := waitStatus(t, job, StatusPasswordRequired)
	if snap.ErrorCode != "password_required" {
		t.Errorf("expected code %q, got %q", "password_required", snap.ErrorCode)
	}

	if _, err := o.Unlock(job.ID, "secret"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	waitStatus(t, job, StatusCompleted)
	if d := o.Document(job.DocID); d == nil || d.Doc.Title() != "Locked" {
		t.Error("expected unlocked document in cache")
	}

	if _, err := o.Unlock(job.ID, "secret"); !errors.Is(err, ErrNotWaiting) {
		t.Errorf("expected ErrNotWaiting, got %v", err)
	}
	if _, err := o.Unlock("missing", "x"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestOrchestrator_CachedProtectedDocumentNeedsPassword(t *testing.T) {
	o := startOrchestrator(t, parser.Registry{parser.FormatText: lockedAdapter{password: "secret"}})
	data := []byte("ciphertext")

	first := NewJob("locked.txt", data, "secret")
	if err := o.Submit(first); err != nil {
		t.Fatal(err)
	}
	waitStatus(t, first, StatusCompleted)

	tests := []struct {
		name     string
		password string
		want     JobStatus
		phase    string
	}{
		{"no password", "", StatusPasswordRequired, "waiting_for_password"},
		{"wrong password", "guess", StatusPasswordRequired, "waiting_for_password"},
		{"same password", "secret", StatusCompleted, "cached"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJob("copy.txt", data, tt.password)
			if job.DocID != first.DocID {
				t.Fatalf("expected same document id, got %q and %q", job.DocID, first.DocID)
			}
			if err := o.Submit(job); err != nil {
				t.Fatal(err)
			}
			snap := waitStatus(t, job, tt.want)
			if snap.Phase != tt.phase {
				t.Errorf("expected phase %q, got %q", tt.phase, snap.Phase)
			}
		})
	}
}

func TestOrchestrator_QueueFull(t *testing.T) {
	// Not started, so nothing drains the queue.
	o := NewOrchestrator(testConfig(), parser.Registry{}, nil)
	for i := range 4 {
		if err := o.Submit(NewJob("f.txt", []byte{byte(i)}, "")); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	job := NewJob("f.txt", []byte("overflow"), "")
	err := o.Submit(job)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if job.Snapshot().Status != StatusFailed {
		t.Errorf("expected rejected job to be failed, got %q", job.Snapshot().Status)
	}
	if job.FileData() != nil {
		t.Error("expected rejected job to release its upload")
	}
	stats := o.Stats()
	if stats.QueueDepth != 4 || stats.Jobs != 5 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestOrchestrator_SubmitAfterStop(t *testing.T) {
	o := NewOrchestrator(testConfig(), parser.BuildRegistry(nil, parser.Options{}), nil)
	o.Start(context.Background())

	locked := NewOrchestrator(testConfig(), parser.Registry{parser.FormatText: lockedAdapter{password: "secret"}}, nil)
	locked.Start(context.Background())
	waiting := NewJob("locked.txt", []byte("ciphertext"), "")
	if err := locked.Submit(waiting); err != nil {
		t.Fatal(err)
	}
	waitStatus(t, waiting, StatusPasswordRequired)

	o.Stop()
	locked.Stop()
	// A second Stop is a no-op.
	o.Stop()

	job := NewJob("late.txt", []byte("late"), "")
	if err := o.Submit(job); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	snap := job.Snapshot()
	if snap.Status != StatusFailed || snap.ErrorCode != "stopped" {
		t.Errorf("expected failed job with code %q, got %q/%q", "stopped", snap.Status, snap.ErrorCode)
	}

	if _, err := locked.Unlock(waiting.ID, "secret"); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped from Unlock, got %v", err)
	}
}
