package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgallion1/docread/internal/parser"
)

// Worker loads a single document job.
type Worker struct {
	registry parser.Registry
	docs     *DocumentStore
	log      *slog.Logger
}

func NewWorker(registry parser.Registry, docs *DocumentStore, log *slog.Logger) *Worker {
	return &Worker{
		registry: registry,
		docs:     docs,
		log:      log,
	}
}

// Process writes the upload to a temporary file, hands it to the matching
// adapter and caches the result under the job's document id.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With("job_id", job.ID, "doc_id", job.DocID, "filename", job.Filename)

	if err := ctx.Err(); err != nil {
		fail(job, parser.CodeInternal, err)
		return
	}

	// A cached copy of a protected document is only reused when the job
	// brings the password it was opened with; otherwise the adapter decides.
	if d := w.docs.Get(job.DocID); d != nil && d.Opens(job.Password()) {
		log.Info("document already loaded")
		job.SetFormat(d.Format)
		job.SetStatus(StatusCompleted, "cached")
		job.SetFileData(nil)
		return
	}

	job.SetStatus(StatusLoading, "loading")

	path, cleanup, err := spool(job.Filename, job.FileData())
	if err != nil {
		log.Error("spool upload failed", "error", err)
		fail(job, parser.CodeInternal, err)
		return
	}
	defer cleanup()

	adapter, format, err := w.registry.For(path)
	if err != nil {
		log.Error("unsupported format", "error", err)
		fail(job, parser.CodeOf(err), err)
		return
	}
	job.SetFormat(format.String())

	doc, err := adapter.Load(path, job.Password())
	if err != nil {
		if errors.Is(err, parser.ErrPasswordRequired) {
			log.Info("password required")
			job.Fail(StatusPasswordRequired, parser.CodePasswordRequired.String(), err)
			job.SetStatus(StatusPasswordRequired, "waiting_for_password")
			return
		}
		log.Error("load failed", "error", err)
		fail(job, parser.CodeOf(err), err)
		return
	}

	w.docs.Put(&StoredDocument{
		ID:       job.DocID,
		Filename: job.Filename,
		Format:   format.String(),
		Doc:      doc,

		passwordKey: passwordKey(job.DocID, job.Password()),
	})
	job.SetFileData(nil)
	job.SetStatus(StatusCompleted, "done")
	log.Info("document loaded",
		"format", format.String(),
		"length", doc.Length(),
		"markers", len(doc.Markers()),
	)
}

// fail ends the job for good. Only jobs waiting for a password keep their
// upload, since a retry needs it.
func fail(job *Job, code parser.Code, err error) {
	job.Fail(StatusFailed, code.String(), err)
	job.SetFileData(nil)
}

// spool writes data under its original name in a fresh temporary directory,
// since adapters pick the format and fallback title from the file name.
func spool(filename string, data []byte) (string, func(), error) {
	if data == nil {
		return "", nil, fmt.Errorf("job has no file data")
	}
	dir, err := os.MkdirTemp("", "docread-*")
	if err != nil {
		return "", nil, fmt.Errorf("create temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }
	path := filepath.Join(dir, filepath.Base(filename))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("write temp file: %w", err)
	}
	return path, cleanup, nil
}
