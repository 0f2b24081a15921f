package parser

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/dgallion1/docread/internal/doctree"
)

type member struct {
	name string
	body string
}

// writeZip builds a zip container in a temp dir. Members are stored in the
// given order so "mimetype" can come first.
func writeZip(t *testing.T, name string, members []member) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create %s: %v", p, err)
	}
	zw := zip.NewWriter(f)
	for _, m := range members {
		w, err := zw.Create(m.name)
		if err != nil {
			t.Fatalf("create member %s: %v", m.name, err)
		}
		if _, err := w.Write([]byte(m.body)); err != nil {
			t.Fatalf("write member %s: %v", m.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return p
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func markersOf(doc *doctree.Document, kind doctree.MarkerKind) []doctree.Marker {
	var out []doctree.Marker
	for _, m := range doc.Markers() {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func checkInvariants(t *testing.T, doc *doctree.Document) {
	t.Helper()
	prev := 0
	for i, m := range doc.Markers() {
		if m.Position < 0 || m.Position > doc.Length() {
			t.Errorf("marker %d (%s) position %d outside [0, %d]", i, m.Kind, m.Position, doc.Length())
		}
		if m.Position < prev {
			t.Errorf("marker %d (%s) out of order", i, m.Kind)
		}
		prev = m.Position
	}
}

type tocWant struct {
	name     string
	offset   int
	children []tocWant
}

func checkTOC(t *testing.T, got []*doctree.TocItem, want []tocWant) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d toc entries, got %d", len(want), len(got))
	}
	for i, w := range want {
		if got[i].Name != w.name || got[i].Offset != w.offset {
			t.Errorf("toc entry %d: expected {%q %d}, got {%q %d}", i, w.name, w.offset, got[i].Name, got[i].Offset)
		}
		checkTOC(t, got[i].Children, w.children)
	}
}
