package pipeline

import (
	"crypto/subtle"
	"encoding/hex"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/dgallion1/docread/internal/doctree"
)

// StoredDocument is a loaded document held in the cache.
type StoredDocument struct {
	ID       string
	Filename string
	Format   string
	Doc      *doctree.Document
	LoadedAt time.Time

	// passwordKey is set when the document was opened with a password.
	passwordKey string
	lastAccess  time.Time
}

// passwordKey derives the fingerprint stored for a document opened with
// password. It is empty when no password was given.
func passwordKey(docID, password string) string {
	if password == "" {
		return ""
	}
	h := blake3.New()
	h.WriteString(docID)
	h.WriteString("\x00")
	h.WriteString(password)
	return hex.EncodeToString(h.Sum(nil))
}

// Opens reports whether a job supplying password may reuse d. Documents
// loaded without a password open for anyone.
func (d *StoredDocument) Opens(password string) bool {
	if d.passwordKey == "" {
		return true
	}
	got := passwordKey(d.ID, password)
	return subtle.ConstantTimeCompare([]byte(got), []byte(d.passwordKey)) == 1
}

// DocumentStore caches loaded documents by id. Entries not read within the
// TTL are evicted by Cleanup.
type DocumentStore struct {
	mu   sync.Mutex
	docs map[string]*StoredDocument
	ttl  time.Duration
}

func NewDocumentStore(ttl time.Duration) *DocumentStore {
	return &DocumentStore{
		docs: make(map[string]*StoredDocument),
		ttl:  ttl,
	}
}

func (s *DocumentStore) Put(d *StoredDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.LoadedAt.IsZero() {
		d.LoadedAt = time.Now()
	}
	d.lastAccess = time.Now()
	s.docs[d.ID] = d
}

// Get returns the document and refreshes its access time.
func (s *DocumentStore) Get(id string) *StoredDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.docs[id]
	if d != nil {
		d.lastAccess = time.Now()
	}
	return d
}

func (s *DocumentStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[id]
	delete(s.docs, id)
	return ok
}

// List returns every cached document, in no particular order.
func (s *DocumentStore) List() []*StoredDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*StoredDocument, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d)
	}
	return out
}

func (s *DocumentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

// Cleanup removes documents idle for longer than the TTL.
func (s *DocumentStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, d := range s.docs {
		if now.Sub(d.lastAccess) > s.ttl {
			delete(s.docs, id)
		}
	}
}
