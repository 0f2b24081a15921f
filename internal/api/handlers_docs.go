package api

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/dgallion1/docread/internal/doctree"
	"github.com/dgallion1/docread/internal/pipeline"
)

var allKinds = []doctree.MarkerKind{
	doctree.KindHeading1, doctree.KindHeading2, doctree.KindHeading3,
	doctree.KindHeading4, doctree.KindHeading5, doctree.KindHeading6,
	doctree.KindPageBreak, doctree.KindSectionBreak, doctree.KindTocItem,
	doctree.KindLink, doctree.KindTable, doctree.KindList, doctree.KindListItem,
}

func documentSummary(d *pipeline.StoredDocument) map[string]any {
	caps := []string{}
	if c := d.Doc.Capabilities().String(); c != "" {
		caps = strings.Split(c, ",")
	}
	return map[string]any{
		"doc_id":       d.ID,
		"filename":     d.Filename,
		"format":       d.Format,
		"title":        d.Doc.Title(),
		"author":       d.Doc.Author(),
		"length":       d.Doc.Length(),
		"capabilities": caps,
		"loaded_at":    d.LoadedAt,
	}
}

// handleListDocuments lists every loaded document.
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	stored := s.orchestrator.Documents()
	sort.Slice(stored, func(i, j int) bool { return stored[i].LoadedAt.Before(stored[j].LoadedAt) })

	docs := make([]map[string]any, 0, len(stored))
	for _, d := range stored {
		docs = append(docs, documentSummary(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDocumentInfo(w http.ResponseWriter, r *http.Request) {
	d := documentFrom(r)
	counts := map[string]int{}
	for _, k := range allKinds {
		if n := d.Doc.CountByKind(k); n > 0 {
			counts[k.String()] = n
		}
	}
	info := documentSummary(d)
	info["marker_counts"] = counts
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	d := documentFrom(r)
	s.orchestrator.DeleteDocument(d.ID)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": d.ID})
}

// handleDocumentText returns the flat text, or the [start, end) character
// range when either bound is given.
func (s *Server) handleDocumentText(w http.ResponseWriter, r *http.Request) {
	d := documentFrom(r)
	q := r.URL.Query()
	if q.Get("start") == "" && q.Get("end") == "" {
		writeJSON(w, http.StatusOK, map[string]any{"text": d.Doc.Text(), "length": d.Doc.Length()})
		return
	}
	start, err := intParam(r, "start", 0)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	end, err := intParam(r, "end", d.Doc.Length())
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"start":  start,
		"end":    end,
		"text":   d.Doc.Slice(start, end),
		"length": d.Doc.Length(),
	})
}

// handleMarkers lists markers, optionally filtered by kind. kind=heading with
// an optional level returns heading markers of every or one level.
func (s *Server) handleMarkers(w http.ResponseWriter, r *http.Request) {
	d := documentFrom(r)
	kindName := r.URL.Query().Get("kind")

	var markers []doctree.Marker
	switch {
	case kindName == "":
		markers = d.Doc.Markers()
	case strings.EqualFold(kindName, "heading"):
		level, err := intParam(r, "level", 0)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		markers = d.Doc.HeadingMarkers(level)
	default:
		kind, err := doctree.ParseKind(kindName)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		for _, m := range d.Doc.Markers() {
			if m.Kind == kind {
				markers = append(markers, m)
			}
		}
	}
	if markers == nil {
		markers = []doctree.Marker{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"markers": markers, "count": len(markers)})
}

func (s *Server) handleTOC(w http.ResponseWriter, r *http.Request) {
	d := documentFrom(r)
	toc := d.Doc.TOC()
	if toc == nil {
		toc = []*doctree.TocItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"toc": toc})
}

// handleNavigate finds the next, previous or current marker of a kind
// relative to a position. index is -1 when there is none.
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	d := documentFrom(r)
	pos, err := intParam(r, "position", 0)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind, err := doctree.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var idx int
	switch dir := r.URL.Query().Get("direction"); dir {
	case "", "next":
		idx = d.Doc.NextMarker(pos, kind)
	case "previous", "prev":
		idx = d.Doc.PreviousMarker(pos, kind)
	case "current":
		idx = d.Doc.CurrentMarker(pos, kind)
	default:
		jsonError(w, "direction must be next, previous or current", http.StatusBadRequest)
		return
	}

	resp := map[string]any{"index": idx}
	if m, ok := d.Doc.Marker(idx); ok {
		resp["marker"] = m
		resp["line"] = d.Doc.LineAt(m.Position)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResolveLink(w http.ResponseWriter, r *http.Request) {
	d := documentFrom(r)
	href := r.URL.Query().Get("href")
	if href == "" {
		jsonError(w, "href query parameter is required", http.StatusBadRequest)
		return
	}
	from, err := intParam(r, "from", 0)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"href":     href,
		"position": d.Doc.ResolveLink(href, from),
	})
}

func intParam(r *http.Request, name string, fallback int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}
