package doctree

import (
	"net/url"
	"path"
	"strings"
	"sync"
)

// Document is the converted, read-only form of a source file. All methods are
// safe for concurrent use.
type Document struct {
	title  string
	author string
	text   string
	length int

	markers markerList
	toc     []*TocItem
	caps    Capability

	ids      map[string]map[string]int
	sections map[string]int

	runesOnce sync.Once
	runes     []rune
}

func (d *Document) Title() string            { return d.title }
func (d *Document) Author() string           { return d.author }
func (d *Document) Text() string             { return d.text }
func (d *Document) Length() int              { return d.length }
func (d *Document) TOC() []*TocItem          { return d.toc }
func (d *Document) Capabilities() Capability { return d.caps }

// Markers returns a copy of the markers, sorted by position.
func (d *Document) Markers() []Marker {
	out := make([]Marker, len(d.markers))
	copy(out, d.markers)
	return out
}

// Marker returns the marker at index i of the sorted list.
func (d *Document) Marker(i int) (Marker, bool) {
	if i < 0 || i >= len(d.markers) {
		return Marker{}, false
	}
	return d.markers[i], true
}

// NextMarker returns the index of the first marker of kind strictly after
// pos, or -1.
func (d *Document) NextMarker(pos int, kind MarkerKind) int {
	return d.markers.next(pos, kind)
}

// PreviousMarker returns the index of the closest marker of kind strictly
// before pos, or -1.
func (d *Document) PreviousMarker(pos int, kind MarkerKind) int {
	return d.markers.previous(pos, kind)
}

// CurrentMarker returns the index of the last marker of kind at or before
// pos, or -1. It answers "which section/page is pos in".
func (d *Document) CurrentMarker(pos int, kind MarkerKind) int {
	return d.markers.current(pos, kind)
}

// CountByKind returns how many markers of kind exist.
func (d *Document) CountByKind(kind MarkerKind) int {
	return d.markers.count(kind)
}

// NthPosition returns the position of the index-th marker of kind, or -1.
func (d *Document) NthPosition(kind MarkerKind, index int) int {
	return d.markers.nthPosition(kind, index)
}

// HeadingMarkers returns all heading markers, or only those of level when
// level is 1..6.
func (d *Document) HeadingMarkers(level int) []Marker {
	return d.markers.headings(level)
}

// IDPosition looks up the position recorded for an element id in file.
func (d *Document) IDPosition(file, id string) (int, bool) {
	pos, ok := d.ids[file][id]
	return pos, ok
}

// SectionPosition returns where the content of file begins.
func (d *Document) SectionPosition(file string) (int, bool) {
	pos, ok := d.sections[file]
	return pos, ok
}

func (d *Document) runeText() []rune {
	d.runesOnce.Do(func() {
		d.runes = []rune(d.text)
	})
	return d.runes
}

// Slice returns the characters in [start, end), clamped to the text.
func (d *Document) Slice(start, end int) string {
	r := d.runeText()
	if start < 0 {
		start = 0
	}
	if end > len(r) {
		end = len(r)
	}
	if start >= end {
		return ""
	}
	return string(r[start:end])
}

// LineAt returns the full line containing pos, without its newline.
func (d *Document) LineAt(pos int) string {
	r := d.runeText()
	if pos < 0 || pos >= len(r) {
		return ""
	}
	start := pos
	for start > 0 && r[start-1] != '\n' {
		start--
	}
	end := pos
	for end < len(r) && r[end] != '\n' {
		end++
	}
	return string(r[start:end])
}

// fileAt returns the source file whose section contains pos; "" for single
// file documents.
func (d *Document) fileAt(pos int) string {
	if i := d.markers.current(pos, KindSectionBreak); i >= 0 {
		return d.markers[i].Reference
	}
	return ""
}

// ResolveLink maps an internal hyperlink reference to a character offset.
// Relative file references are resolved against the file containing from.
// It returns -1 for external links and for targets that cannot be found.
func (d *Document) ResolveLink(href string, from int) int {
	href = strings.TrimSpace(href)
	if href == "" {
		return -1
	}
	u, err := url.Parse(href)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return -1
	}
	file, frag := u.Path, u.Fragment

	current := d.fileAt(from)
	if file == "" {
		file = current
	} else {
		file = JoinHref(current, file)
	}

	if frag != "" {
		if pos, ok := d.IDPosition(file, frag); ok {
			return pos
		}
	}
	if pos, ok := d.SectionPosition(file); ok {
		return pos
	}
	return -1
}

// JoinHref resolves ref relative to the directory of base, the way archive
// member paths are resolved inside EPUB and CHM containers.
func JoinHref(base, ref string) string {
	if ref == "" {
		return base
	}
	if strings.HasPrefix(ref, "/") {
		return strings.TrimPrefix(path.Clean(ref), "/")
	}
	dir := path.Dir(base)
	if base == "" || dir == "." {
		return path.Clean(ref)
	}
	return path.Clean(path.Join(dir, ref))
}
