package doctree

import (
	"strings"
	"unicode/utf8"
)

// Buffer is the append-only sink adapters write into while a document is
// being converted. It is not safe for concurrent use; Document freezes it.
type Buffer struct {
	text     strings.Builder
	length   int // characters, not bytes
	markers  markerList
	sorted   bool
	ids      map[string]map[string]int
	sections map[string]int
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		sorted:   true,
		ids:      make(map[string]map[string]int),
		sections: make(map[string]int),
	}
}

// Len returns the number of characters appended so far.
func (b *Buffer) Len() int {
	return b.length
}

// Append adds raw text.
func (b *Buffer) Append(s string) {
	b.text.WriteString(s)
	b.length += utf8.RuneCountInString(s)
}

// AppendLine adds s followed by a newline.
func (b *Buffer) AppendLine(s string) {
	b.Append(s)
	b.Append("\n")
}

// Text returns the text accumulated so far.
func (b *Buffer) Text() string {
	return b.text.String()
}

// Add inserts m. Heading markers with Level 0 get their level from the kind.
func (b *Buffer) Add(m Marker) {
	if m.Kind.IsHeading() && m.Level == 0 {
		m.Level = int(m.Kind-KindHeading1) + 1
	}
	if n := len(b.markers); n > 0 && b.markers[n-1].Position > m.Position {
		b.sorted = false
	}
	b.markers = append(b.markers, m)
}

// AddMarker is Add with positional arguments.
func (b *Buffer) AddMarker(pos int, kind MarkerKind, text, ref string, level int) {
	b.Add(Marker{Position: pos, Kind: kind, Text: text, Reference: ref, Level: level})
}

// Retract moves markers placed beyond end back to end. Writers call it when
// pending text that markers already point into is dropped.
func (b *Buffer) Retract(end int) {
	for i := len(b.markers) - 1; i >= 0; i-- {
		if b.markers[i].Position > end {
			b.markers[i].Position = end
		} else if b.sorted {
			break
		}
	}
}

// SetID records the position of an element id within file. The first
// occurrence of an id wins.
func (b *Buffer) SetID(file, id string, pos int) {
	if id == "" {
		return
	}
	m, ok := b.ids[file]
	if !ok {
		m = make(map[string]int)
		b.ids[file] = m
	}
	if _, dup := m[id]; !dup {
		m[id] = pos
	}
}

// BeginSection emits a SectionBreak marker for file at the current end of
// the text and remembers where file starts.
func (b *Buffer) BeginSection(file string) int {
	pos := b.length
	b.AddMarker(pos, KindSectionBreak, "", file, 0)
	if _, ok := b.sections[file]; !ok {
		b.sections[file] = pos
	}
	return pos
}

// SortMarkers stably orders the markers by position.
func (b *Buffer) SortMarkers() {
	if b.sorted {
		return
	}
	b.markers.sortStable()
	b.sorted = true
}

// Markers returns the markers in position order.
func (b *Buffer) Markers() []Marker {
	b.SortMarkers()
	return b.markers
}

// IDPosition looks up an element id recorded for file.
func (b *Buffer) IDPosition(file, id string) (int, bool) {
	pos, ok := b.ids[file][id]
	return pos, ok
}

// SectionPosition returns where file's SectionBreak was emitted.
func (b *Buffer) SectionPosition(file string) (int, bool) {
	pos, ok := b.sections[file]
	return pos, ok
}

// NthPosition returns the position of the index-th (0-based) marker of kind,
// or -1.
func (b *Buffer) NthPosition(kind MarkerKind, index int) int {
	b.SortMarkers()
	return b.markers.nthPosition(kind, index)
}

// HeadingMarkers returns heading markers, optionally of one level only.
func (b *Buffer) HeadingMarkers(level int) []Marker {
	b.SortMarkers()
	return b.markers.headings(level)
}

// Document freezes the buffer into an immutable Document. The buffer must
// not be used afterwards. Marker positions are kept as given; writers are
// responsible for keeping them within [0, Len()].
func (b *Buffer) Document(meta Meta) *Document {
	b.SortMarkers()
	author := meta.Author
	if author == "" {
		author = UnknownAuthor
	}
	return &Document{
		title:    meta.Title,
		author:   author,
		text:     b.text.String(),
		length:   b.length,
		markers:  b.markers,
		toc:      meta.TOC,
		caps:     meta.Capabilities,
		ids:      b.ids,
		sections: b.sections,
	}
}
