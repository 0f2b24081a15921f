// Package doctree defines the flattened document model: a text buffer, the
// positional markers laid over it and the table of contents pointing into it.
package doctree

import (
	"fmt"
	"strings"
)

// MarkerKind identifies what a Marker annotates.
type MarkerKind int

const (
	KindHeading1 MarkerKind = iota
	KindHeading2
	KindHeading3
	KindHeading4
	KindHeading5
	KindHeading6
	KindPageBreak
	KindSectionBreak
	KindTocItem
	KindLink
	KindTable
	KindList
	KindListItem
)

var kindNames = [...]string{
	KindHeading1:     "heading1",
	KindHeading2:     "heading2",
	KindHeading3:     "heading3",
	KindHeading4:     "heading4",
	KindHeading5:     "heading5",
	KindHeading6:     "heading6",
	KindPageBreak:    "page_break",
	KindSectionBreak: "section_break",
	KindTocItem:      "toc_item",
	KindLink:         "link",
	KindTable:        "table",
	KindList:         "list",
	KindListItem:     "list_item",
}

func (k MarkerKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText encodes the kind by name so JSON output stays readable.
func (k MarkerKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *MarkerKind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind maps a kind name ("heading2", "page_break", ...) back to its value.
// "heading" alone is accepted as heading1.
func ParseKind(s string) (MarkerKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	if s == "heading" {
		return KindHeading1, nil
	}
	for k, name := range kindNames {
		if name == s {
			return MarkerKind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown marker kind %q", s)
}

// IsHeading reports whether k is one of the six heading kinds.
func (k MarkerKind) IsHeading() bool {
	return k >= KindHeading1 && k <= KindHeading6
}

// HeadingKind returns the heading kind for a 1-based level, clamped to 1..6.
func HeadingKind(level int) MarkerKind {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	return KindHeading1 + MarkerKind(level-1)
}

// Marker is a typed annotation at a character offset of the document text.
type Marker struct {
	Position  int        `json:"position"`
	Kind      MarkerKind `json:"kind"`
	Text      string     `json:"text,omitempty"`
	Reference string     `json:"reference,omitempty"`
	Level     int        `json:"level,omitempty"`     // heading depth or list nesting depth
	ItemCount int        `json:"item_count,omitempty"` // List markers only
}

// TocItem is one node of the table of contents. Offset is -1 when the entry
// could not be resolved to a position in the text.
type TocItem struct {
	Name      string     `json:"name"`
	Reference string     `json:"reference,omitempty"`
	Offset    int        `json:"offset"`
	Children  []*TocItem `json:"children,omitempty"`
}

// Capability is a bitset of the navigation features a format supports.
type Capability uint8

const (
	CapSections Capability = 1 << iota
	CapTOC
	CapPages
	CapLists
)

// Has reports whether every bit of f is set in c.
func (c Capability) Has(f Capability) bool {
	return c&f == f
}

func (c Capability) String() string {
	var parts []string
	if c.Has(CapSections) {
		parts = append(parts, "sections")
	}
	if c.Has(CapTOC) {
		parts = append(parts, "toc")
	}
	if c.Has(CapPages) {
		parts = append(parts, "pages")
	}
	if c.Has(CapLists) {
		parts = append(parts, "lists")
	}
	return strings.Join(parts, ",")
}

// Meta carries everything about a document that is not text or markers.
type Meta struct {
	Title        string
	Author       string
	Capabilities Capability
	TOC          []*TocItem
}

// UnknownAuthor is used when a source carries no author metadata.
const UnknownAuthor = "Unknown"
