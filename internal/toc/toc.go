// Package toc builds table-of-contents trees and resolves their entries to
// character offsets in a converted document.
package toc

import (
	"net/url"
	"strings"

	"github.com/dgallion1/docread/internal/doctree"
)

// MaxDepth bounds the nesting accepted from flat, depth-numbered sources.
const MaxDepth = 32

type node struct {
	name     string
	ref      string
	offset   int
	children []int
}

// Builder accumulates entries in an arena. Parents are tracked by arena
// index, per depth, so entries given as (depth, name) pairs nest correctly.
type Builder struct {
	nodes []node
	roots []int
	stack [MaxDepth + 2]int // stack[d] = parent index for depth d, -1 = unset
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	b := &Builder{}
	for i := range b.stack {
		b.stack[i] = -1
	}
	return b
}

// Len returns the number of accepted entries.
func (b *Builder) Len() int {
	return len(b.nodes)
}

// Add appends an unresolved entry at depth (0 = top level). It reports
// false when depth is out of range and the entry was skipped.
func (b *Builder) Add(depth int, name, ref string) bool {
	return b.add(depth, name, ref, -1)
}

// AddResolved appends an entry whose offset is already known.
func (b *Builder) AddResolved(depth int, name string, offset int) bool {
	return b.add(depth, name, "", offset)
}

func (b *Builder) add(depth int, name, ref string, offset int) bool {
	if depth < 0 || depth > MaxDepth {
		return false
	}
	idx := len(b.nodes)
	b.nodes = append(b.nodes, node{name: name, ref: ref, offset: offset})

	parent := -1
	for d := depth; d > 0; d-- {
		if p := b.stack[d]; p >= 0 {
			parent = p
			break
		}
	}
	if parent < 0 {
		b.roots = append(b.roots, idx)
	} else {
		b.nodes[parent].children = append(b.nodes[parent].children, idx)
	}

	b.stack[depth+1] = idx
	for d := depth + 2; d < len(b.stack); d++ {
		b.stack[d] = -1
	}
	return true
}

// Resolve fills in the offset of every unresolved entry that carries a
// reference.
func (b *Builder) Resolve(fn func(ref string) int) {
	for i := range b.nodes {
		n := &b.nodes[i]
		if n.offset < 0 && n.ref != "" {
			n.offset = fn(n.ref)
		}
	}
}

// Tree materializes the arena into TocItem values.
func (b *Builder) Tree() []*doctree.TocItem {
	var build func(idx int) *doctree.TocItem
	build = func(idx int) *doctree.TocItem {
		n := b.nodes[idx]
		item := &doctree.TocItem{Name: n.name, Reference: n.ref, Offset: n.offset}
		for _, c := range n.children {
			item.Children = append(item.Children, build(c))
		}
		return item
	}
	items := make([]*doctree.TocItem, 0, len(b.roots))
	for _, r := range b.roots {
		items = append(items, build(r))
	}
	return items
}

// Positions is the lookup surface the resolver needs. doctree.Buffer
// implements it.
type Positions interface {
	IDPosition(file, id string) (int, bool)
	SectionPosition(file string) (int, bool)
	NthPosition(kind doctree.MarkerKind, index int) int
}

// HrefResolver returns a function mapping hrefs relative to baseFile to
// offsets: the fragment's id position when known, else the position of the
// target file's section, else -1.
func HrefResolver(p Positions, baseFile string) func(string) int {
	return func(href string) int {
		return ResolveHref(p, baseFile, href)
	}
}

// ResolveHref resolves a single href relative to baseFile.
func ResolveHref(p Positions, baseFile, href string) int {
	href = strings.TrimSpace(href)
	if href == "" {
		return -1
	}
	u, err := url.Parse(href)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return -1
	}
	file := baseFile
	if u.Path != "" {
		file = doctree.JoinHref(baseFile, u.Path)
	}
	if u.Fragment != "" {
		if pos, ok := p.IDPosition(file, u.Fragment); ok {
			return pos
		}
	}
	if pos, ok := p.SectionPosition(file); ok {
		return pos
	}
	return -1
}

// PageOffset resolves a 0-based page index to its PageBreak marker, or -1
// when the index is out of range.
func PageOffset(p Positions, page int) int {
	if page < 0 {
		return -1
	}
	return p.NthPosition(doctree.KindPageBreak, page)
}

// FromHeadings builds a TOC from heading markers; each heading nests under
// the closest preceding heading of a lower level.
func FromHeadings(headings []doctree.Marker) []*doctree.TocItem {
	b := NewBuilder()
	for _, h := range headings {
		b.AddResolved(h.Level-1, h.Text, h.Position)
	}
	return b.Tree()
}
