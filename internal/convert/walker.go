// Package convert turns markup trees into flat text and markers. It holds the
// offset tracker, the tree walker shared by every markup format and the
// primitives procedural adapters (PDF, slides) use to emit lines directly.
package convert

import (
	"bytes"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/docread/internal/doctree"
	"github.com/dgallion1/docread/internal/textnorm"
)

// Options controls a single Walk.
type Options struct {
	// File namespaces the ids recorded during the walk; "" for single-file
	// documents, the archive member path for EPUB and CHM.
	File string
	// StartInBody emits text from the root instead of waiting for <body>.
	StartInBody bool
	// KeepCodeMarkup renders elements nested in <pre><code> as their raw
	// markup instead of extracting their text. Used for Markdown sources.
	KeepCodeMarkup bool
}

type listStyle struct {
	ordered bool
	next    int
}

// Walker converts markup trees into a doctree.Buffer. One Walker is used per
// document; each Walk call converts one fragment.
type Walker struct {
	t    tracker
	opts Options

	inBody    bool
	inCode    int
	listLevel int
	lists     []listStyle
}

// NewWalker returns a Walker writing into buf.
func NewWalker(buf *doctree.Buffer) *Walker {
	return &Walker{t: tracker{buf: buf}}
}

// Buffer returns the buffer the walker writes into.
func (w *Walker) Buffer() *doctree.Buffer {
	return w.t.buf
}

// Position returns the character offset at which the next text will land.
func (w *Walker) Position() int {
	return w.t.position()
}

// Walk converts the tree rooted at root and ends the last line.
func (w *Walker) Walk(root *html.Node, opts Options) {
	w.opts = opts
	w.inBody = opts.StartInBody
	w.inCode = 0
	w.listLevel = 0
	w.lists = w.lists[:0]
	w.t.preserve = 0

	w.walk(root)
	w.t.flush(true)
}

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"caption": true, "dd": true, "div": true, "dl": true, "dt": true,
	"figcaption": true, "figure": true, "footer": true, "h1": true,
	"h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"header": true, "hr": true, "li": true, "main": true, "nav": true,
	"ol": true, "p": true, "pre": true, "section": true, "table": true,
	"tbody": true, "td": true, "tfoot": true, "th": true, "thead": true,
	"tr": true, "ul": true,
}

var hiddenTags = map[string]bool{
	"script": true, "style": true, "template": true,
}

// IsBlock reports whether tag forces a paragraph break.
func IsBlock(tag string) bool {
	return blockTags[tag]
}

// tagName lowercases and strips any namespace prefix.
func tagName(n *html.Node) string {
	name := n.Data
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}

// Attr returns the value of the attribute named key, ignoring any
// namespace prefix on the attribute.
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		k := a.Key
		if i := strings.LastIndexByte(k, ':'); i >= 0 {
			k = k[i+1:]
		}
		if strings.EqualFold(k, key) {
			return a.Val
		}
	}
	return ""
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

func (w *Walker) walk(n *html.Node) {
	switch n.Type {
	case html.DocumentNode:
		w.walkChildren(n)
	case html.ElementNode:
		w.element(n)
	case html.TextNode:
		w.text(n.Data)
	}
}

func (w *Walker) walkChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
}

func (w *Walker) element(n *html.Node) {
	tag := tagName(n)
	if hiddenTags[tag] {
		return
	}
	if w.opts.KeepCodeMarkup && w.inCode > 0 && w.t.preserve > 0 {
		var raw bytes.Buffer
		if err := html.Render(&raw, n); err == nil {
			w.text(raw.String())
		}
		return
	}
	if tag == "a" && Attr(n, "href") != "" {
		w.link(n)
		return
	}

	w.enter(n, tag)
	w.captureID(n)
	w.walkChildren(n)
	w.exit(tag)
}

func (w *Walker) enter(n *html.Node, tag string) {
	switch tag {
	case "body":
		w.inBody = true
	case "pre":
		w.t.flush(false)
		w.t.preserve++
	case "code":
		w.inCode++
	case "br":
		if w.t.preserve > 0 {
			w.t.commitPreserved()
		} else {
			w.t.flush(false)
		}
	case "ul", "ol":
		w.enterList(n, tag == "ol")
	case "li":
		w.t.flush(true)
		w.listItem(n)
	case "table":
		w.t.flush(false)
		if w.inBody {
			w.t.buf.Add(doctree.Marker{
				Position: w.t.position(),
				Kind:     doctree.KindTable,
				Text:     textnorm.Clean(innerText(n, false)),
			})
		}
	default:
		if level := headingLevel(tag); level > 0 {
			w.t.flush(true)
			if !w.inBody {
				return
			}
			if text := textnorm.Clean(innerText(n, false)); text != "" {
				w.t.buf.Add(doctree.Marker{
					Position: w.t.position(),
					Kind:     doctree.HeadingKind(level),
					Text:     text,
					Level:    level,
				})
			}
			return
		}
		if blockTags[tag] {
			w.t.flush(false)
		}
	}
}

func (w *Walker) exit(tag string) {
	switch {
	case tag == "li" || tag == "ul" || tag == "ol":
		// A bullet with nothing after it ends with its item.
		w.t.flush(true)
	case blockTags[tag]:
		w.t.flush(false)
	}
	switch tag {
	case "pre":
		if w.t.preserve > 0 {
			w.t.preserve--
		}
	case "code":
		if w.inCode > 0 {
			w.inCode--
		}
	case "ul", "ol":
		if n := len(w.lists); n > 0 {
			w.lists = w.lists[:n-1]
		}
		if w.listLevel > 0 {
			w.listLevel--
		}
	}
}

func (w *Walker) enterList(n *html.Node, ordered bool) {
	w.listLevel++
	style := listStyle{ordered: ordered, next: 1}
	if ordered {
		if start, err := strconv.Atoi(strings.TrimSpace(Attr(n, "start"))); err == nil {
			style.next = start
		}
	}
	w.lists = append(w.lists, style)

	items := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && tagName(c) == "li" {
			items++
		}
	}
	if items == 0 {
		return
	}
	w.t.flush(true)
	if w.inBody {
		w.t.buf.Add(doctree.Marker{
			Position:  w.t.position(),
			Kind:      doctree.KindList,
			Level:     w.listLevel,
			ItemCount: items,
		})
	}
}

// Bullet returns the glyph used for unordered items at a nesting level.
func Bullet(level int) string {
	switch level {
	case 1:
		return "•"
	case 2:
		return "◦"
	default:
		return "-"
	}
}

func (w *Walker) listItem(n *html.Node) {
	level := w.listLevel
	if level < 1 {
		level = 1
	}
	if w.inBody {
		w.t.buf.Add(doctree.Marker{
			Position: w.t.position(),
			Kind:     doctree.KindListItem,
			Text:     textnorm.Clean(innerText(n, true)),
			Level:    level,
		})
	}

	var bullet string
	if k := len(w.lists); k > 0 && w.lists[k-1].ordered {
		bullet = strconv.Itoa(w.lists[k-1].next) + ". "
		w.lists[k-1].next++
	} else {
		bullet = Bullet(level) + " "
	}
	w.t.appendBullet(strings.Repeat("  ", level-1) + bullet)
}

// link emits the anchor's text once, as a unit, so nested inline elements
// cannot emit it twice. Anchors without href are walked like any element.
func (w *Walker) link(n *html.Node) {
	w.captureID(n)
	if !w.inBody {
		return
	}
	raw := textnorm.RemoveSoftHyphens(innerText(n, false))
	href := Attr(n, "href")

	if w.t.preserve > 0 {
		if raw == "" {
			return
		}
		w.t.buf.Add(doctree.Marker{
			Position:  w.t.position(),
			Kind:      doctree.KindLink,
			Text:      textnorm.Clean(raw),
			Reference: href,
		})
		w.text(raw)
		return
	}

	w.inlineLink(textnorm.CollapseWhitespace(raw), href)
}

// inlineLink writes collapsed link text with a Link marker at its first
// character. Surrounding spaces stay outside the marked span.
func (w *Walker) inlineLink(collapsed, href string) {
	label := textnorm.Trim(collapsed)
	if label == "" {
		return
	}
	if strings.HasPrefix(collapsed, " ") {
		w.t.appendText(" ")
	}
	w.t.buf.Add(doctree.Marker{
		Position:  w.t.position(),
		Kind:      doctree.KindLink,
		Text:      label,
		Reference: href,
	})
	w.t.appendText(label)
	if strings.HasSuffix(collapsed, " ") {
		w.t.appendText(" ")
	}
}

func (w *Walker) captureID(n *html.Node) {
	if !w.inBody {
		return
	}
	pos := w.t.position()
	if id := Attr(n, "id"); id != "" {
		w.t.buf.SetID(w.opts.File, id, pos)
	}
	if tagName(n) == "a" {
		if name := Attr(n, "name"); name != "" {
			w.t.buf.SetID(w.opts.File, name, pos)
		}
	}
}

func (w *Walker) text(s string) {
	if !w.inBody {
		return
	}
	s = textnorm.RemoveSoftHyphens(s)
	if w.t.preserve == 0 {
		w.t.appendText(s)
		return
	}
	for i, part := range strings.Split(s, "\n") {
		if i > 0 {
			w.t.commitPreserved()
		}
		w.t.appendRaw(strings.TrimSuffix(part, "\r"))
	}
}

// innerText concatenates the text below n, skipping hidden elements. With
// skipLists set, nested lists are left out so list items report only their
// own text.
func innerText(n *html.Node, skipLists bool) string {
	var sb strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			tag := tagName(n)
			if hiddenTags[tag] {
				return
			}
			if skipLists && (tag == "ul" || tag == "ol") {
				return
			}
			if tag == "br" || blockTags[tag] {
				sb.WriteByte(' ')
			}
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return sb.String()
}

// InnerText returns the cleaned text content of n.
func InnerText(n *html.Node) string {
	return textnorm.Clean(innerText(n, false))
}

// Line appends text as one normalized line. Blank lines are dropped.
func (w *Walker) Line(text string) {
	w.t.appendText(text)
	w.t.flush(false)
}

// Text appends inline text to the current line.
func (w *Walker) Text(s string) {
	w.t.appendText(textnorm.RemoveSoftHyphens(s))
}

// Link appends label to the current line and marks it as a link to href.
func (w *Walker) Link(label, href string) {
	w.inlineLink(textnorm.CollapseWhitespace(textnorm.RemoveSoftHyphens(label)), href)
}

// EndLine ends the current line, keeping a pending bullet.
func (w *Walker) EndLine() {
	w.t.flush(false)
}

// Heading ends the current line and appends text as a heading of level.
func (w *Walker) Heading(level int, text string) {
	w.t.flush(true)
	text = textnorm.Clean(text)
	if text == "" {
		return
	}
	w.t.buf.Add(doctree.Marker{
		Position: w.t.position(),
		Kind:     doctree.HeadingKind(level),
		Text:     text,
	})
	w.Line(text)
}

// Break ends the current line and places a marker of kind there. It
// returns the marker position.
func (w *Walker) Break(kind doctree.MarkerKind, text, ref string) int {
	w.t.flush(true)
	pos := w.t.position()
	w.t.buf.Add(doctree.Marker{Position: pos, Kind: kind, Text: text, Reference: ref})
	return pos
}

// Section ends the current line and starts the content of file.
func (w *Walker) Section(file string) int {
	w.t.flush(true)
	return w.t.buf.BeginSection(file)
}

// Flush ends the current line.
func (w *Walker) Flush() {
	w.t.flush(true)
}
