package convert

import (
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docread/internal/doctree"
	"github.com/dgallion1/docread/internal/textnorm"
)

// tracker owns the line in progress and keeps every reported position
// consistent with the text that will eventually be committed.
//
// In normalized mode text is collapsed as it is appended and never starts
// with a space, so committing only has to drop a trailing space; no position
// handed out before the commit moves.
type tracker struct {
	buf       *doctree.Buffer
	line      strings.Builder
	lineLen   int // characters in line
	lastSpace bool
	preserve  int // depth of nested preformatted regions
	bulletEnd bool
}

func (t *tracker) position() int {
	return t.buf.Len() + t.lineLen
}

func (t *tracker) write(s string) {
	t.line.WriteString(s)
	t.lineLen += utf8.RuneCountInString(s)
	t.lastSpace = strings.HasSuffix(s, " ")
}

func (t *tracker) reset() {
	t.line.Reset()
	t.lineLen = 0
	t.lastSpace = false
	t.bulletEnd = false
}

// appendText adds collapsed text to the line.
func (t *tracker) appendText(s string) {
	s = textnorm.CollapseWhitespace(s)
	if t.lineLen == 0 || t.lastSpace {
		s = strings.TrimLeft(s, " ")
	}
	if s == "" {
		return
	}
	t.write(s)
	t.bulletEnd = false
}

// appendRaw adds s verbatim; used inside preformatted regions.
func (t *tracker) appendRaw(s string) {
	if s == "" {
		return
	}
	t.write(s)
	t.bulletEnd = false
}

// appendBullet writes a list prefix. Until real content follows, the line
// counts as holding only a bullet.
func (t *tracker) appendBullet(s string) {
	t.write(s)
	t.bulletEnd = true
}

// flush ends the current line. A line holding nothing but a bullet stays
// pending, unless discardBullet is set, in which case the bullet is dropped.
func (t *tracker) flush(discardBullet bool) {
	if t.bulletEnd {
		if discardBullet {
			t.reset()
			t.buf.Retract(t.buf.Len())
		}
		return
	}
	if t.lineLen == 0 {
		return
	}
	if t.preserve > 0 {
		t.commitPreserved()
		return
	}
	line := strings.TrimRight(t.line.String(), " ")
	t.reset()
	if strings.TrimSpace(line) == "" {
		return
	}
	t.buf.AppendLine(line)
}

// commitPreserved emits the line verbatim, even when it is empty, so blank
// lines inside code blocks survive.
func (t *tracker) commitPreserved() {
	line := strings.TrimRight(t.line.String(), "\r\n")
	t.reset()
	t.buf.AppendLine(line)
}
