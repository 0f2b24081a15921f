package parser

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	"github.com/dgallion1/docread/internal/doctree"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextAdapter handles plain text files. Lines are kept as they are; only
// line endings are normalized.
type TextAdapter struct{}

func (a *TextAdapter) Load(path, _ string) (*doctree.Document, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	text := decodeText(data)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	buf := doctree.NewBuffer()
	buf.Append(text)
	if text != "" && !strings.HasSuffix(text, "\n") {
		buf.Append("\n")
	}
	return buf.Document(doctree.Meta{Title: baseTitle(path)}), nil
}

// decodeText guesses the encoding of data: UTF-16 when a byte order mark
// says so, then UTF-8, then Windows-1252, then Latin-1. The first decoding
// that succeeds with non-empty output wins. This is a heuristic; single-byte
// encodings accept almost any input.
func decodeText(data []byte) string {
	if bytes.HasPrefix(data, []byte{0xFF, 0xFE}) || bytes.HasPrefix(data, []byte{0xFE, 0xFF}) {
		dec := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewDecoder()
		if out, err := dec.Bytes(data); err == nil {
			return string(out)
		}
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data)
	}
	for _, enc := range []encoding.Encoding{charmap.Windows1252, charmap.ISO8859_1} {
		out, err := enc.NewDecoder().Bytes(data)
		if err == nil && len(out) > 0 {
			return string(out)
		}
	}
	return strings.ToValidUTF8(string(data), "�")
}
