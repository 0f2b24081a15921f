package parser

import (
	"testing"
)

func TestTextAdapter_Load(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", "First line.\n\nSecond  line.", "First line.\n\nSecond  line.\n"},
		{"crlf", "a\r\nb\r\n", "a\nb\n"},
		{"utf8 bom", "\xEF\xBB\xBFhello\n", "hello\n"},
		{"latin1 fallback", "caf\xe9\n", "café\n"},
		{"windows-1252 quotes", "\x93quoted\x94\n", "“quoted”\n"},
		{"utf16 bom", "\xFF\xFEh\x00i\x00", "hi\n"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := (&TextAdapter{}).Load(writeFile(t, "notes.txt", tt.input), "")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if doc.Text() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, doc.Text())
			}
			if doc.Title() != "notes" {
				t.Errorf("expected title %q, got %q", "notes", doc.Title())
			}
		})
	}
}
