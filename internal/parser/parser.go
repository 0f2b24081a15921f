// Package parser holds one adapter per source format. Every adapter turns a
// file into a doctree.Document through the convert primitives; the Registry
// picks the adapter for a path.
package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docread/internal/doctree"
)

// Adapter loads one source format. password is ignored by formats that
// cannot be encrypted.
type Adapter interface {
	Load(path, password string) (*doctree.Document, error)
}

// Format identifies a source format.
type Format int

const (
	FormatUnknown Format = iota
	FormatText
	FormatMarkdown
	FormatHTML
	FormatEPUB
	FormatPDF
	FormatDOCX
	FormatPPTX
	FormatODT
	FormatODP
	FormatFB2
	FormatCHM
	FormatCSV
)

var formatNames = map[Format]string{
	FormatUnknown:  "unknown",
	FormatText:     "text",
	FormatMarkdown: "markdown",
	FormatHTML:     "html",
	FormatEPUB:     "epub",
	FormatPDF:      "pdf",
	FormatDOCX:     "docx",
	FormatPPTX:     "pptx",
	FormatODT:      "odt",
	FormatODP:      "odp",
	FormatFB2:      "fb2",
	FormatCHM:      "chm",
	FormatCSV:      "csv",
}

func (f Format) String() string {
	if s, ok := formatNames[f]; ok {
		return s
	}
	return fmt.Sprintf("format(%d)", int(f))
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

var extensions = map[string]Format{
	".txt":      FormatText,
	".text":     FormatText,
	".md":       FormatMarkdown,
	".markdown": FormatMarkdown,
	".html":     FormatHTML,
	".htm":      FormatHTML,
	".xhtml":    FormatHTML,
	".epub":     FormatEPUB,
	".pdf":      FormatPDF,
	".docx":     FormatDOCX,
	".pptx":     FormatPPTX,
	".odt":      FormatODT,
	".odp":      FormatODP,
	".fb2":      FormatFB2,
	".chm":      FormatCHM,
	".csv":      FormatCSV,
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	_, ok := extensions[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// Options configures adapters that depend on the environment.
type Options struct {
	// CHMExtractor is the command used to unpack compiled HTML help files.
	// It is invoked as: <cmd> x -o<dir> <file>.
	CHMExtractor string
	// Pdftotext is the command PDF pages are re-read with when the built-in
	// extractor fails. Empty disables the fallback.
	Pdftotext string
}

// Registry maps formats to adapters.
type Registry map[Format]Adapter

// BuildRegistry constructs every adapter. It is called once at startup and
// the result passed to whatever needs to load documents.
func BuildRegistry(log *slog.Logger, opts Options) Registry {
	log = orDiscard(log)
	return Registry{
		FormatText:     &TextAdapter{},
		FormatMarkdown: &MarkdownAdapter{},
		FormatHTML:     &HTMLAdapter{},
		FormatEPUB:     &EPUBAdapter{Log: log},
		FormatPDF:      &PDFAdapter{Log: log, Pdftotext: opts.Pdftotext},
		FormatDOCX:     &DOCXAdapter{},
		FormatPPTX:     &PPTXAdapter{Log: log},
		FormatODT:      &ODFAdapter{Log: log},
		FormatODP:      &ODFAdapter{Log: log, Presentation: true},
		FormatFB2:      &FB2Adapter{},
		FormatCHM:      &CHMAdapter{Log: log, Extractor: opts.CHMExtractor},
		FormatCSV:      &CSVAdapter{},
	}
}

// For returns the adapter for path.
func (r Registry) For(path string) (Adapter, Format, error) {
	f, err := DetectFormat(path)
	if err != nil {
		return nil, FormatUnknown, err
	}
	a, ok := r[f]
	if !ok {
		return nil, f, newError(CodeUnsupported, path, fmt.Errorf("no adapter for %s", f))
	}
	return a, f, nil
}

// Load detects the format of path and loads it.
func (r Registry) Load(path, password string) (*doctree.Document, error) {
	a, _, err := r.For(path)
	if err != nil {
		return nil, err
	}
	return a.Load(path, password)
}

// DetectFormat decides the format of path from its extension, falling back
// to the leading bytes of the file.
func DetectFormat(path string) (Format, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FormatUnknown, newError(CodeNotFound, path, err)
	}
	if info.IsDir() {
		// A decompiled help file.
		return FormatCHM, nil
	}
	if f, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return f, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return FormatUnknown, newError(CodeNotFound, path, err)
	}
	defer file.Close()
	head := make([]byte, 1024)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FormatUnknown, newError(CodeInternal, path, err)
	}
	head = head[:n]

	switch {
	case bytes.HasPrefix(head, []byte("%PDF-")):
		return FormatPDF, nil
	case bytes.HasPrefix(head, []byte("ITSF")):
		return FormatCHM, nil
	case bytes.HasPrefix(head, []byte("PK\x03\x04")):
		return sniffZip(path)
	}
	lower := bytes.ToLower(head)
	switch {
	case bytes.Contains(head, []byte("<FictionBook")):
		return FormatFB2, nil
	case bytes.Contains(lower, []byte("<!doctype html")), bytes.Contains(lower, []byte("<html")):
		return FormatHTML, nil
	case utf8.Valid(head) || len(head) == 0:
		return FormatText, nil
	}
	return FormatUnknown, newError(CodeUnsupported, path, fmt.Errorf("unrecognized content"))
}

func sniffZip(path string) (Format, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return FormatUnknown, newError(CodeMalformedMarkup, path, err)
	}
	defer zr.Close()

	if data, err := readZipFile(&zr.Reader, "mimetype"); err == nil {
		switch strings.TrimSpace(string(data)) {
		case "application/epub+zip":
			return FormatEPUB, nil
		case "application/vnd.oasis.opendocument.text":
			return FormatODT, nil
		case "application/vnd.oasis.opendocument.presentation":
			return FormatODP, nil
		}
	}
	for _, f := range zr.File {
		switch f.Name {
		case "word/document.xml":
			return FormatDOCX, nil
		case "ppt/presentation.xml":
			return FormatPPTX, nil
		}
	}
	return FormatUnknown, newError(CodeUnsupported, path, fmt.Errorf("unrecognized zip container"))
}

func orDiscard(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return log
}

// baseTitle is the fallback title: the file name without its extension.
func baseTitle(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
