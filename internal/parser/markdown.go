package parser

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"

	"github.com/dgallion1/docread/internal/convert"
	"github.com/dgallion1/docread/internal/doctree"
	"github.com/dgallion1/docread/internal/toc"
)

// MarkdownAdapter renders Markdown to HTML with goldmark and walks the
// result like any HTML page. Raw markup inside code blocks is kept.
type MarkdownAdapter struct{}

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
)

func (a *MarkdownAdapter) Load(path, _ string) (*doctree.Document, error) {
	src, err := readFile(path)
	if err != nil {
		return nil, err
	}
	src = bytes.TrimPrefix(src, utf8BOM)

	var out bytes.Buffer
	if err := markdown.Convert(src, &out); err != nil {
		return nil, newError(CodeMalformedMarkup, path, fmt.Errorf("render markdown: %w", err))
	}
	root, err := html.Parse(&out)
	if err != nil {
		return nil, newError(CodeMalformedMarkup, path, err)
	}

	buf := doctree.NewBuffer()
	convert.NewWalker(buf).Walk(root, convert.Options{KeepCodeMarkup: true})

	title := baseTitle(path)
	if hs := buf.HeadingMarkers(1); len(hs) > 0 {
		title = hs[0].Text
	}
	return buf.Document(doctree.Meta{
		Title:        title,
		Capabilities: doctree.CapTOC | doctree.CapLists,
		TOC:          toc.FromHeadings(buf.HeadingMarkers(0)),
	}), nil
}
