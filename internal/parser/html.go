package parser

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"github.com/dgallion1/docread/internal/convert"
	"github.com/dgallion1/docread/internal/doctree"
	"github.com/dgallion1/docread/internal/toc"
)

// HTMLAdapter handles HTML and XHTML files. XHTML is parsed as XML so
// documents that are not well formed are rejected.
type HTMLAdapter struct{}

func (a *HTMLAdapter) Load(path, _ string) (*doctree.Document, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	root, err := parseMarkup(data, strings.EqualFold(filepath.Ext(path), ".xhtml"))
	if err != nil {
		return nil, newError(CodeMalformedMarkup, path, err)
	}

	buf := doctree.NewBuffer()
	convert.NewWalker(buf).Walk(root, convert.Options{})

	title, author := headInfo(root)
	if title == "" {
		title = baseTitle(path)
	}
	return buf.Document(doctree.Meta{
		Title:        title,
		Author:       author,
		Capabilities: doctree.CapTOC | doctree.CapLists,
		TOC:          toc.FromHeadings(buf.HeadingMarkers(0)),
	}), nil
}

// parseMarkup parses HTML, or XHTML through the strict XML parser.
func parseMarkup(data []byte, xhtml bool) (*html.Node, error) {
	if xhtml {
		doc, err := convert.ParseXML(bytes.NewReader(data), true)
		if err != nil {
			return nil, err
		}
		return convert.FromXML(doc, nil), nil
	}
	return html.Parse(bytes.NewReader(data))
}

// headInfo returns the document title and the author meta tag.
func headInfo(root *html.Node) (title, author string) {
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "title":
				if title == "" {
					title = convert.InnerText(n)
				}
				return
			case "meta":
				name := strings.ToLower(convert.Attr(n, "name"))
				if (name == "author" || name == "dc.creator") && author == "" {
					author = strings.TrimSpace(convert.Attr(n, "content"))
				}
			case "body":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return title, author
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if isNotExist(err) {
			return nil, newError(CodeNotFound, path, err)
		}
		return nil, newError(CodeInternal, path, err)
	}
	return data, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
