package parser

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"golang.org/x/net/html"

	"github.com/dgallion1/docread/internal/convert"
	"github.com/dgallion1/docread/internal/doctree"
	"github.com/dgallion1/docread/internal/textnorm"
	"github.com/dgallion1/docread/internal/toc"
)

// FB2Adapter handles FictionBook files. Every <body> is converted in order,
// so note bodies follow the main text; section titles become headings one
// level deeper per nested section.
type FB2Adapter struct{}

var errNoBody = errors.New("no body element")

func (a *FB2Adapter) Load(path, _ string) (*doctree.Document, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := convert.ParseXML(bytes.NewReader(data), false)
	if err != nil {
		return nil, newError(CodeMalformedMarkup, path, err)
	}

	bodies := convert.Elements(doc, "body")
	if len(bodies) == 0 {
		return nil, newError(CodeMalformedMarkup, path, errNoBody)
	}

	buf := doctree.NewBuffer()
	w := convert.NewWalker(buf)
	for _, body := range bodies {
		w.Walk(convert.FromXML(body, fb2Map), convert.Options{StartInBody: true})
	}

	title, author := fb2TitleInfo(doc)
	if title == "" {
		title = baseTitle(path)
	}
	return buf.Document(doctree.Meta{
		Title:        title,
		Author:       author,
		Capabilities: doctree.CapTOC,
		TOC:          toc.FromHeadings(buf.HeadingMarkers(0)),
	}), nil
}

// sectionDepth counts the sections enclosing el.
func sectionDepth(el *xmlquery.Node) int {
	depth := 0
	for p := el.Parent; p != nil; p = p.Parent {
		if p.Type == xmlquery.ElementNode && p.Data == "section" {
			depth++
		}
	}
	return depth
}

func fb2Map(el *xmlquery.Node) convert.Element {
	switch el.Data {
	case "section":
		return convert.Element{Tag: "section", Attrs: idAttrs(el)}
	case "title":
		level := sectionDepth(el)
		if level < 1 {
			level = 1
		}
		if level > 6 {
			level = 6
		}
		return convert.Element{Tag: "h" + strconv.Itoa(level)}
	case "p", "v", "subtitle", "text-author":
		return convert.Element{Tag: "p", Attrs: idAttrs(el)}
	case "poem", "stanza":
		return convert.Element{Tag: "div"}
	case "epigraph", "cite", "annotation":
		return convert.Element{Tag: "blockquote"}
	case "empty-line":
		return convert.Element{Tag: "br"}
	case "a":
		return convert.Element{Tag: "a", Attrs: []html.Attribute{{Key: "href", Val: convert.XMLAttr(el, "href")}}}
	case "table", "tr", "td", "th":
		return convert.Element{Tag: el.Data}
	case "image", "binary", "description", "stylesheet":
		return convert.Element{Skip: true}
	}
	return convert.Element{}
}

// fb2TitleInfo reads the book title and first author from
// description/title-info.
func fb2TitleInfo(doc *xmlquery.Node) (title, author string) {
	infos := convert.Elements(doc, "title-info")
	if len(infos) == 0 {
		return "", ""
	}
	info := infos[0]
	if els := convert.Elements(info, "book-title"); len(els) > 0 {
		title = textnorm.Clean(els[0].InnerText())
	}
	if authors := convert.Elements(info, "author"); len(authors) > 0 {
		var parts []string
		for _, name := range []string{"first-name", "middle-name", "last-name"} {
			if els := convert.Elements(authors[0], name); len(els) > 0 {
				if s := textnorm.Clean(els[0].InnerText()); s != "" {
					parts = append(parts, s)
				}
			}
		}
		if len(parts) == 0 {
			if els := convert.Elements(authors[0], "nickname"); len(els) > 0 {
				parts = append(parts, textnorm.Clean(els[0].InnerText()))
			}
		}
		author = strings.Join(parts, " ")
	}
	return title, author
}
