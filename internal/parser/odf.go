package parser

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"golang.org/x/net/html"

	"github.com/dgallion1/docread/internal/convert"
	"github.com/dgallion1/docread/internal/doctree"
	"github.com/dgallion1/docread/internal/textnorm"
	"github.com/dgallion1/docread/internal/toc"
)

// ODFAdapter handles OpenDocument text (ODT) and, with Presentation set,
// presentations (ODP). content.xml is mapped onto HTML tags and walked;
// presentations get a PageBreak per draw:page.
type ODFAdapter struct {
	Log          *slog.Logger
	Presentation bool
}

func (a *ODFAdapter) Load(path, _ string) (*doctree.Document, error) {
	zr, err := openZip(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	content, err := readZipXML(&zr.Reader, "content.xml")
	if err != nil {
		return nil, wrapErr(CodeMalformedMarkup, path, err)
	}

	buf := doctree.NewBuffer()
	w := convert.NewWalker(buf)
	meta := doctree.Meta{}
	if a.Presentation {
		meta.TOC = a.walkPages(w, content)
		meta.Capabilities = doctree.CapPages | doctree.CapTOC
	} else {
		w.Walk(convert.FromXML(content, odfMap), convert.Options{})
		meta.TOC = toc.FromHeadings(buf.HeadingMarkers(0))
		meta.Capabilities = doctree.CapTOC | doctree.CapLists
	}
	w.Flush()

	if doc, err := readZipXML(&zr.Reader, "meta.xml"); err == nil {
		meta.Title, meta.Author = odfMeta(doc)
	} else {
		orDiscard(a.Log).Warn("odf metadata unavailable", "path", path, "error", err)
	}
	if meta.Title == "" {
		meta.Title = baseTitle(path)
	}
	return buf.Document(meta), nil
}

func (a *ODFAdapter) walkPages(w *convert.Walker, content *xmlquery.Node) []*doctree.TocItem {
	b := toc.NewBuilder()
	for i, page := range convert.Elements(content, "page") {
		name := convert.XMLAttr(page, "name")
		pos := w.Break(doctree.KindPageBreak, strconv.Itoa(i+1), name)
		w.Walk(convert.FromXML(page, odfMap), convert.Options{StartInBody: true})

		title := presentationTitle(page)
		if title == "" {
			title = slideLabel(i)
		}
		b.AddResolved(0, title, pos)
	}
	return b.Tree()
}

func presentationTitle(page *xmlquery.Node) string {
	for _, frame := range convert.Elements(page, "frame") {
		if convert.XMLAttr(frame, "class") == "title" {
			return textnorm.Clean(frame.InnerText())
		}
	}
	return ""
}

// odfMap maps ODF text, table and drawing elements onto the HTML tags the
// walker understands.
func odfMap(el *xmlquery.Node) convert.Element {
	switch el.Data {
	case "body":
		return convert.Element{Tag: "body"}
	case "h":
		level, err := strconv.Atoi(convert.XMLAttr(el, "outline-level"))
		if err != nil || level < 1 {
			level = 1
		}
		if level > 6 {
			level = 6
		}
		return convert.Element{Tag: "h" + strconv.Itoa(level), Attrs: idAttrs(el)}
	case "p":
		return convert.Element{Tag: "p", Attrs: idAttrs(el)}
	case "list":
		return convert.Element{Tag: "ul"}
	case "list-item", "list-header":
		return convert.Element{Tag: "li"}
	case "line-break":
		return convert.Element{Tag: "br"}
	case "s":
		n, err := strconv.Atoi(convert.XMLAttr(el, "c"))
		if err != nil || n < 1 {
			n = 1
		}
		return convert.Element{Text: strings.Repeat(" ", n)}
	case "tab":
		return convert.Element{Text: "\t"}
	case "a":
		return convert.Element{Tag: "a", Attrs: []html.Attribute{{Key: "href", Val: convert.XMLAttr(el, "href")}}}
	case "bookmark", "bookmark-start", "reference-mark", "reference-mark-start":
		return convert.Element{Tag: "span", Attrs: []html.Attribute{{Key: "id", Val: convert.XMLAttr(el, "name")}}}
	case "table":
		return convert.Element{Tag: "table"}
	case "table-row":
		return convert.Element{Tag: "tr"}
	case "table-cell":
		return convert.Element{Tag: "td"}
	case "frame":
		return convert.Element{Tag: "div"}
	case "annotation", "tracked-changes", "sequence-decls", "notes",
		"automatic-styles", "styles", "font-face-decls", "scripts",
		"forms", "user-field-decls", "variable-decls":
		return convert.Element{Skip: true}
	}
	return convert.Element{}
}

func idAttrs(el *xmlquery.Node) []html.Attribute {
	if id := convert.XMLAttr(el, "id"); id != "" {
		return []html.Attribute{{Key: "id", Val: id}}
	}
	return nil
}

func odfMeta(doc *xmlquery.Node) (title, author string) {
	if els := convert.Elements(doc, "title"); len(els) > 0 {
		title = textnorm.Clean(els[0].InnerText())
	}
	for _, name := range []string{"creator", "initial-creator"} {
		if els := convert.Elements(doc, name); len(els) > 0 {
			if author = textnorm.Clean(els[0].InnerText()); author != "" {
				break
			}
		}
	}
	return title, author
}

