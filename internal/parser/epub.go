package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/taylorskalyo/goreader/epub"
	"golang.org/x/net/html"

	"github.com/dgallion1/docread/internal/convert"
	"github.com/dgallion1/docread/internal/doctree"
	"github.com/dgallion1/docread/internal/textnorm"
	"github.com/dgallion1/docread/internal/toc"
)

// EPUBAdapter reads the package with goreader, converts every spine item in
// order and builds the TOC from the EPUB 3 nav document or the EPUB 2 NCX.
type EPUBAdapter struct {
	Log *slog.Logger
}

const ncxMediaType = "application/x-dtbncx+xml"

var navItemExpr = xpath.MustCompile(`//*[local-name()='manifest']/*[local-name()='item'][contains(concat(' ', normalize-space(@properties), ' '), ' nav ')]`)

func (a *EPUBAdapter) Load(path, _ string) (*doctree.Document, error) {
	log := orDiscard(a.Log)

	rc, err := epub.OpenReader(path)
	if err != nil {
		if isNotExist(err) {
			return nil, newError(CodeNotFound, path, err)
		}
		return nil, newError(CodeMalformedMarkup, path, fmt.Errorf("open epub: %w", err))
	}
	defer rc.Close()

	if len(rc.Rootfiles) == 0 {
		return nil, newError(CodeMalformedMarkup, path, fmt.Errorf("no rootfiles found in epub"))
	}
	book := rc.Rootfiles[0]

	buf := doctree.NewBuffer()
	w := convert.NewWalker(buf)
	for _, ref := range book.Spine.Itemrefs {
		if ref.Item == nil {
			log.Warn("skipping spine item without manifest entry", "path", path, "idref", ref.IDREF)
			continue
		}
		file := itemPath(book.FullPath, ref.Item.HREF)
		w.Section(file)
		if err := walkItem(w, ref.Item, file); err != nil {
			log.Warn("skipping epub fragment", "path", path, "fragment", file, "error", err)
		}
	}
	w.Flush()

	meta := doctree.Meta{
		Title:        strings.TrimSpace(book.Title),
		Author:       strings.TrimSpace(book.Creator),
		Capabilities: doctree.CapSections | doctree.CapTOC | doctree.CapLists,
	}
	if meta.Title == "" {
		meta.Title = baseTitle(path)
	}

	items, err := epubTOC(path, book, buf)
	if err != nil {
		log.Warn("epub toc unavailable", "path", path, "error", err)
	}
	meta.TOC = items
	return buf.Document(meta), nil
}

// itemPath resolves a manifest href against the package document.
func itemPath(opf, href string) string {
	if u, err := url.PathUnescape(href); err == nil {
		href = u
	}
	return doctree.JoinHref(opf, href)
}

func walkItem(w *convert.Walker, item *epub.Item, file string) error {
	r, err := item.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	root, err := parseContent(data, item.MediaType)
	if err != nil {
		return err
	}
	w.Walk(root, convert.Options{File: file, StartInBody: findBody(root) == nil})
	return nil
}

// parseContent parses a content document. XHTML and other XML types go
// through the XML parser so self-closing tags keep their meaning; XHTML
// that is not well formed falls back to the HTML parser.
func parseContent(data []byte, mediaType string) (*html.Node, error) {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	switch {
	case mt == "text/html":
		return html.Parse(bytes.NewReader(data))
	case mt == "" || mt == "application/xhtml+xml" || strings.HasSuffix(mt, "+xml") || strings.HasSuffix(mt, "/xml"):
		doc, err := convert.ParseXML(bytes.NewReader(data), false)
		if err == nil {
			return convert.FromXML(doc, nil), nil
		}
		if mt == "application/xhtml+xml" || mt == "" {
			return html.Parse(bytes.NewReader(data))
		}
		return nil, newError(CodeMalformedMarkup, "", err)
	}
	return nil, newError(CodeUnsupported, "", fmt.Errorf("media type %q", mediaType))
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && strings.EqualFold(n.Data, "body") {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

// epubTOC prefers the EPUB 3 nav document and falls back to the NCX.
func epubTOC(path string, book *epub.Rootfile, p toc.Positions) ([]*doctree.TocItem, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var navErr error
	if navPath := findNavPath(&zr.Reader, book.FullPath); navPath != "" {
		items, err := navTOC(&zr.Reader, navPath, p)
		if err == nil && len(items) > 0 {
			return items, nil
		}
		navErr = err
	}

	for _, item := range book.Manifest.Items {
		if item.MediaType != ncxMediaType {
			continue
		}
		ncxPath := itemPath(book.FullPath, item.HREF)
		items, err := ncxTOC(&zr.Reader, ncxPath, p)
		if err != nil {
			return nil, err
		}
		return items, nil
	}
	return nil, navErr
}

// findNavPath locates the manifest item flagged with the nav property.
// goreader does not expose item properties, so the package document is
// read again here.
func findNavPath(zr *zip.Reader, opf string) string {
	doc, err := readZipXML(zr, opf)
	if err != nil {
		return ""
	}
	item := xmlquery.QuerySelector(doc, navItemExpr)
	if item == nil {
		return ""
	}
	return itemPath(opf, convert.XMLAttr(item, "href"))
}

// navTOC walks the nested lists of <nav epub:type="toc">.
func navTOC(zr *zip.Reader, navPath string, p toc.Positions) ([]*doctree.TocItem, error) {
	data, err := readZipFile(zr, navPath)
	if err != nil {
		return nil, err
	}
	root, err := parseContent(data, "application/xhtml+xml")
	if err != nil {
		return nil, err
	}

	nav := findTOCNav(root)
	if nav == nil {
		return nil, fmt.Errorf("no toc nav in %s", navPath)
	}

	b := toc.NewBuilder()
	var walkList func(ol *html.Node, depth int)
	walkList = func(ol *html.Node, depth int) {
		for li := ol.FirstChild; li != nil; li = li.NextSibling {
			if li.Type != html.ElementNode || !strings.EqualFold(li.Data, "li") {
				continue
			}
			var name, href string
			var sub *html.Node
			for c := li.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != html.ElementNode {
					continue
				}
				switch strings.ToLower(c.Data) {
				case "a", "span":
					if name == "" {
						name = convert.InnerText(c)
						href = convert.Attr(c, "href")
					}
				case "ol", "ul":
					sub = c
				}
			}
			if name != "" {
				b.Add(depth, name, href)
			}
			if sub != nil {
				walkList(sub, depth+1)
			}
		}
	}
	for c := nav.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && (strings.EqualFold(c.Data, "ol") || strings.EqualFold(c.Data, "ul")) {
			walkList(c, 0)
			break
		}
	}
	b.Resolve(toc.HrefResolver(p, navPath))
	return b.Tree(), nil
}

func findTOCNav(root *html.Node) *html.Node {
	var first, found *html.Node
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if found != nil {
			return
		}
		if n.Type == html.ElementNode && strings.EqualFold(n.Data, "nav") {
			if first == nil {
				first = n
			}
			if strings.EqualFold(convert.Attr(n, "type"), "toc") {
				found = n
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	if found != nil {
		return found
	}
	return first
}

// ncxTOC walks navMap/navPoint recursively.
func ncxTOC(zr *zip.Reader, ncxPath string, p toc.Positions) ([]*doctree.TocItem, error) {
	doc, err := readZipXML(zr, ncxPath)
	if err != nil {
		return nil, err
	}
	navMap := convert.Elements(doc, "navMap")
	if len(navMap) == 0 {
		return nil, fmt.Errorf("no navMap in %s", ncxPath)
	}

	b := toc.NewBuilder()
	var walk func(parent *xmlquery.Node, depth int)
	walk = func(parent *xmlquery.Node, depth int) {
		for np := parent.FirstChild; np != nil; np = np.NextSibling {
			if np.Type != xmlquery.ElementNode || np.Data != "navPoint" {
				continue
			}
			var name, src string
			for c := np.FirstChild; c != nil; c = c.NextSibling {
				if c.Type != xmlquery.ElementNode {
					continue
				}
				switch c.Data {
				case "navLabel":
					name = textnorm.Clean(c.InnerText())
				case "content":
					src = convert.XMLAttr(c, "src")
				}
			}
			b.Add(depth, name, src)
			walk(np, depth+1)
		}
	}
	walk(navMap[0], 0)
	b.Resolve(toc.HrefResolver(p, ncxPath))
	return b.Tree(), nil
}
