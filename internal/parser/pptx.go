package parser

import (
	"archive/zip"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/dgallion1/docread/internal/convert"
	"github.com/dgallion1/docread/internal/doctree"
	"github.com/dgallion1/docread/internal/textnorm"
	"github.com/dgallion1/docread/internal/toc"
)

// PPTXAdapter emits one page per slide: a PageBreak marker followed by the
// text of every paragraph on the slide. Slide titles name the TOC entries.
type PPTXAdapter struct {
	Log *slog.Logger
}

var (
	slidePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	titleShape   = xpath.MustCompile(`//*[local-name()='sp'][.//*[local-name()='ph'][@type='title' or @type='ctrTitle']]`)
)

type slideFile struct {
	num  int
	name string
}

func (a *PPTXAdapter) Load(path, _ string) (*doctree.Document, error) {
	log := orDiscard(a.Log)

	zr, err := openZip(path)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	slides := listSlides(&zr.Reader)
	if len(slides) == 0 {
		return nil, newError(CodeMalformedMarkup, path, fmt.Errorf("no slides found"))
	}

	buf := doctree.NewBuffer()
	w := convert.NewWalker(buf)
	b := toc.NewBuilder()
	for i, s := range slides {
		pos := w.Break(doctree.KindPageBreak, strconv.Itoa(i+1), s.name)
		doc, err := readZipXML(&zr.Reader, s.name)
		if err != nil {
			log.Warn("skipping slide", "path", path, "fragment", s.name, "error", err)
			b.AddResolved(0, slideLabel(i), pos)
			continue
		}
		title := slideTitle(doc)
		if title == "" {
			title = slideLabel(i)
		}
		b.AddResolved(0, title, pos)
		for _, p := range convert.Elements(doc, "p") {
			w.Line(paragraphRunText(p))
		}
	}
	w.Flush()

	meta := doctree.Meta{
		Capabilities: doctree.CapPages | doctree.CapTOC,
		TOC:          b.Tree(),
	}
	meta.Title, meta.Author = coreProperties(&zr.Reader)
	if meta.Title == "" {
		meta.Title = baseTitle(path)
	}
	return buf.Document(meta), nil
}

func slideLabel(i int) string {
	return "Slide " + strconv.Itoa(i+1)
}

// listSlides returns the slide parts in numeric order.
func listSlides(zr *zip.Reader) []slideFile {
	var slides []slideFile
	for _, f := range zr.File {
		m := slidePattern.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slideFile{num: n, name: f.Name})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })
	return slides
}

// paragraphRunText joins the text runs of a DrawingML paragraph; line
// breaks become spaces.
func paragraphRunText(p *xmlquery.Node) string {
	var sb strings.Builder
	var visit func(*xmlquery.Node)
	visit = func(n *xmlquery.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != xmlquery.ElementNode {
				continue
			}
			switch c.Data {
			case "t":
				sb.WriteString(c.InnerText())
			case "br":
				sb.WriteByte(' ')
			default:
				visit(c)
			}
		}
	}
	visit(p)
	return textnorm.Clean(sb.String())
}

func slideTitle(doc *xmlquery.Node) string {
	sp := xmlquery.QuerySelector(doc, titleShape)
	if sp == nil {
		return ""
	}
	var parts []string
	for _, p := range convert.Elements(sp, "p") {
		if t := paragraphRunText(p); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
