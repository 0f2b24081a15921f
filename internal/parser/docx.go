package parser

import (
	"archive/zip"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/dgallion1/docread/internal/convert"
	"github.com/dgallion1/docread/internal/doctree"
	"github.com/dgallion1/docread/internal/textnorm"
	"github.com/dgallion1/docread/internal/toc"
)

// DOCXAdapter handles .docx files. Paragraph styles named "Heading N" (or
// "Title") become headings; tables become Table markers followed by one
// line per cell paragraph.
type DOCXAdapter struct{}

func (a *DOCXAdapter) Load(path, _ string) (*doctree.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		if isNotExist(err) {
			return nil, newError(CodeNotFound, path, err)
		}
		return nil, newError(CodeInternal, path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, newError(CodeInternal, path, err)
	}
	doc, err := docx.Parse(f, info.Size())
	if err != nil {
		return nil, newError(CodeMalformedMarkup, path, fmt.Errorf("parse docx: %w", err))
	}

	buf := doctree.NewBuffer()
	w := convert.NewWalker(buf)
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			if level := docxHeadingLevel(it); level > 0 {
				w.Heading(level, docxParagraphText(it))
			} else {
				writeDocxParagraph(w, doc, it)
			}
		case *docx.Table:
			writeDocxTable(w, it)
		}
	}
	w.Flush()

	meta := doctree.Meta{
		Capabilities: doctree.CapTOC,
		TOC:          toc.FromHeadings(buf.HeadingMarkers(0)),
	}
	if zr, err := zip.OpenReader(path); err == nil {
		meta.Title, meta.Author = coreProperties(&zr.Reader)
		zr.Close()
	}
	if meta.Title == "" {
		meta.Title = baseTitle(path)
	}
	return buf.Document(meta), nil
}

func writeDocxTable(w *convert.Walker, t *docx.Table) {
	var cells []string
	for _, row := range t.TableRows {
		for _, cell := range row.TableCells {
			for _, p := range cell.Paragraphs {
				cells = append(cells, docxParagraphText(p))
			}
		}
	}
	w.Break(doctree.KindTable, textnorm.Clean(strings.Join(cells, " ")), "")
	for _, c := range cells {
		w.Line(c)
	}
}

var headingStyle = regexp.MustCompile(`(?i)^heading\s*([1-9])$`)

func docxHeadingLevel(para *docx.Paragraph) int {
	if para.Properties == nil || para.Properties.Style == nil {
		return 0
	}
	return styleHeadingLevel(para.Properties.Style.Val)
}

// styleHeadingLevel maps a paragraph style id or name to a heading level.
func styleHeadingLevel(style string) int {
	style = strings.TrimSpace(style)
	if strings.EqualFold(style, "Title") {
		return 1
	}
	m := headingStyle.FindStringSubmatch(style)
	if m == nil {
		return 0
	}
	level, _ := strconv.Atoi(m[1])
	if level > 6 {
		level = 6
	}
	return level
}

// writeDocxParagraph emits a body paragraph run by run so hyperlinks get a
// Link marker at their first character.
func writeDocxParagraph(w *convert.Walker, doc *docx.Docx, para *docx.Paragraph) {
	for _, child := range para.Children {
		switch c := child.(type) {
		case *docx.Run:
			w.Text(docxRunText(c))
		case *docx.Hyperlink:
			// Internal links carry a bookmark name instead of a relationship id.
			href, err := doc.ReferTarget(c.ID)
			if err != nil && c.ID != "" {
				href = "#" + c.ID
			}
			w.Link(docxLinkText(c), href)
		}
	}
	w.EndLine()
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		switch c := child.(type) {
		case *docx.Run:
			buf.WriteString(docxRunText(c))
		case *docx.Hyperlink:
			buf.WriteString(docxLinkText(c))
		}
	}
	return textnorm.Clean(buf.String())
}

func docxRunText(run *docx.Run) string {
	var buf strings.Builder
	for _, rc := range run.Children {
		switch t := rc.(type) {
		case *docx.Text:
			buf.WriteString(t.Text)
		case *docx.Tab:
			buf.WriteByte(' ')
		}
	}
	return buf.String()
}

// docxLinkText returns a hyperlink's display text. Word stores it in text
// runs; some writers only fill the field instruction.
func docxLinkText(h *docx.Hyperlink) string {
	if text := docxRunText(&h.Run); strings.TrimSpace(text) != "" {
		return text
	}
	return h.Run.InstrText
}

// coreProperties reads the title and creator from docProps/core.xml, which
// OOXML documents share.
func coreProperties(zr *zip.Reader) (title, author string) {
	doc, err := readZipXML(zr, "docProps/core.xml")
	if err != nil {
		return "", ""
	}
	if els := convert.Elements(doc, "title"); len(els) > 0 {
		title = textnorm.Clean(els[0].InnerText())
	}
	if els := convert.Elements(doc, "creator"); len(els) > 0 {
		author = textnorm.Clean(els[0].InnerText())
	}
	return title, author
}
