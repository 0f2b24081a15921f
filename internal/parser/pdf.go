package parser

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/dgallion1/docread/internal/convert"
	"github.com/dgallion1/docread/internal/doctree"
	"github.com/dgallion1/docread/internal/toc"
)

// PDFAdapter extracts page text with ledongthuc/pdf and the outline with
// pdfcpu. Every page starts with a PageBreak marker.
type PDFAdapter struct {
	Log *slog.Logger
	// Pdftotext is the poppler command used for pages the built-in extractor
	// fails on. Empty disables the fallback.
	Pdftotext string
}

func (a *PDFAdapter) Load(path, password string) (doc *doctree.Document, err error) {
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

	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, newError(CodeInternal, path, fmt.Errorf("pdf reader panic: %v", r))
		}
	}()

	r, err := pdflib.NewReaderEncrypted(f, info.Size(), passwordOnce(password))
	if err != nil {
		if errors.Is(err, pdflib.ErrInvalidPassword) {
			return nil, newError(CodePasswordRequired, path, err)
		}
		return nil, newError(CodeMalformedMarkup, path, fmt.Errorf("open pdf: %w", err))
	}

	log := orDiscard(a.Log)
	buf := doctree.NewBuffer()
	w := convert.NewWalker(buf)
	for i := 1; i <= r.NumPage(); i++ {
		w.Break(doctree.KindPageBreak, strconv.Itoa(i), "")
		text, err := pageText(r.Page(i))
		if err != nil {
			log.Debug("pdf page extraction failed", "path", path, "page", i, "error", err)
			text, err = a.fallback(path, password, i, err)
		}
		if err != nil {
			log.Warn("skipping pdf page", "path", path, "page", i, "error", err)
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			w.Line(line)
		}
	}
	w.Flush()

	meta := doctree.Meta{
		Title:        infoString(r, "Title"),
		Author:       infoString(r, "Author"),
		Capabilities: doctree.CapPages,
	}
	if meta.Title == "" {
		meta.Title = baseTitle(path)
	}

	outline, err := readOutline(f, password)
	if err != nil {
		log.Warn("pdf outline unavailable", "path", path, "error", err)
	}
	if len(outline) > 0 {
		meta.TOC = outlineTOC(buf, outline)
		meta.Capabilities |= doctree.CapTOC
	}
	return buf.Document(meta), nil
}

// passwordOnce supplies password to the reader a single time; an empty
// answer stops the reader from asking again.
func passwordOnce(password string) func() string {
	asked := false
	return func() string {
		if asked {
			return ""
		}
		asked = true
		return password
	}
}

func pageText(p pdflib.Page) (text string, err error) {
	if p.V.IsNull() {
		return "", nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract text: %v", r)
		}
	}()
	return p.GetPlainText(nil)
}

// fallback re-reads one page with pdftotext. Without a configured command
// it returns cause unchanged.
func (a *PDFAdapter) fallback(path, password string, page int, cause error) (string, error) {
	if a.Pdftotext == "" {
		return "", cause
	}
	n := strconv.Itoa(page)
	args := []string{"-layout", "-f", n, "-l", n}
	if password != "" {
		args = append(args, "-upw", password)
	}
	args = append(args, path, "-")
	out, err := exec.Command(a.Pdftotext, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%w; pdftotext: %w", cause, err)
	}
	return strings.ReplaceAll(string(out), "\f", ""), nil
}

func infoString(r *pdflib.Reader, key string) string {
	return strings.TrimSpace(r.Trailer().Key("Info").Key(key).Text())
}

// readOutline returns the bookmark tree. Files without an outline yield an
// error, which callers treat as "no TOC".
func readOutline(rs io.ReadSeeker, password string) ([]pdfcpu.Bookmark, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	conf := model.NewDefaultConfiguration()
	if password != "" {
		conf.UserPW = password
		conf.OwnerPW = password
	}
	bms, err := api.Bookmarks(rs, conf)
	if err != nil {
		return nil, fmt.Errorf("read outline: %w", err)
	}
	return bms, nil
}

// outlineTOC maps bookmarks to the PageBreak marker of their target page;
// targets beyond the last page resolve to -1.
func outlineTOC(p toc.Positions, bms []pdfcpu.Bookmark) []*doctree.TocItem {
	b := toc.NewBuilder()
	var add func(bms []pdfcpu.Bookmark, depth int)
	add = func(bms []pdfcpu.Bookmark, depth int) {
		for _, bm := range bms {
			b.AddResolved(depth, strings.TrimSpace(bm.Title), toc.PageOffset(p, bm.PageFrom-1))
			add(bm.Kids, depth+1)
		}
	}
	add(bms, 0)
	return b.Tree()
}
