package parser

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/dgallion1/docread/internal/convert"
	"github.com/dgallion1/docread/internal/doctree"
	"github.com/dgallion1/docread/internal/toc"
)

// CHMAdapter handles compiled HTML help. A .chm file is unpacked with an
// external extractor into a temporary directory that is removed before Load
// returns; an already decompiled directory is read in place. Pages follow
// the order of the .hhc contents file, then any pages it does not mention.
type CHMAdapter struct {
	Log       *slog.Logger
	Extractor string // defaults to "7z"
}

type sitemapEntry struct {
	depth int
	name  string
	local string
}

func (a *CHMAdapter) Load(p, _ string) (*doctree.Document, error) {
	log := orDiscard(a.Log)

	info, err := os.Stat(p)
	if err != nil {
		return nil, newError(CodeNotFound, p, err)
	}
	dir := p
	if !info.IsDir() {
		tmp, err := os.MkdirTemp("", "docread-chm-*")
		if err != nil {
			return nil, newError(CodeInternal, p, err)
		}
		defer os.RemoveAll(tmp)
		if err := a.extract(p, tmp); err != nil {
			return nil, err
		}
		dir = tmp
	}
	fsys := os.DirFS(dir)

	var entries []sitemapEntry
	hhc := findByExt(fsys, ".hhc")
	if hhc != "" {
		entries, err = readSitemap(fsys, hhc)
		if err != nil {
			log.Warn("chm contents unavailable", "path", p, "error", err)
		}
	}
	pages := pageOrder(fsys, entries)
	if len(pages) == 0 {
		return nil, newError(CodeMalformedMarkup, p, fmt.Errorf("no html pages found"))
	}

	buf := doctree.NewBuffer()
	w := convert.NewWalker(buf)
	for _, page := range pages {
		w.Section(page)
		root, err := readPage(fsys, page)
		if err != nil {
			log.Warn("skipping chm page", "path", p, "fragment", page, "error", err)
			continue
		}
		w.Walk(root, convert.Options{File: page})
	}
	w.Flush()

	b := toc.NewBuilder()
	for _, e := range entries {
		b.Add(e.depth, e.name, e.local)
	}
	b.Resolve(toc.HrefResolver(buf, ""))

	title := projectTitle(fsys)
	if title == "" {
		title = baseTitle(p)
	}
	return buf.Document(doctree.Meta{
		Title:        title,
		Capabilities: doctree.CapSections | doctree.CapTOC | doctree.CapLists,
		TOC:          b.Tree(),
	}), nil
}

func (a *CHMAdapter) extract(file, dir string) error {
	bin := a.Extractor
	if bin == "" {
		bin = "7z"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return newError(CodeUnsupported, file, fmt.Errorf("chm extractor %q not available: %w", bin, err))
	}
	cmd := exec.Command(bin, "x", "-y", "-o"+dir, file)
	if out, err := cmd.CombinedOutput(); err != nil {
		return newError(CodeMalformedMarkup, file, fmt.Errorf("extract chm: %w: %s", err, bytes.TrimSpace(out)))
	}
	return nil
}

func findByExt(fsys fs.FS, ext string) string {
	var found string
	fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || found != "" {
			return nil
		}
		if !d.IsDir() && strings.EqualFold(path.Ext(p), ext) {
			found = p
			return fs.SkipAll
		}
		return nil
	})
	return found
}

// readSitemap parses the nested <ul><li><object type="text/sitemap"> lists
// of an .hhc file.
func readSitemap(fsys fs.FS, name string) ([]sitemapEntry, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	root, err := parseHTMLCharset(data)
	if err != nil {
		return nil, err
	}

	var entries []sitemapEntry
	var visit func(n *html.Node, depth int)
	visit = func(n *html.Node, depth int) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.Data {
			case "ul":
				visit(c, depth+1)
			case "object":
				if strings.EqualFold(convert.Attr(c, "type"), "text/sitemap") {
					e := sitemapEntry{depth: depth}
					for prm := c.FirstChild; prm != nil; prm = prm.NextSibling {
						if prm.Type != html.ElementNode || prm.Data != "param" {
							continue
						}
						switch strings.ToLower(convert.Attr(prm, "name")) {
						case "name":
							e.name = strings.TrimSpace(convert.Attr(prm, "value"))
						case "local":
							e.local = strings.TrimSpace(convert.Attr(prm, "value"))
						}
					}
					if e.name != "" && e.depth >= 0 {
						entries = append(entries, e)
					}
				}
			default:
				visit(c, depth)
			}
		}
	}
	visit(root, -1)
	return entries, nil
}

// pageOrder lists the pages referenced by the contents first, then the
// remaining HTML files in path order.
func pageOrder(fsys fs.FS, entries []sitemapEntry) []string {
	seen := make(map[string]bool)
	var pages []string
	add := func(p string) {
		if p == "" || seen[p] {
			return
		}
		if _, err := fs.Stat(fsys, p); err != nil {
			return
		}
		seen[p] = true
		pages = append(pages, p)
	}
	for _, e := range entries {
		file, _, _ := strings.Cut(e.local, "#")
		add(doctree.JoinHref("", file))
	}

	var rest []string
	fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		switch strings.ToLower(path.Ext(p)) {
		case ".htm", ".html":
			if !seen[p] {
				rest = append(rest, p)
			}
		}
		return nil
	})
	sort.Strings(rest)
	for _, p := range rest {
		add(p)
	}
	return pages
}

func readPage(fsys fs.FS, name string) (*html.Node, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, err
	}
	return parseHTMLCharset(data)
}

// parseHTMLCharset parses HTML whose encoding is declared in a meta tag, as
// help pages are often not UTF-8.
func parseHTMLCharset(data []byte) (*html.Node, error) {
	r, err := charset.NewReader(bytes.NewReader(data), "text/html")
	if err != nil {
		return nil, err
	}
	return html.Parse(r)
}

// projectTitle reads Title= from the .hhp project file when present.
func projectTitle(fsys fs.FS) string {
	hhp := findByExt(fsys, ".hhp")
	if hhp == "" {
		return ""
	}
	f, err := fsys.Open(hhp)
	if err != nil {
		return ""
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if v, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "Title="); ok {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
