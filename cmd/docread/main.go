// Command docread loads a document and prints its text, markers or table
// of contents.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/dgallion1/docread/internal/config"
	"github.com/dgallion1/docread/internal/doctree"
	"github.com/dgallion1/docread/internal/parser"
)

// Globals are flags shared by every command.
type Globals struct {
	Password     string `short:"p" help:"Password for encrypted documents"`
	CHMExtractor string `name:"chm-extractor" default:"7z" env:"CHM_EXTRACTOR" help:"Command used to unpack .chm archives"`
	LogLevel     string `name:"log-level" default:"warn" env:"LOG_LEVEL" help:"Log level for adapter warnings (debug, info, warn, error)"`
	Pdftotext    bool   `name:"pdftotext" default:"true" negatable:"" env:"PDF_FALLBACK_PDFTOTEXT" help:"Retry unreadable PDF pages with poppler's pdftotext"`
}

func (g *Globals) options() parser.Options {
	opts := parser.Options{CHMExtractor: g.CHMExtractor}
	if g.Pdftotext {
		opts.Pdftotext = "pdftotext"
	}
	return opts
}

func (g *Globals) load(path string, stderr io.Writer) (*doctree.Document, parser.Format, error) {
	level, err := config.ParseLevel(g.LogLevel)
	if err != nil {
		return nil, parser.FormatUnknown, err
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	registry := parser.BuildRegistry(log, g.options())

	adapter, format, err := registry.For(path)
	if err != nil {
		return nil, format, err
	}
	doc, err := adapter.Load(path, g.Password)
	if err != nil {
		return nil, format, err
	}
	return doc, format, nil
}

// CLI defines the command-line interface for docread.
type CLI struct {
	Globals

	Info    InfoCmd    `cmd:"" help:"Print title, author, format and marker counts"`
	Text    TextCmd    `cmd:"" help:"Print the flattened text"`
	Markers MarkersCmd `cmd:"" help:"List positional markers"`
	TOC     TOCCmd     `cmd:"" name:"toc" help:"Print the table of contents"`
	Resolve ResolveCmd `cmd:"" help:"Resolve an internal link to a character offset"`
	Detect  DetectCmd  `cmd:"" help:"Detect the format of a file"`
}

// InfoCmd prints document metadata.
type InfoCmd struct {
	Path string `arg:"" help:"Document to load" type:"existingpath"`
}

func (c *InfoCmd) Run(k *kong.Context, g *Globals) error {
	doc, format, err := g.load(c.Path, k.Stderr)
	if err != nil {
		return err
	}
	out := k.Stdout
	fmt.Fprintf(out, "Title:        %s\n", doc.Title())
	fmt.Fprintf(out, "Author:       %s\n", doc.Author())
	fmt.Fprintf(out, "Format:       %s\n", format)
	fmt.Fprintf(out, "Length:       %d\n", doc.Length())
	fmt.Fprintf(out, "Capabilities: %s\n", doc.Capabilities())
	fmt.Fprintf(out, "TOC entries:  %d\n", countTOC(doc.TOC()))
	for _, kind := range markerKinds {
		if n := doc.CountByKind(kind); n > 0 {
			fmt.Fprintf(out, "  %-14s %d\n", kind, n)
		}
	}
	return nil
}

// TextCmd prints the text, or a character range of it.
type TextCmd struct {
	Path  string `arg:"" help:"Document to load" type:"existingpath"`
	Start int    `help:"First character offset" default:"0"`
	End   int    `help:"End character offset, exclusive; -1 for the end" default:"-1"`
}

func (c *TextCmd) Run(k *kong.Context, g *Globals) error {
	doc, _, err := g.load(c.Path, k.Stderr)
	if err != nil {
		return err
	}
	end := c.End
	if end < 0 {
		end = doc.Length()
	}
	_, err = io.WriteString(k.Stdout, doc.Slice(c.Start, end))
	return err
}

// MarkersCmd lists markers, optionally of a single kind.
type MarkersCmd struct {
	Path string `arg:"" help:"Document to load" type:"existingpath"`
	Kind string `short:"k" help:"Only markers of this kind (heading1, page_break, link, ...)"`
	JSON bool   `help:"Print JSON instead of a table"`
}

func (c *MarkersCmd) Run(k *kong.Context, g *Globals) error {
	var filter *doctree.MarkerKind
	if c.Kind != "" {
		kind, err := doctree.ParseKind(c.Kind)
		if err != nil {
			return err
		}
		filter = &kind
	}

	doc, _, err := g.load(c.Path, k.Stderr)
	if err != nil {
		return err
	}
	markers := []doctree.Marker{}
	for _, m := range doc.Markers() {
		if filter == nil || m.Kind == *filter {
			markers = append(markers, m)
		}
	}

	if c.JSON {
		enc := json.NewEncoder(k.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(markers)
	}
	for _, m := range markers {
		fmt.Fprintf(k.Stdout, "%8d  %-14s %s", m.Position, m.Kind, m.Text)
		if m.Reference != "" {
			fmt.Fprintf(k.Stdout, " -> %s", m.Reference)
		}
		fmt.Fprintln(k.Stdout)
	}
	return nil
}

// TOCCmd prints the table of contents as an indented tree.
type TOCCmd struct {
	Path string `arg:"" help:"Document to load" type:"existingpath"`
	JSON bool   `help:"Print JSON instead of a tree"`
}

func (c *TOCCmd) Run(k *kong.Context, g *Globals) error {
	doc, _, err := g.load(c.Path, k.Stderr)
	if err != nil {
		return err
	}
	if c.JSON {
		enc := json.NewEncoder(k.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(doc.TOC())
	}
	printTOC(k.Stdout, doc.TOC(), 0)
	return nil
}

// ResolveCmd resolves a link reference the way a reader following it would.
type ResolveCmd struct {
	Path string `arg:"" help:"Document to load" type:"existingpath"`
	Href string `arg:"" help:"Link reference, e.g. chapter2.xhtml#note1"`
	From int    `help:"Offset of the link, used to resolve relative references" default:"0"`
}

func (c *ResolveCmd) Run(k *kong.Context, g *Globals) error {
	doc, _, err := g.load(c.Path, k.Stderr)
	if err != nil {
		return err
	}
	pos := doc.ResolveLink(c.Href, c.From)
	if pos < 0 {
		return fmt.Errorf("cannot resolve %q", c.Href)
	}
	fmt.Fprintf(k.Stdout, "%d\t%s\n", pos, doc.LineAt(pos))
	return nil
}

// DetectCmd prints the detected format without loading the document.
type DetectCmd struct {
	Paths []string `arg:"" help:"Files to inspect" type:"existingpath"`
}

func (c *DetectCmd) Run(k *kong.Context) error {
	for _, p := range c.Paths {
		f, err := parser.DetectFormat(p)
		if err != nil {
			fmt.Fprintf(k.Stdout, "%s: %v\n", p, err)
			continue
		}
		fmt.Fprintf(k.Stdout, "%s: %s\n", p, f)
	}
	return nil
}

var markerKinds = []doctree.MarkerKind{
	doctree.KindHeading1, doctree.KindHeading2, doctree.KindHeading3,
	doctree.KindHeading4, doctree.KindHeading5, doctree.KindHeading6,
	doctree.KindPageBreak, doctree.KindSectionBreak, doctree.KindTocItem,
	doctree.KindLink, doctree.KindTable, doctree.KindList, doctree.KindListItem,
}

func printTOC(w io.Writer, items []*doctree.TocItem, depth int) {
	for _, it := range items {
		offset := "-"
		if it.Offset >= 0 {
			offset = fmt.Sprint(it.Offset)
		}
		fmt.Fprintf(w, "%s%s [%s]\n", strings.Repeat("  ", depth), it.Name, offset)
		printTOC(w, it.Children, depth+1)
	}
}

func countTOC(items []*doctree.TocItem) int {
	n := 0
	for _, it := range items {
		n += 1 + countTOC(it.Children)
	}
	return n
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("docread"),
		kong.Description("Convert documents into flat text with positional markers"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&cli.Globals)
	if err != nil && parser.CodeOf(err) == parser.CodePasswordRequired {
		fmt.Fprintln(os.Stderr, "document is encrypted; pass --password")
		os.Exit(2)
	}
	ctx.FatalIfErrorf(err)
}
