package convert

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Element describes how a generic XML element appears to the walker.
type Element struct {
	// Tag is the HTML tag the element becomes; "" makes it transparent so
	// only its children are kept.
	Tag   string
	Attrs []html.Attribute
	// Text is inserted before the children, for elements that stand for
	// characters, such as an explicit space.
	Text string
	// Skip drops the element and everything below it.
	Skip bool
}

// MapFunc maps one XML element for FromXML.
type MapFunc func(el *xmlquery.Node) Element

// DefaultMap keeps every element under its lowercased local name, with
// namespace declarations removed. It suits XHTML read through the XML parser.
func DefaultMap(el *xmlquery.Node) Element {
	return Element{Tag: strings.ToLower(el.Data), Attrs: LocalAttrs(el)}
}

// LocalAttrs converts el's attributes to local names, skipping xmlns.
func LocalAttrs(el *xmlquery.Node) []html.Attribute {
	var attrs []html.Attribute
	for _, a := range el.Attr {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		attrs = append(attrs, html.Attribute{Key: a.Name.Local, Val: a.Value})
	}
	return attrs
}

// ParseXML parses r into an xmlquery tree. Strict parsing rejects documents
// the XML parser cannot complete, such as unterminated elements; lenient
// parsing additionally tolerates HTML entities and void tags.
func ParseXML(r io.Reader, strict bool) (*xmlquery.Node, error) {
	opts := xmlquery.ParserOptions{}
	if !strict {
		opts.Decoder = &xmlquery.DecoderOptions{
			Strict:    false,
			AutoClose: xml.HTMLAutoClose,
			Entity:    xml.HTMLEntity,
		}
	}
	doc, err := xmlquery.ParseWithOptions(r, opts)
	if err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	return doc, nil
}

// FromXML converts an xmlquery tree into an html.Node tree the walker can
// traverse. mapFn may be nil, meaning DefaultMap.
func FromXML(root *xmlquery.Node, mapFn MapFunc) *html.Node {
	if mapFn == nil {
		mapFn = DefaultMap
	}
	doc := &html.Node{Type: html.DocumentNode}
	convertChildren(doc, root, mapFn)
	return doc
}

func convertChildren(dst *html.Node, src *xmlquery.Node, mapFn MapFunc) {
	for c := src.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case xmlquery.TextNode, xmlquery.CharDataNode:
			dst.AppendChild(&html.Node{Type: html.TextNode, Data: c.Data})
		case xmlquery.ElementNode:
			m := mapFn(c)
			if m.Skip {
				continue
			}
			parent := dst
			if m.Tag != "" {
				parent = &html.Node{
					Type:     html.ElementNode,
					Data:     m.Tag,
					DataAtom: atom.Lookup([]byte(m.Tag)),
					Attr:     m.Attrs,
				}
				dst.AppendChild(parent)
			}
			if m.Text != "" {
				parent.AppendChild(&html.Node{Type: html.TextNode, Data: m.Text})
			}
			convertChildren(parent, c, mapFn)
		case xmlquery.DocumentNode:
			convertChildren(dst, c, mapFn)
		}
	}
}

// Elements returns the descendants of n (n included) with the given local
// name, in document order.
func Elements(n *xmlquery.Node, local string) []*xmlquery.Node {
	var out []*xmlquery.Node
	var visit func(*xmlquery.Node)
	visit = func(n *xmlquery.Node) {
		if n.Type == xmlquery.ElementNode && n.Data == local {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return out
}

// XMLAttr returns the value of the attribute with the given local name.
func XMLAttr(n *xmlquery.Node, local string) string {
	for _, a := range n.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}
