package convert

import (
	"strings"
	"testing"

	"golang.org/x/net/html"

	"github.com/dgallion1/docread/internal/doctree"
)

func convertHTML(t *testing.T, src string, opts Options) *doctree.Document {
	t.Helper()
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	buf := doctree.NewBuffer()
	NewWalker(buf).Walk(root, opts)
	return buf.Document(doctree.Meta{})
}

func markersOf(doc *doctree.Document, kind doctree.MarkerKind) []doctree.Marker {
	var out []doctree.Marker
	for _, m := range doc.Markers() {
		if m.Kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func checkInvariants(t *testing.T, doc *doctree.Document) {
	t.Helper()
	prev := 0
	for i, m := range doc.Markers() {
		if m.Position < 0 || m.Position > doc.Length() {
			t.Errorf("marker %d (%s) position %d outside [0, %d]", i, m.Kind, m.Position, doc.Length())
		}
		if m.Position < prev {
			t.Errorf("marker %d (%s) at %d sorts before previous %d", i, m.Kind, m.Position, prev)
		}
		prev = m.Position
	}
}

func TestWalk_HeadingAndParagraph(t *testing.T) {
	doc := convertHTML(t, `<body><h1>Intro</h1><p>Hello  world.</p></body>`, Options{})

	if doc.Text() != "Intro\nHello world.\n" {
		t.Errorf("expected %q, got %q", "Intro\nHello world.\n", doc.Text())
	}
	hs := markersOf(doc, doctree.KindHeading1)
	if len(hs) != 1 {
		t.Fatalf("expected 1 heading1 marker, got %d", len(hs))
	}
	if hs[0].Position != 0 || hs[0].Text != "Intro" || hs[0].Level != 1 {
		t.Errorf("unexpected heading marker %+v", hs[0])
	}
	checkInvariants(t, doc)
}

func TestWalk_UnorderedList(t *testing.T) {
	doc := convertHTML(t, `<body><ul><li>A</li><li>B</li></ul></body>`, Options{})

	if doc.Text() != "• A\n• B\n" {
		t.Errorf("expected %q, got %q", "• A\n• B\n", doc.Text())
	}
	lists := markersOf(doc, doctree.KindList)
	if len(lists) != 1 || lists[0].ItemCount != 2 || lists[0].Level != 1 {
		t.Fatalf("expected one level-1 list of 2 items, got %+v", lists)
	}
	items := markersOf(doc, doctree.KindListItem)
	if len(items) != 2 {
		t.Fatalf("expected 2 list items, got %d", len(items))
	}
	want := []doctree.Marker{
		{Position: 0, Kind: doctree.KindListItem, Text: "A", Level: 1},
		{Position: 4, Kind: doctree.KindListItem, Text: "B", Level: 1},
	}
	for i, w := range want {
		if items[i] != w {
			t.Errorf("item %d: expected %+v, got %+v", i, w, items[i])
		}
	}
}

func TestWalk_LinkToHeadingID(t *testing.T) {
	doc := convertHTML(t, `<body><p><a href="#sec2">Jump</a> ahead</p><h2 id="sec2">Section 2</h2></body>`, Options{})

	if doc.Text() != "Jump ahead\nSection 2\n" {
		t.Errorf("unexpected text %q", doc.Text())
	}
	links := markersOf(doc, doctree.KindLink)
	if len(links) != 1 {
		t.Fatalf("expected 1 link, got %d", len(links))
	}
	if links[0].Reference != "#sec2" || links[0].Text != "Jump" || links[0].Position != 0 {
		t.Errorf("unexpected link marker %+v", links[0])
	}

	pos, ok := doc.IDPosition("", "sec2")
	if !ok {
		t.Fatal("expected id sec2 to be recorded")
	}
	h2 := markersOf(doc, doctree.KindHeading2)
	if len(h2) != 1 || h2[0].Position != pos {
		t.Fatalf("expected heading2 at id position %d, got %+v", pos, h2)
	}
	if got := doc.ResolveLink(links[0].Reference, links[0].Position); got != pos {
		t.Errorf("expected link to resolve to %d, got %d", pos, got)
	}
}

func TestWalk_LinkSpacing(t *testing.T) {
	doc := convertHTML(t, `<body><p>see<a href="x.html"> the <b>docs</b> </a>now</p></body>`, Options{})

	if doc.Text() != "see the docs now\n" {
		t.Errorf("unexpected text %q", doc.Text())
	}
	links := markersOf(doc, doctree.KindLink)
	if len(links) != 1 || links[0].Position != 4 || links[0].Text != "the docs" {
		t.Errorf("unexpected link markers %+v", links)
	}
}

func TestWalk_NestedLists(t *testing.T) {
	src := `<body><ul><li>A<ul><li>B</li><li>C</li></ul></li><li>D</li></ul></body>`
	doc := convertHTML(t, src, Options{})

	want := "• A\n  ◦ B\n  ◦ C\n• D\n"
	if doc.Text() != want {
		t.Errorf("expected %q, got %q", want, doc.Text())
	}

	items := markersOf(doc, doctree.KindListItem)
	wantItems := []struct {
		pos   int
		text  string
		level int
	}{
		{0, "A", 1},
		{4, "B", 2},
		{10, "C", 2},
		{16, "D", 1},
	}
	if len(items) != len(wantItems) {
		t.Fatalf("expected %d items, got %d", len(wantItems), len(items))
	}
	for i, w := range wantItems {
		got := items[i]
		if got.Position != w.pos || got.Text != w.text || got.Level != w.level {
			t.Errorf("item %d: expected {%d %q %d}, got %+v", i, w.pos, w.text, w.level, got)
		}
	}
	checkListCounts(t, doc)
	checkInvariants(t, doc)
}

// checkListCounts verifies that each List marker announces exactly the
// number of same-level items found before the next list of that level.
func checkListCounts(t *testing.T, doc *doctree.Document) {
	t.Helper()
	markers := doc.Markers()
	for i, m := range markers {
		if m.Kind != doctree.KindList {
			continue
		}
		end := doc.Length() + 1
		for _, n := range markers[i+1:] {
			if n.Kind == doctree.KindList && n.Level == m.Level {
				end = n.Position
				break
			}
		}
		count := 0
		for _, n := range markers[i+1:] {
			if n.Kind == doctree.KindListItem && n.Level == m.Level && n.Position >= m.Position && n.Position < end {
				count++
			}
		}
		if count != m.ItemCount {
			t.Errorf("list at %d level %d: item_count %d, found %d items", m.Position, m.Level, m.ItemCount, count)
		}
	}
}

func TestWalk_BulletGlyphsByLevel(t *testing.T) {
	src := `<body><ul><li>a<ul><li>b<ul><li>c<ul><li>d</li></ul></li></ul></li></ul></li></ul></body>`
	doc := convertHTML(t, src, Options{})

	want := "• a\n  ◦ b\n    - c\n      - d\n"
	if doc.Text() != want {
		t.Errorf("expected %q, got %q", want, doc.Text())
	}
}

func TestWalk_OrderedListStart(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"default", `<body><ol><li>x</li><li>y</li></ol></body>`, "1. x\n2. y\n"},
		{"start attribute", `<body><ol start="3"><li>x</li><li>y</li></ol></body>`, "3. x\n4. y\n"},
		{"bad start", `<body><ol start="zz"><li>x</li></ol></body>`, "1. x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := convertHTML(t, tt.src, Options{})
			if doc.Text() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, doc.Text())
			}
		})
	}
}

func TestWalk_ItemHoldingOnlyNestedList(t *testing.T) {
	doc := convertHTML(t, `<body><ul><li><ul><li>B</li></ul></li></ul></body>`, Options{})

	if doc.Text() != "  ◦ B\n" {
		t.Errorf("expected the bare bullet to be dropped, got %q", doc.Text())
	}
	checkListCounts(t, doc)
}

func TestWalk_EmptyItemsLeaveNoBullet(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"empty item", `<body><ul><li>A</li><li></li></ul><p>After</p></body>`, "• A\nAfter\n"},
		{"image only item", `<body><ul><li>A</li><li><img src="x.png"></li></ul>Tail text</body>`, "• A\nTail text\n"},
		{"empty ordered item", `<body><ol><li>x</li><li> </li></ol><p>y</p></body>`, "1. x\ny\n"},
		{"empty table in last item", `<body><ul><li>A</li><li><table></table></li></ul></body>`, "• A\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := convertHTML(t, tt.src, Options{})
			if doc.Text() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, doc.Text())
			}
			checkInvariants(t, doc)
		})
	}
}

func TestWalk_Preformatted(t *testing.T) {
	src := "<body><p>a</p><pre>  line1\n\n  line2</pre><p>b</p></body>"
	doc := convertHTML(t, src, Options{})

	want := "a\n  line1\n\n  line2\nb\n"
	if doc.Text() != want {
		t.Errorf("expected %q, got %q", want, doc.Text())
	}
}

func TestWalk_CodeMarkup(t *testing.T) {
	src := `<body><pre><code>x <b>y</b></code></pre></body>`

	if got := convertHTML(t, src, Options{}).Text(); got != "x y\n" {
		t.Errorf("expected nested markup to be text-extracted, got %q", got)
	}
	if got := convertHTML(t, src, Options{KeepCodeMarkup: true}).Text(); got != "x <b>y</b>\n" {
		t.Errorf("expected nested markup to be kept, got %q", got)
	}
}

func TestWalk_SkipsHiddenAndHead(t *testing.T) {
	src := `<html><head><title>Title</title><style>p{}</style></head>` +
		`<body><script>var x = 1;</script><p>t</p><!-- note --><template><p>no</p></template></body></html>`
	doc := convertHTML(t, src, Options{})

	if doc.Text() != "t\n" {
		t.Errorf("expected %q, got %q", "t\n", doc.Text())
	}
}

func TestWalk_SoftHyphensAndRunePositions(t *testing.T) {
	doc := convertHTML(t, "<body><p>Ca\u00adfé</p><h1>Über</h1></body>", Options{})

	if doc.Text() != "Café\nÜber\n" {
		t.Errorf("unexpected text %q", doc.Text())
	}
	hs := doc.HeadingMarkers(0)
	if len(hs) != 1 || hs[0].Position != 5 {
		t.Fatalf("expected heading at character 5, got %+v", hs)
	}
	if got := doc.Slice(hs[0].Position, hs[0].Position+len([]rune(hs[0].Text))); got != hs[0].Text {
		t.Errorf("expected text at heading position to be %q, got %q", hs[0].Text, got)
	}
}

func TestWalk_BreaksAndTables(t *testing.T) {
	doc := convertHTML(t, `<body><p>one<br>two</p><table><tr><td>a</td><td>b</td></tr></table></body>`, Options{})

	if doc.Text() != "one\ntwo\na\nb\n" {
		t.Errorf("unexpected text %q", doc.Text())
	}
	tables := markersOf(doc, doctree.KindTable)
	if len(tables) != 1 || tables[0].Position != 8 || tables[0].Text != "a b" {
		t.Errorf("unexpected table markers %+v", tables)
	}
}

func TestWalk_NamedAnchor(t *testing.T) {
	doc := convertHTML(t, `<body><p>intro</p><a name="here"></a><p>target</p></body>`, Options{})

	pos, ok := doc.IDPosition("", "here")
	if !ok || pos != 6 {
		t.Errorf("expected anchor at 6, got %d (found=%v)", pos, ok)
	}
	if len(markersOf(doc, doctree.KindLink)) != 0 {
		t.Error("expected no link marker for an anchor without href")
	}
}

func TestWalk_HeadingRoundTrip(t *testing.T) {
	src := `<body><p>lead <i>in</i></p><h2>Alpha   beta</h2><div><h3 id="g">Gamma</h3>text</div>` +
		`<ul><li>x</li></ul><h4><span>De</span>lta</h4></body>`
	doc := convertHTML(t, src, Options{})

	for _, m := range doc.HeadingMarkers(0) {
		got := doc.Slice(m.Position, m.Position+len([]rune(m.Text)))
		if got != m.Text {
			t.Errorf("heading %q: text at %d reads %q", m.Text, m.Position, got)
		}
	}
	checkInvariants(t, doc)
	checkListCounts(t, doc)
}

func TestWalk_Primitives(t *testing.T) {
	buf := doctree.NewBuffer()
	w := NewWalker(buf)

	w.Break(doctree.KindPageBreak, "1", "")
	w.Heading(1, "  Title ")
	w.Line("first   line")
	w.Line("   ")
	w.Break(doctree.KindPageBreak, "2", "")
	w.Line("second")
	doc := buf.Document(doctree.Meta{})

	if doc.Text() != "Title\nfirst line\nsecond\n" {
		t.Errorf("unexpected text %q", doc.Text())
	}
	if doc.CountByKind(doctree.KindPageBreak) != 2 {
		t.Errorf("expected 2 page breaks, got %d", doc.CountByKind(doctree.KindPageBreak))
	}
	if got := doc.NthPosition(doctree.KindPageBreak, 1); got != 17 {
		t.Errorf("expected second page at 17, got %d", got)
	}
}

func TestWalk_InlinePrimitives(t *testing.T) {
	buf := doctree.NewBuffer()
	w := NewWalker(buf)

	w.Line("Intro")
	w.Text("See ")
	w.Link(" the\u00ad manual ", "https://example.com/manual")
	w.Text("for  details.")
	w.EndLine()
	w.Link("   ", "ignored")
	w.EndLine()
	doc := buf.Document(doctree.Meta{})

	want := "Intro\nSee the manual for details.\n"
	if doc.Text() != want {
		t.Errorf("expected %q, got %q", want, doc.Text())
	}
	links := markersOf(doc, doctree.KindLink)
	if len(links) != 1 {
		t.Fatalf("expected 1 link marker, got %d", len(links))
	}
	if links[0].Position != 10 || links[0].Text != "the manual" || links[0].Reference != "https://example.com/manual" {
		t.Errorf("unexpected link marker %+v", links[0])
	}
	checkInvariants(t, doc)
}
