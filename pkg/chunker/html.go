package chunker

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/quka-ai/kbcore/pkg/types"
)

var strippedTags = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
	atom.Input:    true,
	atom.Button:   true,
	atom.Select:   true,
	atom.Textarea: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Template: true,
	atom.Head:     true,
	atom.Canvas:   true,
	atom.Object:   true,
	atom.Embed:    true,
}

// class/id tokens that mark boilerplate blocks
var strippedMarkers = []string{
	"advert", "ads", "ad-", "banner", "cookie", "popup", "modal",
	"newsletter", "share", "social", "sidebar", "breadcrumb", "promo",
}

var contentTags = map[atom.Atom]bool{
	atom.P:          true,
	atom.Li:         true,
	atom.Td:         true,
	atom.Th:         true,
	atom.Blockquote: true,
	atom.Pre:        true,
	atom.Article:    true,
}

var inlineTags = map[atom.Atom]bool{
	atom.A: true, atom.Abbr: true, atom.B: true, atom.Bdi: true, atom.Bdo: true,
	atom.Cite: true, atom.Code: true, atom.Data: true, atom.Dfn: true, atom.Em: true,
	atom.I: true, atom.Kbd: true, atom.Mark: true, atom.Q: true, atom.S: true,
	atom.Samp: true, atom.Small: true, atom.Span: true, atom.Strong: true, atom.Sub: true,
	atom.Sup: true, atom.Time: true, atom.U: true, atom.Var: true, atom.Wbr: true,
	atom.Label: true, atom.Font: true, atom.Img: true,
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

// block is one structural unit found in the document: a heading when
// level > 0, otherwise a content element.
type block struct {
	level int
	text  string
}

// parseBlocks parses doc and returns its headings and content elements in
// document order after non-content elements are removed.
func parseBlocks(doc string) ([]block, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil, err
	}
	w := &blockWalker{}
	w.walkChildren(root)
	w.flushInline()
	return w.blocks, nil
}

// ExtractText returns the visible text of doc, one structural unit per line.
func ExtractText(doc string) (string, error) {
	blocks, err := parseBlocks(doc)
	if err != nil {
		return "", err
	}
	lines := make([]string, len(blocks))
	for i, b := range blocks {
		lines[i] = b.text
	}
	return strings.Join(lines, "\n"), nil
}

type blockWalker struct {
	blocks []block
	inline strings.Builder
}

func (w *blockWalker) walkChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.visit(c)
	}
}

func (w *blockWalker) visit(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.inline.WriteString(n.Data)
		w.inline.WriteByte(' ')
		return
	case html.ElementNode:
	default:
		w.walkChildren(n)
		return
	}

	if isStripped(n) {
		return
	}
	if inlineTags[n.DataAtom] {
		w.walkChildren(n)
		return
	}
	if n.DataAtom == atom.Br {
		w.inline.WriteByte(' ')
		return
	}

	// 块级元素，先把之前累积的零散文本作为独立段落输出
	w.flushInline()

	if level := headingLevel(n.DataAtom); level > 0 {
		if text := nodeText(n); text != "" {
			w.blocks = append(w.blocks, block{level: level, text: text})
		}
		return
	}

	if contentTags[n.DataAtom] && !hasBlockDescendant(n) {
		if text := nodeText(n); text != "" {
			w.blocks = append(w.blocks, block{text: text})
		}
		return
	}

	w.walkChildren(n)
	w.flushInline()
}

func (w *blockWalker) flushInline() {
	text := collapseSpace(w.inline.String())
	w.inline.Reset()
	if text != "" {
		w.blocks = append(w.blocks, block{text: text})
	}
}

func isStripped(n *html.Node) bool {
	if strippedTags[n.DataAtom] {
		return true
	}
	for _, attr := range n.Attr {
		if attr.Key == "hidden" || (attr.Key == "aria-hidden" && attr.Val == "true") {
			return true
		}
		if attr.Key != "class" && attr.Key != "id" && attr.Key != "role" {
			continue
		}
		if attr.Key == "role" && (attr.Val == "navigation" || attr.Val == "banner" || attr.Val == "complementary") {
			return true
		}
		for _, token := range strings.Fields(strings.ToLower(attr.Val)) {
			if isMarkerToken(token) {
				return true
			}
		}
	}
	return false
}

func isMarkerToken(token string) bool {
	for _, m := range strippedMarkers {
		if token == m || strings.HasPrefix(token, m+"-") || strings.HasPrefix(token, m+"_") ||
			(strings.HasSuffix(m, "-") && strings.HasPrefix(token, m)) {
			return true
		}
	}
	return false
}

func hasBlockDescendant(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || isStripped(c) {
			continue
		}
		if contentTags[c.DataAtom] || headingLevel(c.DataAtom) > 0 || hasBlockDescendant(c) {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case html.TextNode:
				b.WriteString(c.Data)
			case html.ElementNode:
				if isStripped(c) {
					continue
				}
				if !inlineTags[c.DataAtom] {
					b.WriteByte(' ')
				}
				walk(c)
				if !inlineTags[c.DataAtom] {
					b.WriteByte(' ')
				}
			}
		}
	}
	walk(n)
	return collapseSpace(b.String())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ChunkHTML splits an HTML document along its heading structure. A heading
// closes the pending chunk, which is tagged with the hierarchy in effect
// before that heading, and its text opens the next one.
func (c *Chunker) ChunkHTML(src Source, doc string) ([]Chunk, error) {
	blocks, err := parseBlocks(doc)
	if err != nil {
		return nil, err
	}

	var (
		acc   = newAccumulator(c.policy, "\n")
		stack HeadingStack
	)
	for _, b := range blocks {
		if b.level > 0 {
			acc.boundary(stack)
			stack = stack.Push(types.HeadingEntry{Level: b.level, Text: b.text})
			for _, part := range splitElement(b.text, c.policy.MaxWords) {
				u := newUnit(part)
				u.heading = true
				acc.add(u, stack)
			}
			continue
		}
		for _, part := range splitElement(b.text, c.policy.MaxWords) {
			acc.add(newUnit(part), stack)
		}
	}
	return buildChunks(src, acc.finish(stack)), nil
}

// splitElement keeps an element whole when it fits, otherwise splits it by
// sentences and then by word windows.
func splitElement(text string, max int) []string {
	if wordCount(text) <= max {
		return []string{text}
	}
	var out []string
	for _, s := range SplitSentences(text) {
		out = append(out, splitWords(s, max)...)
	}
	return out
}
