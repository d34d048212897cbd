package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/docdiff/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark with the GFM
// extensions, so tables and task lists come through as their own blocks.
type MarkdownParser struct{}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.Tree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	doc := markdown.Parser().Parse(text.NewReader(src))

	// Each top-level block owns the source from its first line up to the
	// next block's first line, so raw lengths add up to the document.
	var nodes []ast.Node
	var starts []int
	prevEnd := 0
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		start, ok := blockStart(n, src)
		if !ok {
			start = nextContentLine(src, prevEnd)
		}
		if len(starts) > 0 && start < starts[len(starts)-1] {
			start = starts[len(starts)-1]
		}
		nodes = append(nodes, n)
		starts = append(starts, start)
		prevEnd = blockEnd(n, src, start)
	}

	var blocks []Block
	if len(nodes) == 0 {
		if len(src) > 0 {
			blocks = append(blocks, Block{Kind: doctree.KindText, Raw: string(src)})
		}
		return assemble(titleFromFilename(filename), blocks), nil
	}
	if starts[0] > 0 {
		blocks = append(blocks, Block{Kind: doctree.KindText, Raw: string(src[:starts[0]])})
	}
	for k, n := range nodes {
		end := len(src)
		if k+1 < len(nodes) {
			end = starts[k+1]
		}
		blocks = append(blocks, markdownBlock(n, src, string(src[starts[k]:end])))
	}
	return assemble(titleFromFilename(filename), blocks), nil
}

func markdownBlock(n ast.Node, src []byte, raw string) Block {
	switch node := n.(type) {
	case *ast.Heading:
		return Block{Kind: doctree.KindHeading, Level: node.Level, Title: inlineText(node, src), Raw: raw}
	case *ast.Paragraph, *ast.TextBlock:
		return Block{Kind: doctree.KindParagraph, Raw: raw}
	case *ast.List:
		return Block{Kind: doctree.KindList, Raw: raw}
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		return Block{Kind: doctree.KindCodeBlock, Raw: raw}
	case *ast.Blockquote:
		return Block{Kind: doctree.KindQuote, Raw: raw}
	case *east.Table:
		return Block{Kind: doctree.KindTable, Raw: raw}
	case *ast.ThematicBreak:
		return Block{Kind: doctree.KindThematicBreak, Raw: raw}
	case *ast.HTMLBlock:
		return Block{Kind: doctree.KindHTMLBlock, Raw: raw}
	default:
		return Block{Kind: doctree.KindText, Raw: raw}
	}
}

// blockStart finds the offset of the line a block begins on.
func blockStart(n ast.Node, src []byte) (int, bool) {
	if fc, ok := n.(*ast.FencedCodeBlock); ok {
		if fc.Info != nil {
			return lineStart(src, fc.Info.Segment.Start), true
		}
		if fc.Lines().Len() > 0 {
			if ls := lineStart(src, fc.Lines().At(0).Start); ls > 0 {
				return lineStart(src, ls-1), true
			}
		}
		return 0, false
	}
	pos, ok := firstSegment(n)
	if !ok {
		return 0, false
	}
	return lineStart(src, pos), true
}

func firstSegment(n ast.Node) (int, bool) {
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		return n.Lines().At(0).Start, true
	}
	if t, ok := n.(*ast.Text); ok {
		return t.Segment.Start, true
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if pos, ok := firstSegment(c); ok {
			return pos, true
		}
	}
	return 0, false
}

func lastSegment(n ast.Node) (int, bool) {
	for c := n.LastChild(); c != nil; c = c.PreviousSibling() {
		if pos, ok := lastSegment(c); ok {
			return pos, true
		}
	}
	if t, ok := n.(*ast.Text); ok {
		return t.Segment.Stop, true
	}
	if n.Type() == ast.TypeBlock && n.Lines().Len() > 0 {
		return n.Lines().At(n.Lines().Len() - 1).Stop, true
	}
	return 0, false
}

// blockEnd approximates where a block's last line ends. It only matters for
// locating blocks that carry no segments of their own (thematic breaks).
func blockEnd(n ast.Node, src []byte, start int) int {
	stop, ok := lastSegment(n)
	if !ok || stop < start {
		stop = start
	}
	if stop > 0 && src[stop-1] != '\n' {
		stop = nextLine(src, stop)
	}
	if _, ok := n.(*ast.FencedCodeBlock); ok {
		stop = nextLine(src, stop)
	}
	if start == stop {
		stop = nextLine(src, stop)
	}
	return stop
}

func lineStart(src []byte, pos int) int {
	if pos > len(src) {
		pos = len(src)
	}
	return bytes.LastIndexByte(src[:pos], '\n') + 1
}

func nextLine(src []byte, pos int) int {
	if pos >= len(src) {
		return len(src)
	}
	if k := bytes.IndexByte(src[pos:], '\n'); k >= 0 {
		return pos + k + 1
	}
	return len(src)
}

func nextContentLine(src []byte, pos int) int {
	for pos < len(src) {
		end := nextLine(src, pos)
		if len(bytes.TrimSpace(src[pos:end])) > 0 {
			return pos
		}
		pos = end
	}
	return len(src)
}

// inlineText gets the plain text of a block's inline content.
func inlineText(n ast.Node, src []byte) string {
	var buf strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		switch t := n.(type) {
		case *ast.Text:
			buf.Write(t.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte(' ')
			}
			return
		case *ast.String:
			buf.Write(t.Value)
			return
		}
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}
