package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docdiff/internal/doctree"
	"golang.org/x/net/html"
)

// HTMLParser handles HTML files. Markup is not preserved: every block's raw
// text is its rendered text, so offsets count characters of visible text.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*doctree.Tree, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := titleFromFilename(filename)
	if t := findTitle(doc); t != "" {
		title = t
	}

	var blocks []Block
	add := func(kind doctree.Kind, text string) {
		if text != "" {
			blocks = append(blocks, Block{Kind: kind, Raw: text + "\n\n"})
		}
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			add(doctree.KindText, strings.TrimSpace(n.Data))
			return
		case html.CommentNode:
			add(doctree.KindComment, strings.TrimSpace(n.Data))
			return
		case html.ElementNode:
			if level := headingLevel(n.Data); level > 0 {
				t := textContent(n)
				if t != "" {
					blocks = append(blocks, Block{Kind: doctree.KindHeading, Level: level, Title: t, Raw: t + "\n\n"})
				}
				return
			}
			switch n.Data {
			case "script", "style", "nav", "footer", "header", "head":
				return
			case "p":
				add(doctree.KindParagraph, textContent(n))
				return
			case "ul", "ol", "dl":
				add(doctree.KindList, listText(n))
				return
			case "pre":
				add(doctree.KindCodeBlock, strings.Trim(rawText(n), "\n"))
				return
			case "blockquote":
				add(doctree.KindQuote, textContent(n))
				return
			case "table":
				add(doctree.KindTable, tableText(n))
				return
			case "hr":
				add(doctree.KindThematicBreak, "---")
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	if body := findBody(doc); body != nil {
		walk(body)
	} else {
		walk(doc)
	}
	return assemble(title, blocks), nil
}

func headingLevel(tag string) int {
	if len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6' {
		return int(tag[1] - '0')
	}
	return 0
}

// textContent collapses an element's text to single-spaced words.
func textContent(n *html.Node) string {
	return strings.Join(strings.Fields(rawText(n)), " ")
}

func rawText(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && n.Data == "br" {
			buf.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)
	return buf.String()
}

// listText renders one line per item.
func listText(n *html.Node) string {
	var lines []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if t := textContent(c); t != "" {
			lines = append(lines, "- "+t)
		}
	}
	return strings.Join(lines, "\n")
}

// tableText renders one line per row with cells separated by " | ".
func tableText(n *html.Node) string {
	var rows []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "tr" {
			var cells []string
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				if c.Type == html.ElementNode && (c.Data == "td" || c.Data == "th") {
					cells = append(cells, textContent(c))
				}
			}
			rows = append(rows, strings.Join(cells, " | "))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(rows, "\n")
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}
