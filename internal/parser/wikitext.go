package parser

import (
	"io"
	"regexp"
	"slices"
	"strings"

	"github.com/dgallion1/docdiff/internal/doctree"
)

// WikitextParser handles MediaWiki markup. Headings are `=`-delimited lines;
// section bodies are split into text runs and the inline constructs between
// them (templates, links, tags, comments, tables).
type WikitextParser struct{}

func (p *WikitextParser) Parse(r io.Reader, filename string) (*doctree.Tree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return assemble(titleFromFilename(filename), wikitextBlocks(string(src))), nil
}

var wikiHeadingRe = regexp.MustCompile(`^(={1,6})(.+?)(={1,6})[ \t]*$`)

var urlSchemes = []string{"http://", "https://", "ftp://", "irc://", "mailto:", "news:", "//"}

func wikitextBlocks(src string) []Block {
	sc := newWikiScanner(src)
	var blocks []Block
	textStart := 0
	flushText := func(end int) {
		if end > textStart {
			blocks = appendText(blocks, src[textStart:end])
		}
	}

	for i := 0; i < len(src); {
		if i == 0 || src[i-1] == '\n' {
			lineEnd := len(src)
			if k := strings.IndexByte(src[i:], '\n'); k >= 0 {
				lineEnd = i + k + 1
			}
			if level, title, ok := wikiHeading(src[i:lineEnd]); ok {
				flushText(i)
				blocks = append(blocks, Block{Kind: doctree.KindHeading, Level: level, Title: title, Raw: src[i:lineEnd]})
				i = lineEnd
				textStart = i
				continue
			}
		}
		if kind, end := sc.construct(i); end > i {
			flushText(i)
			blocks = append(blocks, Block{Kind: kind, Raw: src[i:end]})
			i = end
			textStart = i
			continue
		}
		i++
	}
	flushText(len(src))
	return blocks
}

// appendText adds a text run, folding whitespace-only runs into the previous
// block so they never become nodes of their own.
func appendText(blocks []Block, s string) []Block {
	if strings.TrimSpace(s) == "" && len(blocks) > 0 {
		blocks[len(blocks)-1].Raw += s
		return blocks
	}
	return append(blocks, Block{Kind: doctree.KindText, Raw: s})
}

func wikiHeading(line string) (int, string, bool) {
	m := wikiHeadingRe.FindStringSubmatch(strings.TrimRight(line, "\r\n"))
	if m == nil {
		return 0, "", false
	}
	title := strings.TrimSpace(m[2])
	if title == "" {
		return 0, "", false
	}
	return min(len(m[1]), len(m[3])), title, true
}

// wikiScanner answers "where does the construct opened here end" from
// indexes built in a few linear passes, so unterminated openers never cause
// a rescan of the rest of the document.
type wikiScanner struct {
	src string

	templates, tables, links map[int]int // opener offset -> offset past its close
	gts                      []int       // offsets of '>'
	linkStops                []int       // offsets of ']' and '\n'
	closers                  map[string][]int
}

func newWikiScanner(src string) *wikiScanner {
	sc := &wikiScanner{
		src:       src,
		templates: bracketPairs(src, "{{", "}}"),
		tables:    bracketPairs(src, "{|", "|}"),
		links:     bracketPairs(src, "[[", "]]"),
		closers:   map[string][]int{},
	}
	for j := 0; j < len(src); j++ {
		switch src[j] {
		case '>':
			sc.gts = append(sc.gts, j)
		case ']', '\n':
			sc.linkStops = append(sc.linkStops, j)
		case '<':
			if j+1 < len(src) && src[j+1] == '/' {
				if name := tagName(src, j+2); name != "" {
					sc.closers[name] = append(sc.closers[name], j)
				}
			}
		}
	}
	return sc
}

// construct recognizes an inline construct starting at i and returns its
// kind and end offset; end == i means none starts there.
func (sc *wikiScanner) construct(i int) (doctree.Kind, int) {
	src := sc.src
	s := src[i:]
	switch {
	case strings.HasPrefix(s, "<!--"):
		if k := strings.Index(s[4:], "-->"); k >= 0 {
			return doctree.KindComment, i + 4 + k + 3
		}
		return doctree.KindComment, len(src)
	case strings.HasPrefix(s, "{{"):
		if end, ok := sc.templates[i]; ok {
			return doctree.KindTemplate, end
		}
	case strings.HasPrefix(s, "{|") && (i == 0 || src[i-1] == '\n'):
		if end, ok := sc.tables[i]; ok {
			return doctree.KindTag, end
		}
	case strings.HasPrefix(s, "[["):
		if end, ok := sc.links[i]; ok {
			return doctree.KindWikilink, end
		}
	case s[0] == '[' && hasURLScheme(s[1:]):
		if k := next(sc.linkStops, i); k > i && src[k] == ']' {
			return doctree.KindExternalLink, k + 1
		}
	case s[0] == '<':
		if end := sc.matchTag(i); end > 0 {
			return doctree.KindTag, end
		}
	}
	return "", i
}

func hasURLScheme(s string) bool {
	for _, scheme := range urlSchemes {
		if len(s) >= len(scheme) && strings.EqualFold(s[:len(scheme)], scheme) {
			return true
		}
	}
	return false
}

// bracketPairs matches every open delimiter with the close that brings the
// nesting depth back to zero. Openers never closed are absent. An opener
// straddling another token (the second "{{" of "{{{") is absent as well.
func bracketPairs(src, opener, closer string) map[int]int {
	ends := map[int]int{}
	var stack []int
	for j := 0; j < len(src); {
		switch {
		case strings.HasPrefix(src[j:], opener):
			stack = append(stack, j)
			j += len(opener)
		case strings.HasPrefix(src[j:], closer):
			j += len(closer)
			if len(stack) > 0 {
				ends[stack[len(stack)-1]] = j
				stack = stack[:len(stack)-1]
			}
		default:
			j++
		}
	}
	return ends
}

// next returns the first offset in the sorted list at or after from, or -1.
func next(offsets []int, from int) int {
	k, _ := slices.BinarySearch(offsets, from)
	if k == len(offsets) {
		return -1
	}
	return offsets[k]
}

// matchTag returns the end of an HTML-style tag starting at i: a
// self-closing tag, an element up to its closing tag, or a lone opening tag.
func (sc *wikiScanner) matchTag(i int) int {
	src := sc.src
	name := tagName(src, i+1)
	if name == "" {
		return -1
	}
	gt := next(sc.gts, i+1+len(name))
	if gt < 0 {
		return -1
	}
	openEnd := gt + 1
	if src[openEnd-2] == '/' {
		return openEnd
	}
	closeStart := next(sc.closers[name], openEnd)
	if closeStart < 0 {
		return openEnd
	}
	if m := next(sc.gts, closeStart); m >= 0 {
		return m + 1
	}
	return len(src)
}

// tagName returns the lowercased tag name starting at j, or "".
func tagName(src string, j int) string {
	k := j
	for k < len(src) && isTagNameByte(src[k], k == j) {
		k++
	}
	return strings.ToLower(src[j:k])
}

func isTagNameByte(c byte, first bool) bool {
	if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' {
		return true
	}
	return !first && c >= '0' && c <= '9'
}
