package parser

import (
	"io"
	"strings"

	"github.com/dgallion1/docdiff/internal/doctree"
)

// TextParser handles plain text files. Text has no headings, so every
// blank-line separated paragraph lands in the lead section.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.Tree, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return assemble(titleFromFilename(filename), paragraphBlocks(string(src))), nil
}

// paragraphBlocks splits text on blank lines. Each block keeps the blank
// lines that follow it so raw lengths add up to the input.
func paragraphBlocks(src string) []Block {
	var blocks []Block
	var current strings.Builder
	blank := false
	for _, line := range strings.SplitAfter(src, "\n") {
		if line == "" {
			continue
		}
		isBlank := strings.TrimSpace(line) == ""
		if !isBlank && blank && current.Len() > 0 {
			blocks = append(blocks, Block{Kind: doctree.KindParagraph, Raw: current.String()})
			current.Reset()
		}
		current.WriteString(line)
		blank = isBlank
	}
	if current.Len() > 0 {
		blocks = append(blocks, Block{Kind: doctree.KindParagraph, Raw: current.String()})
	}
	return blocks
}
