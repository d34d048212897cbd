package parser

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docdiff/internal/doctree"
)

// Dialect names the markup a document snapshot is written in. It decides how
// structural markers (headings, blocks, inline constructs) are recognized.
type Dialect string

const (
	Wikitext Dialect = "wikitext"
	Markdown Dialect = "markdown"
	HTML     Dialect = "html"
	Text     Dialect = "text"
	CSV      Dialect = "csv"
	DOCX     Dialect = "docx"
	PDF      Dialect = "pdf"
)

// Dialects lists every supported dialect.
var Dialects = []Dialect{Wikitext, Markdown, HTML, Text, CSV, DOCX, PDF}

// Parser converts raw document bytes into a document tree.
type Parser interface {
	Parse(r io.Reader, filename string) (*doctree.Tree, error)
}

// extensions maps file extensions to dialects.
var extensions = map[string]Dialect{
	".wiki":     Wikitext,
	".wikitext": Wikitext,
	".mw":       Wikitext,
	".md":       Markdown,
	".markdown": Markdown,
	".html":     HTML,
	".htm":      HTML,
	".txt":      Text,
	".csv":      CSV,
	".docx":     DOCX,
	".pdf":      PDF,
}

// ParseDialect validates a dialect name.
func ParseDialect(s string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Dialects {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("unsupported dialect: %q", s)
}

// DialectForFile picks the dialect from a filename's extension.
func DialectForFile(filename string) (Dialect, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if d, ok := extensions[ext]; ok {
		return d, nil
	}
	return "", fmt.Errorf("unsupported file extension: %s", ext)
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	_, err := DialectForFile(filename)
	return err == nil
}

// ForDialect returns the parser for a dialect.
func ForDialect(d Dialect) (Parser, error) {
	switch d {
	case Wikitext:
		return &WikitextParser{}, nil
	case Markdown:
		return &MarkdownParser{}, nil
	case HTML:
		return &HTMLParser{}, nil
	case Text:
		return &TextParser{}, nil
	case CSV:
		return &CSVParser{}, nil
	case DOCX:
		return &DOCXParser{}, nil
	case PDF:
		return &PDFParser{FallbackPdftotext: true}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %q", d)
	}
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	d, err := DialectForFile(filename)
	if err != nil {
		return nil, err
	}
	return ForDialect(d)
}

// Build parses one document snapshot and never fails: a document that cannot
// be parsed degrades to a single lead section holding its raw text, or to a
// bare root when the bytes are not text.
func Build(d Dialect, data []byte, filename string, log *slog.Logger) *doctree.Tree {
	p, err := ForDialect(d)
	if err == nil {
		var tree *doctree.Tree
		tree, err = p.Parse(bytes.NewReader(data), filename)
		if err == nil {
			return tree
		}
	}
	if log != nil {
		log.Warn("parse failed, degrading to lead section", "dialect", d, "filename", filename, "error", err)
	}
	return Fallback(data, filename)
}

// Fallback builds the minimal tree for an unparsable document.
func Fallback(data []byte, filename string) *doctree.Tree {
	title := titleFromFilename(filename)
	if !utf8.Valid(data) || strings.TrimSpace(string(data)) == "" {
		return assemble(title, nil)
	}
	return assemble(title, []Block{{Kind: doctree.KindText, Raw: string(data)}})
}

func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	if base == "." || base == "/" {
		return ""
	}
	ext := filepath.Ext(base)
	if _, ok := extensions[strings.ToLower(ext)]; ok {
		return strings.TrimSuffix(base, ext)
	}
	return base
}
