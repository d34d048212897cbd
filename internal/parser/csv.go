package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docdiff/internal/doctree"
)

// csvBatchSize is the number of data rows grouped under one heading.
const csvBatchSize = 20

// CSVParser handles CSV files. The header row goes to the lead section and
// data rows are grouped into "Rows i-j" sections, one paragraph per row.
type CSVParser struct{}

func (p *CSVParser) Parse(r io.Reader, filename string) (*doctree.Tree, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	title := titleFromFilename(filename)
	if len(records) == 0 {
		return assemble(title, nil), nil
	}

	headers := records[0]
	blocks := []Block{{
		Kind: doctree.KindParagraph,
		Raw:  "Headers: " + strings.Join(headers, ", ") + "\n",
	}}

	dataRows := records[1:]
	for i := 0; i < len(dataRows); i += csvBatchSize {
		end := min(i+csvBatchSize, len(dataRows))
		heading := fmt.Sprintf("Rows %d-%d", i+2, end+1) // 1-indexed, skip header
		blocks = append(blocks, Block{Kind: doctree.KindHeading, Level: 1, Title: heading, Raw: heading + "\n"})
		for _, row := range dataRows[i:end] {
			blocks = append(blocks, Block{Kind: doctree.KindParagraph, Raw: csvRow(headers, row) + "\n"})
		}
	}
	return assemble(title, blocks), nil
}

func csvRow(headers, row []string) string {
	var text strings.Builder
	for j, cell := range row {
		if j > 0 {
			text.WriteString(", ")
		}
		if j < len(headers) {
			text.WriteString(headers[j] + ": " + cell)
		} else {
			text.WriteString(cell)
		}
	}
	return text.String()
}
