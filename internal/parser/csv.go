package parser

import (
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/dgallion1/docread/internal/convert"
	"github.com/dgallion1/docread/internal/doctree"
)

// CSVAdapter renders a CSV file as a single table, one row per line with
// cells separated by " | ".
type CSVAdapter struct{}

func (a *CSVAdapter) Load(path, _ string) (*doctree.Document, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(decodeText(data)))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, newError(CodeMalformedMarkup, path, fmt.Errorf("parse csv: %w", err))
	}

	buf := doctree.NewBuffer()
	w := convert.NewWalker(buf)
	if len(records) > 0 {
		w.Break(doctree.KindTable, strings.Join(records[0], " "), "")
	}
	for _, row := range records {
		w.Line(strings.Join(row, " | "))
	}
	return buf.Document(doctree.Meta{Title: baseTitle(path)}), nil
}

