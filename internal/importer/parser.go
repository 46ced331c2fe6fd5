package importer

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/GTDGit/catalog_api/internal/models"
)

// Format is the declared encoding of an uploaded spreadsheet.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ImagesColumn is the normalized header of the referenced-images column.
const ImagesColumn = "images"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ParseResult is the output of Parse.
type ParseResult struct {
	Headers         []string
	Rows            []models.ImportRow
	ReferencedFiles map[string]struct{}
}

// ReferencedNames returns the referenced filenames in first-seen row order.
func (r *ParseResult) ReferencedNames() []string {
	var names []string
	seen := make(map[string]struct{}, len(r.ReferencedFiles))
	for _, row := range r.Rows {
		for _, name := range row.Images {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

// DetectFormat maps a spreadsheet filename to its Format by extension.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".xlsx", ".xlsm", ".xls":
		return FormatXLSX, nil
	}
	return "", &ValidationError{Message: fmt.Sprintf("unsupported spreadsheet type %q: use .csv or .xlsx", filepath.Ext(filename))}
}

// Parse reads a spreadsheet into ordered rows and the set of image filenames the
// rows reference. Headers are normalized (trimmed, lowercased) for both formats.
func Parse(data []byte, format Format) (*ParseResult, error) {
	var (
		headers []string
		records []record
		err     error
	)
	switch format {
	case FormatCSV:
		headers, records = readDelimited(data)
	case FormatXLSX:
		headers, records, err = readWorkbook(data)
		if err != nil {
			return nil, err
		}
	default:
		return nil, &ValidationError{Message: fmt.Sprintf("unsupported spreadsheet format %q", format)}
	}

	res := &ParseResult{
		Headers:         headers,
		Rows:            make([]models.ImportRow, 0, len(records)),
		ReferencedFiles: make(map[string]struct{}),
	}
	for i, rec := range records {
		row := models.ImportRow{Index: i, Line: rec.line, Fields: make(map[string]string, len(headers))}
		for col, h := range headers {
			if col < len(rec.fields) {
				row.Fields[h] = rec.fields[col]
			} else {
				row.Fields[h] = ""
			}
		}
		row.Images = ReferencedImages(row.Fields[ImagesColumn])
		for _, name := range row.Images {
			res.ReferencedFiles[name] = struct{}{}
		}
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

// ReferencedImages splits an images cell into filenames, dropping URLs and blanks.
func ReferencedImages(cell string) []string {
	if strings.TrimSpace(cell) == "" {
		return nil
	}
	var out []string
	for _, tok := range strings.Split(cell, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" || IsURL(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// ReferencedURLs returns the absolute image URLs of an images cell.
func ReferencedURLs(cell string) []string {
	var out []string
	for _, tok := range strings.Split(cell, ",") {
		tok = strings.TrimSpace(tok)
		if IsURL(tok) {
			out = append(out, tok)
		}
	}
	return out
}

// IsURL reports whether s is an http(s) URL rather than a filename.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// record is one data row with its 1-based line (or sheet row) number.
type record struct {
	line   int
	fields []string
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// readDelimited parses CSV text line by line. Fewer than two non-blank lines
// yields a header (possibly empty) and no records.
func readDelimited(data []byte) ([]string, []record) {
	data = bytes.TrimPrefix(data, utf8BOM)

	var lines []record
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, record{line: i + 1, fields: splitFields(line)})
	}
	if len(lines) == 0 {
		return nil, nil
	}

	headers := lines[0].fields
	for i := range headers {
		headers[i] = normalizeHeader(headers[i])
	}
	if len(lines) < 2 {
		return headers, nil
	}

	records := lines[1:]
	for i, rec := range records {
		// Unquoted commas in the last column spill into extra fields; fold them back.
		if n := len(headers); n > 0 && len(rec.fields) > n {
			records[i].fields = append(rec.fields[:n-1], strings.Join(rec.fields[n-1:], ","))
		}
	}
	return headers, records
}

// splitFields splits one CSV line on commas outside quotes. The quote state flips
// on every '"' seen and quote characters are dropped; doubled quotes are not
// unescaped.
func splitFields(line string) []string {
	var (
		fields  []string
		current strings.Builder
		quoted  bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == ',' && !quoted:
			fields = append(fields, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	fields = append(fields, strings.TrimSpace(current.String()))
	return fields
}

// readWorkbook reads the first sheet of an XLSX workbook. The first row is the
// header; short rows are padded with empty strings by Parse.
func readWorkbook(data []byte) ([]string, []record, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, &ParseError{Err: fmt.Errorf("failed to open workbook: %w", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, &ParseError{Err: fmt.Errorf("workbook has no sheets")}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, &ParseError{Err: fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)}
	}
	if len(rows) == 0 {
		return nil, nil, nil
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = normalizeHeader(h)
	}

	records := make([]record, 0, len(rows)-1)
	for i, r := range rows[1:] {
		empty := true
		for j := range r {
			r[j] = strings.TrimSpace(r[j])
			if r[j] != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		records = append(records, record{line: i + 2, fields: r})
	}
	return headers, records, nil
}
