package spreadsheet

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sheet is the first worksheet of an uploaded workbook reduced to a
// header row plus string-valued data rows. Cells missing from a row are
// present as empty strings so template expansion sees every column.
type Sheet struct {
	Headers []string
	Rows    []map[string]string
}

// Read opens an xlsx workbook and extracts its first worksheet.
func Read(path string) (*Sheet, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no worksheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read worksheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("worksheet %q is empty", sheets[0])
	}

	headers := make([]string, 0, len(rows[0]))
	for _, h := range rows[0] {
		headers = append(headers, strings.TrimSpace(h))
	}

	sheet := &Sheet{Headers: headers}
	for _, raw := range rows[1:] {
		row := make(map[string]string, len(headers))
		empty := true
		for i, header := range headers {
			if header == "" {
				continue
			}
			value := ""
			if i < len(raw) {
				value = strings.TrimSpace(raw[i])
			}
			if value != "" {
				empty = false
			}
			row[header] = value
		}
		// Trailing blank rows are common in hand-edited workbooks
		if empty {
			continue
		}
		sheet.Rows = append(sheet.Rows, row)
	}

	return sheet, nil
}

// FindColumn resolves a column name case-insensitively and returns the
// actual header as it appears in the sheet.
func (s *Sheet) FindColumn(name string) (string, bool) {
	for _, header := range s.Headers {
		if strings.EqualFold(header, name) {
			return header, true
		}
	}
	return "", false
}
