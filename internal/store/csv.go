package store

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"bbsharvest/internal/models"
)

// csvBOM makes spreadsheet tools detect UTF-8.
var csvBOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCSV writes records as a flat table. The header is the sorted union of
// all field names; list and object fields are written as their JSON text.
func WriteCSV(w io.Writer, records []models.ArticleRecord) error {
	rows := make([]map[string]json.RawMessage, 0, len(records))
	columns := make(map[string]struct{})

	for i := range records {
		data, err := encodeJSON(&records[i], false)
		if err != nil {
			return fmt.Errorf("failed to encode record %q: %w", records[i].ID, err)
		}

		var row map[string]json.RawMessage
		if err := json.Unmarshal(data, &row); err != nil {
			return fmt.Errorf("failed to flatten record %q: %w", records[i].ID, err)
		}

		for k := range row {
			columns[k] = struct{}{}
		}

		rows = append(rows, row)
	}

	header := make([]string, 0, len(columns))
	for k := range columns {
		header = append(header, k)
	}

	sort.Strings(header)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	line := make([]string, len(header))

	for _, row := range rows {
		for i, col := range header {
			cell, err := csvCell(row[col])
			if err != nil {
				return fmt.Errorf("failed to encode column %s: %w", col, err)
			}

			line[i] = cell
		}

		if err := cw.Write(line); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}

	cw.Flush()

	return cw.Error()
}

// csvCell renders one JSON value as a CSV cell.
func csvCell(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}

		return s, nil
	case '[', '{':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", err
		}

		return buf.String(), nil
	case 't', 'f':
		b, err := strconv.ParseBool(string(raw))
		if err != nil {
			return "", err
		}

		return strconv.FormatBool(b), nil
	default:
		return string(raw), nil
	}
}
