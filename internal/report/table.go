// Package report renders run results and target listings for the terminal.
package report

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// minColumnWidth is the width of the shortest separator ("---").
const minColumnWidth = 3

// RenderTable lays out header and rows as a pipe table. Columns are padded by
// display width so CJK text lines up.
func RenderTable(header []string, rows [][]string) []string {
	colCount := len(header)
	for _, row := range rows {
		if len(row) > colCount {
			colCount = len(row)
		}
	}

	if colCount == 0 {
		return nil
	}

	colWidths := make([]int, colCount)

	measure := func(row []string) {
		for i := 0; i < len(row) && i < colCount; i++ {
			if w := runewidth.StringWidth(row[i]); w > colWidths[i] {
				colWidths[i] = w
			}
		}
	}

	measure(header)

	for _, row := range rows {
		measure(row)
	}

	for i := range colWidths {
		if colWidths[i] < minColumnWidth {
			colWidths[i] = minColumnWidth
		}
	}

	result := make([]string, 0, len(rows)+2)
	result = append(result, renderRow(header, colWidths, false))
	result = append(result, renderRow(nil, colWidths, true))

	for _, row := range rows {
		result = append(result, renderRow(row, colWidths, false))
	}

	return result
}

func renderRow(row []string, colWidths []int, separator bool) string {
	var sb strings.Builder

	sb.WriteString("|")

	for j, width := range colWidths {
		sb.WriteString(" ")

		if separator {
			sb.WriteString(strings.Repeat("-", width))
		} else {
			content := ""
			if j < len(row) {
				content = row[j]
			}

			sb.WriteString(content)

			if padding := width - runewidth.StringWidth(content); padding > 0 {
				sb.WriteString(strings.Repeat(" ", padding))
			}
		}

		sb.WriteString(" |")
	}

	return sb.String()
}

// Truncate shortens s to at most width display columns, marking the cut
// with an ellipsis.
func Truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}
