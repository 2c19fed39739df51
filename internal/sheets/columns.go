package sheets

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"tank-location-sync/internal/models"
)

// ColumnLetter converts a zero-based column index to A1 letters
func ColumnLetter(index int) string {
	var b []byte
	for n := index + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// ColumnIndex converts A1 letters back to a zero-based column index
func ColumnIndex(letters string) (int, error) {
	if letters == "" {
		return 0, fmt.Errorf("empty column")
	}
	n := 0
	for _, r := range strings.ToUpper(letters) {
		if r < 'A' || r > 'Z' {
			return 0, fmt.Errorf("invalid column %q", letters)
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1, nil
}

// quoteSheet renders a worksheet title for use in an A1 range
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func rowRange(sheet string, row int) string {
	return fmt.Sprintf("%s!%d:%d", quoteSheet(sheet), row, row)
}

func cellRange(sheet, column string, row int) string {
	return fmt.Sprintf("%s!%s%d", quoteSheet(sheet), column, row)
}

// rowValues turns a raw values row into physical column -> value, dropping blanks
func rowValues(raw []interface{}) map[string]string {
	values := make(map[string]string, len(raw))
	for i, cell := range raw {
		s := cellString(cell)
		if s == "" {
			continue
		}
		values[ColumnLetter(i)] = s
	}
	return values
}

func cellString(cell interface{}) string {
	if cell == nil {
		return ""
	}
	if s, ok := cell.(string); ok {
		return s
	}
	return fmt.Sprint(cell)
}

// denseRow lays values out from column A to the rightmost populated column
func denseRow(values map[string]string) ([]interface{}, error) {
	last := -1
	indexed := make(map[int]string, len(values))
	for column, v := range values {
		idx, err := ColumnIndex(column)
		if err != nil {
			return nil, err
		}
		indexed[idx] = v
		if idx > last {
			last = idx
		}
	}
	row := make([]interface{}, last+1)
	for i := range row {
		row[i] = indexed[i]
	}
	return row, nil
}

// Version derives the optimistic lock token of a row from its content
func Version(values map[string]string) string {
	columns := make([]string, 0, len(values))
	for c := range values {
		columns = append(columns, c)
	}
	sort.Slice(columns, func(i, j int) bool { return models.ColumnBefore(columns[i], columns[j]) })

	h := sha256.New()
	for _, c := range columns {
		fmt.Fprintf(h, "%s=%s\x00", c, values[c])
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
