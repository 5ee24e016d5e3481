package bulkupload

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// cellString renders a record value as a trimmed string; nil becomes "".
func cellString(value interface{}) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprintf("%v", value))
}

// parseBool reads the spreadsheet spellings of a flag. Anything else,
// including blank, is false.
func parseBool(value interface{}) bool {
	switch strings.ToLower(cellString(value)) {
	case "true", "yes", "y", "1":
		return true
	}
	return false
}

// parseFloat accepts numeric cells and their text renderings.
func parseFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	}
	text := cellString(value)
	if text == "" {
		return 0, fmt.Errorf("empty value")
	}
	return strconv.ParseFloat(text, 64)
}

// parseOptionalInt is best-effort: unparsable values degrade to nil rather
// than rejecting the row.
func parseOptionalInt(value interface{}) *int {
	f, err := parseFloat(value)
	if err != nil {
		return nil
	}
	n := int(f)
	return &n
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
}

// parseOptionalDate is best-effort: unparsable dates degrade to nil.
func parseOptionalDate(value interface{}) *time.Time {
	text := cellString(value)
	if text == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return &t
		}
	}
	return nil
}
