package parsers

import (
	"context"
	"io"
	"strings"
)

// Record represents a single data record as a map
type Record map[string]interface{}

// ParseResult contains parsing statistics
type ParseResult struct {
	Records      []Record
	TotalRows    int
	SkippedRows  int
	Columns      []string
	Format       string
	ParsingError error
}

// Workbook is the parsed form of a multi-sheet upload, keyed by lowercased
// sheet name. Single-sheet formats parse into a one-entry workbook.
type Workbook map[string]*ParseResult

// Sheet returns the parse result for a sheet by case-insensitive name.
func (w Workbook) Sheet(name string) (*ParseResult, bool) {
	result, ok := w[strings.ToLower(strings.TrimSpace(name))]
	return result, ok
}

// FileParser is the interface all parsers must implement
type FileParser interface {
	// Parse reads and parses the file from the given path
	Parse(ctx context.Context, filePath string) (*ParseResult, error)

	// ParseStream reads and parses from an io.Reader
	ParseStream(ctx context.Context, reader io.Reader) (*ParseResult, error)

	// SupportedFormats returns the file extensions this parser supports
	SupportedFormats() []string
}

// WorkbookParser is implemented by parsers of formats that carry multiple
// named sheets per file.
type WorkbookParser interface {
	ParseWorkbook(ctx context.Context, filePath string) (Workbook, error)
	ParseWorkbookStream(ctx context.Context, reader io.Reader) (Workbook, error)
}

// ParserConfig holds configuration for all parsers
type ParserConfig struct {
	// MaxRowsInMemory limits how many rows to keep in memory at once (for streaming)
	MaxRowsInMemory int

	// SkipEmptyRows determines if empty rows should be skipped
	SkipEmptyRows bool

	// TrimWhitespace determines if cell values should be trimmed
	TrimWhitespace bool

	// NormalizeColumns strips display decorations from header names so they
	// match the core field vocabulary
	NormalizeColumns bool

	// MaxFileSize is the maximum file size in bytes (0 = unlimited)
	MaxFileSize int64
}

// DefaultParserConfig returns sensible defaults
func DefaultParserConfig() *ParserConfig {
	return &ParserConfig{
		MaxRowsInMemory:  10000,
		SkipEmptyRows:    true,
		TrimWhitespace:   true,
		NormalizeColumns: true,
		MaxFileSize:      500 * 1024 * 1024, // 500 MB
	}
}

// NormalizeColumn strips display decorations from a sheet header: required
// markers ("experiment_id*"), parenthetical hints ("amount (per dose)") and
// surrounding whitespace, then lowercases and snake-cases what remains.
// Downstream row handling assumes headers already match its field names.
func NormalizeColumn(name string) string {
	if i := strings.Index(name, "("); i >= 0 {
		name = name[:i]
	}
	name = strings.ReplaceAll(name, "*", "")
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.Join(strings.Fields(name), "_")
}

// normalizeHeader applies NormalizeColumn across a header row.
func normalizeHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = NormalizeColumn(h)
	}
	return out
}
