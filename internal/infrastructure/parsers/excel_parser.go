package parsers

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExcelParser parses Excel files (.xlsx, .xls)
type ExcelParser struct {
	config *ParserConfig
}

// NewExcelParser creates a new Excel parser
func NewExcelParser(config *ParserConfig) *ExcelParser {
	if config == nil {
		config = DefaultParserConfig()
	}
	return &ExcelParser{
		config: config,
	}
}

// Parse reads and parses the first sheet of an Excel file from disk
func (p *ExcelParser) Parse(ctx context.Context, filePath string) (*ParseResult, error) {
	f, err := p.openFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}
	return p.parseSheet(ctx, f, sheetName)
}

// ParseStream reads and parses the first sheet from an io.Reader
func (p *ExcelParser) ParseStream(ctx context.Context, reader io.Reader) (*ParseResult, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read Excel stream: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}
	return p.parseSheet(ctx, f, sheetName)
}

// ParseWorkbook parses every sheet of an Excel file, keyed by lowercased
// sheet name. Multi-sheet uploads (experiments / conditions / additives)
// come through here.
func (p *ExcelParser) ParseWorkbook(ctx context.Context, filePath string) (Workbook, error) {
	f, err := p.openFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return p.parseWorkbook(ctx, f)
}

// ParseWorkbookStream parses every sheet from an io.Reader
func (p *ExcelParser) ParseWorkbookStream(ctx context.Context, reader io.Reader) (Workbook, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read Excel stream: %w", err)
	}
	defer f.Close()

	return p.parseWorkbook(ctx, f)
}

func (p *ExcelParser) openFile(filePath string) (*excelize.File, error) {
	if p.config.MaxFileSize > 0 {
		stat, err := os.Stat(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to stat file: %w", err)
		}
		if stat.Size() > p.config.MaxFileSize {
			return nil, fmt.Errorf("file size %d exceeds maximum %d", stat.Size(), p.config.MaxFileSize)
		}
	}

	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	return f, nil
}

func (p *ExcelParser) parseWorkbook(ctx context.Context, f *excelize.File) (Workbook, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	workbook := make(Workbook, len(sheets))
	for _, sheetName := range sheets {
		result, err := p.parseSheet(ctx, f, sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		workbook[strings.ToLower(strings.TrimSpace(sheetName))] = result
	}
	return workbook, nil
}

// parseSheet extracts all rows of one sheet into records keyed by the
// (normalized) header row
func (p *ExcelParser) parseSheet(ctx context.Context, f *excelize.File, sheetName string) (*ParseResult, error) {
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows from sheet %s: %w", sheetName, err)
	}

	if len(rows) == 0 {
		return &ParseResult{
			Records:     []Record{},
			TotalRows:   0,
			SkippedRows: 0,
			Columns:     []string{},
			Format:      "XLSX",
		}, nil
	}

	// Extract header (first row)
	header := rows[0]
	if p.config.TrimWhitespace {
		for i := range header {
			header[i] = strings.TrimSpace(header[i])
		}
	}
	if p.config.NormalizeColumns {
		header = normalizeHeader(header)
	}

	records := make([]Record, 0, len(rows)-1)
	totalRows := 0
	skippedRows := 0

	// Process data rows (skip header)
	for rowIdx := 1; rowIdx < len(rows); rowIdx++ {
		// Check context cancellation
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		row := rows[rowIdx]
		totalRows++

		// Check if row is empty
		if p.config.SkipEmptyRows && isEmptyRow(row) {
			skippedRows++
			continue
		}

		// Convert row to Record
		record := make(Record)
		for i, colName := range header {
			if i < len(row) {
				value := row[i]
				if p.config.TrimWhitespace {
					value = strings.TrimSpace(value)
				}
				record[colName] = value
			} else {
				// Handle missing columns
				record[colName] = ""
			}
		}

		records = append(records, record)
	}

	return &ParseResult{
		Records:     records,
		TotalRows:   totalRows,
		SkippedRows: skippedRows,
		Columns:     header,
		Format:      "XLSX",
	}, nil
}

// SupportedFormats returns the file extensions this parser supports
func (p *ExcelParser) SupportedFormats() []string {
	return []string{".xlsx", ".xls"}
}
