// Package reader turns uploaded price lists into sheets of string cells.
package reader

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/smallbiznis/quicksearch/internal/ingest/domain"
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
)

// Sheet is one worksheet; Rows[0] is the header row.
type Sheet struct {
	Name string
	Rows [][]string
}

// DetectFormat picks the reader by file extension.
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return FormatXLSX, nil
	case ".xls":
		return FormatXLS, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, filename)
	}
}

func Read(format Format, data []byte) ([]Sheet, error) {
	switch format {
	case FormatXLSX:
		return readXLSX(data)
	case FormatXLS:
		return readXLS(data)
	case FormatCSV:
		return readCSV(data)
	default:
		return nil, domain.ErrUnsupportedFormat
	}
}

// ProviderFromFilename is the upper-cased base name without extension.
func ProviderFromFilename(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ToUpper(strings.TrimSpace(base))
}

func normalizeCell(v string) string {
	v = strings.ReplaceAll(v, "\u00a0", " ")
	return strings.TrimSpace(v)
}

func blankRow(row []string) bool {
	for _, v := range row {
		if normalizeCell(v) != "" {
			return false
		}
	}
	return true
}
