package reader

import (
	"bytes"
	"errors"

	xls "github.com/extrame/xls"
)

// Some writers leave LastCol unset, so the width is scanned.
const xlsScanCols = 64

func readXLS(data []byte) ([]Sheet, error) {
	var (
		wb      *xls.WorkBook
		lastErr error
	)
	for _, charset := range []string{"utf-8", "windows-1252"} {
		book, err := xls.OpenReader(bytes.NewReader(data), charset)
		if err == nil && book != nil {
			wb = book
			break
		}
		lastErr = err
	}
	if wb == nil {
		if lastErr == nil {
			lastErr = errors.New("xls: failed to open workbook")
		}
		return nil, lastErr
	}

	var sheets []Sheet
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		width := xlsWidth(sheet)
		rows := make([][]string, 0, int(sheet.MaxRow)+1)
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			cols := make([]string, width)
			if row != nil {
				for c := 0; c < width; c++ {
					cols[c] = normalizeCell(row.Col(c))
				}
			}
			rows = append(rows, cols)
		}
		sheets = append(sheets, Sheet{Name: sheet.Name, Rows: rows})
	}
	return sheets, nil
}

func xlsWidth(sheet *xls.WorkSheet) int {
	width := 0
	for r := 0; r <= int(sheet.MaxRow); r++ {
		row := sheet.Row(r)
		if row == nil {
			continue
		}
		for c := width; c < xlsScanCols; c++ {
			if normalizeCell(row.Col(c)) != "" {
				width = c + 1
			}
		}
	}
	if width == 0 {
		width = 1
	}
	return width
}
