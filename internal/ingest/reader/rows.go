package reader

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	catalogdomain "github.com/smallbiznis/quicksearch/internal/catalog/domain"
	"github.com/smallbiznis/quicksearch/internal/ingest/domain"
	"github.com/smallbiznis/quicksearch/internal/textnorm"
)

var (
	nameHeaders     = []string{"producto", "descripcion", "nombre", "name", "producto_nombre", "item"}
	priceHeaders    = []string{"precio", "price", "unit_price", "mayorista", "wholesale", "valor"}
	skuHeaders      = []string{"sku", "codigo", "codigo_sku", "code"}
	currencyHeaders = []string{"moneda", "currency"}
	providerHeaders = []string{"proveedor", "provider"}
)

var errInvalidPrice = errors.New("invalid_price")

// Columns holds header positions, -1 when absent.
type Columns struct {
	Name     int
	Price    int
	SKU      int
	Currency int
	Provider int
}

// InferColumns maps a header row. Name falls back to the first column and
// price to the second.
func InferColumns(header []string) Columns {
	index := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ReplaceAll(textnorm.Normalize(h), " ", "_")
		if key == "" {
			continue
		}
		if _, ok := index[key]; !ok {
			index[key] = i
		}
	}
	pick := func(keys []string, fallback int) int {
		for _, k := range keys {
			if i, ok := index[k]; ok {
				return i
			}
		}
		if fallback < len(header) {
			return fallback
		}
		return -1
	}
	return Columns{
		Name:     pick(nameHeaders, 0),
		Price:    pick(priceHeaders, 1),
		SKU:      pick(skuHeaders, len(header)),
		Currency: pick(currencyHeaders, len(header)),
		Provider: pick(providerHeaders, len(header)),
	}
}

// Rows converts every non-blank data row of sheet. Rows without a name or
// a positive price are counted in skipped.
func Rows(sheet Sheet, fallbackProvider string) (rows []domain.Row, skipped int) {
	if len(sheet.Rows) == 0 {
		return nil, 0
	}
	cols := InferColumns(sheet.Rows[0])
	for _, record := range sheet.Rows[1:] {
		if blankRow(record) {
			continue
		}
		row, err := cols.row(record, fallbackProvider)
		if err != nil {
			skipped++
			continue
		}
		rows = append(rows, row)
	}
	return rows, skipped
}

func (c Columns) row(record []string, fallbackProvider string) (domain.Row, error) {
	name := cell(record, c.Name)
	if name == "" || strings.EqualFold(name, "nan") || strings.EqualFold(name, "none") {
		return domain.Row{}, domain.ErrSkippedRow
	}
	price, err := ParsePrice(cell(record, c.Price))
	if err != nil || !price.IsPositive() {
		return domain.Row{}, domain.ErrSkippedRow
	}
	currency := strings.ToUpper(cell(record, c.Currency))
	if currency == "" {
		currency = catalogdomain.DefaultCurrency
	}
	provider := cell(record, c.Provider)
	if provider == "" {
		provider = fallbackProvider
	}
	return domain.Row{
		Name:     name,
		Price:    price,
		Currency: currency,
		SKU:      cell(record, c.SKU),
		Provider: provider,
	}, nil
}

func cell(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return normalizeCell(record[i])
}

// ParsePrice accepts "1.234,56", "1234,56", "1,234.56" and "1234.56",
// optionally with a currency sign. A lone dot followed by exactly three
// digits groups thousands ("35.000"); otherwise it is the decimal point.
func ParsePrice(value string) (decimal.Decimal, error) {
	v := strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(value)), "ARS")
	v = strings.NewReplacer("$", "", " ", "", "\u00a0", "").Replace(v)
	if v == "" {
		return decimal.Zero, errInvalidPrice
	}

	dot := strings.LastIndex(v, ".")
	comma := strings.LastIndex(v, ",")
	switch {
	case dot >= 0 && comma >= 0:
		if comma > dot {
			v = strings.ReplaceAll(v, ".", "")
			v = strings.Replace(v, ",", ".", 1)
		} else {
			v = strings.ReplaceAll(v, ",", "")
		}
	case comma >= 0:
		if strings.Count(v, ",") > 1 {
			v = strings.ReplaceAll(v, ",", "")
		} else {
			v = strings.Replace(v, ",", ".", 1)
		}
	case strings.Count(v, ".") > 1:
		v = strings.ReplaceAll(v, ".", "")
	case dot >= 0 && len(v)-dot-1 == 3 && strings.TrimLeft(v[:dot], "-0") != "":
		v = strings.ReplaceAll(v, ".", "")
	}

	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, errInvalidPrice
	}
	return d.Round(2), nil
}
