package reader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const detectSample = 4096

// readCSV decodes data to UTF-8 and splits it on "," or ";", whichever the
// header line uses more.
func readCSV(data []byte) ([]Sheet, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var src io.Reader = bytes.NewReader(data)
	if dec := detectDecoder(data); dec != nil {
		src = transform.NewReader(src, dec.NewDecoder())
	}
	decoded, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(bytes.NewReader(decoded))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.Comma = delimiter(decoded)

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return []Sheet{{Name: "csv", Rows: rows}}, nil
}

// detectDecoder returns nil for UTF-8 input. Anything else is decoded with
// the detected single-byte charset, Windows-1252 when unsure.
func detectDecoder(data []byte) encoding.Encoding {
	if utf8.Valid(data) {
		return nil
	}
	sample := data
	if len(sample) > detectSample {
		sample = sample[:detectSample]
	}
	charset := ""
	if res, err := chardet.NewTextDetector().DetectBest(sample); err == nil && res != nil {
		charset = strings.ToLower(res.Charset)
	}
	switch charset {
	case "iso-8859-1":
		return charmap.ISO8859_1
	case "iso-8859-15":
		return charmap.ISO8859_15
	case "windows-1251":
		return charmap.Windows1251
	default:
		return charmap.Windows1252
	}
}

func delimiter(data []byte) rune {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		return ';'
	}
	return ','
}
