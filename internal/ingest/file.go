package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/korean"
)

// LoadCSV parses a ministry CSV export according to opts. On failure the
// returned error is a *LoadError whose kind tells decoding, structure and
// schema failures apart.
func LoadCSV(r io.Reader, opts FileOptions) ([]RawDeal, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, StructureError("failed to read file", err)
	}

	text, lerr := decodeText(raw, opts.Encoding)
	if lerr != nil {
		return nil, lerr
	}

	lines := splitLines(text)
	if len(lines) <= opts.SkipRows {
		return nil, StructureError(
			fmt.Sprintf("file has %d lines but header skip is %d", len(lines), opts.SkipRows), nil)
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines[opts.SkipRows:], "\n")))
	records, err := reader.ReadAll()
	if err != nil {
		return nil, StructureError("malformed delimited structure", err)
	}

	return tableFromRows(records)
}

// LoadXLSX parses the spreadsheet flavor of the same export. Cell values are
// already text, so the encoding option does not apply; the skip/strip/schema
// contract is identical to the CSV path.
func LoadXLSX(r io.Reader, opts FileOptions) ([]RawDeal, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, StructureError("failed to open workbook", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, StructureError("workbook has no sheets", nil)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, StructureError("failed to read sheet", err)
	}
	if len(rows) <= opts.SkipRows {
		return nil, StructureError(
			fmt.Sprintf("sheet has %d rows but header skip is %d", len(rows), opts.SkipRows), nil)
	}

	return tableFromRows(rows[opts.SkipRows:])
}

// decodeText converts the raw bytes to UTF-8 text per the declared encoding.
// x/text decoders substitute U+FFFD instead of failing, so a replacement
// rune in the output is what a wrong-codepage file actually looks like.
func decodeText(raw []byte, enc Encoding) (string, *LoadError) {
	switch enc {
	case EncodingUTF8:
		if !utf8.Valid(raw) {
			return "", DecodingError(
				"file is not valid UTF-8",
				"ministry exports are usually CP949; switch the encoding option")
		}
		return string(bytes.TrimPrefix(raw, []byte("\ufeff"))), nil
	default:
		decoded, err := korean.EUCKR.NewDecoder().Bytes(raw)
		if err != nil || bytes.ContainsRune(decoded, utf8.RuneError) {
			return "", DecodingError(
				"file does not decode as CP949",
				"the file was probably re-saved as UTF-8; switch the encoding option")
		}
		return string(decoded), nil
	}
}

// splitLines normalizes line endings and drops a trailing empty line
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// tableFromRows maps a header row plus data rows onto RawDeals. Header
// labels are whitespace-stripped before matching; the required-column check
// reports exactly which named fields are absent.
func tableFromRows(rows [][]string) ([]RawDeal, error) {
	if len(rows) == 0 {
		return nil, StructureError("table has no header row", nil)
	}

	columns := make(map[string]int, len(rows[0]))
	for i, header := range rows[0] {
		columns[strings.TrimSpace(header)] = i
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := columns[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, SchemaError(missing)
	}

	cell := func(row []string, col string) string {
		idx, ok := columns[col]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	deals := make([]RawDeal, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isEmptyRow(row) {
			continue
		}
		deals = append(deals, RawDeal{
			RawAddress:  cell(row, ColAddress),
			ComplexName: cell(row, ColComplex),
			AreaSqm:     cell(row, ColArea),
			ContractYM:  cell(row, ColYM),
			ContractDay: cell(row, ColDay),
			PriceRaw:    cell(row, ColPrice),
			Floor:       cell(row, ColFloor),
		})
	}

	return deals, nil
}

// isEmptyRow reports whether every cell is blank
func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
