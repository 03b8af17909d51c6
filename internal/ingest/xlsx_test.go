package ingest

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, preambleRows int, rows [][]interface{}) *bytes.Reader {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	rowNum := 1
	for i := 0; i < preambleRows; i++ {
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		require.NoError(t, f.SetSheetRow(sheet, cell, &[]interface{}{"preamble"}))
		rowNum++
	}
	for _, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
		rowNum++
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return bytes.NewReader(buf.Bytes())
}

func TestLoadXLSX(t *testing.T) {
	header := []interface{}{"시군구", "단지명", "전용면적(㎡)", "계약년월", "계약일", "거래금액(만원)", "층"}

	t.Run("parses rows after the preamble", func(t *testing.T) {
		wb := buildWorkbook(t, 15, [][]interface{}{
			header,
			{"울산광역시 남구 신정동", "대공원한신", "84.94", "202401", "5", "38,000", "10"},
		})

		deals, err := LoadXLSX(wb, FileOptions{SkipRows: 15})
		require.NoError(t, err)
		require.Len(t, deals, 1)
		assert.Equal(t, "대공원한신", deals[0].ComplexName)
		assert.Equal(t, "38,000", deals[0].PriceRaw)
	})

	t.Run("wrong skip count is a schema error", func(t *testing.T) {
		wb := buildWorkbook(t, 15, [][]interface{}{
			header,
			{"울산광역시 남구 신정동", "대공원한신", "84.94", "202401", "5", "38,000", "10"},
		})

		_, err := LoadXLSX(wb, FileOptions{SkipRows: 16})

		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, KindSchema, loadErr.Kind)
	})

	t.Run("not a workbook is a structure error", func(t *testing.T) {
		_, err := LoadXLSX(bytes.NewReader([]byte("plain text, not a zip")), FileOptions{})

		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, KindStructure, loadErr.Kind)
	})
}
