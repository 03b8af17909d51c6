package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"
)

const sampleCSV = "시군구,단지명,전용면적(㎡),계약년월,계약일,거래금액(만원),층\n" +
	"울산광역시 남구 신정동,대공원한신,84.94,202401,5,\"38,000\",10\n" +
	"울산광역시 남구 신정동,대공원한신,84.94,202402,12,\"38,500\",7\n"

func withPreamble(body string, lines int) string {
	var b strings.Builder
	for i := 0; i < lines; i++ {
		b.WriteString("preamble line\n")
	}
	b.WriteString(body)
	return b.String()
}

func TestLoadCSV(t *testing.T) {
	t.Run("parses rows after the preamble", func(t *testing.T) {
		input := withPreamble(sampleCSV, 15)
		deals, err := LoadCSV(strings.NewReader(input), FileOptions{SkipRows: 15, Encoding: EncodingUTF8})
		require.NoError(t, err)
		require.Len(t, deals, 2)

		assert.Equal(t, "울산광역시 남구 신정동", deals[0].RawAddress)
		assert.Equal(t, "대공원한신", deals[0].ComplexName)
		assert.Equal(t, "84.94", deals[0].AreaSqm)
		assert.Equal(t, "202401", deals[0].ContractYM)
		assert.Equal(t, "5", deals[0].ContractDay)
		assert.Equal(t, "38,000", deals[0].PriceRaw)
		assert.Equal(t, "10", deals[0].Floor)
	})

	t.Run("skips fully empty rows", func(t *testing.T) {
		input := sampleCSV + ",,,,,,\n"
		deals, err := LoadCSV(strings.NewReader(input), FileOptions{SkipRows: 0, Encoding: EncodingUTF8})
		require.NoError(t, err)
		assert.Len(t, deals, 2)
	})

	t.Run("strips a UTF-8 BOM", func(t *testing.T) {
		input := "\ufeff" + sampleCSV
		deals, err := LoadCSV(strings.NewReader(input), FileOptions{SkipRows: 0, Encoding: EncodingUTF8})
		require.NoError(t, err)
		assert.Len(t, deals, 2)
	})

	t.Run("decodes a CP949 export", func(t *testing.T) {
		encoded, err := korean.EUCKR.NewEncoder().String(withPreamble(sampleCSV, 15))
		require.NoError(t, err)

		deals, err := LoadCSV(strings.NewReader(encoded), FileOptions{SkipRows: 15, Encoding: EncodingCP949})
		require.NoError(t, err)
		require.Len(t, deals, 2)
		assert.Equal(t, "대공원한신", deals[0].ComplexName)
	})
}

func TestLoadCSVFailureKinds(t *testing.T) {
	t.Run("wrong skip count lands on a non-header line", func(t *testing.T) {
		// Header is at line 0 but the caller skips 2: the required columns
		// cannot be found and every one of them is named in the error.
		input := sampleCSV
		_, err := LoadCSV(strings.NewReader(input), FileOptions{SkipRows: 2, Encoding: EncodingUTF8})

		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, KindSchema, loadErr.Kind)
		assert.ElementsMatch(t, RequiredColumns, loadErr.MissingFields)
		assert.NotEmpty(t, loadErr.Hint)
	})

	t.Run("skip larger than the file is a structure error", func(t *testing.T) {
		_, err := LoadCSV(strings.NewReader(sampleCSV), FileOptions{SkipRows: 100, Encoding: EncodingUTF8})

		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, KindStructure, loadErr.Kind)
	})

	t.Run("ragged quoting is a structure error", func(t *testing.T) {
		input := "시군구,단지명,전용면적(㎡),계약년월,계약일,거래금액(만원)\n" +
			"a,b,c\"broken\n"
		_, err := LoadCSV(strings.NewReader(input), FileOptions{SkipRows: 0, Encoding: EncodingUTF8})

		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, KindStructure, loadErr.Kind)
	})

	t.Run("CP949 bytes declared as UTF-8 is a decoding error", func(t *testing.T) {
		encoded, err := korean.EUCKR.NewEncoder().String(sampleCSV)
		require.NoError(t, err)

		_, err = LoadCSV(strings.NewReader(encoded), FileOptions{SkipRows: 0, Encoding: EncodingUTF8})

		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, KindDecoding, loadErr.Kind)
		assert.Contains(t, loadErr.Hint, "encoding")
	})

	t.Run("UTF-8 bytes declared as CP949 is a decoding error", func(t *testing.T) {
		_, err := LoadCSV(strings.NewReader(sampleCSV), FileOptions{SkipRows: 0, Encoding: EncodingCP949})

		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, KindDecoding, loadErr.Kind)
	})

	t.Run("missing columns are reported by exact name", func(t *testing.T) {
		input := "시군구,단지명,계약년월,계약일\nx,y,202401,1\n"
		_, err := LoadCSV(strings.NewReader(input), FileOptions{SkipRows: 0, Encoding: EncodingUTF8})

		var loadErr *LoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, KindSchema, loadErr.Kind)
		assert.ElementsMatch(t, []string{ColArea, ColPrice}, loadErr.MissingFields)
	})
}

func TestDefaultFileOptions(t *testing.T) {
	opts := DefaultFileOptions()
	assert.Equal(t, 15, opts.SkipRows)
	assert.Equal(t, EncodingCP949, opts.Encoding)
}
