// Package ingest loads apartment transaction records from ministry file
// exports (CSV or XLSX) and from the MOLIT open-data API. Both paths produce
// the same raw row shape; all typed field parsing happens in normalize.
package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// Encoding identifies the text encoding of an uploaded file
type Encoding string

const (
	// EncodingCP949 is the legacy Korean codepage ministry exports ship in
	EncodingCP949 Encoding = "cp949"
	// EncodingUTF8 covers hand-resaved exports
	EncodingUTF8 Encoding = "utf8"
)

// FileOptions controls how an uploaded file is parsed
type FileOptions struct {
	// SkipRows is the number of preamble lines before the header row
	SkipRows int
	// Encoding is the declared text encoding of the file
	Encoding Encoding
}

// DefaultFileOptions matches the stock ministry export format
func DefaultFileOptions() FileOptions {
	return FileOptions{SkipRows: 15, Encoding: EncodingCP949}
}

// RawDeal is one transaction row as it appears in the source, untyped.
type RawDeal struct {
	RawAddress  string // 시군구: free-text administrative address
	ComplexName string // 단지명
	AreaSqm     string // 전용면적(㎡)
	ContractYM  string // 계약년월, YYYYMM
	ContractDay string // 계약일, 1-2 digits
	PriceRaw    string // 거래금액(만원), thousands-separated
	Floor       string // 층, optional
}

// Required header labels, matched after whitespace stripping.
const (
	ColAddress = "시군구"
	ColComplex = "단지명"
	ColArea    = "전용면적(㎡)"
	ColYM      = "계약년월"
	ColDay     = "계약일"
	ColPrice   = "거래금액(만원)"
	ColFloor   = "층"
)

// RequiredColumns lists the headers a file must carry to be loadable
var RequiredColumns = []string{ColAddress, ColComplex, ColArea, ColYM, ColDay, ColPrice}

// Kind discriminates load failures so callers can tell the user which
// setting to change.
type Kind int

const (
	// KindDecoding means the declared text encoding does not match the file
	KindDecoding Kind = iota + 1
	// KindStructure means the delimited structure could not be parsed,
	// usually a wrong header-skip count
	KindStructure
	// KindSchema means the table parsed but required columns are missing
	KindSchema
	// KindValue means a required field could not be converted to its type
	KindValue
	// KindTransport means the remote call failed or returned a non-XML body
	KindTransport
	// KindRemote means the remote service returned a non-success status
	KindRemote
)

// String returns the kind label used in error messages and logs
func (k Kind) String() string {
	switch k {
	case KindDecoding:
		return "decoding"
	case KindStructure:
		return "structure"
	case KindSchema:
		return "schema"
	case KindValue:
		return "value"
	case KindTransport:
		return "transport"
	case KindRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// LoadError is a tagged load failure. A failed load aborts the whole
// pipeline run; there is no per-row skipping.
type LoadError struct {
	Kind    Kind
	Message string
	// Hint tells the user which setting to change, when one applies
	Hint string
	// MissingFields carries the exact absent header names for KindSchema
	MissingFields []string
	// Row and Field locate the offending cell for KindValue (1-based data row)
	Row   int
	Field string
	Err   error
}

// Error implements the error interface
func (e *LoadError) Error() string {
	msg := fmt.Sprintf("%s error: %s", e.Kind, e.Message)
	if len(e.MissingFields) > 0 {
		msg += ": missing " + strings.Join(e.MissingFields, ", ")
	}
	if e.Field != "" {
		msg += fmt.Sprintf(" (row %d, field %s)", e.Row, e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap allows errors.Is and errors.As to reach the cause
func (e *LoadError) Unwrap() error {
	return e.Err
}

// DecodingError reports a text-encoding mismatch
func DecodingError(message, hint string) *LoadError {
	return &LoadError{Kind: KindDecoding, Message: message, Hint: hint}
}

// StructureError reports a malformed delimited structure
func StructureError(message string, err error) *LoadError {
	return &LoadError{
		Kind:    KindStructure,
		Message: message,
		Hint:    "check the header-skip count against the file preamble",
		Err:     err,
	}
}

// SchemaError reports a structurally valid table missing required columns
func SchemaError(missing []string) *LoadError {
	return &LoadError{
		Kind:          KindSchema,
		Message:       "required columns are absent from the header row",
		Hint:          "a wrong header-skip count usually lands on a non-header line",
		MissingFields: missing,
	}
}

// ValueError reports a field whose content cannot be converted. Also raised
// by the normalizer, which is why it is exported here: the taxonomy belongs
// to the load as a whole.
func ValueError(row int, field, message string) *LoadError {
	return &LoadError{Kind: KindValue, Message: message, Row: row, Field: field}
}

// TransportError reports a network failure or a non-XML remote response
func TransportError(message string, err error) *LoadError {
	return &LoadError{Kind: KindTransport, Message: message, Err: err}
}

// RemoteError reports a well-formed remote response with a non-success
// status; message is the server-supplied text, surfaced verbatim.
func RemoteError(code, message string) *LoadError {
	return &LoadError{
		Kind:    KindRemote,
		Message: fmt.Sprintf("service returned %s: %s", code, message),
	}
}

// ErrNoData marks a successful remote query that matched zero transactions.
// It is a terminal state, not a failure.
var ErrNoData = errors.New("no transactions for this region and period")
