package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aptcast/internal/forecast"
	"aptcast/internal/infrastructure"
	"aptcast/internal/ingest"
)

func handleAndDecode(t *testing.T, err error) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	rec := httptest.NewRecorder()

	Handle(rec, req, err)

	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	return rec.Code, doc
}

func TestHandleLoadErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"decoding", ingest.DecodingError("bad bytes", "switch encoding"), http.StatusBadRequest, TypeFileDecoding},
		{"structure", ingest.StructureError("broken", nil), http.StatusBadRequest, TypeFileStructure},
		{"schema", ingest.SchemaError([]string{"거래금액(만원)"}), http.StatusBadRequest, TypeFileSchema},
		{"value", ingest.ValueError(3, "거래금액(만원)", "not numeric"), http.StatusBadRequest, TypeFieldValue},
		{"transport", ingest.TransportError("unreachable", nil), http.StatusBadGateway, TypeRemoteTransport},
		{"remote", ingest.RemoteError("03", "SERVICE KEY IS NOT REGISTERED ERROR."), http.StatusBadGateway, TypeRemoteRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, doc := handleAndDecode(t, tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantType, doc["type"])
		})
	}
}

func TestHandleLoadErrorExtensions(t *testing.T) {
	t.Run("schema error carries the missing field names", func(t *testing.T) {
		_, doc := handleAndDecode(t, ingest.SchemaError([]string{"시군구", "거래금액(만원)"}))
		assert.Equal(t, []interface{}{"시군구", "거래금액(만원)"}, doc["missing_fields"])
		assert.NotEmpty(t, doc["hint"])
	})

	t.Run("value error locates row and field", func(t *testing.T) {
		_, doc := handleAndDecode(t, ingest.ValueError(7, "전용면적(㎡)", "not numeric"))
		assert.Equal(t, float64(7), doc["row"])
		assert.Equal(t, "전용면적(㎡)", doc["field"])
	})

	t.Run("remote rejection keeps the server text verbatim", func(t *testing.T) {
		_, doc := handleAndDecode(t, ingest.RemoteError("03", "SERVICE KEY IS NOT REGISTERED ERROR."))
		assert.Contains(t, doc["detail"], "SERVICE KEY IS NOT REGISTERED ERROR.")
	})
}

func TestHandleDomainSentinels(t *testing.T) {
	t.Run("no data", func(t *testing.T) {
		status, doc := handleAndDecode(t, ingest.ErrNoData)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, TypeNoData, doc["type"])
	})

	t.Run("too few deals", func(t *testing.T) {
		status, doc := handleAndDecode(t, fmt.Errorf("%w: have 3, need 5", forecast.ErrTooFewDeals))
		assert.Equal(t, http.StatusUnprocessableEntity, status)
		assert.Equal(t, TypeTooFewDeals, doc["type"])
	})
}

func TestHandleGeneric(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		status, doc := handleAndDecode(t, ErrDatasetNotFound)
		assert.Equal(t, http.StatusNotFound, status)
		assert.Equal(t, TypeNotFound, doc["type"])
	})

	t.Run("unknown error is internal", func(t *testing.T) {
		status, doc := handleAndDecode(t, fmt.Errorf("boom"))
		assert.Equal(t, http.StatusInternalServerError, status)
		assert.Equal(t, TypeInternal, doc["type"])
	})

	t.Run("instance is the request path", func(t *testing.T) {
		_, doc := handleAndDecode(t, fmt.Errorf("boom"))
		assert.Equal(t, "/api/test", doc["instance"])
	})
}

func TestHandleTraceID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	req = req.WithContext(infrastructure.WithTraceID(req.Context(), "trace-123"))
	rec := httptest.NewRecorder()

	Handle(rec, req, fmt.Errorf("boom"))

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "trace-123", doc["trace_id"])
}
