package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"aptcast/internal/forecast"
	"aptcast/internal/infrastructure"
	"aptcast/internal/ingest"
)

// Handle translates any error reaching the transport layer into an RFC 7807
// problem document and writes it. Load failures keep their kind-specific
// problem type and hint so the client can tell a mis-encoded file from a
// missing column without parsing the detail string.
func Handle(w http.ResponseWriter, r *http.Request, err error) {
	problem := toProblem(r.Context(), err)
	problem.Instance = r.URL.Path

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	json.NewEncoder(w).Encode(problem)
}

func toProblem(ctx context.Context, err error) *ProblemDetails {
	var problem *ProblemDetails

	var loadErr *ingest.LoadError
	var apiErr *APIError
	var validationErrs validator.ValidationErrors

	switch {
	case errors.As(err, &problem):
		// already a problem document, pass through

	case errors.As(err, &loadErr):
		problem = loadProblem(loadErr)

	case errors.Is(err, ingest.ErrNoData):
		// terminal empty state, reported as a problem only when the caller
		// chose not to fold it into a 200 payload
		problem = NewProblemDetails(http.StatusNotFound, TypeNoData,
			"No Transactions", err.Error(), "")

	case errors.Is(err, forecast.ErrTooFewDeals):
		problem = NewProblemDetails(http.StatusUnprocessableEntity, TypeTooFewDeals,
			"Too Few Transactions", err.Error(), "")

	case errors.As(err, &apiErr):
		problem = NewProblemDetails(apiErr.StatusCode, typeForStatus(apiErr.StatusCode),
			apiErr.ErrorCode, apiErr.Message, "")
		if apiErr.Details != nil {
			problem.WithExtension("details", apiErr.Details)
		}

	case errors.As(err, &validationErrs):
		problem = NewProblemDetails(http.StatusBadRequest, TypeValidation,
			"Validation Failed", "One or more request fields are invalid", "")
		fields := make([]map[string]string, 0, len(validationErrs))
		for _, fe := range validationErrs {
			fields = append(fields, map[string]string{
				"field":  fe.Field(),
				"reason": fe.Tag(),
			})
		}
		problem.WithExtension("errors", fields)

	case errors.Is(err, context.DeadlineExceeded):
		problem = NewProblemDetails(http.StatusGatewayTimeout, TypeTimeout,
			"Request Timeout", "The operation took too long to complete", "")

	default:
		problem = NewProblemDetails(http.StatusInternalServerError, TypeInternal,
			"Internal Server Error", err.Error(), "")
	}

	if traceID := infrastructure.GetTraceID(ctx); traceID != "" {
		problem.WithExtension("trace_id", traceID)
	}
	return problem
}

// loadProblem maps each load-failure kind to its problem type and status.
// Client-side input problems are 400s; upstream failures are 502s.
func loadProblem(loadErr *ingest.LoadError) *ProblemDetails {
	var (
		problemType string
		title       string
		status      = http.StatusBadRequest
	)

	switch loadErr.Kind {
	case ingest.KindDecoding:
		problemType, title = TypeFileDecoding, "File Decoding Failed"
	case ingest.KindStructure:
		problemType, title = TypeFileStructure, "File Structure Invalid"
	case ingest.KindSchema:
		problemType, title = TypeFileSchema, "Required Columns Missing"
	case ingest.KindValue:
		problemType, title = TypeFieldValue, "Field Value Invalid"
	case ingest.KindTransport:
		problemType, title = TypeRemoteTransport, "Upstream Unreachable"
		status = http.StatusBadGateway
	case ingest.KindRemote:
		problemType, title = TypeRemoteRejected, "Upstream Rejected Request"
		status = http.StatusBadGateway
	default:
		problemType, title = TypeInternal, "Load Failed"
		status = http.StatusInternalServerError
	}

	problem := NewProblemDetails(status, problemType, title, loadErr.Message, "")
	if loadErr.Hint != "" {
		problem.WithExtension("hint", loadErr.Hint)
	}
	if len(loadErr.MissingFields) > 0 {
		problem.WithExtension("missing_fields", loadErr.MissingFields)
	}
	if loadErr.Row > 0 {
		problem.WithExtension("row", loadErr.Row)
	}
	if loadErr.Field != "" {
		problem.WithExtension("field", loadErr.Field)
	}
	return problem
}

func typeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return TypeValidation
	case http.StatusNotFound:
		return TypeNotFound
	case http.StatusTooManyRequests:
		return TypeRateLimit
	case http.StatusServiceUnavailable:
		return TypeServiceDown
	default:
		return TypeInternal
	}
}
