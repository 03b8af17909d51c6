// Package http carries the REST surface: session management, the two
// ingestion paths, cascading cohort selection, forecasting and chart
// rendering.
package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"aptcast/internal/chart"
	"aptcast/internal/dataset"
	apierrors "aptcast/internal/errors"
	"aptcast/internal/forecast"
	"aptcast/internal/ingest"
	"aptcast/internal/services"
	"aptcast/internal/session"
)

// Handler wires the deal service and the session store into HTTP routes
type Handler struct {
	deals          *services.DealService
	sessions       *session.Store
	validate       *validator.Validate
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewHandler creates the API handler
func NewHandler(deals *services.DealService, sessions *session.Store, maxUploadBytes int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		deals:          deals,
		sessions:       sessions,
		validate:       validator.New(),
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(slog.String("component", "http_handler")),
	}
}

// Routes returns the API router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.Health)

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.CreateSession)
		r.Get("/{sessionID}", h.GetSession)
		r.Put("/{sessionID}/key", h.SetServiceKey)
		r.Put("/{sessionID}/selection", h.SetSelection)
	})

	r.Route("/deals", func(r chi.Router) {
		r.Post("/upload", h.UploadFile)
		r.Get("/remote", h.FetchRemote)
	})

	r.Route("/datasets/{datasetID}", func(r chi.Router) {
		r.Get("/districts", h.Districts)
		r.Get("/neighborhoods", h.Neighborhoods)
		r.Get("/complexes", h.Complexes)
		r.Get("/areas", h.Areas)
		r.Get("/cohort", h.Cohort)
		r.Get("/trend", h.Trend)
		r.Post("/forecast", h.Forecast)
		r.Get("/chart", h.Chart)
	})

	return r
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// CreateSessionRequest optionally seeds a session with a service key
type CreateSessionRequest struct {
	ServiceKey string `json:"service_key"`
}

// CreateSession opens a new dashboard session
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength > 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			apierrors.Handle(w, r, apierrors.InvalidRequestWithError(err))
			return
		}
	}

	sess := h.sessions.Create(req.ServiceKey)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, sess)
}

// GetSession returns a session's current selection
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		apierrors.Handle(w, r, apierrors.ErrSessionNotFound)
		return
	}
	render.JSON(w, r, sess)
}

// SetServiceKeyRequest replaces a session's service key
type SetServiceKeyRequest struct {
	ServiceKey string `json:"service_key" validate:"required"`
}

// SetServiceKey stores the user's MOLIT key on the session
func (h *Handler) SetServiceKey(w http.ResponseWriter, r *http.Request) {
	var req SetServiceKeyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		apierrors.Handle(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		apierrors.Handle(w, r, err)
		return
	}

	if err := h.sessions.SetServiceKey(chi.URLParam(r, "sessionID"), req.ServiceKey); err != nil {
		apierrors.Handle(w, r, apierrors.ErrSessionNotFound)
		return
	}
	render.JSON(w, r, map[string]bool{"success": true})
}

// SetSelection stores the session's cohort selection
func (h *Handler) SetSelection(w http.ResponseWriter, r *http.Request) {
	var sel session.Selection
	if err := render.DecodeJSON(r.Body, &sel); err != nil {
		apierrors.Handle(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	if err := h.sessions.SetSelection(chi.URLParam(r, "sessionID"), sel); err != nil {
		apierrors.Handle(w, r, apierrors.ErrSessionNotFound)
		return
	}
	render.JSON(w, r, map[string]bool{"success": true})
}

// LoadResponse describes a loaded dataset
type LoadResponse struct {
	DatasetID string   `json:"dataset_id"`
	Rows      int      `json:"rows"`
	Districts []string `json:"districts"`
	NoData    bool     `json:"no_data,omitempty"`
	Message   string   `json:"message,omitempty"`
}

// UploadFile ingests a ministry CSV or XLSX export. Parse options come from
// form fields and fall back to the configured defaults.
func (h *Handler) UploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		apierrors.Handle(w, r, apierrors.InvalidRequestWithError(fmt.Errorf("failed to parse upload: %w", err)))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.Handle(w, r, apierrors.ErrValidation("file", "file part is required"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		apierrors.Handle(w, r, apierrors.InvalidRequestWithError(err))
		return
	}

	opts := h.deals.DefaultFileOptions()
	if v := r.FormValue("skip_rows"); v != "" {
		skip, err := strconv.Atoi(v)
		if err != nil || skip < 0 {
			apierrors.Handle(w, r, apierrors.ErrValidation("skip_rows", "must be a non-negative integer"))
			return
		}
		opts.SkipRows = skip
	}
	if v := r.FormValue("encoding"); v != "" {
		enc := ingest.Encoding(v)
		if enc != ingest.EncodingCP949 && enc != ingest.EncodingUTF8 {
			apierrors.Handle(w, r, apierrors.ErrValidation("encoding", "must be cp949 or utf8"))
			return
		}
		opts.Encoding = enc
	}

	id, table, err := h.deals.LoadFile(r.Context(), header.Filename, data, opts)
	if err != nil {
		apierrors.Handle(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, LoadResponse{
		DatasetID: id,
		Rows:      table.Len(),
		Districts: table.Districts(),
	})
}

// FetchRemote loads one region-month from the transaction service. The
// service key comes from the query or from a session. An empty month is a
// normal outcome, reported in the payload rather than as an error.
func (h *Handler) FetchRemote(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")
	month := r.URL.Query().Get("month")
	if region == "" {
		apierrors.Handle(w, r, apierrors.ErrValidation("region", "region code is required"))
		return
	}
	if len(month) != 6 {
		apierrors.Handle(w, r, apierrors.ErrValidation("month", "month must be YYYYMM"))
		return
	}

	serviceKey := r.URL.Query().Get("key")
	if serviceKey == "" {
		if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
			sess, err := h.sessions.Get(sessionID)
			if err != nil {
				apierrors.Handle(w, r, apierrors.ErrSessionNotFound)
				return
			}
			serviceKey = sess.ServiceKey
		}
	}
	if serviceKey == "" {
		apierrors.Handle(w, r, apierrors.ErrValidation("key", "a service key is required, directly or via session"))
		return
	}

	id, table, err := h.deals.LoadRemote(r.Context(), serviceKey, region, month)
	if errors.Is(err, ingest.ErrNoData) {
		render.JSON(w, r, LoadResponse{
			NoData:  true,
			Message: fmt.Sprintf("No transactions recorded for region %s in %s.", region, month),
		})
		return
	}
	if err != nil {
		apierrors.Handle(w, r, err)
		return
	}

	render.JSON(w, r, LoadResponse{
		DatasetID: id,
		Rows:      table.Len(),
		Districts: table.Districts(),
	})
}

func (h *Handler) table(w http.ResponseWriter, r *http.Request) (*dataset.Table, bool) {
	table, err := h.deals.Table(chi.URLParam(r, "datasetID"))
	if err != nil {
		apierrors.Handle(w, r, apierrors.ErrDatasetNotFound)
		return nil, false
	}
	return table, true
}

// Districts lists the distinct districts of a dataset
func (h *Handler) Districts(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, map[string]interface{}{"districts": table.Districts()})
}

// Neighborhoods lists the neighborhoods within a district
func (h *Handler) Neighborhoods(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}
	district := r.URL.Query().Get("district")
	if district == "" {
		apierrors.Handle(w, r, apierrors.ErrValidation("district", "district is required"))
		return
	}
	render.JSON(w, r, map[string]interface{}{"neighborhoods": table.Neighborhoods(district)})
}

// Complexes lists the complexes within a neighborhood
func (h *Handler) Complexes(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	district, neighborhood := q.Get("district"), q.Get("neighborhood")
	if district == "" || neighborhood == "" {
		apierrors.Handle(w, r, apierrors.ErrValidation("neighborhood", "district and neighborhood are required"))
		return
	}
	render.JSON(w, r, map[string]interface{}{"complexes": table.Complexes(district, neighborhood)})
}

// Areas lists the distinct floor areas of a complex
func (h *Handler) Areas(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	district, neighborhood, complexName := q.Get("district"), q.Get("neighborhood"), q.Get("complex")
	if district == "" || neighborhood == "" || complexName == "" {
		apierrors.Handle(w, r, apierrors.ErrValidation("complex", "district, neighborhood and complex are required"))
		return
	}
	render.JSON(w, r, map[string]interface{}{"areas": table.Areas(district, neighborhood, complexName)})
}

// Cohort returns the deals of one (neighborhood, complex, area) triple in
// contract-date order.
func (h *Handler) Cohort(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}
	neighborhood, complexName, areaSqm, ok := cohortParams(w, r)
	if !ok {
		return
	}

	deals := table.Cohort(neighborhood, complexName, areaSqm)
	render.JSON(w, r, map[string]interface{}{
		"deals": deals,
		"count": len(deals),
	})
}

// Trend returns the per-district monthly mean unit price
func (h *Handler) Trend(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}
	render.JSON(w, r, map[string]interface{}{"trend": table.DistrictMonthly()})
}

// ForecastRequest selects the cohort to fit
type ForecastRequest struct {
	Neighborhood string  `json:"neighborhood" validate:"required"`
	Complex      string  `json:"complex" validate:"required"`
	AreaSqm      float64 `json:"floor_area_sqm" validate:"required,gt=0"`
}

// Forecast fits a trend line to a cohort and projects it six months out
func (h *Handler) Forecast(w http.ResponseWriter, r *http.Request) {
	var req ForecastRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		apierrors.Handle(w, r, apierrors.InvalidRequestWithError(err))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		apierrors.Handle(w, r, err)
		return
	}

	result, cohort, err := h.deals.ForecastCohort(r.Context(),
		chi.URLParam(r, "datasetID"), req.Neighborhood, req.Complex, req.AreaSqm, forecast.Config{})
	if err != nil {
		if errors.Is(err, services.ErrDatasetNotFound) {
			apierrors.Handle(w, r, apierrors.ErrDatasetNotFound)
			return
		}
		apierrors.Handle(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"forecast":     result,
		"observations": len(cohort),
	})
}

// Chart renders the cohort scatter as a PNG, with the trend overlay when the
// cohort is large enough to fit one.
func (h *Handler) Chart(w http.ResponseWriter, r *http.Request) {
	table, ok := h.table(w, r)
	if !ok {
		return
	}
	neighborhood, complexName, areaSqm, ok := cohortParams(w, r)
	if !ok {
		return
	}

	cohort := table.Cohort(neighborhood, complexName, areaSqm)
	if len(cohort) == 0 {
		apierrors.Handle(w, r, apierrors.NotFoundError("cohort"))
		return
	}

	var prediction []forecast.Point
	if r.URL.Query().Get("forecast") != "false" {
		result, err := forecast.Run(cohort, forecast.Config{})
		if err == nil {
			prediction = result.Points
		} else if !errors.Is(err, forecast.ErrTooFewDeals) {
			apierrors.Handle(w, r, err)
			return
		}
	}

	title := fmt.Sprintf("%s %s %.0f㎡", neighborhood, complexName, areaSqm)
	png, err := chart.Render(cohort, prediction, title)
	if err != nil {
		apierrors.Handle(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func cohortParams(w http.ResponseWriter, r *http.Request) (string, string, float64, bool) {
	q := r.URL.Query()
	neighborhood := q.Get("neighborhood")
	complexName := q.Get("complex")
	areaRaw := q.Get("area")
	if neighborhood == "" || complexName == "" || areaRaw == "" {
		apierrors.Handle(w, r, apierrors.ErrValidation("area", "neighborhood, complex and area are required"))
		return "", "", 0, false
	}
	areaSqm, err := strconv.ParseFloat(areaRaw, 64)
	if err != nil || areaSqm <= 0 {
		apierrors.Handle(w, r, apierrors.ErrValidation("area", "area must be a positive number"))
		return "", "", 0, false
	}
	return neighborhood, complexName, areaSqm, true
}
