// Package services orchestrates the pipeline: ingestion, normalization,
// views and forecasting, with per-input-key caching of loaded tables.
package services

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"aptcast/internal/config"
	"aptcast/internal/dataset"
	"aptcast/internal/forecast"
	"aptcast/internal/ingest"
	"aptcast/internal/metrics"
	"aptcast/internal/normalize"
)

// ErrDatasetNotFound is returned for dataset IDs that were never loaded
var ErrDatasetNotFound = errors.New("dataset not found")

// DealService owns the two ingestion paths and the normalized tables.
// Tables are cached by input key and never invalidated: the same file bytes
// or the same region-month cannot produce a different table.
type DealService struct {
	client    *ingest.Client
	ingestCfg config.IngestConfig
	logger    *slog.Logger

	mu     sync.RWMutex
	tables map[string]*dataset.Table
}

// NewDealService creates the service and its MOLIT client
func NewDealService(cfg *config.Config, logger *slog.Logger) *DealService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DealService{
		client:    ingest.NewClient(cfg.Molit, logger),
		ingestCfg: cfg.Ingest,
		logger:    logger.With(slog.String("component", "deal_service")),
		tables:    make(map[string]*dataset.Table),
	}
}

// DefaultFileOptions exposes the configured ingestion defaults
func (s *DealService) DefaultFileOptions() ingest.FileOptions {
	opts := ingest.FileOptions{
		SkipRows: s.ingestCfg.SkipRows,
		Encoding: ingest.Encoding(s.ingestCfg.Encoding),
	}
	if opts.Encoding == "" {
		opts.Encoding = ingest.EncodingCP949
	}
	return opts
}

// LoadFile parses and normalizes an uploaded export. The dataset ID is
// derived from the file content and parse options, so re-uploading the same
// file with the same options is a cache hit.
func (s *DealService) LoadFile(ctx context.Context, filename string, data []byte, opts ingest.FileOptions) (string, *dataset.Table, error) {
	id := fileDatasetID(data, opts)
	if table, ok := s.lookup(id); ok {
		metrics.CacheHitsTotal.WithLabelValues("file").Inc()
		return id, table, nil
	}

	var (
		raws []ingest.RawDeal
		err  error
	)
	if strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		raws, err = ingest.LoadXLSX(strings.NewReader(string(data)), opts)
	} else {
		raws, err = ingest.LoadCSV(strings.NewReader(string(data)), opts)
	}
	if err != nil {
		metrics.LoadsTotal.WithLabelValues("file", "error").Inc()
		return "", nil, err
	}

	table, err := normalize.Normalize(raws)
	if err != nil {
		metrics.LoadsTotal.WithLabelValues("file", "error").Inc()
		return "", nil, err
	}

	metrics.LoadsTotal.WithLabelValues("file", "ok").Inc()
	s.logger.InfoContext(ctx, "file loaded",
		slog.String("dataset_id", id),
		slog.String("filename", filename),
		slog.Int("rows", table.Len()))

	s.store(id, table)
	return id, table, nil
}

// LoadRemote fetches one region-month from the transaction service. The
// dataset ID is the region+month pair; the underlying client additionally
// caches raw responses per service key.
func (s *DealService) LoadRemote(ctx context.Context, serviceKey, regionCode, yearMonth string) (string, *dataset.Table, error) {
	id := fmt.Sprintf("molit:%s:%s", regionCode, yearMonth)
	if table, ok := s.lookup(id); ok {
		metrics.CacheHitsTotal.WithLabelValues("remote").Inc()
		return id, table, nil
	}

	start := time.Now()
	raws, err := s.client.FetchMonth(ctx, serviceKey, regionCode, yearMonth)
	metrics.RemoteFetchSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := "error"
		if errors.Is(err, ingest.ErrNoData) {
			outcome = "empty"
		}
		metrics.LoadsTotal.WithLabelValues("remote", outcome).Inc()
		return "", nil, err
	}

	table, err := normalize.Normalize(raws)
	if err != nil {
		metrics.LoadsTotal.WithLabelValues("remote", "error").Inc()
		return "", nil, err
	}

	metrics.LoadsTotal.WithLabelValues("remote", "ok").Inc()
	s.logger.InfoContext(ctx, "remote month loaded",
		slog.String("dataset_id", id),
		slog.Int("rows", table.Len()))

	s.store(id, table)
	return id, table, nil
}

// Table returns a previously loaded table by dataset ID
func (s *DealService) Table(id string) (*dataset.Table, error) {
	table, ok := s.lookup(id)
	if !ok {
		return nil, ErrDatasetNotFound
	}
	return table, nil
}

// ForecastCohort runs the trend fit for one cohort of a loaded dataset and
// returns both the result and the cohort it was fitted on.
func (s *DealService) ForecastCohort(ctx context.Context, datasetID, neighborhood, complexName string, areaSqm float64, cfg forecast.Config) (*forecast.Result, []dataset.Deal, error) {
	table, err := s.Table(datasetID)
	if err != nil {
		return nil, nil, err
	}

	cohort := table.Cohort(neighborhood, complexName, areaSqm)
	result, err := forecast.Run(cohort, cfg)
	if err != nil {
		if errors.Is(err, forecast.ErrTooFewDeals) {
			metrics.ForecastsTotal.WithLabelValues("refused").Inc()
		} else {
			metrics.ForecastsTotal.WithLabelValues("error").Inc()
		}
		return nil, cohort, err
	}

	metrics.ForecastsTotal.WithLabelValues("ok").Inc()
	s.logger.InfoContext(ctx, "forecast completed",
		slog.String("dataset_id", datasetID),
		slog.String("complex", complexName),
		slog.Float64("area_sqm", areaSqm),
		slog.Int("observations", len(cohort)),
		slog.String("direction", result.Direction),
		slog.Int64("delta", result.Delta))

	return result, cohort, nil
}

func (s *DealService) lookup(id string) (*dataset.Table, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	table, ok := s.tables[id]
	return table, ok
}

func (s *DealService) store(id string, table *dataset.Table) {
	s.mu.Lock()
	s.tables[id] = table
	s.mu.Unlock()
}

// fileDatasetID hashes file content and parse options into a stable ID
func fileDatasetID(data []byte, opts ingest.FileOptions) string {
	h := sha256.New()
	h.Write(data)
	fmt.Fprintf(h, "|skip=%d|enc=%s", opts.SkipRows, opts.Encoding)
	return fmt.Sprintf("file:%x", h.Sum(nil))[:37]
}
