// Package analysis runs the normalize, score and record pipeline for one
// export or a batch of exports.
//
// A Service owns no transaction state: each file is read, scored and turned
// into a Record independently, so a batch fans out over a bounded worker
// pool. The only shared collaborators are the injected ResultStore and
// Recorder, both of which must be safe for concurrent use.
//
// Example usage:
//
//	svc, err := analysis.NewService(analysis.DefaultConfig(), norm, engine, store)
//	record, err := svc.AnalyzeFile(ctx, analysis.Request{Path: "export.csv"})
//	batch, err := svc.AnalyzeFiles(ctx, requests)
package analysis

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
	"go.uber.org/multierr"

	"spendscore-service/internal/models"
	"spendscore-service/internal/normalizer"
	"spendscore-service/internal/scoring"
	"spendscore-service/pkg/errors"
	"spendscore-service/pkg/logger"
)

// Outcome labels reported to the Recorder
const (
	OutcomeScored = "scored"
	OutcomeFailed = "failed"
)

// Config holds configuration options for the analysis service
type Config struct {
	MaxConcurrentFiles int  `json:"max_concurrent_files" yaml:"max_concurrent_files" mapstructure:"max_concurrent_files"`
	ProgressReporting  bool `json:"progress_reporting" yaml:"progress_reporting" mapstructure:"progress_reporting"`
	// MaxSampleErrors bounds the row diagnostics kept on a record.
	MaxSampleErrors int `json:"max_sample_errors" yaml:"max_sample_errors" mapstructure:"max_sample_errors"`
}

// DefaultConfig returns a default configuration for the analysis service
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentFiles: 4,
		ProgressReporting:  false,
		MaxSampleErrors:    5,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxConcurrentFiles <= 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "analysis.max_concurrent_files", c.MaxConcurrentFiles, nil)
	}
	if c.MaxSampleErrors < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "analysis.max_sample_errors", c.MaxSampleErrors, nil)
	}
	return nil
}

// Request names one export to analyze
type Request struct {
	Path        string `json:"path"`
	CompanyName string `json:"company_name,omitempty"`
}

// Recorder receives analysis telemetry
type Recorder interface {
	RecordAnalysis(format, outcome string, elapsed time.Duration)
	RecordRows(format string, valid, skipped, filtered int)
	RecordScore(format, tier string, score int)
}

type nopRecorder struct{}

func (nopRecorder) RecordAnalysis(string, string, time.Duration) {}
func (nopRecorder) RecordRows(string, int, int, int)             {}
func (nopRecorder) RecordScore(string, string, int)              {}

// Service coordinates normalization, scoring and persistence
type Service struct {
	config     *Config
	normalizer *normalizer.Normalizer
	engine     *scoring.Engine
	store      ResultStore
	fs         afero.Fs
	recorder   Recorder
	logger     logger.Logger
	clock      func() time.Time
	newID      func() string
}

// NewService creates an analysis service. store may be nil, in which case
// records are returned but not persisted.
func NewService(config *Config, norm *normalizer.Normalizer, engine *scoring.Engine, store ResultStore) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if norm == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "normalizer", nil, nil)
	}
	if engine == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "scoring_engine", nil, nil)
	}

	log := logger.GetGlobalLogger().WithComponent("analysis")
	log.WithFields(logger.Fields{
		"max_concurrent_files": config.MaxConcurrentFiles,
		"persist":              store != nil,
	}).Debug("Created analysis service")

	return &Service{
		config:     config,
		normalizer: norm,
		engine:     engine,
		store:      store,
		fs:         afero.NewOsFs(),
		recorder:   nopRecorder{},
		logger:     log,
		clock:      time.Now,
		newID:      uuid.NewString,
	}, nil
}

// WithFs replaces the filesystem exports are read from
func (s *Service) WithFs(fs afero.Fs) *Service {
	s.fs = fs
	return s
}

// WithRecorder sets the telemetry recorder
func (s *Service) WithRecorder(r Recorder) *Service {
	if r == nil {
		r = nopRecorder{}
	}
	s.recorder = r
	return s
}

// WithLogger replaces the component logger
func (s *Service) WithLogger(l logger.Logger) *Service {
	s.logger = l.WithComponent("analysis")
	return s
}

// WithClock replaces the clock used for record timestamps
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Store returns the configured result store, or nil
func (s *Service) Store() ResultStore {
	return s.store
}

// AnalyzeFile normalizes, scores and records one export on the service
// filesystem. When saving fails the record is still returned with the
// storage error.
func (s *Service) AnalyzeFile(ctx context.Context, req Request) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "analysis cancelled before "+req.Path)
	}
	start := time.Now()
	txs, stats, err := s.normalizer.NormalizeFile(s.fs, req.Path)
	return s.complete(ctx, req, txs, stats, err, start)
}

// AnalyzeReader analyzes an export read from r; req.Path names it in
// diagnostics and in the record.
func (s *Service) AnalyzeReader(ctx context.Context, r io.Reader, req Request) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, errors.CodeUnexpectedError, "analysis cancelled before "+req.Path)
	}
	start := time.Now()
	txs, stats, err := s.normalizer.Normalize(r, req.Path)
	return s.complete(ctx, req, txs, stats, err, start)
}

func (s *Service) complete(ctx context.Context, req Request, txs []models.Transaction, stats *normalizer.ParseStats, err error, start time.Time) (*Record, error) {
	log := s.logger.WithField("file", req.Path)
	format := "unknown"
	if stats != nil && stats.Format != "" {
		format = string(stats.Format)
		s.recorder.RecordRows(format, stats.ValidRows, stats.SkippedRows, stats.FilteredRows)
	}

	if err != nil {
		s.recorder.RecordAnalysis(format, OutcomeFailed, time.Since(start))
		log.WithError(err).Warn("Analysis failed during normalization")
		return nil, err
	}

	result, err := s.engine.Score(txs)
	if err != nil {
		s.recorder.RecordAnalysis(format, OutcomeFailed, time.Since(start))
		log.WithError(err).Warn("Analysis failed during scoring")
		return nil, err
	}

	record := newRecord(s.newID(), s.clock(), req, result, newParseReport(stats, s.config.MaxSampleErrors))
	record.DurationMS = time.Since(start).Milliseconds()

	s.recorder.RecordScore(format, string(result.TierInfo.Tier), result.FinalScore)
	s.recorder.RecordAnalysis(format, OutcomeScored, time.Since(start))

	log.WithFields(logger.Fields{
		"analysis_id":  record.ID,
		"format":       format,
		"transactions": result.Summary.TransactionCount,
		"skipped_rows": record.Parse.SkippedRows,
		"final_score":  record.FinalScore,
		"tier":         string(record.TierInfo.Tier),
	}).Info("Analysis completed")

	if s.store != nil {
		if err := s.store.Save(ctx, record); err != nil {
			log.WithError(err).Error("Failed to store analysis")
			return record, err
		}
	}
	return record, nil
}

// FileFailure pairs a failed request with its error
type FileFailure struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
}

// BatchResult holds the outcome of AnalyzeFiles. Records is indexed like
// the requests; files that could not be scored are nil. Every failure,
// including a record that scored but could not be saved, is in Failures.
type BatchResult struct {
	Records  []*Record     `json:"records"`
	Failures []FileFailure `json:"failures,omitempty"`
}

// Succeeded returns the non-nil records in request order
func (b *BatchResult) Succeeded() []*Record {
	out := make([]*Record, 0, len(b.Records))
	for _, r := range b.Records {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// AnalyzeFiles analyzes every request over a bounded pool. One file failing
// never stops the others; cancellation stops files that have not started.
// The returned error combines every failure.
func (s *Service) AnalyzeFiles(ctx context.Context, reqs []Request) (*BatchResult, error) {
	batch := &BatchResult{Records: make([]*Record, len(reqs))}
	if len(reqs) == 0 {
		return batch, nil
	}

	failures := make([]error, len(reqs))

	var tracker *logger.ProgressTracker
	if s.config.ProgressReporting {
		tracker = logger.NewProgressTracker(logger.ProgressConfig{
			Operation: "analyze_files",
			Total:     int64(len(reqs)),
			Logger:    s.logger,
		})
	}

	p := pool.New().WithMaxGoroutines(s.config.MaxConcurrentFiles)
	for i, req := range reqs {
		i, req := i, req
		p.Go(func() {
			record, err := s.AnalyzeFile(ctx, req)
			batch.Records[i] = record
			failures[i] = err
			if tracker == nil {
				return
			}
			if err != nil {
				tracker.Fail()
			} else {
				tracker.Increment()
			}
		})
	}
	p.Wait()

	if tracker != nil {
		tracker.Complete()
	}

	var combined error
	for i, err := range failures {
		if err == nil {
			continue
		}
		batch.Failures = append(batch.Failures, FileFailure{Path: reqs[i].Path, Err: err})
		combined = multierr.Append(combined, err)
	}
	return batch, combined
}
