package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ONEcampaign/toughest-places-index/internal/config"
	"github.com/ONEcampaign/toughest-places-index/internal/countries"
	apperrors "github.com/ONEcampaign/toughest-places-index/internal/errors"
	"github.com/ONEcampaign/toughest-places-index/internal/exporter"
	"github.com/ONEcampaign/toughest-places-index/internal/frame"
	"github.com/ONEcampaign/toughest-places-index/internal/imputation"
	"github.com/ONEcampaign/toughest-places-index/internal/index"
	"github.com/ONEcampaign/toughest-places-index/internal/infrastructure"
	"github.com/ONEcampaign/toughest-places-index/internal/scaling"
	"github.com/ONEcampaign/toughest-places-index/internal/sources"
	"github.com/ONEcampaign/toughest-places-index/internal/validation"
)

const tracerName = "github.com/ONEcampaign/toughest-places-index/internal/services"

// RunResult is the outcome of one pipeline run.
type RunResult struct {
	ID string `json:"id"`
	// Scores is nil when the pipeline is configured not to summarize.
	Scores      *frame.Frame  `json:"-"`
	Indicators  *frame.Frame  `json:"-"`
	Scaler      string        `json:"scaler"`
	Imputer     string        `json:"imputer"`
	Rescaled    bool          `json:"rescaled"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
}

// IndexService builds the index described by the configuration and runs
// the pipeline and diagnostics over it. The index built from the sources
// is kept unmodified; every operation works on a copy.
type IndexService struct {
	cfg     *config.Config
	paths   *config.Paths
	logger  *slog.Logger
	metrics *infrastructure.PipelineMetrics
	tracer  trace.Tracer

	validator *validation.SourceValidator

	buildMu  sync.Mutex
	registry *countries.Registry
	base     *index.Index

	mu     sync.RWMutex
	latest *RunResult
}

// NewIndexService creates the service. metrics may be nil.
func NewIndexService(cfg *config.Config, logger *slog.Logger, metrics *infrastructure.PipelineMetrics) (*IndexService, error) {
	if cfg == nil {
		return nil, apperrors.NewAppValidationError("index service needs a configuration")
	}
	if logger == nil {
		logger = slog.Default()
	}
	paths, err := cfg.GetPaths()
	if err != nil {
		return nil, fmt.Errorf("failed to get paths: %w", err)
	}

	logger.Info("IndexService initialized with paths",
		slog.String("data_dir", paths.DataDir),
		slog.String("output_dir", paths.OutputDir),
		slog.String("registry_file", paths.RegistryFile),
		slog.Int("indicators", len(cfg.Indicators)))

	return &IndexService{
		cfg:     cfg,
		paths:   paths,
		logger:  logger,
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),

		validator: validation.NewSourceValidator(logger),
	}, nil
}

// Paths returns the resolved paths.
func (s *IndexService) Paths() *config.Paths { return s.paths }

// Registry loads the country registry on first use.
func (s *IndexService) Registry() (*countries.Registry, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	return s.loadRegistry()
}

func (s *IndexService) loadRegistry() (*countries.Registry, error) {
	if s.registry != nil {
		return s.registry, nil
	}
	f, err := os.Open(s.paths.RegistryFile)
	if err != nil {
		return nil, apperrors.NewStorageError("opening country registry", err).
			WithContext("path", s.paths.RegistryFile)
	}
	defer f.Close()

	reg, err := countries.LoadRegistry(f)
	if err != nil {
		return nil, fmt.Errorf("loading country registry %s: %w", s.paths.RegistryFile, err)
	}
	s.registry = reg
	return reg, nil
}

// Names maps registry codes to short country names.
func (s *IndexService) Names() map[string]string {
	reg, err := s.Registry()
	if err != nil {
		return nil
	}
	names := make(map[string]string)
	for _, code := range reg.Codes() {
		if e, ok := reg.Lookup(code); ok {
			names[code] = e.Name
		}
	}
	return names
}

// StudyCountries resolves the configured study set. Without configured
// sets every registry country is studied.
func (s *IndexService) StudyCountries() ([]string, error) {
	reg, err := s.Registry()
	if err != nil {
		return nil, err
	}
	return s.studyCountries(reg)
}

func (s *IndexService) studyCountries(reg *countries.Registry) ([]string, error) {
	sets := s.cfg.Countries.Sets
	if len(sets) == 0 {
		sets = map[string][]string{s.cfg.Countries.Study: reg.Codes()}
	}
	return countries.Resolve(sets, s.cfg.Countries.Study, s.cfg.Countries.Exclude)
}

// Reload discards the cached registry and index so the next operation
// reads the sources again.
func (s *IndexService) Reload() {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	s.registry = nil
	s.base = nil
}

// Build returns a copy of the index assembled from the configured sources.
func (s *IndexService) Build(ctx context.Context) (*index.Index, error) {
	base, err := s.build(ctx)
	if err != nil {
		return nil, err
	}
	return base.Clone(), nil
}

func (s *IndexService) build(ctx context.Context) (*index.Index, error) {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()
	if s.base != nil {
		return s.base, nil
	}
	if len(s.cfg.Indicators) == 0 {
		return nil, ErrNoIndicators
	}

	ctx, span := s.tracer.Start(ctx, "IndexService.Build",
		trace.WithAttributes(attribute.Int("indicators", len(s.cfg.Indicators))))
	defer span.End()

	names := make([]string, len(s.cfg.Indicators))
	files := make([]string, len(s.cfg.Indicators))
	for i, ic := range s.cfg.Indicators {
		names[i], files[i] = ic.Name, s.paths.IndicatorFile(ic.File)
	}
	if err := s.validator.ValidateSources(names, files); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid sources")
		return nil, err
	}

	reg, err := s.loadRegistry()
	if err != nil {
		return nil, err
	}
	study, err := s.studyCountries(reg)
	if err != nil {
		return nil, err
	}

	indicators := make([]*index.Indicator, len(s.cfg.Indicators))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for i, ic := range s.cfg.Indicators {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ind, err := s.loadIndicator(ic, reg, study)
			if err != nil {
				return err
			}
			indicators[i] = ind
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		infrastructure.RecordError(ctx, err)
		return nil, err
	}

	var order []string
	byDimension := make(map[string][]*index.Indicator)
	for i, ic := range s.cfg.Indicators {
		if _, ok := byDimension[ic.Dimension]; !ok {
			order = append(order, ic.Dimension)
		}
		byDimension[ic.Dimension] = append(byDimension[ic.Dimension], indicators[i])
	}
	dimensions := make([]*index.Dimension, 0, len(order))
	for _, name := range order {
		d, err := index.NewDimension(name, byDimension[name]...)
		if err != nil {
			return nil, fmt.Errorf("building dimension %s: %w", name, err)
		}
		dimensions = append(dimensions, d)
	}
	ix, err := index.New(dimensions, index.WithIndexLogger(s.logger))
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "index assembled",
		"dimensions", len(dimensions),
		"indicators", len(indicators),
		"countries", len(study))
	s.base = ix
	return ix, nil
}

func (s *IndexService) loadIndicator(ic config.IndicatorConfig, reg *countries.Registry, codes []string) (*index.Indicator, error) {
	path := s.paths.IndicatorFile(ic.File)
	df, err := sources.Load(path, sources.Options{Sheet: ic.Sheet, Latest: ic.Latest})
	if err != nil {
		return nil, fmt.Errorf("loading indicator %s: %w", ic.Name, err)
	}
	opts := []index.IndicatorOption{
		index.WithCountries(codes),
		index.WithPolarity(ic.Worse()),
		index.WithUniverse(reg),
		index.WithLogger(s.logger.With("indicator", ic.Name)),
	}
	if ic.FillValue != nil {
		opts = append(opts, index.WithFillValue(*ic.FillValue))
	}
	ind, err := index.NewIndicator(df, ic.Name, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading indicator %s from %s: %w", ic.Name, path, err)
	}
	return ind, nil
}

func (s *IndexService) workers() int {
	if s.cfg.Diagnostics.Workers < 1 {
		return 1
	}
	return s.cfg.Diagnostics.Workers
}

// Scaler parses the configured scaler; nil when none is configured.
func (s *IndexService) Scaler() (scaling.Scaler, error) {
	if s.cfg.Pipeline.Scaler == "" {
		return nil, nil
	}
	return scaling.Parse(s.cfg.Pipeline.Scaler, s.cfg.Pipeline.ScalerParams)
}

// Imputer parses the configured imputer; nil when none is configured.
func (s *IndexService) Imputer() (imputation.Imputer, error) {
	if s.cfg.Pipeline.Imputer == "" {
		return nil, nil
	}
	reg, err := s.Registry()
	if err != nil {
		return nil, err
	}
	return imputation.Parse(s.cfg.Pipeline.Imputer, s.cfg.Pipeline.ImputerParams, reg)
}

// Run computes the index with the configured scaler and imputer and keeps
// the result as the latest.
func (s *IndexService) Run(ctx context.Context) (*RunResult, error) {
	ctx, span := s.tracer.Start(ctx, "IndexService.Run")
	defer span.End()

	start := time.Now()
	res, err := s.run(ctx)
	s.metrics.RecordRun(ctx, "run", time.Since(start), err)
	if err != nil {
		infrastructure.RecordError(ctx, err)
		s.logger.ErrorContext(ctx, "index run failed", "error", err)
		return nil, err
	}
	res.Duration = time.Since(start)

	if s.metrics != nil && res.Scores != nil {
		s.metrics.CountriesRated.Record(ctx, int64(res.Scores.Len()))
	}
	s.mu.Lock()
	s.latest = res
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "index run complete",
		"run_id", res.ID,
		"scaler", res.Scaler,
		"imputer", res.Imputer,
		"duration", res.Duration)
	return res, nil
}

func (s *IndexService) run(ctx context.Context) (*RunResult, error) {
	ix, err := s.Build(ctx)
	if err != nil {
		return nil, err
	}
	scaler, err := s.Scaler()
	if err != nil {
		return nil, err
	}
	imputer, err := s.Imputer()
	if err != nil {
		return nil, err
	}

	out, err := ix.Compute(ctx, index.ComputeOptions{
		Scaler:    scaler,
		Imputer:   imputer,
		Summarize: s.cfg.Pipeline.Summarize,
	})
	if err != nil {
		return nil, err
	}
	indicators, err := ix.Data()
	if err != nil {
		return nil, err
	}

	res := &RunResult{
		ID:          uuid.New().String(),
		Indicators:  indicators,
		Scaler:      s.cfg.Pipeline.Scaler,
		Imputer:     s.cfg.Pipeline.Imputer,
		CompletedAt: time.Now().UTC(),
	}
	if !s.cfg.Pipeline.Summarize {
		return res, nil
	}
	res.Scores = out
	if s.cfg.Pipeline.RescaleIndex {
		if res.Scores, err = ix.RescaleIndex(); err != nil {
			return nil, err
		}
		res.Rescaled = true
	}
	return res, nil
}

// Latest returns the most recent successful run.
func (s *IndexService) Latest() (*RunResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, apperrors.NewAppError(apperrors.ErrTypeNotFound,
			"index results not available, run the pipeline first", ErrNoResults)
	}
	return s.latest, nil
}

// Export writes the scores CSV and the detailed workbook, plus the
// stability CSV when a report is given, and returns the paths written.
func (s *IndexService) Export(ctx context.Context, res *RunResult, stability *index.StabilityReport) ([]string, error) {
	if res == nil || res.Scores == nil {
		return nil, apperrors.NewStateError("exporting needs summarized scores")
	}
	results := exporter.Results{
		Scores:     res.Scores,
		Indicators: res.Indicators,
		Stability:  stability,
		Names:      s.Names(),
		Precision:  s.cfg.Pipeline.ScorePrecision,
	}

	w := exporter.NewCSVWriter(s.paths.OutputDir, s.logger)
	var written []string
	path, err := w.WriteScoresCSV(config.ScoresCSVName, results)
	if err != nil {
		return written, apperrors.NewStorageError("writing scores", err)
	}
	written = append(written, path)

	if stability != nil {
		path, err := w.WriteStabilityCSV(config.StabilityName, stability)
		if err != nil {
			return written, apperrors.NewStorageError("writing stability report", err)
		}
		written = append(written, path)
	}

	if err := exporter.WriteWorkbook(s.paths.Workbook, results, s.logger); err != nil {
		return written, apperrors.NewStorageError("writing workbook", err)
	}
	written = append(written, s.paths.Workbook)

	s.logger.InfoContext(ctx, "results exported", "files", written)
	return written, nil
}

// Stability withholds a share of the study countries and reports how the
// ranking moves.
func (s *IndexService) Stability(ctx context.Context) (*index.StabilityReport, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	rep, err := s.stability(ctx)
	s.metrics.RecordRun(ctx, "stability", time.Since(start), err)
	return rep, err
}

func (s *IndexService) stability(ctx context.Context) (*index.StabilityReport, error) {
	ix, err := s.Build(ctx)
	if err != nil {
		return nil, err
	}
	scaler, err := s.Scaler()
	if err != nil {
		return nil, err
	}
	reg, err := s.Registry()
	if err != nil {
		return nil, err
	}
	return ix.TestStability(ctx, index.StabilityOptions{
		Share:      s.cfg.Diagnostics.StabilityShare,
		Seed:       s.cfg.Diagnostics.Seed,
		Scaler:     scaler,
		Classifier: reg,
	})
}

// TuneNeighborRange runs the imputation tuning for every configured
// neighbour count in parallel and returns the reports in the same order.
func (s *IndexService) TuneNeighborRange(ctx context.Context) ([]*index.TuningReport, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	reports, err := s.tune(ctx)
	s.metrics.RecordRun(ctx, "tune", time.Since(start), err)
	return reports, err
}

func (s *IndexService) tune(ctx context.Context) ([]*index.TuningReport, error) {
	candidates := s.cfg.Diagnostics.NeighborRange
	if len(candidates) == 0 {
		return nil, apperrors.NewAppValidationError("no neighbour counts configured")
	}
	base, err := s.build(ctx)
	if err != nil {
		return nil, err
	}
	scaler, err := s.Scaler()
	if err != nil {
		return nil, err
	}

	// copies are made up front so the goroutines share nothing
	copies := make([]*index.Index, len(candidates))
	for i := range candidates {
		copies[i] = base.Clone()
	}

	reports := make([]*index.TuningReport, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for i, k := range candidates {
		g.Go(func() error {
			rep, err := copies[i].TuneNeighbors(gctx, index.TuningOptions{
				Neighbors:    k,
				Trials:       s.cfg.Diagnostics.TuningTrials,
				MissingShare: s.cfg.Diagnostics.TuningMissing,
				Seed:         s.cfg.Diagnostics.Seed,
				Scaler:       scaler,
			})
			if err != nil {
				return fmt.Errorf("tuning %d neighbours: %w", k, err)
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// BestNeighbors returns the report with the lowest mean deviation, nil if
// none has a finite one.
func BestNeighbors(reports []*index.TuningReport) *index.TuningReport {
	var best *index.TuningReport
	for _, r := range reports {
		if r == nil || math.IsNaN(r.MeanAbsPctDeviation) || math.IsInf(r.MeanAbsPctDeviation, 0) {
			continue
		}
		if best == nil || r.MeanAbsPctDeviation < best.MeanAbsPctDeviation {
			best = r
		}
	}
	return best
}

func (s *IndexService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Diagnostics.Timeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Diagnostics.Timeout)
	}
	return context.WithCancel(ctx)
}
