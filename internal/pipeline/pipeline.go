// Package pipeline runs one extraction: open the grid, resolve the
// boundaries, aggregate every region on a worker pool and emit the merged
// tables.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/couchcryptid/climate-region-etl/internal/domain"
	"github.com/couchcryptid/climate-region-etl/internal/observability"
)

// GridOpener loads a gridded dataset.
type GridOpener interface {
	Open(ctx context.Context, path string) (*domain.Grid, error)
}

// Boundaries resolves and downloads administrative regions.
type Boundaries interface {
	Resolve(ctx context.Context, country string, admLevel int) (domain.PolygonSpec, error)
	LoadGeometry(ctx context.Context, spec domain.PolygonSpec) ([]domain.Region, error)
}

// RegionAggregator reduces one region of the grid to a series.
type RegionAggregator interface {
	Aggregate(grid *domain.Grid, region domain.Region, varname string) (domain.AggregatedSeries, domain.RegionStats, error)
}

// TableWriter persists the finalized tables.
type TableWriter interface {
	WriteTables(ctx context.Context, ts domain.TimeSeriesTable, stats domain.StatsTable, paths domain.OutputPaths) error
}

// ResultPublisher forwards a finished run to downstream consumers.
type ResultPublisher interface {
	Publish(ctx context.Context, run domain.RunInfo, ts domain.TimeSeriesTable, stats domain.StatsTable) error
}

// ProgressReporter is told about every merged region.
type ProgressReporter interface {
	Start(total int)
	Step(region string)
	Finish()
}

// Request describes one extraction.
type Request struct {
	Input    string
	Output   domain.OutputPaths
	Variable string
	Country  string
	AdmLevel int
}

// Options tune how regions are processed.
type Options struct {
	Workers      int
	FailFast     bool
	EmptyColumns domain.EmptyColumnPolicy
}

// RegionFailure records a region skipped after an aggregation error.
type RegionFailure struct {
	Index int
	Name  string
	Err   error
}

// Result summarises a completed run.
type Result struct {
	Run        domain.RunInfo
	Boundary   domain.PolygonSpec
	TimeSeries domain.TimeSeriesTable
	Stats      domain.StatsTable
	Failed     []RegionFailure
	Duration   time.Duration
}

// Option configures optional pipeline collaborators.
type Option func(*Pipeline)

// WithPublisher publishes every successful run.
func WithPublisher(pub ResultPublisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

// WithProgress reports region progress.
func WithProgress(r ProgressReporter) Option {
	return func(p *Pipeline) { p.progress = r }
}

// Pipeline orchestrates a single extraction run.
type Pipeline struct {
	grids      GridOpener
	boundaries Boundaries
	aggregator RegionAggregator
	writer     TableWriter
	publisher  ResultPublisher
	progress   ProgressReporter
	logger     *slog.Logger
	metrics    *observability.Metrics
	opts       Options
	ready      atomic.Bool
}

// New creates a Pipeline with the given stages and observability.
func New(grids GridOpener, boundaries Boundaries, aggregator RegionAggregator, writer TableWriter,
	logger *slog.Logger, metrics *observability.Metrics, opts Options, extra ...Option) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	p := &Pipeline{
		grids:      grids,
		boundaries: boundaries,
		aggregator: aggregator,
		writer:     writer,
		logger:     logger,
		metrics:    metrics,
		opts:       opts,
	}
	for _, o := range extra {
		o(p)
	}
	return p
}

// CheckReadiness returns nil once the grid is loaded and the boundaries
// are resolved.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("grid and boundaries not loaded yet")
	}
	return nil
}

// Run executes the extraction. Input, boundary and axis errors abort the
// run before any output is written.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	run := domain.RunInfo{
		ID:        uuid.NewString(),
		Input:     req.Input,
		Variable:  req.Variable,
		StartedAt: domain.Clock().Now().UTC(),
	}
	logger := p.logger.With("run_id", run.ID)
	logger.Info("pipeline started", "input", req.Input, "variable", req.Variable,
		"country", req.Country, "adm_level", req.AdmLevel, "workers", p.opts.Workers)

	grid, err := p.grids.Open(ctx, req.Input)
	if err != nil {
		return Result{}, err
	}
	if !grid.HasVariable(req.Variable) {
		return Result{}, fmt.Errorf("%w: %q not in %s (available: %s)",
			domain.ErrVariableNotFound, req.Variable, req.Input, strings.Join(grid.Variables(), ", "))
	}

	country, err := domain.NormalizeCountry(req.Country)
	if err != nil {
		return Result{}, err
	}
	if err := domain.ValidateAdmLevel(req.AdmLevel); err != nil {
		return Result{}, err
	}

	spec, err := p.boundaries.Resolve(ctx, country, req.AdmLevel)
	if err != nil {
		return Result{}, err
	}
	regions, err := p.boundaries.LoadGeometry(ctx, spec)
	if err != nil {
		return Result{}, err
	}
	run.Country = spec.Country
	run.AdmLevel = spec.Level
	p.ready.Store(true)
	logger.Info("boundaries resolved", "boundary", spec.Boundary.Type, "regions", len(regions))

	ts, stats, failed, err := p.processRegions(ctx, logger, grid, regions, req.Variable)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if err := p.writer.WriteTables(ctx, ts, stats, req.Output); err != nil {
		return Result{}, fmt.Errorf("write outputs: %w", err)
	}

	result := Result{
		Run:        run,
		Boundary:   spec,
		TimeSeries: ts,
		Stats:      stats,
		Failed:     failed,
		Duration:   domain.Clock().Since(run.StartedAt),
	}
	if p.publisher != nil {
		if err := p.publisher.Publish(ctx, run, ts, stats); err != nil {
			return result, fmt.Errorf("publish results: %w", err)
		}
	}

	logger.Info("pipeline finished",
		"regions", len(stats.Rows),
		"columns", len(ts.Columns),
		"timesteps", ts.Rows(),
		"failed", len(failed),
		"duration", result.Duration,
	)
	return result, nil
}
