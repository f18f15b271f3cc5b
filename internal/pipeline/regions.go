package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/climate-region-etl/internal/domain"
)

type regionResult struct {
	series domain.AggregatedSeries
	stats  domain.RegionStats
	err    error
}

// processRegions aggregates regions on opts.Workers goroutines. A single
// merger consumes results in region order, so the tables never depend on
// scheduling.
func (p *Pipeline) processRegions(ctx context.Context, logger *slog.Logger, grid *domain.Grid,
	regions []domain.Region, variable string) (domain.TimeSeriesTable, domain.StatsTable, []RegionFailure, error) {
	slots := make([]chan regionResult, len(regions))
	for i := range slots {
		slots[i] = make(chan regionResult, 1)
	}

	g, gctx := errgroup.WithContext(ctx)

	jobs := make(chan int)
	g.Go(func() error {
		defer close(jobs)
		for i := range regions {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for range p.opts.Workers {
		g.Go(func() error {
			for i := range jobs {
				slots[i] <- p.aggregate(grid, regions[i], variable)
			}
			return nil
		})
	}

	m := &merger{
		p:         p,
		logger:    logger,
		assembler: domain.NewTimeSeriesAssembler(p.opts.EmptyColumns),
		stats:     domain.NewStatsCollector(),
	}
	g.Go(func() error {
		if p.progress != nil {
			p.progress.Start(len(regions))
			defer p.progress.Finish()
		}
		for i := range regions {
			select {
			case res := <-slots[i]:
				if err := m.merge(i, regions[i], res); err != nil {
					return err
				}
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return domain.TimeSeriesTable{}, domain.StatsTable{}, nil, err
	}
	return m.assembler.Finalize(), m.stats.Finalize(), m.failed, nil
}

func (p *Pipeline) aggregate(grid *domain.Grid, region domain.Region, variable string) regionResult {
	start := time.Now()
	series, stats, err := p.aggregator.Aggregate(grid, region, variable)
	p.metrics.RegionDuration.Observe(time.Since(start).Seconds())
	return regionResult{series: series, stats: stats, err: err}
}

// merger owns the assembler and collector. Only the merge goroutine touches it.
type merger struct {
	p         *Pipeline
	logger    *slog.Logger
	assembler *domain.TimeSeriesAssembler
	stats     *domain.StatsCollector
	failed    []RegionFailure
}

func (m *merger) merge(i int, region domain.Region, res regionResult) error {
	if m.p.progress != nil {
		defer m.p.progress.Step(region.Name)
	}

	if res.err != nil {
		m.p.metrics.RegionsFailed.Inc()
		if m.p.opts.FailFast {
			return fmt.Errorf("region %d (%s): %w", i, region.Name, res.err)
		}
		m.logger.Warn("region failed, skipping", "index", i, "region", region.Name, "error", res.err)
		m.failed = append(m.failed, RegionFailure{Index: i, Name: region.Name, Err: res.err})
		m.stats.Record(partialStats(region, res.stats))
		return nil
	}

	column, err := m.assembler.AddNamedColumn(region.Name, res.series)
	if err != nil {
		return err
	}
	m.stats.RecordColumn(res.stats, column)

	if len(res.series) == 0 {
		m.p.metrics.RegionsEmpty.Inc()
		m.logger.Warn("region has no grid coverage", "index", i, "region", region.Name)
	}
	m.p.metrics.RegionsProcessed.Inc()
	m.p.metrics.CellsAggregated.Add(float64(res.stats.CellCount))
	return nil
}

// partialStats fills in the identity fields a failed aggregation may not
// have reached.
func partialStats(region domain.Region, s domain.RegionStats) domain.RegionStats {
	if s.Name == "" {
		s.Name = region.Name
	}
	if s.ISOCode == "" {
		s.ISOCode = region.ISOCode
	}
	return s
}
