package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/ctessum/geom"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-region-etl/internal/domain"
	"github.com/couchcryptid/climate-region-etl/internal/observability"
	"github.com/couchcryptid/climate-region-etl/internal/pipeline"
)

var (
	t0      = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	started = time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)
	outputs = domain.OutputPaths{TimeSeries: "out.parquet", Stats: "out.parquet.csv"}
)

// --- fakes ---

type fakeGrids struct {
	grid *domain.Grid
	err  error
}

func (f *fakeGrids) Open(_ context.Context, _ string) (*domain.Grid, error) {
	return f.grid, f.err
}

type fakeBoundaries struct {
	regions      []domain.Region
	level        int
	resolveErr   error
	loadErr      error
	resolveCalls int
}

func (f *fakeBoundaries) Resolve(_ context.Context, country string, admLevel int) (domain.PolygonSpec, error) {
	f.resolveCalls++
	if f.resolveErr != nil {
		return domain.PolygonSpec{}, f.resolveErr
	}
	return domain.PolygonSpec{
		Country:        country,
		RequestedLevel: admLevel,
		Level:          f.level,
		Boundary:       domain.BoundaryLevel{Type: fmt.Sprintf("ADM%d", f.level)},
	}, nil
}

func (f *fakeBoundaries) LoadGeometry(_ context.Context, _ domain.PolygonSpec) ([]domain.Region, error) {
	return f.regions, f.loadErr
}

// scriptedAggregator delegates to the real aggregator, failing or
// truncating named regions and jittering completion order.
type scriptedAggregator struct {
	inner    *domain.Aggregator
	fail     map[string]error
	truncate map[string]bool
	jitter   bool
}

func (s *scriptedAggregator) Aggregate(grid *domain.Grid, region domain.Region, varname string) (domain.AggregatedSeries, domain.RegionStats, error) {
	if s.jitter {
		time.Sleep(time.Duration(rand.IntN(3)) * time.Millisecond)
	}
	if err := s.fail[region.Name]; err != nil {
		_, stats, _ := s.inner.Aggregate(grid, region, varname)
		return nil, stats, err
	}
	series, stats, err := s.inner.Aggregate(grid, region, varname)
	if s.truncate[region.Name] && len(series) > 0 {
		series = series[:len(series)-1]
	}
	return series, stats, err
}

type recordingWriter struct {
	calls int
	ts    domain.TimeSeriesTable
	stats domain.StatsTable
	paths domain.OutputPaths
	err   error
}

func (w *recordingWriter) WriteTables(_ context.Context, ts domain.TimeSeriesTable, stats domain.StatsTable, paths domain.OutputPaths) error {
	w.calls++
	w.ts, w.stats, w.paths = ts, stats, paths
	return w.err
}

type recordingPublisher struct {
	run   domain.RunInfo
	calls int
	err   error
}

func (p *recordingPublisher) Publish(_ context.Context, run domain.RunInfo, _ domain.TimeSeriesTable, _ domain.StatsTable) error {
	p.calls++
	p.run = run
	return p.err
}

type recordingProgress struct {
	mu       sync.Mutex
	total    int
	steps    []string
	finished bool
}

func (r *recordingProgress) Start(total int) { r.total = total }
func (r *recordingProgress) Finish()         { r.finished = true }
func (r *recordingProgress) Step(region string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, region)
}

// --- fixtures ---

func rect(xmin, ymin, xmax, ymax float64) geom.Polygon {
	return geom.Polygon{{
		{X: xmin, Y: ymin}, {X: xmax, Y: ymin}, {X: xmax, Y: ymax}, {X: xmin, Y: ymax}, {X: xmin, Y: ymin},
	}}
}

func region(name string, xmin, ymin, xmax, ymax float64) domain.Region {
	return domain.Region{Name: name, ISOCode: "FR-" + name, Geometry: rect(xmin, ymin, xmax, ymax)}
}

// testGrid covers lon [0,10] and lat [50,40] at 1° with two hourly times.
// Every t2m cell at time t holds 280+t.
func testGrid(t *testing.T) *domain.Grid {
	t.Helper()
	lon := make([]float64, 11)
	lat := make([]float64, 11)
	for i := range lon {
		lon[i] = float64(i)
		lat[i] = 50 - float64(i)
	}
	g := domain.NewGrid(lon, lat, []time.Time{t0, t0.Add(time.Hour)}, nil)
	values := make([]float64, g.Len())
	for i := range values {
		values[i] = 280 + float64(i/(len(lon)*len(lat)))
	}
	require.NoError(t, g.AddVariable("t2m", values))
	return g
}

func threeRegions() []domain.Region {
	return []domain.Region{
		region("A", 1, 41, 3, 43),
		region("Offshore", 20, 20, 21, 21),
		region("C", 5, 45, 7, 47),
	}
}

type harness struct {
	grids      *fakeGrids
	boundaries *fakeBoundaries
	aggregator *scriptedAggregator
	writer     *recordingWriter
	publisher  *recordingPublisher
	progress   *recordingProgress
	metrics    *observability.Metrics
	opts       pipeline.Options
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	domain.SetClock(clockwork.NewFakeClockAt(started))
	t.Cleanup(func() { domain.SetClock(nil) })
	return &harness{
		grids:      &fakeGrids{grid: testGrid(t)},
		boundaries: &fakeBoundaries{regions: threeRegions(), level: 1},
		aggregator: &scriptedAggregator{inner: domain.NewAggregator(nil)},
		writer:     &recordingWriter{},
		publisher:  &recordingPublisher{},
		progress:   &recordingProgress{},
		metrics:    observability.NewMetricsForTesting(),
		opts:       pipeline.Options{Workers: 4, EmptyColumns: domain.EmptyColumnsNull},
	}
}

func (h *harness) pipeline() *pipeline.Pipeline {
	return pipeline.New(h.grids, h.boundaries, h.aggregator, h.writer,
		slog.New(slog.NewTextHandler(io.Discard, nil)), h.metrics, h.opts,
		pipeline.WithPublisher(h.publisher), pipeline.WithProgress(h.progress))
}

func request() pipeline.Request {
	return pipeline.Request{Input: "era5.nc", Output: outputs, Variable: "t2m", Country: "fra", AdmLevel: 1}
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	h := newHarness(t)
	p := h.pipeline()
	require.Error(t, p.CheckReadiness(context.Background()))

	res, err := p.Run(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, 1, h.writer.calls)
	assert.Equal(t, outputs, h.writer.paths)
	if diff := cmp.Diff([]string{"A", "Offshore", "C"}, h.writer.ts.ColumnNames()); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []time.Time{t0, t0.Add(time.Hour)}, res.TimeSeries.Timesteps)
	assert.InDeltaSlice(t, []float64{280, 281}, res.TimeSeries.Columns[0].Values, 1e-9)
	assert.True(t, math.IsNaN(res.TimeSeries.Columns[1].Values[0]))

	require.Len(t, res.Stats.Rows, 3)
	assert.Equal(t, 9, res.Stats.Rows[0].CellCount)
	assert.Equal(t, 0, res.Stats.Rows[1].CellCount)
	assert.Equal(t, "FR-C", res.Stats.Rows[2].ISOCode)
	assert.Empty(t, res.Failed)

	assert.NotEmpty(t, res.Run.ID)
	assert.Equal(t, "FRA", res.Run.Country)
	assert.Equal(t, 1, res.Run.AdmLevel)
	assert.Equal(t, started, res.Run.StartedAt)
	assert.Equal(t, 1, h.publisher.calls)
	assert.Equal(t, res.Run, h.publisher.run)

	assert.Equal(t, 3, h.progress.total)
	assert.Equal(t, []string{"A", "Offshore", "C"}, h.progress.steps)
	assert.True(t, h.progress.finished)

	assert.InDelta(t, 3, testutil.ToFloat64(h.metrics.RegionsProcessed), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.RegionsEmpty), 0)
	assert.InDelta(t, 18, testutil.ToFloat64(h.metrics.CellsAggregated), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(h.metrics.PipelineRunning), 0)
	require.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_OmitEmptyColumns(t *testing.T) {
	h := newHarness(t)
	h.opts.EmptyColumns = domain.EmptyColumnsOmit

	res, err := h.pipeline().Run(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "C"}, res.TimeSeries.ColumnNames())
	assert.Len(t, res.Stats.Rows, 3, "stats keep every region")
}

func TestPipeline_Run_EmptyFirstRegionDoesNotFixAxis(t *testing.T) {
	h := newHarness(t)
	h.boundaries.regions = []domain.Region{region("Offshore", 20, 20, 21, 21), region("A", 1, 41, 3, 43)}

	res, err := h.pipeline().Run(context.Background(), request())
	require.NoError(t, err)

	assert.Len(t, res.TimeSeries.Timesteps, 2)
	require.Len(t, res.TimeSeries.Columns, 2)
	assert.Len(t, res.TimeSeries.Columns[0].Values, 2)
}

func TestPipeline_Run_MergesInRegionOrder(t *testing.T) {
	h := newHarness(t)
	h.opts.Workers = 8
	h.aggregator.jitter = true
	var regions []domain.Region
	var want []string
	for i := range 40 {
		name := fmt.Sprintf("R%02d", i)
		x := float64(i % 9)
		regions = append(regions, region(name, x, 41, x+1, 42))
		want = append(want, name)
	}
	h.boundaries.regions = regions

	res, err := h.pipeline().Run(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, want, res.TimeSeries.ColumnNames())
	for i, row := range res.Stats.Rows {
		assert.Equal(t, i, row.Index)
		assert.Equal(t, want[i], row.Name)
	}
	assert.Equal(t, want, h.progress.steps)
}

func TestPipeline_Run_DuplicateRegionNames(t *testing.T) {
	h := newHarness(t)
	h.boundaries.regions = []domain.Region{region("A", 1, 41, 3, 43), region("A", 5, 45, 7, 47)}

	res, err := h.pipeline().Run(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "A_2"}, res.TimeSeries.ColumnNames())
}

func TestPipeline_Run_ContinuesPastRegionFailure(t *testing.T) {
	h := newHarness(t)
	h.aggregator.fail = map[string]error{"Offshore": errors.New("self-intersecting ring")}

	res, err := h.pipeline().Run(context.Background(), request())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "C"}, res.TimeSeries.ColumnNames())
	require.Len(t, res.Stats.Rows, 3)
	assert.Equal(t, "Offshore", res.Stats.Rows[1].Name)
	assert.Equal(t, 1, res.Stats.Rows[1].Index)
	assert.Empty(t, res.Stats.Rows[1].Column)
	assert.Equal(t, "A", res.Stats.Rows[0].Column)
	assert.Equal(t, "C", res.Stats.Rows[2].Column)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 1, res.Failed[0].Index)
	assert.Equal(t, "Offshore", res.Failed[0].Name)
	assert.ErrorContains(t, res.Failed[0].Err, "self-intersecting")
	assert.Equal(t, 1, h.writer.calls)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.RegionsFailed), 0)
	assert.Len(t, h.progress.steps, 3)
}

func TestPipeline_Run_FailFast(t *testing.T) {
	h := newHarness(t)
	h.opts.FailFast = true
	h.aggregator.fail = map[string]error{"C": errors.New("boom")}

	_, err := h.pipeline().Run(context.Background(), request())
	require.ErrorContains(t, err, "region 2 (C): boom")
	assert.Zero(t, h.writer.calls)
	assert.Zero(t, h.publisher.calls)
}

func TestPipeline_Run_AxisMismatchIsFatal(t *testing.T) {
	h := newHarness(t)
	h.aggregator.truncate = map[string]bool{"C": true}

	_, err := h.pipeline().Run(context.Background(), request())
	require.ErrorIs(t, err, domain.ErrAxisMismatch)
	assert.Zero(t, h.writer.calls)
}

func TestPipeline_Run_ValidationAbortsBeforeOutput(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(h *harness, req *pipeline.Request)
		want        error
		wantResolve int
	}{
		{
			name:   "missing input",
			mutate: func(h *harness, _ *pipeline.Request) { h.grids.err = fmt.Errorf("%w: era5.nc", domain.ErrMissingInput) },
			want:   domain.ErrMissingInput,
		},
		{
			name:   "unknown variable",
			mutate: func(_ *harness, req *pipeline.Request) { req.Variable = "tp" },
			want:   domain.ErrVariableNotFound,
		},
		{
			name:   "invalid country",
			mutate: func(_ *harness, req *pipeline.Request) { req.Country = "ZZZ" },
			want:   domain.ErrInvalidCountry,
		},
		{
			name:   "invalid adm level",
			mutate: func(_ *harness, req *pipeline.Request) { req.AdmLevel = 5 },
			want:   domain.ErrInvalidAdmLevel,
		},
		{
			name: "boundary service down",
			mutate: func(h *harness, _ *pipeline.Request) {
				h.boundaries.resolveErr = fmt.Errorf("%w: connection refused", domain.ErrBoundaryService)
			},
			want:        domain.ErrBoundaryService,
			wantResolve: 1,
		},
		{
			name: "geometry download fails",
			mutate: func(h *harness, _ *pipeline.Request) {
				h.boundaries.loadErr = fmt.Errorf("%w: truncated body", domain.ErrBoundaryService)
			},
			want:        domain.ErrBoundaryService,
			wantResolve: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			req := request()
			tt.mutate(h, &req)

			_, err := h.pipeline().Run(context.Background(), req)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.wantResolve, h.boundaries.resolveCalls)
			assert.Zero(t, h.writer.calls)
			assert.Zero(t, h.publisher.calls)
		})
	}
}

func TestPipeline_Run_UnknownVariableListsAvailable(t *testing.T) {
	h := newHarness(t)
	req := request()
	req.Variable = "tp"

	_, err := h.pipeline().Run(context.Background(), req)
	require.ErrorContains(t, err, `"tp" not in era5.nc (available: t2m)`)
}

func TestPipeline_Run_WriteError(t *testing.T) {
	h := newHarness(t)
	h.writer.err = errors.New("disk full")

	_, err := h.pipeline().Run(context.Background(), request())
	require.ErrorContains(t, err, "write outputs: disk full")
	assert.Zero(t, h.publisher.calls)
}

func TestPipeline_Run_PublishErrorKeepsResult(t *testing.T) {
	h := newHarness(t)
	h.publisher.err = errors.New("broker unavailable")

	res, err := h.pipeline().Run(context.Background(), request())
	require.ErrorContains(t, err, "publish results")
	assert.Len(t, res.Stats.Rows, 3)
	assert.Equal(t, 1, h.writer.calls)
}

func TestPipeline_Run_CanceledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.pipeline().Run(ctx, request())
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.writer.calls)
}

func TestPipeline_Run_WithoutOptionalCollaborators(t *testing.T) {
	h := newHarness(t)
	p := pipeline.New(h.grids, h.boundaries, h.aggregator, h.writer,
		slog.New(slog.NewTextHandler(io.Discard, nil)), h.metrics, pipeline.Options{})

	res, err := p.Run(context.Background(), request())
	require.NoError(t, err)
	assert.Len(t, res.TimeSeries.Columns, 3)
}
