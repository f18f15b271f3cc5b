// Command extract aggregates a gridded climate variable over the
// administrative regions of a country and writes one time series per region.
//
// Usage:
//
//	extract -i era5.nc -o fra_t2m.parquet -v t2m -c FRA -a 1
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/climate-region-etl/internal/adapter/console"
	"github.com/couchcryptid/climate-region-etl/internal/adapter/duckdb"
	"github.com/couchcryptid/climate-region-etl/internal/adapter/geoboundaries"
	httpadapter "github.com/couchcryptid/climate-region-etl/internal/adapter/http"
	"github.com/couchcryptid/climate-region-etl/internal/adapter/kafka"
	"github.com/couchcryptid/climate-region-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/climate-region-etl/internal/config"
	"github.com/couchcryptid/climate-region-etl/internal/domain"
	"github.com/couchcryptid/climate-region-etl/internal/observability"
	"github.com/couchcryptid/climate-region-etl/internal/pipeline"
)

// Exit codes.
const (
	exitFailure  = 1
	exitInput    = 2
	exitBoundary = 3
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:          "extract",
		Short:        "Extract per-region time series from a gridded dataset",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "YAML config file")
	f.StringP("input", "i", "", "input NetCDF file")
	f.StringP("output", "o", "", "output Parquet file; statistics go to <output>.csv")
	f.StringP("variable", "v", "", "variable to aggregate, e.g. t2m")
	f.StringP("country", "c", "", "ISO 3166-1 alpha-3 country code")
	f.IntP("adm-level", "a", 0, "administrative level, 0 to 2")
	f.String("boundary-base-url", config.DefaultBoundaryBaseURL, "geoBoundaries API base URL")
	f.Int("region-workers", 4, "regions aggregated concurrently")
	f.String("empty-columns", string(domain.EmptyColumnsNull), "regions without coverage: null or omit")
	f.Bool("fail-fast", false, "abort on the first region error")
	f.Bool("wrap-longitude", true, "convert a 0..360 longitude axis to -180..180")
	f.Bool("progress", true, "draw a progress bar on stdout")
	f.String("redis-url", "", "shared boundary cache, e.g. redis://localhost:6379/0")
	f.String("log-level", "info", "debug, info, warn or error")
	f.String("log-format", "text", "text or json")
	f.String("metrics-addr", "", "serve /healthz, /readyz and /metrics on this address during the run")
	f.String("metrics-textfile", "", "write Prometheus metrics to this file when the run ends")
	f.StringSlice("kafka-brokers", nil, "publish region series to these brokers")
	f.String("kafka-topic", "climate-region-series", "topic for published region series")

	return cmd
}

func run(cmd *cobra.Command, cfg *config.Config) error {
	logger := observability.NewLogger(cfg)
	slog.SetDefault(logger)
	if cfg.OutputAdjusted {
		logger.Warn("output file does not end in .parquet, extension appended", "output", cfg.Output)
	}

	reg, metrics := observability.NewRegistry()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fetcher, closeCache := boundaryFetcher(ctx, cfg, metrics, logger)
	defer closeCache()

	var opts []pipeline.Option
	if cfg.Progress {
		opts = append(opts, pipeline.WithProgress(console.NewProgress(cmd.OutOrStdout())))
	}
	if cfg.PublishEnabled() {
		pub := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, metrics, logger)
		defer func() {
			if err := pub.Close(); err != nil {
				logger.Error("kafka publisher close error", "error", err)
			}
		}()
		opts = append(opts, pipeline.WithPublisher(pub))
	}

	p := pipeline.New(
		netcdf.NewSource(netcdf.Options{WrapLongitude: cfg.WrapLongitude}, logger),
		domain.NewBoundaryProvider(fetcher, logger),
		domain.NewAggregator(nil),
		duckdb.NewWriter(logger),
		logger, metrics,
		pipeline.Options{
			Workers:      cfg.RegionWorkers,
			FailFast:     cfg.FailFast,
			EmptyColumns: domain.EmptyColumnPolicy(cfg.EmptyColumns),
		},
		opts...,
	)

	if cfg.MetricsAddr != "" {
		srv := httpadapter.NewServer(cfg.MetricsAddr, p, reg, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	res, err := p.Run(ctx, pipeline.Request{
		Input:    cfg.Input,
		Output:   domain.OutputPaths{TimeSeries: cfg.Output, Stats: cfg.StatsOutput()},
		Variable: cfg.Variable,
		Country:  cfg.Country,
		AdmLevel: cfg.AdmLevel,
	})

	if cfg.MetricsTextfile != "" {
		if werr := observability.WriteTextfile(cfg.MetricsTextfile, reg); werr != nil {
			logger.Error("write metrics textfile", "path", cfg.MetricsTextfile, "error", werr)
		}
	}
	if err != nil {
		return err
	}

	console.RenderSummary(cmd.OutOrStdout(), res.TimeSeries, res.Stats)
	for _, f := range res.Failed {
		fmt.Fprintf(cmd.ErrOrStderr(), "skipped region %d (%s): %v\n", f.Index, f.Name, f.Err)
	}
	return nil
}

// boundaryFetcher builds the cached geoBoundaries client. The Redis tier is
// optional; when it cannot be reached the run continues on the memory cache.
func boundaryFetcher(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) (domain.BoundaryFetcher, func()) {
	client := geoboundaries.NewClient(geoboundaries.Options{
		BaseURL: cfg.BoundaryBaseURL,
		Timeout: cfg.BoundaryTimeout,
		Retries: cfg.BoundaryRetries,
	}, metrics, logger)

	var shared geoboundaries.Store
	closeFn := func() {}
	if cfg.RedisURL != "" {
		store, err := geoboundaries.NewRedisStore(ctx, cfg.RedisURL, cfg.RedisTTL)
		if err != nil {
			logger.Warn("redis boundary cache unavailable, using memory only", "error", err)
		} else {
			shared = store
			closeFn = func() {
				if err := store.Close(); err != nil {
					logger.Error("redis close error", "error", err)
				}
			}
		}
	}
	return geoboundaries.NewCachedFetcher(client, cfg.BoundaryCacheSize, shared, metrics, logger), closeFn
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrMissingInput),
		errors.Is(err, domain.ErrVariableNotFound),
		errors.Is(err, domain.ErrInvalidCountry),
		errors.Is(err, domain.ErrInvalidAdmLevel):
		return exitInput
	case errors.Is(err, domain.ErrBoundaryService):
		return exitBoundary
	default:
		return exitFailure
	}
}
