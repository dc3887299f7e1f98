package harness

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-harness/flags"
	"github.com/ethereum-optimism/infra/op-harness/params"
	"github.com/ethereum-optimism/infra/op-harness/service"
	"github.com/ethereum-optimism/infra/op-harness/storage"
)

// Config holds the application configuration
type Config struct {
	Params           *params.Snapshot // Run params, the params file merged with --params
	RunInterval      time.Duration    // Interval between test runs
	RunOnce          bool             // Indicates if the service should exit after one test run
	DefaultTimeout   time.Duration    // Default timeout for individual tests, overridden by a timeout tag
	Bail             int              // Stop a run after that many failures
	Random           bool             // Shuffle jobs at every level
	Store            storage.Config   // Failed test persistence
	LogDir           string           // Directory to store run summaries
	ShowProgress     bool             // Whether to show periodic progress updates during a run
	ProgressInterval time.Duration    // Interval between progress updates when ShowProgress is 'true'
	Service          service.Config   // Listen addresses of the healthz, metrics and API servers
	Log              log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	snapshot, err := loadParams(ctx.String(flags.ParamsFile.Name), ctx.String(flags.Params.Name))
	if err != nil {
		return nil, err
	}

	runInterval := ctx.Duration(flags.RunInterval.Name)

	logDir := ctx.String(flags.LogDir.Name)
	if logDir == "" {
		logDir = "logs"
	}
	logDir, err = filepath.Abs(logDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path for log directory '%s': %w", logDir, err)
	}

	metricsCfg := opmetrics.ReadCLIConfig(ctx)
	if err := metricsCfg.Check(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}
	var metricsAddr string
	if metricsCfg.Enabled {
		metricsAddr = fmt.Sprintf("%s:%d", metricsCfg.ListenAddr, metricsCfg.ListenPort)
	}

	return &Config{
		Params:           snapshot,
		RunInterval:      runInterval,
		RunOnce:          runInterval == 0,
		DefaultTimeout:   ctx.Duration(flags.DefaultTimeout.Name),
		Bail:             ctx.Int(flags.Bail.Name),
		Random:           ctx.Bool(flags.Random.Name),
		Store: storage.Config{
			URL:      ctx.String(flags.Store.Name),
			Fallback: ctx.String(flags.StoreFallback.Name),
		},
		LogDir:           logDir,
		ShowProgress:     ctx.Bool(flags.ShowProgress.Name),
		ProgressInterval: ctx.Duration(flags.ProgressInterval.Name),
		Service: service.Config{
			HealthzAddr: ctx.String(flags.HealthzAddr.Name),
			APIAddr:     ctx.String(flags.APIAddr.Name),
			MetricsAddr: metricsAddr,
			Log:         log,
		},
		Log: log,
	}, nil
}

// loadParams reads the params file, if any, and merges the query over it.
func loadParams(path, query string) (*params.Snapshot, error) {
	snapshot := &params.Snapshot{}
	if path != "" {
		fromFile, err := params.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load params file '%s': %w", path, err)
		}
		snapshot = fromFile
	}
	fromQuery, err := params.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("invalid params %q: %w", query, err)
	}
	return snapshot.Merge(fromQuery), nil
}
