package flags

import (
	"fmt"
	"net"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"

	"github.com/ethereum-optimism/infra/op-harness/runner"
	"github.com/ethereum-optimism/infra/op-harness/service"
)

const EnvVarPrefix = "OP_HARNESS"

var (
	Params = &cli.StringFlag{
		Name:    "params",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PARAMS"),
		Usage:   "Run params as a URL query (eg. 'tag=ui&tag=-slow&random&bail=1')",
	}
	ParamsFile = &cli.StringFlag{
		Name:    "params-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PARAMS_FILE"),
		Usage:   "Path to a YAML or TOML params file. Query params given with --params are merged over it",
	}
	Fixture = &cli.StringFlag{
		Name:    "fixture",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "FIXTURE"),
		Usage:   "Path to the HTML fixture the built-in suites query. The bundled fixture is used when empty",
	}
	RunInterval = &cli.DurationFlag{
		Name:    "run-interval",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RUN_INTERVAL"),
		Usage:   "Interval between test runs (e.g. '1h', '30m'). Set to 0 or omit for run-once mode.",
	}
	DefaultTimeout = &cli.DurationFlag{
		Name:    "default-timeout",
		Value:   runner.DefaultTestTimeout,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DEFAULT_TIMEOUT"),
		Usage:   "Default timeout of a single test, overridden by a timeout=N tag",
	}
	Bail = &cli.IntFlag{
		Name:    "bail",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "BAIL"),
		Usage:   "Stop a run after that many failed tests. 0 disables it",
	}
	Random = &cli.BoolFlag{
		Name:    "random",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "RANDOM"),
		Usage:   "Shuffle suites and tests at every level",
	}
	Store = &cli.StringFlag{
		Name:    "store",
		Value:   "memory://",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STORE"),
		Usage:   "Where failed test ids are kept between runs: memory://, file:///path, leveldb:///path or redis://host:port/db",
	}
	StoreFallback = &cli.StringFlag{
		Name:    "store-fallback",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "STORE_FALLBACK"),
		Usage:   "Store used whenever the primary store fails",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory the run summaries and logs are written to",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_PROGRESS"),
		Usage:   "Log periodic progress updates while a run is in progress",
	}
	ProgressInterval = &cli.DurationFlag{
		Name:    "progress-interval",
		Value:   runner.DefaultProgressInterval,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PROGRESS_INTERVAL"),
		Usage:   "Interval between progress updates when --show-progress is set",
	}
	HealthzAddr = &cli.StringFlag{
		Name:    "healthz.addr",
		Value:   net.JoinHostPort(service.HealthzHost, service.HealthzPort),
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "HEALTHZ_ADDR"),
		Usage:   "Listen address of the health check server. Empty disables it",
	}
	APIAddr = &cli.StringFlag{
		Name:    "api.addr",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "API_ADDR"),
		Usage:   "Listen address of the state API and event stream (eg. '0.0.0.0:8090'). Empty disables it",
	}
)

var requiredFlags = []cli.Flag{}

var optionalFlags = []cli.Flag{
	Params,
	ParamsFile,
	Fixture,
	RunInterval,
	DefaultTimeout,
	Bail,
	Random,
	Store,
	StoreFallback,
	LogDir,
	ShowProgress,
	ProgressInterval,
	HealthzAddr,
	APIAddr,
}

var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return opflags.CheckRequiredXor(ctx)
}

// ProgressEnabled returns the progress interval, or zero when progress
// reporting is off.
func ProgressEnabled(ctx *cli.Context) time.Duration {
	if !ctx.Bool(ShowProgress.Name) {
		return 0
	}
	return ctx.Duration(ProgressInterval.Name)
}
