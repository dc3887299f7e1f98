package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	harness "github.com/ethereum-optimism/infra/op-harness"
	"github.com/ethereum-optimism/infra/op-harness/exitcodes"
	"github.com/ethereum-optimism/infra/op-harness/flags"
	"github.com/ethereum-optimism/infra/op-harness/selftest"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	// A .env file next to the binary may carry OP_HARNESS_* settings.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to load .env file", "err", err)
	}

	app := newApp()

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	if err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "op-harness"
	app.Usage = "Test harness service"
	app.Description = "op-harness runs suites of tests against an HTML fixture and reports every run"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(run)
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err == nil {
			return
		}
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
			return
		}
		cli.HandleExitCoder(cli.Exit(err.Error(), exitCode(err)))
	}
	return app
}

// exitCode maps an application error to the process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitcodes.Success
	case harness.IsRuntimeError(err):
		return exitcodes.RuntimeErr
	case harness.IsTestFailureError(err):
		return exitcodes.TestFailure
	default:
		// For other unspecified errors, default to exit code 1
		return exitcodes.TestFailure
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := harness.NewConfig(ctx, log)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, harness.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	var markup string
	if path := ctx.String(flags.Fixture.Name); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, harness.NewRuntimeError(fmt.Errorf("failed to read fixture: %w", err))
		}
		markup = string(data)
	}

	h, err := harness.New(ctx.Context, cfg, Version, selftest.Define(markup), closeApp)
	if err != nil {
		if harness.IsRuntimeError(err) {
			return nil, err
		}
		return nil, harness.NewRuntimeError(fmt.Errorf("failed to create harness: %w", err))
	}

	return h, nil
}
