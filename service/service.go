package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum-optimism/infra/op-harness/runner"
)

const (
	HealthzHost = "0.0.0.0"
	HealthzPort = "8080"
)

// Config sets the listen addresses. An empty address disables that server.
type Config struct {
	HealthzAddr string
	APIAddr     string
	MetricsAddr string
	Log         log.Logger
}

type Service struct {
	cfg     Config
	log     log.Logger
	Healthz *HealthzServer
	Metrics *MetricsServer
	API     *APIServer
}

// New creates the service for r. The API subscribes to r's events right away.
func New(cfg Config, r *runner.Runner) *Service {
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	s := &Service{
		cfg:     cfg,
		log:     cfg.Log,
		Healthz: &HealthzServer{log: cfg.Log},
		Metrics: &MetricsServer{},
	}
	if cfg.APIAddr != "" {
		s.API = NewAPIServer(r, cfg.Log)
	}
	return s
}

func (s *Service) Start(ctx context.Context) {
	s.log.Info("service starting")

	s.serve("healthz", s.cfg.HealthzAddr, func(addr string) error { return s.Healthz.Start(ctx, addr) })
	s.serve("metrics", s.cfg.MetricsAddr, func(addr string) error { return s.Metrics.Start(ctx, addr) })
	if s.API != nil {
		s.serve("api", s.cfg.APIAddr, func(addr string) error { return s.API.Start(ctx, addr) })
	}

	s.log.Info("service started")
}

func (s *Service) serve(name, addr string, start func(string) error) {
	if addr == "" {
		return
	}
	go func() {
		s.log.Info("starting "+name+" server", "addr", addr)
		if err := start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("error starting "+name+" server", "err", err)
			metrics.RecordErrorDetails("error starting "+name+" server", err)
		}
	}()
}

func (s *Service) Shutdown() {
	s.log.Info("service shutting down")

	_ = s.Healthz.Shutdown()
	s.log.Info("healthz stopped")

	_ = s.Metrics.Shutdown()
	s.log.Info("metrics stopped")

	if s.API != nil {
		_ = s.API.Shutdown()
		s.log.Info("api stopped")
	}

	s.log.Info("service stopped")
}
