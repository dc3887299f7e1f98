package service

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves the default prometheus registry.
type MetricsServer struct {
	ctx    context.Context
	server *http.Server
}

func (m *MetricsServer) Start(ctx context.Context, addr string) error {
	hdlr := http.NewServeMux()
	hdlr.Handle("/metrics", promhttp.Handler())
	m.server = &http.Server{
		Handler: hdlr,
		Addr:    addr,
	}
	m.ctx = ctx
	return m.server.ListenAndServe()
}

func (m *MetricsServer) Shutdown() error {
	if m.server == nil {
		return nil
	}
	return m.server.Shutdown(context.WithoutCancel(m.ctx))
}
