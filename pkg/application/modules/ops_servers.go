package modules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"storefront/pkg/metrics"
	"storefront/pkg/probe"
)

// NewMetricRegistry returns a registry preloaded with runtime collectors.
// Services register their own collectors on it before MetricServer runs.
func NewMetricRegistry() *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return registry
}

// MetricServer serves /metrics off the private listener.
type MetricServer struct {
	ListenAddress string
	Registry      *prometheus.Registry
}

func (m MetricServer) Run(ctx context.Context, g *errgroup.Group) {
	var gatherer prometheus.Gatherer
	if m.Registry != nil {
		gatherer = m.Registry
	}

	prometheusServer := metrics.NewPrometheusServer(m.ListenAddress, gatherer)

	g.Go(func() error {
		if err := prometheusServer.Run(ctx); err != nil {
			return fmt.Errorf("prometheusServer.Run: %w", err)
		}

		return nil
	})
}

// ProbeServer answers liveness and readiness for the process. A failing
// check marks the process not ready.
type ProbeServer struct {
	Name          string
	Version       string
	ListenAddress string
	Checks        []probe.Check
}

func (p ProbeServer) Run(ctx context.Context, g *errgroup.Group) {
	probeServer := probe.NewServer(
		p.ListenAddress,
		probe.Options{Name: p.Name, Version: p.Version},
		p.Checks...,
	)

	names := make([]string, 0, len(p.Checks))
	for _, check := range p.Checks {
		names = append(names, check.Name)
	}

	logger(ctx).Info("readiness checks", slog.Any("checks", names))

	g.Go(func() error {
		if err := probeServer.Run(ctx); err != nil {
			return fmt.Errorf("probeServer.Run: %w", err)
		}

		return nil
	})
}
