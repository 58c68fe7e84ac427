package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
)

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	return reg
}

func provideRegisterer(reg *prometheus.Registry) prometheus.Registerer { return reg }

// Gatherer is what the /metrics endpoint scrapes.
func provideGatherer(reg *prometheus.Registry) prometheus.Gatherer { return reg }

var Module = fx.Module("observability.metrics",
	fx.Provide(
		provideRegistry,
		provideRegisterer,
		provideGatherer,
		New,
		NewHTTPMetrics,
	),
)
