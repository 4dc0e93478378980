package orchestrator

import (
	"io/fs"

	"github.com/pseudomuto/gatekeeper/pkg/config"
	"go.uber.org/fx"
)

var Module = fx.Module("orchestrator", fx.Provide(NewMetrics, NewBuilder))

type (
	// Builder creates Orchestrators once the configuration is known, which
	// for the CLI is only after flags have been parsed.
	Builder struct {
		metrics   *Metrics
		resources fs.FS
	}

	// BuilderParams are the dependencies of a Builder. Resources is only
	// needed for the embedded backend.
	BuilderParams struct {
		fx.In

		Metrics   *Metrics
		Resources fs.FS `name:"resources" optional:"true"`
	}
)

// NewBuilder creates a Builder.
func NewBuilder(p BuilderParams) *Builder {
	return &Builder{metrics: p.Metrics, resources: p.Resources}
}

// Build creates an Orchestrator for cfg.
func (b *Builder) Build(cfg *config.Config, opts ...Option) (*Orchestrator, error) {
	return FromConfig(cfg, b.resources, append([]Option{WithMetrics(b.metrics)}, opts...)...)
}

// Metrics returns the metrics shared by every Orchestrator built.
func (b *Builder) Metrics() *Metrics {
	return b.metrics
}
