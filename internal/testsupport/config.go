package testsupport

import (
	"path/filepath"
	"testing"

	"orderflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Orders are offered immediately (no settle delay) unless an option says
// otherwise.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Store.Driver = "sqlite"
	cfgVal.Store.Path = filepath.Join(cfgVal.Paths.DataDir, "orderflow.db")
	cfgVal.WorkQueue.SettleDelaySeconds = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSettleDelay overrides the work queue settle delay.
func WithSettleDelay(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.WorkQueue.SettleDelaySeconds = seconds
	}
}

// WithSLAStages overrides the stages covered by the timeout sweep.
func WithSLAStages(stages ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.SLA.Stages = stages
	}
}

// WithMaxDeliverables overrides the default finalize file limit.
func WithMaxDeliverables(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Deliverables.MaxFiles = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}

// WithFlatSLA drops the duration tiers so every file gets the same
// multiplier and no grace period.
func WithFlatSLA(multiplier float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.SLA.Multiplier = multiplier
		b.cfg.SLA.Tiers = nil
	}
}

// WithEscalationThresholds overrides the escalation buckets, in hours.
func WithEscalationThresholds(hours ...int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Escalation.ThresholdsHours = hours
	}
}
