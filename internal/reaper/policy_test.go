package reaper

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"orderflow/internal/config"
	"orderflow/internal/orders"
)

func TestAllowanceUsesDurationTiers(t *testing.T) {
	cfg := config.Default()
	p := NewPolicy(&cfg)

	cases := []struct {
		name      string
		duration  time.Duration
		extension bool
		want      time.Duration
	}{
		{"short file", 20 * time.Minute, false, 20*time.Minute*6 + 2*time.Hour},
		{"tier boundary", 30 * time.Minute, false, 3*time.Hour + 2*time.Hour},
		{"medium file", time.Hour, false, 5*time.Hour + 2*time.Hour},
		{"long file", 4 * time.Hour, false, 16 * time.Hour},
		{"long file extended", 4 * time.Hour, true, 24 * time.Hour},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.Allowance(tc.duration, tc.extension))
		})
	}
}

func TestEvaluateWarningWindowAndDeadline(t *testing.T) {
	cfg := config.Default()
	cfg.SLA.Multiplier = 1
	cfg.SLA.Tiers = nil
	p := NewPolicy(&cfg)

	accepted := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	file := orders.File{DurationSeconds: 3600}
	job := orders.Job{AcceptedTs: accepted}

	at := func(offset time.Duration) Action {
		return p.Evaluate(job, file, accepted.Add(offset)).Action
	}
	assert.Equal(t, ActionNone, at(43*time.Minute+59*time.Second))
	assert.Equal(t, ActionWarn, at(44*time.Minute))
	assert.Equal(t, ActionWarn, at(49*time.Minute+59*time.Second))
	assert.Equal(t, ActionNone, at(50*time.Minute))
	assert.Equal(t, ActionNone, at(59*time.Minute+59*time.Second))
	assert.Equal(t, ActionTimeout, at(60*time.Minute))

	job.ExtensionRequested = true
	assert.Equal(t, ActionNone, at(60*time.Minute))
	assert.Equal(t, ActionWarn, at(2*time.Hour+44*time.Minute))
	assert.Equal(t, ActionTimeout, at(3*time.Hour))
}
