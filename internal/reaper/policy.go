package reaper

import (
	"sort"
	"time"

	"orderflow/internal/config"
	"orderflow/internal/orders"
)

// Action is what a sweep does with one assignment.
type Action int

const (
	ActionNone Action = iota
	ActionWarn
	ActionTimeout
)

func (a Action) String() string {
	switch a {
	case ActionWarn:
		return "warn"
	case ActionTimeout:
		return "timeout"
	default:
		return "none"
	}
}

// Policy computes assignment allowances.
type Policy struct {
	multiplier          float64
	extensionMultiplier float64
	tiers               []config.SLATier
	warningLead         time.Duration
	warningFloor        time.Duration
}

// NewPolicy builds a policy from the [sla] section.
func NewPolicy(cfg *config.Config) Policy {
	tiers := append([]config.SLATier(nil), cfg.SLA.Tiers...)
	sort.SliceStable(tiers, func(i, j int) bool {
		return tiers[i].MaxDurationSeconds < tiers[j].MaxDurationSeconds
	})
	return Policy{
		multiplier:          cfg.SLA.Multiplier,
		extensionMultiplier: cfg.SLA.ExtensionMultiplier,
		tiers:               tiers,
		warningLead:         time.Duration(cfg.SLA.WarningLeadMinutes) * time.Minute,
		warningFloor:        time.Duration(cfg.SLA.WarningFloorMinutes) * time.Minute,
	}
}

// Allowance returns how long a worker has for a file of the given duration.
func (p Policy) Allowance(duration time.Duration, extension bool) time.Duration {
	seconds := duration.Seconds()
	multiplier := p.multiplier
	grace := 0.0
	for _, tier := range p.tiers {
		if seconds <= tier.MaxDurationSeconds {
			multiplier = tier.Multiplier
			grace = tier.GraceSeconds
			break
		}
	}
	total := seconds*multiplier + grace
	if extension {
		total += seconds * p.extensionMultiplier
	}
	return time.Duration(total * float64(time.Second))
}

// Verdict is the policy outcome for one assignment.
type Verdict struct {
	Action    Action
	Allowance time.Duration
	Elapsed   time.Duration
	Remaining time.Duration
}

// Evaluate decides what to do with job at now.
func (p Policy) Evaluate(job orders.Job, file orders.File, now time.Time) Verdict {
	allowance := p.Allowance(file.Duration(), job.ExtensionRequested)
	elapsed := now.Sub(job.AcceptedTs)
	v := Verdict{Allowance: allowance, Elapsed: elapsed, Remaining: allowance - elapsed}
	switch {
	case elapsed >= allowance:
		v.Action = ActionTimeout
	case elapsed >= allowance-p.warningLead && elapsed < allowance-p.warningFloor:
		v.Action = ActionWarn
	}
	return v
}
