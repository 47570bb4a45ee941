package quality

import (
	"context"
	"fmt"
	"strings"

	"orderflow/internal/config"
	"orderflow/internal/orders"
)

// Submission is what a worker hands in for a stage.
type Submission struct {
	// Score is the externally computed quality score, when the caller has one.
	Score        *float64
	Earnings     float64
	Comment      string
	Deliverables []string
}

// Scorer produces a quality score for a QC submission.
type Scorer interface {
	Score(ctx context.Context, order orders.Order, job orders.Job, sub Submission) (float64, bool, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, order orders.Order, job orders.Job, sub Submission) (float64, bool, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, order orders.Order, job orders.Job, sub Submission) (float64, bool, error) {
	return f(ctx, order, job, sub)
}

// SubmissionScorer reads the score carried in the submission. A submission
// without a score is reported as unscored.
type SubmissionScorer struct{}

// Score implements Scorer.
func (SubmissionScorer) Score(_ context.Context, _ orders.Order, _ orders.Job, sub Submission) (float64, bool, error) {
	if sub.Score == nil {
		return 0, false, nil
	}
	return *sub.Score, true, nil
}

// Decision is the gate outcome for a QC submission.
type Decision struct {
	Divert       bool
	Scored       bool
	Score        float64
	ReportOption orders.ReportOption
	Detail       string
}

// Gate applies the QC score threshold.
type Gate struct {
	threshold float64
	option    orders.ReportOption
	scorer    Scorer
}

// NewGate builds a gate from configuration. A nil scorer reads scores from
// submissions.
func NewGate(cfg *config.Config, scorer Scorer) *Gate {
	if scorer == nil {
		scorer = SubmissionScorer{}
	}
	option := orders.ReportOption(strings.TrimSpace(cfg.Quality.ReportOption))
	if option == "" {
		option = orders.ReportDiffBelowThreshold
	}
	return &Gate{threshold: cfg.Quality.Threshold, option: option, scorer: scorer}
}

// Threshold returns the configured minimum score.
func (g *Gate) Threshold() float64 {
	return g.threshold
}

// Evaluate scores a QC submission. Unscored submissions pass. Scorer
// failures are returned unclassified so callers leave state untouched.
func (g *Gate) Evaluate(ctx context.Context, order orders.Order, job orders.Job, sub Submission) (Decision, error) {
	score, scored, err := g.scorer.Score(ctx, order, job, sub)
	if err != nil {
		return Decision{}, fmt.Errorf("score submission for %s: %w", order.ID, err)
	}
	if !scored {
		return Decision{}, nil
	}
	decision := Decision{Scored: true, Score: score}
	if score < g.threshold {
		decision.Divert = true
		decision.ReportOption = g.option
		decision.Detail = fmt.Sprintf("quality score %.2f is below threshold %.2f", score, g.threshold)
	}
	return decision, nil
}
