package quality_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/config"
	"orderflow/internal/orders"
	"orderflow/internal/quality"
)

func score(v float64) *float64 { return &v }

func TestGateDivertsBelowThreshold(t *testing.T) {
	cfg := config.Default()
	cfg.Quality.Threshold = 5.0
	gate := quality.NewGate(&cfg, nil)

	cases := []struct {
		name   string
		sub    quality.Submission
		divert bool
		scored bool
	}{
		{"below", quality.Submission{Score: score(4.99)}, true, true},
		{"at threshold", quality.Submission{Score: score(5.0)}, false, true},
		{"above", quality.Submission{Score: score(8.5)}, false, true},
		{"unscored", quality.Submission{}, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, err := gate.Evaluate(context.Background(), orders.Order{ID: "o1"}, orders.Job{}, tc.sub)
			require.NoError(t, err)
			assert.Equal(t, tc.divert, decision.Divert)
			assert.Equal(t, tc.scored, decision.Scored)
			if tc.divert {
				assert.Equal(t, orders.ReportDiffBelowThreshold, decision.ReportOption)
				assert.Contains(t, decision.Detail, "below threshold")
			}
		})
	}
}

func TestGateScorerFailureIsInfrastructure(t *testing.T) {
	cfg := config.Default()
	failing := quality.ScorerFunc(func(context.Context, orders.Order, orders.Job, quality.Submission) (float64, bool, error) {
		return 0, false, errors.New("scoring service unavailable")
	})
	gate := quality.NewGate(&cfg, failing)

	_, err := gate.Evaluate(context.Background(), orders.Order{ID: "o1"}, orders.Job{}, quality.Submission{})
	require.Error(t, err)
	assert.Equal(t, orders.KindInfrastructure, orders.KindOf(err))
}

func TestValidateDeliverables(t *testing.T) {
	rules := quality.DeliverableRules{AllowedFormats: []string{"docx", "pdf"}, MaxFiles: 5}
	strict := rules
	strict.RequireAllFormats = true

	cases := []struct {
		name  string
		rules quality.DeliverableRules
		files []string
		ok    bool
	}{
		{"single docx", rules, []string{"transcript.docx"}, true},
		{"case insensitive", rules, []string{"Transcript.DOCX", "summary.pdf"}, true},
		{"empty", rules, nil, false},
		{"too many", rules, []string{"1.docx", "2.docx", "3.docx", "4.docx", "5.docx", "6.docx"}, false},
		{"bad format", rules, []string{"notes.txt"}, false},
		{"no extension", rules, []string{"transcript"}, false},
		{"missing required format", strict, []string{"transcript.docx"}, false},
		{"all required formats", strict, []string{"transcript.docx", "transcript.pdf"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := quality.ValidateDeliverables(tc.rules, tc.files)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, orders.ErrInvalidDeliverable)
			assert.Equal(t, orders.KindValidation, orders.KindOf(err))
		})
	}
}

func TestRulesForUsesOwnerOverride(t *testing.T) {
	cfg := config.Default()
	cfg.Deliverables.Owners = map[string]config.OwnerPolicy{
		"big-firm": {AllowedFormats: []string{"pdf"}, MaxFiles: 2},
	}

	rules := quality.RulesFor(&cfg, "big-firm")
	assert.Equal(t, []string{"pdf"}, rules.AllowedFormats)
	assert.Equal(t, 2, rules.MaxFiles)

	fallback := quality.RulesFor(&cfg, "someone-else")
	assert.Equal(t, cfg.Deliverables.AllowedFormats, fallback.AllowedFormats)
	assert.Equal(t, cfg.Deliverables.MaxFiles, fallback.MaxFiles)
}
