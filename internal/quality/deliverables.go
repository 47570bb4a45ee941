package quality

import (
	"fmt"
	"path/filepath"
	"strings"

	"orderflow/internal/config"
	"orderflow/internal/orders"
)

// DeliverableRules is the structural policy a FINALIZE submission must meet.
type DeliverableRules struct {
	AllowedFormats    []string
	MaxFiles          int
	RequireAllFormats bool
}

// RulesFor resolves the deliverable rules for an order owner.
func RulesFor(cfg *config.Config, ownerID string) DeliverableRules {
	policy := cfg.DeliverablePolicy(ownerID)
	return DeliverableRules{
		AllowedFormats:    policy.AllowedFormats,
		MaxFiles:          policy.MaxFiles,
		RequireAllFormats: cfg.Deliverables.RequireAllFormats,
	}
}

// ValidateDeliverables checks file names against rules and returns an
// ErrInvalidDeliverable describing the first problem found.
func ValidateDeliverables(rules DeliverableRules, files []string) error {
	const op = "validate deliverables"
	if len(files) == 0 {
		return orders.Wrap(orders.ErrInvalidDeliverable, op, "no files submitted")
	}
	if rules.MaxFiles > 0 && len(files) > rules.MaxFiles {
		return orders.Wrap(orders.ErrInvalidDeliverable, op,
			fmt.Sprintf("%d files submitted, at most %d allowed", len(files), rules.MaxFiles))
	}

	allowed := make(map[string]struct{}, len(rules.AllowedFormats))
	for _, format := range rules.AllowedFormats {
		allowed[normalizeFormat(format)] = struct{}{}
	}
	seen := make(map[string]struct{}, len(files))
	for _, name := range files {
		name = strings.TrimSpace(name)
		if name == "" {
			return orders.Wrap(orders.ErrInvalidDeliverable, op, "empty file name")
		}
		ext := normalizeFormat(filepath.Ext(name))
		if ext == "" {
			return orders.Wrap(orders.ErrInvalidDeliverable, op, fmt.Sprintf("%s has no extension", name))
		}
		if len(allowed) > 0 {
			if _, ok := allowed[ext]; !ok {
				return orders.Wrap(orders.ErrInvalidDeliverable, op,
					fmt.Sprintf("%s: format %q not allowed", name, ext))
			}
		}
		seen[ext] = struct{}{}
	}

	if rules.RequireAllFormats {
		var missing []string
		for _, format := range rules.AllowedFormats {
			if _, ok := seen[normalizeFormat(format)]; !ok {
				missing = append(missing, normalizeFormat(format))
			}
		}
		if len(missing) > 0 {
			return orders.Wrap(orders.ErrInvalidDeliverable, op,
				"missing formats: "+strings.Join(missing, ", "))
		}
	}
	return nil
}

func normalizeFormat(value string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(value), "."))
}
