package config

import (
	"errors"
	"fmt"
	"strings"

	"orderflow/internal/orders"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateSLA(); err != nil {
		return err
	}
	if err := c.validateEscalation(); err != nil {
		return err
	}
	if err := c.validateWorkQueue(); err != nil {
		return err
	}
	if err := c.validateDeliverables(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Store.Path) == "" {
			return errors.New("store.path must be set for the sqlite driver")
		}
	case "mysql", "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the %s driver (or set ORDERFLOW_STORE_DSN)", c.Store.Driver)
		}
	default:
		return fmt.Errorf("store.driver: unsupported value %q", c.Store.Driver)
	}
	return nil
}

func (c *Config) validateSLA() error {
	if c.SLA.Multiplier <= 0 {
		return errors.New("sla.multiplier must be positive")
	}
	if c.SLA.ExtensionMultiplier < 0 {
		return errors.New("sla.extension_multiplier must be >= 0")
	}
	for i, tier := range c.SLA.Tiers {
		if tier.MaxDurationSeconds <= 0 || tier.Multiplier <= 0 {
			return fmt.Errorf("sla.tiers[%d]: max_duration_seconds and multiplier must be positive", i)
		}
		if tier.GraceSeconds < 0 {
			return fmt.Errorf("sla.tiers[%d]: grace_seconds must be >= 0", i)
		}
	}
	if c.SLA.WarningFloorMinutes < 0 || c.SLA.WarningLeadMinutes <= c.SLA.WarningFloorMinutes {
		return errors.New("sla.warning_lead_minutes must be greater than sla.warning_floor_minutes (>= 0)")
	}
	if len(c.SLA.Stages) == 0 {
		return errors.New("sla.stages must include at least one stage")
	}
	for _, stage := range c.SLA.Stages {
		if _, ok := orders.ParseStage(stage); !ok {
			return fmt.Errorf("sla.stages: unknown stage %q", stage)
		}
	}
	return nil
}

func (c *Config) validateEscalation() error {
	if len(c.Escalation.ThresholdsHours) == 0 {
		return errors.New("escalation.thresholds_hours must include at least one threshold")
	}
	for i, hours := range c.Escalation.ThresholdsHours {
		if hours <= 0 {
			return errors.New("escalation.thresholds_hours must be positive")
		}
		if i > 0 && hours == c.Escalation.ThresholdsHours[i-1] {
			return fmt.Errorf("escalation.thresholds_hours: duplicate threshold %d", hours)
		}
	}
	if len(c.Escalation.Statuses) == 0 {
		return errors.New("escalation.statuses must include at least one status")
	}
	for _, value := range c.Escalation.Statuses {
		status, ok := orders.ParseStatus(value)
		if !ok {
			return fmt.Errorf("escalation.statuses: unknown status %q", value)
		}
		if !orders.IsScreenable(status) {
			return fmt.Errorf("escalation.statuses: %s is not an unassigned ready status", status)
		}
	}
	if c.Quality.ReportOption == "" {
		return errors.New("quality.report_option must be set")
	}
	return nil
}

func (c *Config) validateWorkQueue() error {
	if c.WorkQueue.SettleDelaySeconds < 0 {
		return errors.New("work_queue.settle_delay_seconds must be >= 0")
	}
	if c.WorkQueue.PWERThreshold < 0 || c.WorkQueue.PWERThreshold > 1 {
		return errors.New("work_queue.pwer_threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateDeliverables() error {
	if len(c.Deliverables.AllowedFormats) == 0 {
		return errors.New("deliverables.allowed_formats must include at least one format")
	}
	if c.Deliverables.MaxFiles <= 0 {
		return errors.New("deliverables.max_files must be positive")
	}
	for owner, policy := range c.Deliverables.Owners {
		if policy.MaxFiles < 0 {
			return fmt.Errorf("deliverables.owners.%s.max_files must be >= 0", owner)
		}
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.reaper_interval_seconds":     c.Workflow.ReaperIntervalSeconds,
		"workflow.escalation_interval_seconds": c.Workflow.EscalationIntervalSeconds,
		"workflow.outbox_interval_seconds":     c.Workflow.OutboxIntervalSeconds,
		"workflow.outbox_max_attempts":         c.Workflow.OutboxMaxAttempts,
		"workflow.outbox_batch_size":           c.Workflow.OutboxBatchSize,
	}); err != nil {
		return err
	}
	if c.Workflow.CancelProgressThreshold < 0 || c.Workflow.CancelProgressThreshold > 100 {
		return errors.New("workflow.cancel_progress_threshold must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	switch c.Notifications.Kind {
	case "":
		return nil
	case "ntfy", "webhook":
		if c.Notifications.Endpoint == "" {
			return fmt.Errorf("notifications.endpoint must be set when notifications.kind is %q", c.Notifications.Kind)
		}
		return nil
	default:
		return fmt.Errorf("notifications.kind: unsupported value %q", c.Notifications.Kind)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
