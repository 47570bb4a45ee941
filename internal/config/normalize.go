package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeSLA()
	c.normalizeEscalation()
	c.normalizeWorkQueue()
	c.normalizeDeliverables()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("ORDERFLOW_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	switch c.Store.Driver {
	case "", "sqlite", "sqlite3":
		c.Store.Driver = "sqlite"
	case "postgresql", "pgx":
		c.Store.Driver = "postgres"
	}
	c.Store.DSN = strings.TrimSpace(c.Store.DSN)
	if c.Store.DSN == "" {
		if value, ok := os.LookupEnv("ORDERFLOW_STORE_DSN"); ok {
			c.Store.DSN = strings.TrimSpace(value)
		}
	}
	if c.Store.Driver != "sqlite" {
		return nil
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		c.Store.Path = filepath.Join(c.Paths.DataDir, "orderflow.db")
	}
	var err error
	if c.Store.Path, err = expandPath(c.Store.Path); err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeSLA() {
	stages := make([]string, 0, len(c.SLA.Stages))
	for _, stage := range c.SLA.Stages {
		if trimmed := strings.ToUpper(strings.TrimSpace(stage)); trimmed != "" {
			stages = append(stages, trimmed)
		}
	}
	c.SLA.Stages = stages
	sort.SliceStable(c.SLA.Tiers, func(i, j int) bool {
		return c.SLA.Tiers[i].MaxDurationSeconds < c.SLA.Tiers[j].MaxDurationSeconds
	})
	c.SLA.ExemptOrgs = foldAll(c.SLA.ExemptOrgs)
}

func (c *Config) normalizeEscalation() {
	sort.Ints(c.Escalation.ThresholdsHours)
	statuses := make([]string, 0, len(c.Escalation.Statuses))
	for _, status := range c.Escalation.Statuses {
		if trimmed := strings.ToUpper(strings.TrimSpace(status)); trimmed != "" {
			statuses = append(statuses, trimmed)
		}
	}
	c.Escalation.Statuses = statuses
	c.Escalation.OpsRecipient = strings.TrimSpace(c.Escalation.OpsRecipient)
	if c.Escalation.OpsRecipient == "" {
		c.Escalation.OpsRecipient = defaultOpsRecipient
	}
	c.Quality.ReportOption = strings.ToUpper(strings.TrimSpace(c.Quality.ReportOption))
	c.Quality.ApprovalRecipient = strings.TrimSpace(c.Quality.ApprovalRecipient)
	if c.Quality.ApprovalRecipient == "" {
		c.Quality.ApprovalRecipient = c.Escalation.OpsRecipient
	}
}

func (c *Config) normalizeWorkQueue() {
	if len(c.WorkQueue.WorkerCustomers) > 0 {
		normalized := make(map[string][]string, len(c.WorkQueue.WorkerCustomers))
		for worker, customers := range c.WorkQueue.WorkerCustomers {
			normalized[strings.TrimSpace(worker)] = foldAll(customers)
		}
		c.WorkQueue.WorkerCustomers = normalized
	}
	disabled := c.WorkQueue.DisabledWorkers[:0]
	for _, worker := range c.WorkQueue.DisabledWorkers {
		if trimmed := strings.TrimSpace(worker); trimmed != "" {
			disabled = append(disabled, trimmed)
		}
	}
	c.WorkQueue.DisabledWorkers = disabled
}

func (c *Config) normalizeDeliverables() {
	c.Deliverables.AllowedFormats = normalizeFormats(c.Deliverables.AllowedFormats)
	for owner, policy := range c.Deliverables.Owners {
		policy.AllowedFormats = normalizeFormats(policy.AllowedFormats)
		c.Deliverables.Owners[owner] = policy
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.Kind = strings.ToLower(strings.TrimSpace(c.Notifications.Kind))
	c.Notifications.Endpoint = strings.TrimSpace(c.Notifications.Endpoint)
	if c.Notifications.Endpoint == "" {
		if value, ok := os.LookupEnv("ORDERFLOW_NOTIFY_ENDPOINT"); ok {
			c.Notifications.Endpoint = strings.TrimSpace(value)
		}
	}
	if c.Notifications.Kind == "" && c.Notifications.Endpoint != "" {
		c.Notifications.Kind = "webhook"
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
	c.Notifications.SupportRecipient = strings.TrimSpace(c.Notifications.SupportRecipient)
	if c.Notifications.SupportRecipient == "" {
		c.Notifications.SupportRecipient = defaultSupportRecipient
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func foldAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if folded := FoldName(value); folded != "" {
			out = append(out, folded)
		}
	}
	return out
}

func normalizeFormats(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(value)), ".")
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
