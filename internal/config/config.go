package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/cases"

	"orderflow/internal/orders"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Store selects the database backing orders, jobs and the outbox.
type Store struct {
	Driver string `toml:"driver"` // sqlite, mysql, postgres
	DSN    string `toml:"dsn"`
	Path   string `toml:"path"` // sqlite only; defaults to <data_dir>/orderflow.db
}

// SLATier overrides the base multiplier for files up to a duration.
type SLATier struct {
	MaxDurationSeconds float64 `toml:"max_duration_seconds"`
	Multiplier         float64 `toml:"multiplier"`
	GraceSeconds       float64 `toml:"grace_seconds"`
}

// SLA contains the timeout policy for accepted assignments.
type SLA struct {
	Multiplier          float64   `toml:"multiplier"`
	ExtensionMultiplier float64   `toml:"extension_multiplier"`
	Tiers               []SLATier `toml:"tiers"`
	WarningLeadMinutes  int       `toml:"warning_lead_minutes"`
	WarningFloorMinutes int       `toml:"warning_floor_minutes"`
	Stages              []string  `toml:"stages"`
	ExemptOrgs          []string  `toml:"exempt_orgs"`
}

// Escalation contains thresholds for unassigned orders.
type Escalation struct {
	ThresholdsHours []int    `toml:"thresholds_hours"`
	Statuses        []string `toml:"statuses"`
	OpsRecipient    string   `toml:"ops_recipient"`
}

// Quality contains the score threshold applied to QC submissions.
type Quality struct {
	Threshold         float64 `toml:"threshold"`
	ReportOption      string  `toml:"report_option"`
	ApprovalRecipient string  `toml:"approval_recipient"`
}

// WorkQueue contains eligibility and ranking settings.
type WorkQueue struct {
	SettleDelaySeconds int                 `toml:"settle_delay_seconds"`
	PWERThreshold      float64             `toml:"pwer_threshold"`
	RushTAT            int                 `toml:"rush_tat"`
	WorkerCustomers    map[string][]string `toml:"worker_customers"`
	DisabledWorkers    []string            `toml:"disabled_workers"`
}

// OwnerPolicy overrides deliverable rules for one owner.
type OwnerPolicy struct {
	AllowedFormats []string `toml:"allowed_formats"`
	MaxFiles       int      `toml:"max_files"`
}

// Deliverables contains the structural checks for finalize submissions.
type Deliverables struct {
	AllowedFormats    []string               `toml:"allowed_formats"`
	MaxFiles          int                    `toml:"max_files"`
	RequireAllFormats bool                   `toml:"require_all_formats"`
	Owners            map[string]OwnerPolicy `toml:"owners"`
}

// Workflow contains engine behavior and scheduler intervals.
type Workflow struct {
	CancelProgressThreshold   int  `toml:"cancel_progress_threshold"`
	HandoffFinalize           bool `toml:"handoff_finalize"`
	ReaperIntervalSeconds     int  `toml:"reaper_interval_seconds"`
	EscalationIntervalSeconds int  `toml:"escalation_interval_seconds"`
	OutboxIntervalSeconds     int  `toml:"outbox_interval_seconds"`
	OutboxMaxAttempts         int  `toml:"outbox_max_attempts"`
	OutboxBatchSize           int  `toml:"outbox_batch_size"`
}

// Notifications contains the outbound notification channel.
type Notifications struct {
	Kind             string `toml:"kind"` // ntfy, webhook, or empty for none
	Endpoint         string `toml:"endpoint"`
	RequestTimeout   int    `toml:"request_timeout"`
	SupportRecipient string `toml:"support_recipient"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for orderflow.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Store: database driver and location
//   - SLA: assignment timeout policy for the reaper
//   - Escalation: thresholds for unassigned orders
//   - Quality: QC score gate
//   - WorkQueue: eligibility and ranking
//   - Deliverables: finalize format rules
//   - Workflow: engine behavior and daemon intervals
//   - Notifications: outbound channel
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	SLA           SLA           `toml:"sla"`
	Escalation    Escalation    `toml:"escalation"`
	Quality       Quality       `toml:"quality"`
	WorkQueue     WorkQueue     `toml:"work_queue"`
	Deliverables  Deliverables  `toml:"deliverables"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/orderflow/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("orderflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "orderflow.lock")
}

// SweepLockPath returns the lock file serializing reaper and escalation sweeps.
func (c *Config) SweepLockPath() string {
	return filepath.Join(c.Paths.DataDir, "sweep.lock")
}

// SLAStages returns the stages the reaper enforces timeouts for.
func (c *Config) SLAStages() []orders.Stage {
	stages := make([]orders.Stage, 0, len(c.SLA.Stages))
	for _, value := range c.SLA.Stages {
		if stage, ok := orders.ParseStage(value); ok {
			stages = append(stages, stage)
		}
	}
	return stages
}

// EscalationStatuses returns the unassigned statuses the escalation monitor scans.
func (c *Config) EscalationStatuses() []orders.Status {
	statuses := make([]orders.Status, 0, len(c.Escalation.Statuses))
	for _, value := range c.Escalation.Statuses {
		if status, ok := orders.ParseStatus(value); ok {
			statuses = append(statuses, status)
		}
	}
	return statuses
}

// IsExemptOrg reports whether assignments for the organization skip SLA enforcement.
func (c *Config) IsExemptOrg(org string) bool {
	return containsFolded(c.SLA.ExemptOrgs, org)
}

// WorkerCustomers returns the customer allow-list for a worker, or nil when unrestricted.
func (c *Config) WorkerCustomers(workerID string) []string {
	if c.WorkQueue.WorkerCustomers == nil {
		return nil
	}
	return c.WorkQueue.WorkerCustomers[strings.TrimSpace(workerID)]
}

// IsWorkerDisabled reports whether a worker is barred from the work queue.
func (c *Config) IsWorkerDisabled(workerID string) bool {
	for _, id := range c.WorkQueue.DisabledWorkers {
		if id == strings.TrimSpace(workerID) {
			return true
		}
	}
	return false
}

// DeliverablePolicy returns the format rules that apply to an owner.
func (c *Config) DeliverablePolicy(ownerID string) OwnerPolicy {
	policy := OwnerPolicy{
		AllowedFormats: c.Deliverables.AllowedFormats,
		MaxFiles:       c.Deliverables.MaxFiles,
	}
	if override, ok := c.Deliverables.Owners[strings.TrimSpace(ownerID)]; ok {
		if len(override.AllowedFormats) > 0 {
			policy.AllowedFormats = override.AllowedFormats
		}
		if override.MaxFiles > 0 {
			policy.MaxFiles = override.MaxFiles
		}
	}
	return policy
}

// SettleDelay returns how long an order must rest after a status write before it is offered.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.WorkQueue.SettleDelaySeconds) * time.Second
}

// FoldName normalizes organization and customer names for comparison.
func FoldName(value string) string {
	return cases.Fold().String(strings.TrimSpace(value))
}

func containsFolded(values []string, candidate string) bool {
	folded := FoldName(candidate)
	if folded == "" {
		return false
	}
	for _, value := range values {
		if FoldName(value) == folded {
			return true
		}
	}
	return false
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
