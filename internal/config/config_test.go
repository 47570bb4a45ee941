package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"orderflow/internal/config"
	"orderflow/internal/orders"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	t.Setenv("ORDERFLOW_API_TOKEN", "")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "orderflow")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Store.Driver != "sqlite" {
		t.Fatalf("unexpected store driver: %q", cfg.Store.Driver)
	}
	if cfg.Store.Path != filepath.Join(wantData, "orderflow.db") {
		t.Fatalf("unexpected store path: %q", cfg.Store.Path)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Quality.Threshold != 5.0 {
		t.Fatalf("unexpected quality threshold: %v", cfg.Quality.Threshold)
	}
	if got := cfg.SLAStages(); len(got) != 1 || got[0] != orders.StageQC {
		t.Fatalf("unexpected SLA stages: %v", got)
	}
	if got := cfg.EscalationStatuses(); len(got) != 2 {
		t.Fatalf("unexpected escalation statuses: %v", got)
	}
	if cfg.Workflow.ReaperIntervalSeconds != config.Default().Workflow.ReaperIntervalSeconds {
		t.Fatalf("unexpected reaper interval: %d", cfg.Workflow.ReaperIntervalSeconds)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "orderflow.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		SLA struct {
			Multiplier float64  `toml:"multiplier"`
			ExemptOrgs []string `toml:"exempt_orgs"`
		} `toml:"sla"`
		Escalation struct {
			ThresholdsHours []int `toml:"thresholds_hours"`
		} `toml:"escalation"`
		Deliverables struct {
			AllowedFormats []string `toml:"allowed_formats"`
		} `toml:"deliverables"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.SLA.Multiplier = 1.5
	custom.SLA.ExemptOrgs = []string{"  RemoteLegal "}
	custom.Escalation.ThresholdsHours = []int{24, 12}
	custom.Deliverables.AllowedFormats = []string{".DOCX", "pdf"}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.SLA.Multiplier != 1.5 {
		t.Fatalf("expected multiplier override, got %v", cfg.SLA.Multiplier)
	}
	if !cfg.IsExemptOrg("remotelegal") || !cfg.IsExemptOrg("REMOTELEGAL") {
		t.Fatal("expected exempt org match to be case-insensitive")
	}
	if cfg.Escalation.ThresholdsHours[0] != 12 {
		t.Fatalf("expected thresholds sorted ascending, got %v", cfg.Escalation.ThresholdsHours)
	}
	if strings.Join(cfg.Deliverables.AllowedFormats, ",") != "docx,pdf" {
		t.Fatalf("unexpected normalized formats: %v", cfg.Deliverables.AllowedFormats)
	}
	if cfg.Store.Path != filepath.Join(tempDir, "data", "orderflow.db") {
		t.Fatalf("unexpected store path: %q", cfg.Store.Path)
	}
}

func TestEnvVarFillsStoreDSN(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "orderflow.toml")
	if err := os.WriteFile(configPath, []byte("[store]\ndriver = \"postgresql\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected error for postgres without dsn")
	}

	t.Setenv("ORDERFLOW_STORE_DSN", "postgres://localhost/orderflow")
	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Store.Driver != "postgres" {
		t.Fatalf("expected driver alias to normalize, got %q", cfg.Store.Driver)
	}
	if cfg.Store.DSN != "postgres://localhost/orderflow" {
		t.Fatalf("expected dsn from env, got %q", cfg.Store.DSN)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[escalation]") {
		t.Fatalf("sample config missing escalation section: %s", contents)
	}

	t.Setenv("HOME", t.TempDir())
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if len(cfg.SLA.Tiers) != 2 {
		t.Fatalf("expected sample tiers, got %v", cfg.SLA.Tiers)
	}
}

func TestDeliverablePolicyOwnerOverride(t *testing.T) {
	cfg := config.Default()
	cfg.Deliverables.Owners = map[string]config.OwnerPolicy{
		"owner-7": {AllowedFormats: []string{"pdf"}},
	}
	policy := cfg.DeliverablePolicy("owner-7")
	if len(policy.AllowedFormats) != 1 || policy.AllowedFormats[0] != "pdf" {
		t.Fatalf("unexpected override formats: %v", policy.AllowedFormats)
	}
	if policy.MaxFiles != cfg.Deliverables.MaxFiles {
		t.Fatalf("expected max files to fall back to default, got %d", policy.MaxFiles)
	}
	if got := cfg.DeliverablePolicy("other"); got.AllowedFormats[0] != "docx" {
		t.Fatalf("unexpected default formats: %v", got.AllowedFormats)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	base := func() config.Config {
		cfg := config.Default()
		cfg.Store.Path = "/tmp/orderflow.db"
		return cfg
	}

	cfg := base()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate: %v", err)
	}

	cfg = base()
	cfg.Workflow.ReaperIntervalSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for reaper interval")
	}

	cfg = base()
	cfg.SLA.WarningLeadMinutes = cfg.SLA.WarningFloorMinutes
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when warning lead <= floor")
	}

	cfg = base()
	cfg.SLA.Stages = []string{"TRANSCRIBE"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown SLA stage")
	}

	cfg = base()
	cfg.Escalation.Statuses = []string{"QC_ASSIGNED"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for assigned status in escalation list")
	}

	cfg = base()
	cfg.Notifications.Kind = "webhook"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for webhook without endpoint")
	}

	cfg = base()
	cfg.Workflow.CancelProgressThreshold = 101
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for cancel threshold above 100")
	}
}
