package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/api"
	"orderflow/internal/testsupport"
)

type cliTestEnv struct {
	configPath string
	dataDir    string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "orderflow.toml")
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
api_bind = "127.0.0.1:0"
api_token = "top-secret"

[store]
driver = "sqlite"
path = %q

[work_queue]
settle_delay_seconds = 0
`, cfg.Paths.DataDir, cfg.Paths.LogDir, cfg.Store.Path)
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return &cliTestEnv{configPath: configPath, dataDir: cfg.Paths.DataDir}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func addOrder(t *testing.T, env *cliTestEnv, name string, extra ...string) api.Order {
	t.Helper()
	args := append([]string{"--json", "order", "add", name, "--duration", "30m", "--owner", "owner-1"}, extra...)
	out, _, err := runCLI(t, env, args...)
	require.NoError(t, err)
	var order api.Order
	require.NoError(t, json.Unmarshal([]byte(out), &order))
	require.NotEmpty(t, order.ID)
	return order
}

func TestOrderLifecycleThroughCLI(t *testing.T) {
	env := setupCLITestEnv(t)
	order := addOrder(t, env, "deposition.wav")

	out, _, err := runCLI(t, env, "order", "list")
	require.NoError(t, err)
	requireContains(t, out, order.ID)
	requireContains(t, out, "TRANSCRIBED")

	out, _, err = runCLI(t, env, "work", "list", "--worker", "w1", "--stage", "qc")
	require.NoError(t, err)
	requireContains(t, out, order.ID)

	out, _, err = runCLI(t, env, "accept", order.ID, "--worker", "w1")
	require.NoError(t, err)
	requireContains(t, out, "assignment accepted")

	_, _, err = runCLI(t, env, "accept", order.ID, "--worker", "w2")
	require.Error(t, err)

	out, _, err = runCLI(t, env, "submit", order.ID, "--worker", "w1", "--score", "9", "--earnings", "4.5")
	require.NoError(t, err)
	requireContains(t, out, "submission completed")
	requireContains(t, out, "Score: 9.00")

	out, _, err = runCLI(t, env, "--json", "order", "show", order.ID)
	require.NoError(t, err)
	var detail api.OrderDetail
	require.NoError(t, json.Unmarshal([]byte(out), &detail))
	require.Len(t, detail.Jobs, 1)
	assert.Equal(t, "COMPLETED", detail.Jobs[0].Status)
	assert.Equal(t, 4.5, detail.Jobs[0].Earnings)

	out, _, err = runCLI(t, env, "order", "show", order.ID)
	require.NoError(t, err)
	requireContains(t, out, "deposition.wav")
}

func TestDivertedSubmissionNeedsApproval(t *testing.T) {
	env := setupCLITestEnv(t)
	order := addOrder(t, env, "hearing.mp3")

	_, _, err := runCLI(t, env, "accept", order.ID, "--worker", "w1", "--stage", "QC")
	require.NoError(t, err)
	out, _, err := runCLI(t, env, "submit", order.ID, "--worker", "w1", "--score", "1")
	require.NoError(t, err)
	requireContains(t, out, "held for approval")

	_, _, err = runCLI(t, env, "reject", order.ID)
	require.Error(t, err, "comment is required")

	out, _, err = runCLI(t, env, "reject", order.ID, "-m", "too many gaps")
	require.NoError(t, err)
	requireContains(t, out, "submission rejected")
}

func TestCancelAndUnknownOrder(t *testing.T) {
	env := setupCLITestEnv(t)
	order := addOrder(t, env, "call.wav")

	out, _, err := runCLI(t, env, "cancel", order.ID, "--refund", "--reason", "customer request")
	require.NoError(t, err)
	requireContains(t, out, "order refunded")

	_, _, err = runCLI(t, env, "order", "show", "does-not-exist")
	require.Error(t, err)
	requireContains(t, err.Error(), "order not found")
}

func TestSweepsAndOutbox(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "--json", "sweep", "timeouts")
	require.NoError(t, err)
	var sweep api.TimeoutSweepResponse
	require.NoError(t, json.Unmarshal([]byte(out), &sweep))
	assert.Empty(t, sweep.TimedOut)

	out, _, err = runCLI(t, env, "sweep", "escalation")
	require.NoError(t, err)
	requireContains(t, out, "Escalated: 0")

	out, _, err = runCLI(t, env, "outbox", "dispatch")
	require.NoError(t, err)
	requireContains(t, out, "Sent 0")

	out, _, err = runCLI(t, env, "outbox", "list")
	require.NoError(t, err)
	requireContains(t, out, "Outbox is empty")

	_, _, err = runCLI(t, env, "outbox", "list", "--status", "bogus")
	require.Error(t, err)
}

func TestStatsAndDoctor(t *testing.T) {
	env := setupCLITestEnv(t)
	addOrder(t, env, "a.wav")

	out, _, err := runCLI(t, env, "stats")
	require.NoError(t, err)
	requireContains(t, out, "not running")
	requireContains(t, out, "Ready for work")
	requireContains(t, out, "TRANSCRIBED")

	out, _, err = runCLI(t, env, "doctor")
	require.NoError(t, err)
	requireContains(t, out, "Data directory")
	requireContains(t, out, "[OK]")
}

func TestConfigCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, env, "config", "show")
	require.NoError(t, err)
	requireContains(t, out, "********")
	assert.NotContains(t, out, "top-secret")

	out, _, err = runCLI(t, env, "config", "validate")
	require.NoError(t, err)
	requireContains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "new", "config.toml")
	out, _, err = runCLI(t, env, "config", "init", "--path", target)
	require.NoError(t, err)
	requireContains(t, out, target)
	_, _, err = runCLI(t, env, "config", "init", "--path", target)
	require.Error(t, err)
}
