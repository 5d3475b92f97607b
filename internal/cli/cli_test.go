package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/brandmesh/internal/testutil"
)

type harness struct {
	t   *testing.T
	dir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()

	t.Setenv("BRANDMESH_STORE", "sqlite")
	t.Setenv("BRANDMESH_SQLITE_PATH", filepath.Join(dir, "brandmesh.db"))
	t.Setenv("BRANDMESH_LOG_LEVEL", "error")
	t.Setenv("BRANDMESH_CONFIG", "")
	t.Setenv("BRANDMESH_SEARCH_URL", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	return &harness{t: t, dir: dir}
}

func (h *harness) file(name string, v any) string {
	h.t.Helper()

	data, err := json.Marshal(v)
	require.NoError(h.t, err)

	path := filepath.Join(h.dir, name)
	require.NoError(h.t, os.WriteFile(path, data, 0o600))

	return path
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()

	var out bytes.Buffer

	cmd := RootCmd("test")
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(h.dir, "missing.env")))

	err := cmd.ExecuteContext(context.Background())

	return out.String(), err
}

func TestHandoffCommands(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("handoff", "create", "t1", "intel", "--brand", "acme")
	require.NoError(t, err, out)
	assert.Contains(t, out, "thread t1 owned by intel")

	out, err = h.run("handoff", "to", "t1", "marketing", "--brand", "acme", "--reason", "pricing question")
	require.NoError(t, err, out)
	assert.Contains(t, out, "intel -> marketing")

	out, err = h.run("handoff", "history", "t1", "--brand", "acme")
	require.NoError(t, err, out)
	assert.Contains(t, out, "intel -> marketing  pricing question")

	_, err = h.run("handoff", "history", "missing", "--brand", "acme")
	assert.EqualError(t, err, "Thread not found")

	_, err = h.run("handoff", "to", "t1", "compliance", "--brand", "other")
	assert.EqualError(t, err, "Unauthorized")
}

func TestPipelineAlertsReachMarketing(t *testing.T) {
	h := newHarness(t)

	brand := h.file("brand.json", testutil.NewBrandBuilder("acme").Build())
	menus := h.file("menus.json", map[string]any{
		"https://green.example/menu": map[string]any{
			"competitor": "Green Leaf",
			"products":   []map[string]any{{"name": "Blue Dream 3.5g", "price": 30}},
		},
	})
	catalog := h.file("catalog.json", map[string]float64{"Blue Dream 3.5g": 40})

	out, err := h.run("brand", "put", brand)
	require.NoError(t, err, out)

	out, err = h.run("pipeline", "run", "--tenant", "acme", "--url", "https://green.example/menu", "--menus", menus, "--catalog", catalog)
	require.NoError(t, err, out)
	assert.Contains(t, out, "complete (100%)")
	assert.Contains(t, out, "1 overpriced")
	assert.Contains(t, out, "alerts:   1 sent")

	out, err = h.run("agent", "memory", "marketing", "--brand", "acme")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Blue Dream 3.5g")

	out, err = h.run("agent", "run", "marketing", "--brand", "acme")
	require.NoError(t, err, out)
	assert.Contains(t, out, "draft_campaign")

	out, err = h.run("agent", "logs", "marketing", "--brand", "acme")
	require.NoError(t, err, out)
	assert.Contains(t, out, "draft_campaign")
}

func TestPipelineInvalidRequest(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("pipeline", "run", "--tenant", "acme")
	require.NoError(t, err, out)
	assert.Contains(t, out, "failed (0%)")
}

func TestSettingsCommands(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("settings", "set", "acme", "--tool-model", "gpt-4o", "--effort", "high")
	require.NoError(t, err, out)

	out, err = h.run("settings", "get", "acme")
	require.NoError(t, err, out)
	assert.Contains(t, out, `"toolModel": "gpt-4o"`)
	assert.Contains(t, out, `"effort": "high"`)

	_, err = h.run("settings", "set", "acme", "--effort", "maximum")
	assert.Error(t, err)
}

func TestTokenIssue(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("token", "issue", "ops-bot", "--brand", "acme", "--role", "agent")
	require.NoError(t, err, out)
	assert.Contains(t, out, "expires")

	_, err = h.run("token", "issue", "ops-bot", "--role", "root")
	assert.Error(t, err)
}
