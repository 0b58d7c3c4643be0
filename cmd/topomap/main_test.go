package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topomap/internal/config"
	"topomap/internal/domain"
	"topomap/internal/repository/sqlite"
)

// isolate keeps config discovery away from the developer's files
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv("TOPOMAP_SUMMARY_API_KEY", "")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seedStore(t *testing.T, path string) {
	t.Helper()
	store, err := sqlite.New(path)
	require.NoError(t, err)
	defer store.Close()

	hops := 1
	gw := domain.NewNode("10.0.0.1", domain.NodeStatusUp)
	gw.NodeType = domain.NodeTypeGateway
	gw.Hostname = "router.lan"
	gw.HopDistance = &hops
	gw.OpenPorts = []domain.Port{{Port: 53, Protocol: "tcp", Service: "domain"}}
	gw.LastSeen = time.Date(2024, 12, 5, 16, 1, 7, 0, time.UTC)

	host := domain.NewNode("10.0.0.7", domain.NodeStatusUp)
	host.ConnectedTo.Add("10.0.0.1")
	host.LastSeen = gw.LastSeen

	require.NoError(t, store.SaveSnapshot(context.Background(), []domain.Node{*gw, *host}))
}

func TestConfigShow_Defaults(t *testing.T) {
	isolate(t)

	out, err := run(t, "config", "show")
	require.NoError(t, err)

	assert.Contains(t, out, "# Source: built-in defaults")
	assert.Contains(t, out, "# Posture: balanced")
	assert.Contains(t, out, "192.168.1.0/24")
}

func TestConfigShow_RedactsAPIKey(t *testing.T) {
	isolate(t)
	t.Setenv("TOPOMAP_SUMMARY_API_KEY", "sk-very-secret")

	out, err := run(t, "config", "show")
	require.NoError(t, err)

	assert.NotContains(t, out, "sk-very-secret")
	assert.Contains(t, out, redacted)
}

func TestConfigShow_FlagsOverride(t *testing.T) {
	isolate(t)

	out, err := run(t, "--posture", "stealth", "--target", "10.1.0.0/16", "config", "show")
	require.NoError(t, err)

	assert.Contains(t, out, "# Posture: stealth, Targets: 10.1.0.0/16")
}

func TestConfigShow_InvalidOverride(t *testing.T) {
	isolate(t)

	_, err := run(t, "--target", "not-a-range", "config", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Targets")
}

func TestConfigInit(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "conf", "topomap.yaml")

	out, err := run(t, "--posture", "cautious", "config", "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	cfg, loaded, err := config.LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, path, loaded)
	assert.Equal(t, config.PostureCautious, cfg.Posture)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	t.Run("refuses to overwrite", func(t *testing.T) {
		_, err := run(t, "config", "init", "--path", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})

	t.Run("force overwrites", func(t *testing.T) {
		_, err := run(t, "config", "init", "--path", path, "--force")
		require.NoError(t, err)

		cfg, _, err := config.LoadFromPath(path)
		require.NoError(t, err)
		assert.Equal(t, config.PostureBalanced, cfg.Posture)
	})
}

func TestNodes(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "topomap.db")
	seedStore(t, db)

	t.Run("table", func(t *testing.T) {
		out, err := run(t, "--db", db, "nodes")
		require.NoError(t, err)
		assert.Contains(t, out, "10.0.0.1")
		assert.Contains(t, out, "router.lan")
		assert.Contains(t, out, "53/domain")
		assert.Contains(t, out, "10.0.0.7")
	})

	t.Run("json", func(t *testing.T) {
		out, err := run(t, "--db", db, "nodes", "-o", "json")
		require.NoError(t, err)

		var nodes []domain.Node
		require.NoError(t, json.Unmarshal([]byte(out), &nodes))
		require.Len(t, nodes, 2)
		assert.Equal(t, "10.0.0.1", nodes[0].IP)
		assert.True(t, nodes[1].ConnectedTo.Has("10.0.0.1"))
	})

	t.Run("single ip", func(t *testing.T) {
		out, err := run(t, "--db", db, "nodes", "--ip", "10.0.0.7", "-o", "json")
		require.NoError(t, err)

		var nodes []domain.Node
		require.NoError(t, json.Unmarshal([]byte(out), &nodes))
		require.Len(t, nodes, 1)
		assert.Equal(t, "10.0.0.7", nodes[0].IP)
	})

	t.Run("unknown ip", func(t *testing.T) {
		_, err := run(t, "--db", db, "nodes", "--ip", "10.0.0.99")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := run(t, "--db", db, "nodes", "-o", "csv")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown export format")
	})
}

func TestNodes_EmptyStore(t *testing.T) {
	dir := isolate(t)
	db := filepath.Join(dir, "empty.db")

	out, err := run(t, "--db", db, "nodes")
	require.NoError(t, err)
	assert.Contains(t, out, "No nodes saved")
}

func TestPortList(t *testing.T) {
	assert.Equal(t, "", portList(nil))
	assert.Equal(t, "22/ssh, 8080", portList([]domain.Port{
		{Port: 22, Service: "ssh"},
		{Port: 8080},
	}))
}
