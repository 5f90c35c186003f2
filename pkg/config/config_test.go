package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/switchboard/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "switchboard.yaml", `
engines:
  - name: lua
    builtin: lua
  - name: python3
    language: Python3
    command: python3
    args: -m switchboard_engine --quiet
    env:
      PYTHONUNBUFFERED: "1"
  - name: remote
    language: R
    url: http://localhost:3000/
    namespace: /engines
exchange:
  prefix: sb
store:
  kind: bolt
  path: dict.db
  lock_ttl: 10s
relay:
  poll_wait: 50ms
  reply_timeout: 2s
shell: [bash, -c]
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Engines, 3)
	py, ok := cfg.Engine("python3")
	require.True(t, ok)
	assert.Equal(t, []string{"-m", "switchboard_engine", "--quiet"}, py.Args)
	assert.Equal(t, "1", py.Environment["PYTHONUNBUFFERED"])
	assert.Equal(t, "python3", py.Process().Command)

	remote, _ := cfg.Engine("remote")
	assert.Equal(t, "/engines", remote.Namespace)

	assert.Equal(t, "sb", cfg.Exchange.Prefix)
	assert.Equal(t, config.StoreBolt, cfg.Store.Kind)
	assert.Equal(t, 10*time.Second, cfg.Store.LockTTL)
	assert.Equal(t, 50*time.Millisecond, cfg.Relay.PollWait)
	assert.Equal(t, 2*time.Second, cfg.Relay.ReplyTimeout)
	assert.Equal(t, []string{"bash", "-c"}, cfg.Shell)
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "engines.json", `{
		"engines": [{"name": "node", "language": "JavaScript", "command": "node", "args": ["engine.js"]}],
		"relay": {"startup_timeout": "30s"}
	}`)
	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Engines, 1)
	assert.Equal(t, []string{"engine.js"}, cfg.Engines[0].Args)
	assert.Equal(t, 30*time.Second, cfg.Relay.StartupTimeout)
}

func TestLoad_Missing(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(wd)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Engines)

	_, err = config.Load(filepath.Join(dir, "other.yaml"))
	assert.Error(t, err, "an explicit file must exist")
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"unknown key", "engine: []"},
		{"missing name", "engines: [{command: x}]"},
		{"duplicate", "engines: [{name: a, builtin: lua}, {name: a, builtin: echo}]"},
		{"no kind", "engines: [{name: a}]"},
		{"two kinds", "engines: [{name: a, command: x, url: http://h}]"},
		{"bad builtin", "engines: [{name: a, builtin: perl}]"},
		{"bad store", "store: {kind: s3}"},
		{"short key", "store: {kind: file, encryption_key: short}"},
		{"bad duration", "relay: {poll_wait: soon}"},
		{"bad yaml", "engines: ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.doc), false)
			assert.Error(t, err)
		})
	}
}
