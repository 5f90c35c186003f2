package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/switchboard/internal/logging"
	"github.com/aretw0/switchboard/pkg/config"
	"github.com/aretw0/switchboard/pkg/domain"
	"github.com/aretw0/switchboard/pkg/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "switchboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestBuildTransport(t *testing.T) {
	cfg, err := config.Parse([]byte(`
engines:
  - name: echo
    builtin: echo
  - name: py311
    language: Python3
    command: python3
  - name: remote
    url: http://localhost:3000
`), false)
	require.NoError(t, err)

	r, err := buildTransport(cfg, logging.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"echo", "py311", "remote"}, r.Engines())

	for _, name := range []string{"echo", "lua"} {
		h, err := r.Start(context.Background(), name)
		require.NoError(t, err, name)
		assert.True(t, r.IsAlive(h))
		require.NoError(t, r.Shutdown(context.Background(), h))
	}
}

func TestBuildAdapters(t *testing.T) {
	cfg := &config.File{Engines: []config.EngineConfig{
		{Name: "py311", Language: "Python3", Command: "python3"},
	}}
	reg, err := buildAdapters(cfg)
	require.NoError(t, err)
	assert.Equal(t, "py311", reg.KernelName("Python3"))
	assert.Equal(t, "ir", reg.KernelName("R"))

	cfg.Engines[0].Language = "Fortran"
	_, err = buildAdapters(cfg)
	assert.ErrorContains(t, err, "unknown language")
}

func TestPrintEngines(t *testing.T) {
	cfg := &config.File{Engines: []config.EngineConfig{
		{Name: "py311", Language: "Python3", Command: "python3"},
	}}
	var buf bytes.Buffer
	require.NoError(t, PrintEngines(&buf, cfg))
	out := buf.String()
	assert.Contains(t, out, "py311")
	assert.Contains(t, out, "process")
	assert.Contains(t, out, "lua")
	assert.Regexp(t, `R\s+ir`, out)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mr := miniredis.RunT(t)

	cases := map[string]config.StoreConfig{
		config.StoreMemory: {},
		config.StoreFile:   {Path: filepath.Join(dir, "sessions")},
		config.StoreBolt:   {Path: filepath.Join(dir, "db", "sessions.db")},
		config.StoreRedis:  {Addr: mr.Addr(), Prefix: "test:"},
	}
	for kind, cfg := range cases {
		t.Run(kind, func(t *testing.T) {
			store, closer, err := openStore(cfg, kind, logging.NewNop())
			require.NoError(t, err)
			defer closer.Close()

			require.NoError(t, store.Save(ctx, "s1", domain.Dict{"sosN": int64(3)}))
			dict, err := store.Load(ctx, "s1")
			require.NoError(t, err)
			assert.EqualValues(t, 3, dict["sosN"])

			ids, err := store.List(ctx)
			require.NoError(t, err)
			assert.Contains(t, ids, "s1")
		})
	}

	_, _, err := openStore(config.StoreConfig{}, "tape", logging.NewNop())
	assert.Error(t, err)
}

func TestOpenStore_Middleware(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := config.StoreConfig{
		Path:          dir,
		EncryptionKey: strings.Repeat("k", 32),
		RedactKeys:    []string{"(?i)password"},
	}
	store, closer, err := openStore(cfg, config.StoreFile, logging.NewNop())
	require.NoError(t, err)
	defer closer.Close()

	require.NoError(t, store.Save(ctx, "s1", domain.Dict{"user": "ada", "password": "hunter2"}))

	raw, err := os.ReadFile(filepath.Join(dir, "s1.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "ada")
	assert.NotContains(t, string(raw), "hunter2")

	dict, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "ada", dict["user"])
	assert.Equal(t, "***", dict["password"])

	cfg.EncryptionKey = "short"
	_, _, err = openStore(cfg, config.StoreFile, logging.NewNop())
	assert.Error(t, err)
}

func TestParseContext(t *testing.T) {
	dict, err := parseContext(`{"sosN": 2, "name": "x"}`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), dict["sosN"])

	_, err = parseContext(`[1, 2]`)
	assert.Error(t, err)

	dict, err = parseContext("")
	require.NoError(t, err)
	assert.Empty(t, dict)
}

func TestRun_Headless(t *testing.T) {
	opts := RunOptions{Options: Options{ConfigPath: writeConfig(t, "{}\n")}, Headless: true}
	stdin := strings.NewReader("sosX = 2\n\nprint(sosX * 3)\n\nexit\n")
	var stdout, stderr bytes.Buffer

	require.NoError(t, Run(context.Background(), opts, stdin, &stdout, &stderr))
	assert.Equal(t, "6\n", stdout.String())
	assert.Empty(t, stderr.String())
}

func TestRun_Context(t *testing.T) {
	opts := RunOptions{
		Options:  Options{ConfigPath: writeConfig(t, "{}\n"), Context: `{"greeting": "hello"}`},
		Headless: true,
	}
	var stdout bytes.Buffer
	require.NoError(t, Run(context.Background(), opts, strings.NewReader("print(greeting)\n"), &stdout, &stdout))
	assert.Equal(t, "hello\n", stdout.String())
}

func TestRun_SessionPersists(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, "store:\n  kind: file\n  path: "+filepath.ToSlash(dir)+"\n")
	opts := RunOptions{Options: Options{ConfigPath: cfgPath, SessionID: "s1"}, Headless: true}

	var out bytes.Buffer
	require.NoError(t, Run(context.Background(), opts, strings.NewReader("sosCount = 41\n"), &out, &out))

	out.Reset()
	require.NoError(t, Run(context.Background(), opts, strings.NewReader("print(sosCount + 1)\n"), &out, &out))
	assert.Equal(t, "42\n", out.String())

	opts.Fresh = true
	out.Reset()
	require.NoError(t, Run(context.Background(), opts, strings.NewReader("print(sosCount == nil)\n"), &out, &out))
	assert.Equal(t, "true\n", out.String())

	out.Reset()
	require.NoError(t, ListSessions(context.Background(), opts.Options, &out))
	assert.Contains(t, out.String(), "- s1")

	out.Reset()
	require.NoError(t, RemoveSession(context.Background(), opts.Options, "s1", &out))
	assert.Error(t, InspectSession(context.Background(), opts.Options, "s1", &out))
}

func TestRun_Script(t *testing.T) {
	script := filepath.Join(t.TempDir(), "cells.lua")
	require.NoError(t, os.WriteFile(script, []byte("#%%\nsosA = 1\n#%%\nprint(sosA)\n#%%\nerror('boom')\n#%%\nprint('never')\n"), 0o644))

	opts := RunOptions{Options: Options{ConfigPath: writeConfig(t, "{}\n")}, Script: script}
	var stdout, stderr bytes.Buffer
	err := Run(context.Background(), opts, strings.NewReader(""), &stdout, &stderr)

	assert.ErrorIs(t, err, runner.ErrCellFailed)
	assert.Equal(t, "1\n", stdout.String())
	assert.Contains(t, stderr.String(), "boom")
}

func TestRun_JSON(t *testing.T) {
	opts := RunOptions{Options: Options{ConfigPath: writeConfig(t, "{}\n")}, JSON: true}
	var stdout bytes.Buffer
	require.NoError(t, Run(context.Background(), opts, strings.NewReader(`{"code": "print('hi')"}`+"\n"), &stdout, &stdout))

	var types []string
	for _, line := range strings.Split(strings.TrimSpace(stdout.String()), "\n") {
		var msg runner.Message
		require.NoError(t, json.Unmarshal([]byte(line), &msg))
		types = append(types, msg.Type)
	}
	assert.Contains(t, types, runner.MessageEvent)
	assert.Equal(t, runner.MessageResult, types[len(types)-1])
}

func TestRun_MissingConfig(t *testing.T) {
	opts := RunOptions{Options: Options{ConfigPath: filepath.Join(t.TempDir(), "nope.yaml")}, Headless: true}
	err := Run(context.Background(), opts, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	assert.Error(t, err)
}
