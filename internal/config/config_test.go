package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drover/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
version: 1
default_transport: openssh
report_type: yaml
verbosity: 2
collect_facts: true
connect_timeout: 5s
groups:
  web: [web1, web2]
fallback_auth:
  - user: deploy
    password: pw1
  - user: admin
    private_key: /keys/id_rsa
tasks:
  deploy:
    description: ship it
    command: ./deploy.sh
    servers: ["@web", db1]
    parallel: 2
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openssh", cfg.DefaultTransport)
	assert.Equal(t, ReportYAML, cfg.ReportType)
	assert.Equal(t, 2, cfg.Verbosity)
	assert.True(t, cfg.CollectFacts)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, []string{"web1", "web2"}, cfg.Groups["web"])

	require.Len(t, cfg.FallbackAuth, 2)
	assert.Equal(t, "deploy", cfg.FallbackAuth[0].User)
	assert.Equal(t, "/keys/id_rsa", cfg.FallbackAuth[1].PrivateKey)

	task, ok := cfg.Tasks["deploy"]
	require.True(t, ok)
	assert.Equal(t, "./deploy.sh", task.Command)
	assert.Equal(t, 2, task.Parallel)
	assert.True(t, task.ExitOnConnectFailValue()) // unset defaults to true
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "version: 1\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "openssh", cfg.DefaultTransport)
	assert.Equal(t, ReportText, cfg.ReportType)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestLoad_InvalidTransport(t *testing.T) {
	path := writeConfig(t, "default_transport: telnet\n")

	_, err := Load(path)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestLoad_TaskWithoutCommand(t *testing.T) {
	path := writeConfig(t, `
tasks:
  broken:
    description: no command
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestValidate_NestedGroupRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Groups["all"] = []string{"@web"}

	err := Validate(cfg)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestExitOnConnectFailValue(t *testing.T) {
	var spec TaskSpec
	assert.True(t, spec.ExitOnConnectFailValue())

	f := false
	spec.ExitOnConnectFail = &f
	assert.False(t, spec.ExitOnConnectFailValue())
}

func TestFind_ExplicitMissing(t *testing.T) {
	_, err := Find(filepath.Join(t.TempDir(), "absent.yaml"))

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestFind_CurrentDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer os.Chdir(cwd) //nolint:errcheck

	found, err := Find("")
	require.NoError(t, err)
	// Resolve symlinks (macOS TempDir lives under /var -> /private/var)
	wantDir, _ := filepath.EvalSymlinks(dir)
	gotDir, _ := filepath.EvalSymlinks(filepath.Dir(found))
	assert.Equal(t, wantDir, gotDir)
}
