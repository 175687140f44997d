package cli

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drover/internal/config"
	"drover/internal/conn"
	"drover/internal/creds"
	"drover/internal/logger"
)

func TestParseSetFlags(t *testing.T) {
	opts, err := parseSetFlags([]string{"version=1.4.2", "dry_run=true", "note=a=b"})

	require.NoError(t, err)
	assert.Equal(t, "1.4.2", opts["version"])
	assert.Equal(t, "true", opts["dry_run"])
	assert.Equal(t, "a=b", opts["note"], "only the first = splits")
}

func TestParseSetFlags_Invalid(t *testing.T) {
	for _, bad := range []string{"noequals", "=value"} {
		_, err := parseSetFlags([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestWithEnv(t *testing.T) {
	tests := []struct {
		name string
		cmd  string
		env  map[string]string
		want string
	}{
		{name: "no env", cmd: "make test", want: "make test"},
		{name: "single var", cmd: "make test", env: map[string]string{"CI": "1"}, want: "CI='1' make test"},
		{name: "sorted keys", cmd: "deploy", env: map[string]string{"B": "2", "A": "1"}, want: "A='1' B='2' deploy"},
		{name: "quoted value", cmd: "run", env: map[string]string{"MSG": "it's fine"}, want: `MSG='it'\''s fine' run`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, withEnv(tt.cmd, tt.env))
		})
	}
}

func TestBuildTask(t *testing.T) {
	spec := config.TaskSpec{
		Description: "deploys the app",
		Command:     "bin/deploy",
		Servers:     []string{"web1", "@web"},
		Auth:        creds.Set{User: "deployer"},
		Parallel:    4,
	}

	tk, err := buildTask("deploy", spec, io.Discard)

	require.NoError(t, err)
	assert.Equal(t, "deploy", tk.Name())
	assert.Equal(t, "deploys the app", tk.Desc())
	assert.Equal(t, 4, tk.Parallel())
	assert.Equal(t, "deployer", tk.Creds().User)
	assert.True(t, tk.IsRemote())
	assert.NotNil(t, tk.Work())
}

func TestBuildRegistry_StableOrderAndHidden(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Tasks = map[string]config.TaskSpec{
		"restart": {Command: "systemctl restart app"},
		"deploy":  {Command: "bin/deploy"},
		"cleanup": {Command: "rm -rf /tmp/app-*", Hidden: true},
	}

	reg, err := buildRegistry(cfg, io.Discard, logger.Noop())

	require.NoError(t, err)
	assert.Equal(t, []string{"deploy", "restart"}, reg.Names(false))
	assert.Equal(t, []string{"cleanup", "deploy", "restart"}, reg.Names(true))
}

func TestBuildSettings(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DefaultTransport = "https"
	cfg.FallbackAuth = []creds.Set{{User: "ops", Password: "hunter2"}}
	cfg.Groups = map[string][]string{"web": {"web1", "web2"}}

	settings, err := buildSettings(cfg, io.Discard)

	require.NoError(t, err)
	assert.Equal(t, conn.KindHTTPS, settings.DefaultKind)
	assert.Len(t, settings.FallbackAuth, 1)

	refs, ok := settings.Groups.ExpandGroup("web")
	require.True(t, ok)
	assert.Len(t, refs, 2)
}

func TestBuildSettings_BadTransport(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DefaultTransport = "carrier-pigeon"

	_, err := buildSettings(cfg, io.Discard)

	assert.Error(t, err)
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"))
	assert.Equal(t, "v1.2.3", formatVersion("v1.2.3"))
}
