package conn

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"drover/internal/errors"
)

func TestResolveKind(t *testing.T) {
	tests := []struct {
		name     string
		http     bool
		https    bool
		remote   bool
		openssh  bool
		wantConn bool
		def      Kind
		want     Kind
	}{
		{name: "http flag wins over everything", http: true, https: true, remote: true, openssh: true, wantConn: true, def: KindOpenSSH, want: KindHTTP},
		{name: "https flag beats openssh", https: true, remote: true, openssh: true, wantConn: true, def: KindOpenSSH, want: KindHTTPS},
		{name: "explicit openssh for remote", remote: true, openssh: true, wantConn: true, def: KindHTTPS, want: KindOpenSSH},
		{name: "remote without explicit flag uses default", remote: true, wantConn: true, def: KindOpenSSH, want: KindOpenSSH},
		{name: "remote default can be https", remote: true, wantConn: true, def: KindHTTPS, want: KindHTTPS},
		{name: "remote without connection is fake", remote: true, def: KindOpenSSH, want: KindFake},
		{name: "remote with openssh flag but no connection is fake", remote: true, openssh: true, def: KindOpenSSH, want: KindFake},
		{name: "not remote is local", def: KindOpenSSH, want: KindLocal},
		{name: "not remote ignores want-conn", wantConn: true, def: KindOpenSSH, want: KindLocal},
		{name: "not remote ignores openssh flag", openssh: true, wantConn: true, def: KindOpenSSH, want: KindLocal},
		{name: "http flag applies even when local", http: true, def: KindOpenSSH, want: KindHTTP},
		{name: "https flag applies even when local", https: true, def: KindOpenSSH, want: KindHTTPS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveKind(tt.http, tt.https, tt.remote, tt.openssh, tt.wantConn, tt.def)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{in: "openssh", want: KindOpenSSH},
		{in: "", want: KindOpenSSH},
		{in: "http", want: KindHTTP},
		{in: "https", want: KindHTTPS},
		{in: "telnet", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("parse "+tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrConfig))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "local", KindLocal.String())
	assert.Equal(t, "fake", KindFake.String())
	assert.Equal(t, "openssh", KindOpenSSH.String())
	assert.Equal(t, "http", KindHTTP.String())
	assert.Equal(t, "https", KindHTTPS.String())
}
