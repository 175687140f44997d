package creds

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMerge_PrimaryWinsPerField(t *testing.T) {
	task := Set{User: "deploy", PrivateKey: "task_key"}
	server := Set{User: "root", Password: "secret", PrivateKey: "server_key"}

	merged := Merge(task, server)

	assert.Equal(t, "deploy", merged.User)         // both set, task wins
	assert.Equal(t, "secret", merged.Password)     // only server set
	assert.Equal(t, "task_key", merged.PrivateKey) // both set, task wins
}

func TestMerge_EmptyPrimaryKeepsSecondary(t *testing.T) {
	server := Set{User: "root", Password: "pw", SudoPassword: "spw"}

	merged := Merge(Set{}, server)

	assert.Equal(t, server, merged)
}

func TestAssign_UserPasswordAlways(t *testing.T) {
	s := Set{User: "deploy", Password: "old", PrivateKey: "keep_key", PublicKey: "keep_pub"}

	s.Assign(map[string]string{"user": "legacy", "password": "newpw"})

	assert.Equal(t, "legacy", s.User)
	assert.Equal(t, "newpw", s.Password)
	// Key pair untouched when the map carries none
	assert.Equal(t, "keep_key", s.PrivateKey)
	assert.Equal(t, "keep_pub", s.PublicKey)
}

func TestAssign_KeyPairOnlyWhenPresent(t *testing.T) {
	s := Set{}

	s.Assign(map[string]string{
		"user":        "legacy",
		"password":    "pw",
		"private_key": "id_ed25519",
		"public_key":  "id_ed25519.pub",
	})

	assert.Equal(t, "id_ed25519", s.PrivateKey)
	assert.Equal(t, "id_ed25519.pub", s.PublicKey)
}

func TestResolveKeyPaths(t *testing.T) {
	s := Set{PrivateKey: "keys/id_rsa", PublicKey: "/abs/id_rsa.pub"}

	s.ResolveKeyPaths("/work")

	assert.Equal(t, filepath.Join("/work", "keys/id_rsa"), s.PrivateKey)
	assert.Equal(t, "/abs/id_rsa.pub", s.PublicKey) // absolute path untouched
}

func TestHasKeyPairAndEmpty(t *testing.T) {
	assert.True(t, Set{}.Empty())
	assert.False(t, Set{User: "u"}.Empty())
	assert.False(t, Set{PrivateKey: "k"}.HasKeyPair())
	assert.True(t, Set{PrivateKey: "k", PublicKey: "p"}.HasKeyPair())
}
