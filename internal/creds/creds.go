// Package creds holds credential material for reaching a host: user,
// password, key pair paths, and the sudo password used once connected.
package creds

import "path/filepath"

// Set is one bundle of credentials. The zero value is an empty set.
type Set struct {
	User         string `mapstructure:"user" yaml:"user"`
	Password     string `mapstructure:"password" yaml:"password"`
	PrivateKey   string `mapstructure:"private_key" yaml:"private_key"`
	PublicKey    string `mapstructure:"public_key" yaml:"public_key"`
	SudoPassword string `mapstructure:"sudo_password" yaml:"sudo_password"`
}

// Merge combines two credential sets per field, primary winning wherever it
// has a value. Used to layer task-level credentials over server-level ones.
func Merge(primary, secondary Set) Set {
	out := secondary
	if primary.User != "" {
		out.User = primary.User
	}
	if primary.Password != "" {
		out.Password = primary.Password
	}
	if primary.PrivateKey != "" {
		out.PrivateKey = primary.PrivateKey
	}
	if primary.PublicKey != "" {
		out.PublicKey = primary.PublicKey
	}
	if primary.SudoPassword != "" {
		out.SudoPassword = primary.SudoPassword
	}
	return out
}

// Assign overwrites fields from a raw credential map. This backs the
// deprecated trailing-map-in-server-list path: user and password are always
// taken from the map, the key pair only when supplied.
func (s *Set) Assign(m map[string]string) {
	s.User = m["user"]
	s.Password = m["password"]
	if priv, ok := m["private_key"]; ok && priv != "" {
		s.PrivateKey = priv
	}
	if pub, ok := m["public_key"]; ok && pub != "" {
		s.PublicKey = pub
	}
	if sudo, ok := m["sudo_password"]; ok && sudo != "" {
		s.SudoPassword = sudo
	}
}

// ResolveKeyPaths makes relative key paths absolute against workDir.
func (s *Set) ResolveKeyPaths(workDir string) {
	if s.PrivateKey != "" && !filepath.IsAbs(s.PrivateKey) {
		s.PrivateKey = filepath.Join(workDir, s.PrivateKey)
	}
	if s.PublicKey != "" && !filepath.IsAbs(s.PublicKey) {
		s.PublicKey = filepath.Join(workDir, s.PublicKey)
	}
}

// HasKeyPair reports whether both key paths are set.
func (s Set) HasKeyPair() bool {
	return s.PrivateKey != "" && s.PublicKey != ""
}

// Empty reports whether no field is set.
func (s Set) Empty() bool {
	return s == Set{}
}
