// Copyright (c) 2025 Tripmaster Team
// Tripmaster - self-hosted travel management
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"testing"
)

func TestNewRootCmdWiring(t *testing.T) {
	root := NewRootCmd()

	want := map[string]bool{"backup": false, "migrate": false, "audit": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}

	var backupGroup map[string]bool
	for _, c := range root.Commands() {
		if c.Name() == "backup" {
			backupGroup = map[string]bool{"create": false, "validate": false, "restore": false, "info": false}
			for _, sub := range c.Commands() {
				if _, ok := backupGroup[sub.Name()]; ok {
					backupGroup[sub.Name()] = true
				}
			}
		}
	}
	if backupGroup == nil {
		t.Fatal("backup command group not registered")
	}
	for name, found := range backupGroup {
		if !found {
			t.Errorf("missing backup subcommand %q", name)
		}
	}

	if root.Version == "" {
		t.Error("root command must carry a version")
	}
	if root.PersistentFlags().Lookup("config") == nil || root.PersistentFlags().Lookup("verbose") == nil {
		t.Error("persistent flags not registered")
	}
}

func TestNewRootCmdIsReentrant(t *testing.T) {
	// Creating two roots must not panic on duplicate flag registration.
	_ = NewRootCmd()
	_ = NewRootCmd()
}

func TestNewSecretKeyIsRandom(t *testing.T) {
	a := newSecretKey()
	b := newSecretKey()
	if a == b {
		t.Error("two generated secrets should not collide")
	}
	if len(a) < 32 {
		t.Errorf("secret too short: %d chars", len(a))
	}
}
