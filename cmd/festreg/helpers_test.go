// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FestReg Contributors

package main

import (
	"bytes"
	"sync"
	"testing"

	"github.com/spf13/cobra"

	"github.com/vtufest/festreg/internal/config"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// newTestRoot mounts sub under a root carrying the global flags.
func newTestRoot(sub ...*cobra.Command) (*cobra.Command, *syncBuffer, *syncBuffer) {
	root := &cobra.Command{Use: "festreg", SilenceUsage: true, SilenceErrors: true}
	addGlobalFlags(root)
	root.AddCommand(sub...)

	out, errOut := &syncBuffer{}, &syncBuffer{}
	root.SetOut(out)
	root.SetErr(errOut)
	return root, out, errOut
}

// clearEnv blanks every variable config.Load reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		config.EnvDatabaseURL,
		config.EnvJWTSecret,
		config.EnvDefaultStaffPassword,
		config.EnvRedisPassword,
	} {
		t.Setenv(name, "")
	}
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
}
