// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthKV Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns its combined output.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	configFile = ""
	t.Cleanup(func() { configFile = "" })

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(bytes.NewBufferString(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	output, err := execute(t, "", "--help")
	require.NoError(t, err)

	for _, sub := range []string{"serve", "migrate", "config", "hash", "status"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantFlag string
	}{
		{
			name:     "separate value",
			args:     []string{"--config", "/path/to/authkv.yaml", "--help"},
			wantFlag: "/path/to/authkv.yaml",
		},
		{
			name:     "config flag with equals",
			args:     []string{"--config=/etc/authkv.yaml", "--help"},
			wantFlag: "/etc/authkv.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configFile = ""

			cmd := NewRootCmd()
			buf := new(bytes.Buffer)
			cmd.SetOut(buf)
			cmd.SetArgs(tt.args)

			require.NoError(t, cmd.Execute())
			assert.Equal(t, tt.wantFlag, configFile)
		})
	}
}

func TestServeCommand_Flags(t *testing.T) {
	cmd := NewServeCmd()

	for _, name := range []string{"addr", "store", "pool-size", "auto-migrate", "metrics-addr", "log-format", "log-level"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing flag %q", name)
	}

	addr, err := cmd.Flags().GetString("addr")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:3030", addr)

	poolSize, err := cmd.Flags().GetInt("pool-size")
	require.NoError(t, err)
	assert.Equal(t, 16, poolSize)
}

func TestServeCommand_InvalidConfig(t *testing.T) {
	_, err := execute(t, "", "serve", "--log-format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log format")
}
