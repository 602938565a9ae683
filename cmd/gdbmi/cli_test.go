package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/gdbmi/internal/config"
)

func executeCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "gdbmi version dev")
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "operation only",
			args: []string{"encode", "exec-continue"},
			want: "-exec-continue\n",
		},
		{
			name: "token and thread",
			args: []string{"encode", "exec-next", "--token", "7", "--thread", "2"},
			want: "7-exec-next --thread 2\n",
		},
		{
			name: "options and params",
			args: []string{"encode", "break-insert", "--opt=-t", "--", "main"},
			want: "-break-insert -t main\n",
		},
		{
			name: "quoting",
			args: []string{
				"encode", "test-operation",
				`--opt=-a a_test\with slashes`, `--opt=-b "hello"`, "--opt=-c c_test",
				"--", "-param1 param", "param2", "-param3",
			},
			want: `-test-operation "-a a_test\\with slashes" "-b \"hello\"" "-c c_test" -- "-param1 param" param2 -param3` + "\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, _, err := executeCLI(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, stdout)
		})
	}
}

func TestEncodeRejectsExtraOperands(t *testing.T) {
	_, _, err := executeCLI(t, "encode", "exec-run", "extra")
	assert.Error(t, err)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gdbmi.toml")

	stdout, _, err := executeCLI(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, stdout, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[gdb]")

	_, _, err = executeCLI(t, "--config", path, "config", "init")
	assert.ErrorIs(t, err, config.ErrFileExists)

	_, _, err = executeCLI(t, "--config", path, "config", "init", "--force")
	assert.NoError(t, err)
}

func TestConfigShowAppliesFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gdbmi.toml")
	require.NoError(t, config.WriteDefault(path, false))

	stdout, _, err := executeCLI(t, "--config", path, "--gdb", "/opt/gdb/bin/gdb", "--log-level", "debug", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "/opt/gdb/bin/gdb")
	assert.Contains(t, stdout, "debug")
}

func TestRunRequiresProgram(t *testing.T) {
	_, _, err := executeCLI(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a program")
}
