package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"runcapture/internal/run"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestArgsCommand(t *testing.T) {
	out, err := execute(t, "args", "lr=0.01", "name=foo", "verbose")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, map[string]any{"lr": 0.01, "name": "foo", "verbose": nil}, got)
}

func TestResolveCommand(t *testing.T) {
	cmdDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cmdDir, "train.py"), nil, 0600))

	out, err := execute(t, "--cmd-dir", cmdDir, "resolve", "train.py")

	require.NoError(t, err)
	require.Equal(t, filepath.Join(cmdDir, "train.py")+"\n", out)
}

func TestResolveCommand_FromEnv(t *testing.T) {
	modelDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(modelDir, "model.bin"), nil, 0600))
	t.Setenv(run.EnvModelDir, modelDir)

	out, err := execute(t, "resolve", "model.bin")

	require.NoError(t, err)
	require.Equal(t, filepath.Join(modelDir, "model.bin")+"\n", out)
}

func TestReplay_NoCurrentRun(t *testing.T) {
	t.Setenv(run.EnvRunDir, "")

	_, err := execute(t, "replay")

	require.ErrorIs(t, err, run.ErrNoCurrentRun)
}

func TestExecReplayStatus(t *testing.T) {
	runDir := filepath.Join(t.TempDir(), "run-42")

	out, err := execute(t, "--run-dir", runDir, "exec", "--", "sh", "-c", "echo hello; sleep 0.1; echo oops >&2")
	require.NoError(t, err)
	require.Equal(t, "hello\noops\n", out)

	out, err = execute(t, "--run-dir", runDir, "replay")
	require.NoError(t, err)
	require.Equal(t, "hello\noops\n", out)

	out, err = execute(t, "--run-dir", runDir, "replay", "--stream", "stderr", "--timestamps")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(out, " stderr oops\n"), out)

	out, err = execute(t, "--run-dir", runDir, "status")
	require.NoError(t, err)
	require.Contains(t, out, "Run:      run-42")
	require.Contains(t, out, "completed (exit 0)")
	require.Contains(t, out, "Lines:    1 stdout, 1 stderr")
}

func TestExec_Quiet(t *testing.T) {
	runDir := t.TempDir()

	out, err := execute(t, "--run-dir", runDir, "exec", "-q", "--", "echo", "hidden")

	require.NoError(t, err)
	require.Empty(t, out)
}

func TestExec_ExitCode(t *testing.T) {
	_, err := execute(t, "--run-dir", t.TempDir(), "exec", "--", "sh", "-c", "exit 4")

	var exitErr *exitCodeError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	require.Equal(t, 4, exitErr.code)
}

func TestReplay_ColorAlways(t *testing.T) {
	runDir := t.TempDir()
	_, err := execute(t, "--run-dir", runDir, "exec", "-q", "--", "sh", "-c", "echo bad >&2")
	require.NoError(t, err)

	out, err := execute(t, "--run-dir", runDir, "replay", "--color", "always")

	require.NoError(t, err)
	require.Equal(t, ansiRed+"bad\n"+ansiReset, out)
}

func TestReplay_InvalidStream(t *testing.T) {
	_, err := execute(t, "--run-dir", t.TempDir(), "replay", "--stream", "stdin")

	require.Error(t, err)
}
