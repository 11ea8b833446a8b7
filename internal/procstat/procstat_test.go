package procstat

import (
	"bytes"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDescribe_Self(t *testing.T) {
	t.Parallel()
	info, err := Describe(os.Getpid())

	require.NoError(t, err)
	require.Equal(t, int32(os.Getpid()), info.PID)
	require.NotEmpty(t, info.Name)
	require.False(t, info.CreateTime.IsZero())
}

func TestDescribe_Children(t *testing.T) {
	cmd := exec.Command("sh", "-c", "sleep 5 & wait")
	require.NoError(t, cmd.Start())
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	require.Eventually(t, func() bool {
		info, err := Describe(cmd.Process.Pid)
		return err == nil && len(info.Children) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestRunning(t *testing.T) {
	t.Parallel()
	require.True(t, Running(os.Getpid()))
	require.False(t, Running(0))
	require.False(t, Running(-1))
}

func TestLogValue(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	info := &Info{PID: 42, Name: "train", Status: "S", Children: []*Info{{PID: 43}}}

	logger.Info("child", "process", info)

	out := buf.String()
	require.True(t, strings.Contains(out, "process.pid=42"), out)
	require.True(t, strings.Contains(out, "process.name=train"), out)
}
