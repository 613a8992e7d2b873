package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permfuzz/internal/metrics"
)

func TestRunCapturesStdoutAndExitCode(t *testing.T) {
	e := RuntimeExecutor{Label: "echo", Command: "/bin/sh", Args: []string{"-c", "echo hello; exit 0"}}
	res, err := e.Run(context.Background(), time.Second, "")
	require.NoError(t, err)
	assert.False(t, res.TimedOut)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
}

func TestRunCapturesNonZeroExit(t *testing.T) {
	e := RuntimeExecutor{Label: "fail", Command: "/bin/sh", Args: []string{"-c", "exit 7"}}
	res, err := e.Run(context.Background(), time.Second, "")
	require.NoError(t, err)
	assert.Equal(t, 7, res.ExitCode)
}

func TestRunTimesOut(t *testing.T) {
	e := RuntimeExecutor{Label: "slow", Command: "/bin/sh", Args: []string{"-c", "sleep 5"}}
	res, err := e.Run(context.Background(), 50*time.Millisecond, "")
	require.NoError(t, err)
	require.True(t, res.TimedOut, "expected a timeout")
	assert.Equal(t, metrics.TimeoutExitCode, res.ExitCode)
}

func TestRunPassesStdin(t *testing.T) {
	e := RuntimeExecutor{Label: "cat", Command: "/bin/cat"}
	res, err := e.Run(context.Background(), time.Second, "from stdin")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", res.Stdout)
}
