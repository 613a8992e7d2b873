// Package executor runs one managed-runtime binary on a configured target
// and collects its stdout/stderr/exit code, enforcing a hard timeout with
// forceful termination.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"permfuzz/internal/metrics"
)

// Result is the raw outcome of one child process run.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// RuntimeExecutor runs a single command against a configured timeout,
// streaming stdout/stderr through a pair of reader goroutines so a chatty
// child can never deadlock on a full pipe buffer.
type RuntimeExecutor struct {
	Label   string // runtime label, used only for logging
	Command string
	Args    []string
	Dir     string
	Env     []string
}

// Run executes the configured command once. If the process is still
// running when the timeout elapses, it is killed and Result.TimedOut is set
// with ExitCode == metrics.TimeoutExitCode.
func (e RuntimeExecutor) Run(ctx context.Context, timeout time.Duration, stdin string) (Result, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, e.Command, e.Args...)
	cmd.Dir = e.Dir
	if len(e.Env) > 0 {
		cmd.Env = e.Env
	}
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("runtime %s: stdout pipe: %w", e.Label, err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("runtime %s: stderr pipe: %w", e.Label, err)
	}

	slog.Debug("running runtime executor", slog.String("label", e.Label), slog.String("cmd", cmd.String()))

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("runtime %s: start: %w", e.Label, err)
	}

	var stdoutBuf, stderrBuf strings.Builder
	done := make(chan struct{}, 2)

	readInto := func(r io.Reader, buf *strings.Builder) {
		defer func() { done <- struct{}{} }()
		_, _ = io.Copy(buf, r)
	}
	go readInto(stdoutPipe, &stdoutBuf)
	go readInto(stderrPipe, &stderrBuf)

	waitErr := cmd.Wait()
	<-done
	<-done

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{
			Stdout:   stdoutBuf.String(),
			Stderr:   stderrBuf.String(),
			ExitCode: metrics.TimeoutExitCode,
			TimedOut: true,
		}, nil
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return Result{}, fmt.Errorf("runtime %s: wait: %w", e.Label, waitErr)
		}
	}

	return Result{
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		ExitCode: exitCode,
	}, nil
}
