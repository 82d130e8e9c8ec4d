package tool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	domaintool "github.com/nilcaream/bobai/internal/domain/tool"
	"go.uber.org/zap"
)

const (
	// bashDefaultTimeout applies when the model passes no timeout.
	bashDefaultTimeout = 30_000 * time.Millisecond
	// bashKillGrace is how long to wait for buffered output to drain
	// after killing a timed-out process.
	bashKillGrace = 2 * time.Second
	// bashMaxOutputBytes caps the combined stdout+stderr payload.
	bashMaxOutputBytes = 50_000
)

// BashTool runs a shell command with cwd at the project root.
type BashTool struct {
	logger *zap.Logger
}

// NewBashTool creates the bash tool.
func NewBashTool(logger *zap.Logger) *BashTool {
	return &BashTool{logger: logger}
}

func (t *BashTool) Name() string { return "bash" }

func (t *BashTool) Description() string {
	return "Execute a shell command in the project root. Captures stdout and stderr combined. " +
		"Commands are killed after the timeout (default 30s). Avoid interactive or " +
		"long-running commands (top, watch, tail -f)."
}

func (t *BashTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The shell command to execute",
			},
			"timeout": map[string]interface{}{
				"type":        "integer",
				"description": "Timeout in milliseconds (default 30000)",
			},
		},
		"required": []string{"command"},
	}
}

// lockedBuffer serializes writes from the child's output pipes.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (t *BashTool) Execute(ctx context.Context, args map[string]interface{}, tc domaintool.Context) (*domaintool.Result, error) {
	command, ok := stringArg(args, "command")
	if !ok || command == "" {
		return domaintool.Errorf("command is required"), nil
	}

	timeout := bashDefaultTimeout
	if ms, ok := intArg(args, "timeout"); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	t.logger.Info("Executing bash command",
		zap.String("command", command),
		zap.Duration("timeout", timeout),
	)

	cmd := exec.Command("bash", "-c", command)
	cmd.Dir = tc.ProjectRoot

	out := &lockedBuffer{}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return domaintool.Errorf("start command: %v", err), nil
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return domaintool.Errorf("command cancelled: %v", ctx.Err()), nil
	case <-time.After(timeout):
		timedOut = true
		_ = cmd.Process.Kill()
		// Drain whatever the pipes already buffered before giving up.
		select {
		case <-done:
		case <-time.After(bashKillGrace):
		}
	}

	output := out.String()
	if len(output) > bashMaxOutputBytes {
		output = output[:bashMaxOutputBytes] + fmt.Sprintf("\n(output truncated at %d bytes)", bashMaxOutputBytes)
	}

	if timedOut {
		output += fmt.Sprintf("\n(command timed out after %s)", timeout)
		return &domaintool.Result{Output: output, IsError: true}, nil
	}

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return domaintool.Errorf("%s\ncommand failed: %v", output, waitErr), nil
		}
	}

	if exitCode != 0 {
		output += fmt.Sprintf("\nexit code: %d", exitCode)
		return &domaintool.Result{Output: output, IsError: true}, nil
	}
	return &domaintool.Result{Output: output}, nil
}
