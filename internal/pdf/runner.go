package pdf

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner executes one poppler tool and returns its stdout. A non-zero exit
// comes back as *ExecError.
type Runner interface {
	Run(ctx context.Context, tool string, args ...string) ([]byte, error)
}

// ExecError keeps the tail of a failed tool's stderr, which is where poppler
// explains what is wrong with the document.
type ExecError struct {
	Tool   string
	Err    error
	Stderr string
}

const maxStderr = 256

func newExecError(tool string, err error, stderr []byte) *ExecError {
	msg := strings.TrimSpace(string(stderr))
	if len(msg) > maxStderr {
		msg = msg[len(msg)-maxStderr:]
	}
	return &ExecError{Tool: tool, Err: err, Stderr: msg}
}

func (e *ExecError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, e.Stderr)
}

func (e *ExecError) Unwrap() error { return e.Err }

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, tool string, args ...string) ([]byte, error) {
	start := time.Now()
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		xerr := newExecError(tool, err, stderr.Bytes())
		r.logger.Warn("poppler tool failed", "tool", tool, "elapsed_ms", time.Since(start).Milliseconds(), "error", xerr)
		return nil, xerr
	}
	r.logger.Debug("poppler tool ok", "tool", tool, "elapsed_ms", time.Since(start).Milliseconds(), "stdout_bytes", stdout.Len())
	return stdout.Bytes(), nil
}
