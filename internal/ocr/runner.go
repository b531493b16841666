package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// stderrTail bounds how much of a failing tool's stderr is kept. Poppler and
// tesseract print the useful line last.
const stderrTail = 4 << 10

// Runner executes one of the OCR tools (pdftotext, pdftoppm, tesseract) and
// returns its stdout. Tests substitute it.
type Runner interface {
	Run(ctx context.Context, tool string, args ...string) ([]byte, error)
}

// ToolError is a failed tool invocation.
type ToolError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Tool, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, e.Stderr)
}

func (e *ToolError) Unwrap() error { return e.Err }

// Missing reports whether the tool binary could not be found.
func (e *ToolError) Missing() bool { return errors.Is(e.Err, exec.ErrNotFound) }

// CommandRunner runs the tools with os/exec.
type CommandRunner struct {
	logger *slog.Logger
}

func NewCommandRunner(logger *slog.Logger) *CommandRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandRunner{logger: logger}
}

func (r *CommandRunner) Run(ctx context.Context, tool string, args ...string) ([]byte, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, tool, args...)
	var stdout bytes.Buffer
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		te := &ToolError{Tool: tool, Stderr: strings.TrimSpace(stderr.String()), Err: err}
		if te.Missing() {
			r.logger.Error("ocr.tool.missing", "tool", tool, "error", err)
		} else {
			r.logger.Error("ocr.tool.failed", "tool", tool, "duration", time.Since(start), "error", err, "stderr", te.Stderr)
		}
		return nil, te
	}
	r.logger.Debug("ocr.tool.done", "tool", tool, "duration", time.Since(start), "stdout_bytes", stdout.Len())
	return stdout.Bytes(), nil
}

// stderrOf returns the captured stderr of a ToolError as a warning list.
func stderrOf(err error) []string {
	var te *ToolError
	if errors.As(err, &te) && te.Stderr != "" {
		return []string{te.Stderr}
	}
	return nil
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max     int
	buf     []byte
	dropped bool
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
		t.dropped = true
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	s := strings.ToValidUTF8(string(t.buf), "")
	if t.dropped {
		return "..." + s
	}
	return s
}
