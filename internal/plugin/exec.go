package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"time"

	"github.com/dyluth/vista/internal/config"
	"github.com/dyluth/vista/internal/document"
	"github.com/valyala/bytebufferpool"
)

// maxOutputSize caps what is read from a command's stdout and stderr (10MB).
const maxOutputSize = 10 * 1024 * 1024

// waitDelay bounds how long output is drained after the process is killed.
const waitDelay = time.Second

// runner runs one command per call, feeding input on stdin.
type runner struct {
	command []string
	dir     string
	env     []string
	timeout time.Duration
}

// run executes the command and returns its stdout.
// A non-zero exit code is an error; stderr is included in it.
func (r *runner) run(ctx context.Context, input []byte) ([]byte, error) {
	if len(r.command) == 0 {
		return nil, fmt.Errorf("command array is empty")
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
	cmd.Dir = r.dir
	// Children that inherit stdout must not keep Wait blocked after a kill.
	cmd.WaitDelay = waitDelay
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	stdoutBuf := bytebufferpool.Get()
	defer bytebufferpool.Put(stdoutBuf)
	stderrBuf := bytebufferpool.Get()
	defer bytebufferpool.Put(stderrBuf)

	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &limitedWriter{w: stdoutBuf, limit: maxOutputSize}
	cmd.Stderr = &limitedWriter{w: stderrBuf, limit: maxOutputSize}

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("command timed out after %s", r.timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("process exited with code %d: %s", exitErr.ExitCode(), truncate(stderrBuf.String(), 500))
		}
		return nil, fmt.Errorf("failed to run command: %w", err)
	}

	if stdoutBuf.Len() >= maxOutputSize {
		return nil, fmt.Errorf("command output exceeded 10MB limit")
	}
	if stderrBuf.Len() > 0 {
		log.Printf("[DEBUG] Command wrote to stderr: command=%v stderr=%s", r.command, truncate(stderrBuf.String(), 500))
	}

	// The pooled buffer is reused after return.
	out := make([]byte, stdoutBuf.Len())
	copy(out, stdoutBuf.B)
	return out, nil
}

// limitedWriter wraps a writer and stops writing after limit bytes.
// Once the limit is reached, further writes are discarded.
type limitedWriter struct {
	w       io.Writer
	limit   int
	written int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	remaining := lw.limit - lw.written
	if remaining <= 0 {
		return len(p), nil
	}

	toWrite := p
	if len(p) > remaining {
		toWrite = p[:remaining]
	}

	n, err := lw.w.Write(toWrite)
	lw.written += n
	if err != nil {
		return n, err
	}
	// Report the full length so the process is not killed with EPIPE.
	return len(p), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ExecCompiler compiles documents by running a command with the document
// text on stdin.
type ExecCompiler struct {
	run runner
}

// NewExecCompiler creates a compiler running command in dir.
func NewExecCompiler(command []string, dir string) *ExecCompiler {
	return &ExecCompiler{run: runner{command: command, dir: dir, timeout: config.DefaultCallTimeout}}
}

// Compile runs the compiler on doc and returns what it printed.
func (c *ExecCompiler) Compile(ctx context.Context, doc document.Document) ([]byte, error) {
	out, err := c.run.run(ctx, []byte(doc.Text()))
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s: %w", doc.URI(), err)
	}
	return out, nil
}
