package launcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"syscall"

	"github.com/dyluth/vista/internal/config"
)

// Exec launches plugins as child processes.
type Exec struct {
	opts Options
}

// NewExec creates a launcher for local plugin processes.
func NewExec(opts Options) *Exec {
	return &Exec{opts: opts}
}

// Launch starts p.Command. The process outlives ctx; stop it with Stop.
func (e *Exec) Launch(ctx context.Context, p config.Plugin) (Process, error) {
	if len(p.Command) == 0 {
		return nil, fmt.Errorf("plugin '%s': command is empty", p.ID)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(p.Command[0], p.Command[1:]...)
	cmd.Dir = p.Dir
	if cmd.Dir == "" {
		cmd.Dir = e.opts.Workspace
	}
	cmd.Env = append(os.Environ(), Env(e.opts, p)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start plugin '%s': %w", p.ID, err)
	}

	proc := &execProcess{pluginID: p.ID, cmd: cmd, done: make(chan struct{})}
	go forwardOutput(p.ID, "stdout", stdout)
	go forwardOutput(p.ID, "stderr", stderr)
	go func() {
		proc.err = cmd.Wait()
		close(proc.done)
		log.Printf("[INFO] Plugin process exited: plugin=%s pid=%d error=%v", p.ID, cmd.Process.Pid, proc.err)
	}()

	log.Printf("[INFO] Plugin process started: plugin=%s pid=%d command=%v", p.ID, cmd.Process.Pid, p.Command)
	return proc, nil
}

func forwardOutput(pluginID, stream string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Printf("[DEBUG] Plugin output: plugin=%s stream=%s line=%s", pluginID, stream, scanner.Text())
	}
}

type execProcess struct {
	pluginID string
	cmd      *exec.Cmd
	done     chan struct{}
	err      error
}

func (p *execProcess) ID() string {
	return fmt.Sprintf("pid:%d", p.cmd.Process.Pid)
}

// Done is closed when the process has exited.
func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Stop(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	default:
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.Printf("[WARN] Failed to signal plugin: plugin=%s error=%v", p.pluginID, err)
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		log.Printf("[WARN] Plugin did not exit in time, killing: plugin=%s", p.pluginID)
		if err := p.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill plugin '%s': %w", p.pluginID, err)
		}
		<-p.done
		return nil
	}
}
