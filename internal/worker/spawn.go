package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"
)

// ExecSpawner starts each action as a child process of Path. The child gets
// Args followed by "--name <action>".
type ExecSpawner struct {
	Path   string
	Args   []string
	Env    []string // appended to the current environment
	Stdout io.Writer
	Stderr io.Writer
	// WaitDelay bounds how long an interrupted child may take to exit before
	// it is killed.
	WaitDelay time.Duration
}

// SelfSpawner re-executes the running binary's "action" command.
func SelfSpawner(args ...string) (*ExecSpawner, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return &ExecSpawner{
		Path:   exe,
		Args:   append([]string{"action"}, args...),
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}, nil
}

func (s *ExecSpawner) Spawn(ctx context.Context, action string) error {
	args := append(append([]string(nil), s.Args...), "--name", action)
	cmd := exec.CommandContext(ctx, s.Path, args...)
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.Stdout = s.Stdout
	cmd.Stderr = s.Stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = s.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 10 * time.Second
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("action %s: %w", action, err)
	}
	return nil
}
