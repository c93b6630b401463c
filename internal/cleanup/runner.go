package cleanup

import (
	"bytes"
	"context"
	"os/exec"

	"codeberg.org/mutker/sysoptctl/internal/errors"
)

// CommandRunner runs external programs. Implementations must honour ctx
// cancellation and report a deadline as an ErrCommandTimeout error.
type CommandRunner interface {
	// Run executes the command and returns its exit code. A non-zero exit
	// is not an error; failing to start or finish the process is.
	Run(ctx context.Context, name string, args ...string) (int, error)
	// Output executes the command and returns its standard output.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	hideWindow(cmd)

	err := cmd.Run()

	return exitStatus(ctx, name, err)
}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	hideWindow(cmd)

	if _, err := exitStatus(ctx, name, cmd.Run()); err != nil {
		return stdout.Bytes(), err
	}

	return stdout.Bytes(), nil
}

func exitStatus(ctx context.Context, name string, err error) (int, error) {
	errFactory := errors.New()

	if ctx.Err() != nil {
		return -1, errFactory.Wrap(ErrCommandTimeout, ctx.Err()).WithData(name)
	}

	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	return -1, errFactory.Wrap(ErrCommandFailed, err)
}
