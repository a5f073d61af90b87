// Package subprocess runs external programs such as the reranker scripts.
package subprocess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderank-eval/internal/domain"
)

// Runner executes commands with inherited stdio.
type Runner struct {
	stdout io.Writer
	stderr io.Writer
	dir    string
	logger *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithOutput redirects the child's stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) { r.stdout, r.stderr = stdout, stderr }
}

// WithDir sets the working directory of every command.
func WithDir(dir string) Option {
	return func(r *Runner) { r.dir = dir }
}

// New creates a runner writing child output to the process stdio.
func New(logger *zap.Logger, opts ...Option) *Runner {
	r := &Runner{stdout: os.Stdout, stderr: os.Stderr, logger: logger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes name with args and waits. A non-zero exit is reported as
// domain.ErrCommandFailed carrying the exit code. Cancelling ctx kills the child.
func (r *Runner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr
	cmd.Dir = r.dir

	r.logger.Debug("Running command", zap.String("cmd", name), zap.String("args", strings.Join(args, " ")))

	start := time.Now()
	err := cmd.Run()
	took := time.Since(start)

	if err == nil {
		r.logger.Debug("Command finished", zap.String("cmd", name), zap.Duration("took", took))
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("%s exited with code %d: %w", name, exitErr.ExitCode(), domain.ErrCommandFailed)
	}
	return fmt.Errorf("start %s: %w", name, err)
}
