package solver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Runner executes an external command in dir and returns its standard output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name with args in dir. Standard error is folded into the
// returned error when the command fails.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return nil, fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return out, nil
}

// Options configures a Solver.
type Options struct {
	// Binary is the knife executable, "knife" when empty.
	Binary string
	// ConfigFile is passed to knife with -c.
	ConfigFile string
	// Dir is the working directory of the knife process.
	Dir string
	// OwnedPrefixes selects cookbooks classified as owned.
	OwnedPrefixes []string
	// Timeout bounds a single solve; zero means no limit beyond ctx.
	Timeout time.Duration
}

// Solver resolves a role in an environment to its cookbook dependencies by
// running knife solve.
type Solver struct {
	opts   Options
	runner Runner
	logger *zap.Logger
}

// New creates a Solver. A nil runner uses ExecRunner and a nil logger
// discards output.
func New(opts Options, runner Runner, logger *zap.Logger) *Solver {
	if opts.Binary == "" {
		opts.Binary = "knife"
	}
	opts.OwnedPrefixes = append([]string(nil), opts.OwnedPrefixes...)
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Solver{opts: opts, runner: runner, logger: logger}
}

// Solve runs "knife solve role[<role>] -E <env> -c <config>" and classifies
// the resulting cookbooks.
func (s *Solver) Solve(ctx context.Context, role, env string) (Cookbooks, error) {
	role, env = strings.TrimSpace(role), strings.TrimSpace(env)
	if role == "" || env == "" {
		return Cookbooks{}, ErrInvalidTarget
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	args := s.args(role, env)
	start := time.Now()
	out, err := s.runner.Run(ctx, s.opts.Dir, s.opts.Binary, args...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Cookbooks{}, fmt.Errorf("knife solve role[%s] -E %s timed out: %w", role, env, err)
		}
		return Cookbooks{}, fmt.Errorf("knife solve role[%s] -E %s: %w", role, env, err)
	}
	s.logger.Debug("knife solve finished",
		zap.String("role", role),
		zap.String("environment", env),
		zap.Duration("duration", time.Since(start)),
		zap.ByteString("output", out),
	)

	cookbooks, err := ParseSolveOutput(out)
	if err != nil {
		return Cookbooks{}, fmt.Errorf("knife solve role[%s] -E %s: %w", role, env, err)
	}
	return Classify(cookbooks, s.opts.OwnedPrefixes), nil
}

func (s *Solver) args(role, env string) []string {
	args := []string{"solve", "role[" + role + "]", "-E", env}
	if s.opts.ConfigFile != "" {
		args = append(args, "-c", s.opts.ConfigFile)
	}
	return args
}
