// Package invoke runs external programs the way a CGI host does.
//
// Input reaches the program only through environment variables: the
// request meta-variables (HTTP_*, REMOTE_ADDR), explicit overrides, and
// QUERY_STRING. The overrides are applied to the process environment for
// the duration of one invocation and restored afterwards.
package invoke

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	// DefaultShell runs command lines.
	DefaultShell = "/bin/sh"

	// DefaultTimeout bounds a single invocation.
	DefaultTimeout = 10 * time.Second
)

// ErrTimeout is returned when an invocation does not finish in time.
var ErrTimeout = errors.New("invocation timed out")

// Command describes one invocation.
type Command struct {
	// Line is the shell command line. It must not be built from untrusted
	// input except for arguments quoted with shellescape.
	Line string

	// Env holds explicit variable overrides.
	Env map[string]string

	// Query, when non-nil, is URL-encoded into QUERY_STRING.
	Query url.Values

	// Request supplies the HTTP_* and REMOTE_ADDR variables.
	Request *Request
}

// Invoker runs commands and returns their trimmed standard output.
type Invoker interface {
	Run(ctx context.Context, cmd Command) (string, error)
}

// InvokerFunc is an adapter to allow plain functions to be used as Invokers.
type InvokerFunc func(ctx context.Context, cmd Command) (string, error)

// Run implements Invoker.
func (f InvokerFunc) Run(ctx context.Context, cmd Command) (string, error) {
	return f(ctx, cmd)
}

// Runner is the Invoker backed by real processes.
type Runner struct {
	Shell   string
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *Metrics
}

// New creates a Runner with default shell and timeout.
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		Shell:   DefaultShell,
		Timeout: DefaultTimeout,
		Logger:  logger,
	}
}

// Environment computes the overrides applied for cmd.
//
// Request variables fill in only what is neither overridden explicitly nor
// already set in the process environment. QUERY_STRING from cmd.Query
// takes precedence over everything else.
func Environment(cmd Command) map[string]string {
	env := make(map[string]string, len(cmd.Env)+1)
	for k, v := range cmd.Env {
		env[k] = v
	}
	for _, k := range cmd.Request.Names() {
		if !isRequestVar(k) {
			continue
		}
		if _, ok := env[k]; ok {
			continue
		}
		if _, ok := os.LookupEnv(k); ok {
			continue
		}
		v, _ := cmd.Request.Get(k)
		env[k] = v
	}
	if cmd.Query != nil {
		env[QueryStringVar] = cmd.Query.Encode()
	}
	return env
}

// Run executes cmd and returns its standard output with surrounding
// whitespace removed. Standard error is discarded. A non-zero exit status
// is not an error; only failing to start or timing out is.
func (r *Runner) Run(ctx context.Context, cmd Command) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	shell := r.Shell
	if shell == "" {
		shell = DefaultShell
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout bytes.Buffer
	exitCode := 0
	start := time.Now()

	err := func() error {
		envMu.Lock()
		defer envMu.Unlock()
		// Computed under the lock so the "already set in the parent" check
		// never sees another invocation's overrides.
		return withEnv(Environment(cmd), func() error {
			c := exec.CommandContext(ctx, shell, "-c", cmd.Line)
			c.Stdout = &stdout
			c.Stderr = nil
			// Grandchildren may keep stdout open after the shell is killed.
			c.WaitDelay = time.Second
			runErr := c.Run()
			if c.ProcessState != nil {
				exitCode = c.ProcessState.ExitCode()
			}
			return runErr
		})
	}()

	elapsed := time.Since(start)
	name := commandName(cmd.Line)

	switch ctxErr := ctx.Err(); {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		r.Metrics.observe(name, outcomeTimeout, elapsed)
		logger.Warn("invocation timed out",
			slog.String("command", name),
			slog.Duration("timeout", timeout),
		)
		return "", fmt.Errorf("%w: %s after %s", ErrTimeout, name, timeout)
	case ctxErr != nil:
		r.Metrics.observe(name, outcomeError, elapsed)
		return "", fmt.Errorf("failed to run %s: %w", name, ctxErr)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			r.Metrics.observe(name, outcomeError, elapsed)
			return "", fmt.Errorf("failed to run %s: %w", name, err)
		}
	}

	r.Metrics.observe(name, outcomeOK, elapsed)
	logger.Debug("invocation finished",
		slog.String("command", name),
		slog.Int("exit_code", exitCode),
		slog.Duration("duration", elapsed),
	)
	return strings.TrimSpace(stdout.String()), nil
}

// commandName returns the program of a command line, for logs and metric
// labels. Arguments are left out since they may contain usernames.
func commandName(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
