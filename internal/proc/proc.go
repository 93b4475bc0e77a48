package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const waitDelay = 10 * time.Second

// Command is a structured process invocation. Args are never passed through a shell.
type Command struct {
	Name string
	Args []string
	Dir  string
}

// String renders the command shell-quoted, for logs only.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`*?[]{};|&<>()#~!") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ExitError reports a process that ran and exited non-zero.
type ExitError struct {
	Command Command
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Command.Name, e.Code)
}

// Runner starts external processes.
type Runner interface {
	// Run executes cmd, feeding stdin when non-nil, and waits for it.
	Run(ctx context.Context, cmd Command, stdin io.Reader) error
	// Pipe runs src and dst concurrently with src's stdout connected to dst's
	// stdin and waits for both.
	Pipe(ctx context.Context, src, dst Command) error
}

// Exec runs commands with os/exec. Child stdout goes to Stdout (when the
// child's stdout is not piped) and stderr to Stderr; nil means os.Stderr.
type Exec struct {
	Stdout io.Writer
	Stderr io.Writer
}

func (e Exec) out() io.Writer {
	if e.Stdout != nil {
		return e.Stdout
	}
	return os.Stderr
}

func (e Exec) errw() io.Writer {
	if e.Stderr != nil {
		return e.Stderr
	}
	return os.Stderr
}

func (e Exec) command(ctx context.Context, c Command) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Stderr = e.errw()
	// Grandchildren may keep our output pipes open after a kill.
	cmd.WaitDelay = waitDelay
	return cmd
}

func (e Exec) Run(ctx context.Context, c Command, stdin io.Reader) error {
	cmd := e.command(ctx, c)
	cmd.Stdout = e.out()
	if stdin != nil {
		cmd.Stdin = stdin
	}
	return classify(ctx, c, cmd.Run())
}

func (e Exec) Pipe(ctx context.Context, src, dst Command) error {
	g, gctx := errgroup.WithContext(ctx)

	sc := e.command(gctx, src)
	dc := e.command(gctx, dst)
	dc.Stdout = e.out()

	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("pipe: %w", err)
	}
	sc.Stdout = pw
	dc.Stdin = pr

	if err := dc.Start(); err != nil {
		pr.Close()
		pw.Close()
		return classify(ctx, dst, err)
	}
	if err := sc.Start(); err != nil {
		// Kill dst before closing the write end so it never sees a clean EOF.
		_ = dc.Process.Kill()
		pw.Close()
		pr.Close()
		_ = dc.Wait()
		return classify(ctx, src, err)
	}
	// Children hold their own copies; ours must go for EOF to propagate.
	pw.Close()
	pr.Close()

	g.Go(func() error { return classify(ctx, src, sc.Wait()) })
	g.Go(func() error { return classify(ctx, dst, dc.Wait()) })
	return g.Wait()
}

// classify turns exec errors into ExitError, or the context's error when the
// caller cancelled.
func classify(ctx context.Context, c Command, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", c.Name, ctxErr)
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return &ExitError{Command: c, Code: ee.ExitCode()}
	}
	return fmt.Errorf("%s: %w", c.Name, err)
}

// DryRun logs commands instead of running them.
type DryRun struct {
	Logger *log.Logger
}

func (d DryRun) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func (d DryRun) Run(_ context.Context, c Command, stdin io.Reader) error {
	if stdin != nil {
		d.logf("[DRY] <stream> | %s", c)
		_, err := io.Copy(io.Discard, stdin)
		return err
	}
	d.logf("[DRY] %s", c)
	return nil
}

func (d DryRun) Pipe(_ context.Context, src, dst Command) error {
	d.logf("[DRY] %s | %s", src, dst)
	return nil
}
