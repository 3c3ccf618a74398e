// Package shell runs the bash tool's command strings through an
// in-process POSIX interpreter (mvdan.cc/sh) instead of /bin/sh: cwd and
// exported environment persist across calls within a session, the
// interpreter is anchored to the project root, and an exec-handler layer
// refuses invocations the block list names.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Shell is one session's persistent shell state. Calls are serialized;
// the orchestrator runs one tool at a time, but a REPL and a resume path
// could otherwise race on cwd/env.
type Shell struct {
	mu       sync.Mutex
	root     string
	cwd      string
	env      []string
	blockers []BlockFunc
}

// New anchors a shell at root with the given block functions. cd may move
// around inside root; a cwd that ends up outside it is clamped back.
func New(root string, blockers []BlockFunc) *Shell {
	if root == "" {
		root, _ = os.Getwd()
	}
	return &Shell{
		root:     root,
		cwd:      root,
		env:      os.Environ(),
		blockers: blockers,
	}
}

// Dir returns the shell's current working directory.
func (s *Shell) Dir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cwd
}

// Exec parses and runs one command string, returning captured stdout and
// stderr. The returned error carries the exit status (see ExitCode).
func (s *Shell) Exec(ctx context.Context, command string) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stdout, stderr bytes.Buffer
	err := s.run(ctx, command, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func (s *Shell) run(ctx context.Context, command string, stdout, stderr io.Writer) (err error) {
	var runner *interp.Runner
	defer func() {
		// The interpreter can panic on malformed constructs; a broken
		// command must not take the agent turn down with it.
		if r := recover(); r != nil {
			err = fmt.Errorf("command execution panic: %v", r)
		}
		if runner != nil {
			s.carryState(runner, stderr)
		}
	}()

	parsed, err := syntax.NewParser().Parse(strings.NewReader(command), "")
	if err != nil {
		return fmt.Errorf("could not parse command: %w", err)
	}

	runner, err = interp.New(
		interp.StdIO(nil, stdout, stderr),
		interp.Interactive(false),
		interp.Env(expand.ListEnviron(s.env...)),
		interp.Dir(s.cwd),
		interp.ExecHandlers(s.blockHandler()),
	)
	if err != nil {
		return fmt.Errorf("could not create interpreter: %w", err)
	}
	return runner.Run(ctx, parsed)
}

// blockHandler wraps the default exec handler with the block list. cd is
// a builtin and never reaches exec handlers; directory escapes are caught
// by carryState instead.
func (s *Shell) blockHandler() func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
		return func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				for _, blocked := range s.blockers {
					if blocked(args) {
						return fmt.Errorf("command blocked: %q", args[0])
					}
				}
			}
			return next(ctx, args)
		}
	}
}

// carryState persists the runner's cwd and exported variables for the
// next call, clamping a cwd that escaped the project root.
func (s *Shell) carryState(runner *interp.Runner, stderr io.Writer) {
	dir := runner.Dir
	if dir != s.root && !strings.HasPrefix(dir, s.root+string(os.PathSeparator)) {
		fmt.Fprintf(stderr, "[cd rejected: you are anchored to %s]\n", s.root)
		dir = s.root
	}
	s.cwd = dir

	s.env = s.env[:0]
	runner.Env.Each(func(name string, vr expand.Variable) bool {
		if vr.Exported {
			s.env = append(s.env, name+"="+vr.Str)
		}
		return true
	})
}

// ExitCode maps an Exec error to a shell exit status: nil is 0, an
// interpreter exit status is itself, anything else (parse failure, panic,
// context timeout) is 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var status interp.ExitStatus
	if errors.As(err, &status) {
		return int(status)
	}
	return 1
}
