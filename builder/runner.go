/*
Copyright © 2025 Jayson Grace <jayson.e.grace@gmail.com>

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/

package builder

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/cowdogmoo/tarforge/errors"
	"github.com/cowdogmoo/tarforge/logging"
)

// Command is an external program invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
}

// String renders the command line with secrets redacted.
func (c Command) String() string {
	return strings.Join(logging.RedactArgs(append([]string{c.Name}, c.Args...)), " ")
}

// CommandRunner executes external commands. It is injected so tests can
// substitute a fake toolchain.
type CommandRunner interface {
	// Run executes cmd, streaming its output to the status log. A non-zero
	// exit is returned as an error that includes the last lines of output.
	Run(ctx context.Context, cmd Command) error

	// Output executes cmd and returns its standard output.
	Output(ctx context.Context, cmd Command) ([]byte, error)

	// LookPath reports whether name resolves to an executable.
	LookPath(name string) (string, error)
}

// tailLines is how much output a failure error carries.
const tailLines = 20

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner returns a runner backed by os/exec.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run implements CommandRunner.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) error {
	logging.DebugContext(ctx, "Running: %s", cmd)

	tail := newTailBuffer(tailLines)
	logger := logging.FromContext(ctx)
	out := io.MultiWriter(logger.Writer(cmd.Name+": "), tail)

	c := r.command(ctx, cmd)
	c.Stdout = out
	c.Stderr = out

	if err := c.Run(); err != nil {
		if t := tail.String(); t != "" {
			err = fmt.Errorf("%w\n%s", err, t)
		}
		return errors.Wrap("run", cmd.String(), err)
	}
	return nil
}

// Output implements CommandRunner.
func (r *ExecRunner) Output(ctx context.Context, cmd Command) ([]byte, error) {
	logging.DebugContext(ctx, "Running: %s", cmd)

	var stderr bytes.Buffer
	c := r.command(ctx, cmd)
	c.Stderr = &stderr

	out, err := c.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return out, errors.Wrap("run", cmd.String(), err)
	}
	return out, nil
}

// LookPath implements CommandRunner.
func (r *ExecRunner) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func (r *ExecRunner) command(ctx context.Context, cmd Command) *exec.Cmd {
	// #nosec G204 -- commands are built from configuration, not user input.
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	return c
}

// tailBuffer keeps the last n lines written to it.
type tailBuffer struct {
	mu      sync.Mutex
	n       int
	lines   []string
	partial []byte
}

func newTailBuffer(n int) *tailBuffer {
	return &tailBuffer{n: n}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.partial = append(b.partial, p...)
	for {
		idx := bytes.IndexByte(b.partial, '\n')
		if idx < 0 {
			break
		}
		b.push(string(b.partial[:idx]))
		b.partial = b.partial[idx+1:]
	}
	return len(p), nil
}

func (b *tailBuffer) push(line string) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return
	}
	b.lines = append(b.lines, line)
	if len(b.lines) > b.n {
		b.lines = b.lines[len(b.lines)-b.n:]
	}
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines := b.lines
	if len(b.partial) > 0 {
		if b.n > 0 && len(lines) >= b.n {
			lines = lines[len(lines)-b.n+1:]
		}
		lines = append(append([]string{}, lines...), string(b.partial))
	}
	return strings.Join(lines, "\n")
}
