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

package buildkit

import (
	"context"
	"sync"

	"github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	"github.com/moby/buildkit/client"
	"github.com/moby/buildkit/client/llb"

	"github.com/cowdogmoo/tarforge/builder"
)

// MockDockerClient is a mock implementation of DockerClient for testing
type MockDockerClient struct {
	PingFunc          func(ctx context.Context) (types.Ping, error)
	ContainerListFunc func(ctx context.Context, options dockercontainer.ListOptions) ([]dockercontainer.Summary, error)
	Closed            bool
}

func (m *MockDockerClient) Ping(ctx context.Context) (types.Ping, error) {
	if m.PingFunc != nil {
		return m.PingFunc(ctx)
	}
	return types.Ping{}, nil
}

func (m *MockDockerClient) ContainerList(ctx context.Context, options dockercontainer.ListOptions) ([]dockercontainer.Summary, error) {
	if m.ContainerListFunc != nil {
		return m.ContainerListFunc(ctx, options)
	}
	return nil, nil
}

func (m *MockDockerClient) Close() error {
	m.Closed = true
	return nil
}

// MockSolver is a mock implementation of Solver for testing
type MockSolver struct {
	InfoFunc  func(ctx context.Context) (*client.Info, error)
	SolveFunc func(ctx context.Context, opt client.SolveOpt, ch chan *client.SolveStatus) error
	Closed    bool

	mu   sync.Mutex
	Opts []client.SolveOpt
}

func (m *MockSolver) Info(ctx context.Context) (*client.Info, error) {
	if m.InfoFunc != nil {
		return m.InfoFunc(ctx)
	}
	return &client.Info{BuildkitVersion: client.BuildkitVersion{Version: "v0.26.2"}}, nil
}

// Solve records opt and, like the real client, closes ch when done.
func (m *MockSolver) Solve(ctx context.Context, def *llb.Definition, opt client.SolveOpt, ch chan *client.SolveStatus) (*client.SolveResponse, error) {
	defer close(ch)

	m.mu.Lock()
	m.Opts = append(m.Opts, opt)
	m.mu.Unlock()

	if m.SolveFunc != nil {
		if err := m.SolveFunc(ctx, opt, ch); err != nil {
			return nil, err
		}
	}
	return &client.SolveResponse{}, nil
}

func (m *MockSolver) Close() error {
	m.Closed = true
	return nil
}

// mockRunner records docker CLI invocations.
type mockRunner struct {
	runs       []builder.Command
	runFunc    func(cmd builder.Command) error
	outputFunc func(cmd builder.Command) ([]byte, error)
}

func (m *mockRunner) Run(ctx context.Context, cmd builder.Command) error {
	m.runs = append(m.runs, cmd)
	if m.runFunc != nil {
		return m.runFunc(cmd)
	}
	return nil
}

func (m *mockRunner) Output(ctx context.Context, cmd builder.Command) ([]byte, error) {
	m.runs = append(m.runs, cmd)
	if m.outputFunc != nil {
		return m.outputFunc(cmd)
	}
	return []byte("github.com/docker/buildx v0.29.1\n"), nil
}

func (m *mockRunner) LookPath(name string) (string, error) {
	return "/usr/bin/" + name, nil
}
