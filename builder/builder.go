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

// Package builder provides the build orchestration engine: the contracts
// every build strategy implements and the service that sequences them.
//
// # Architecture
//
// The package is organized into several layers:
//
//   - Interfaces (builder.go): Executor, Backend and BuilderHandle contracts
//   - Service Layer (service.go): invocation validation, dispatch and clean
//   - Plan (strategy.go): the explicit step list for each build mode
//   - Orchestrator (orchestrator.go): per-target fan-out with a concurrency limit
//   - Runner (runner.go): external command execution
//
// # Key Concepts
//
// BuildService is the entry point. It validates an Invocation, extracts the
// archive once and hands the resulting source directory to each executor
// named by the plan:
//
//	service := builder.NewBuildService(cfg, baseDir, runner, containerCreator, nativeCreator)
//	err := service.Run(ctx, builder.Invocation{ArchivePath: "prog-1.0.tar.gz", Mode: builder.ModeAll})
//
// Executor is one build strategy. The native executor drives make on the
// host; the containerized executor drives a Backend through a persistent
// BuilderHandle, one target platform at a time or concurrently.
//
// # Import Cycles
//
// The service layer cannot import concrete executors (they import this
// package). The command layer injects them as ExecutorCreatorFunc values.
package builder

import (
	"context"

	"github.com/cowdogmoo/tarforge/platform"
)

// Version is the tarforge release, overridden at link time with
// -ldflags "-X github.com/cowdogmoo/tarforge/builder.Version=...".
var Version = "dev"

// Request is the input handed to every executor.
type Request struct {
	// SourceDir is the extracted source tree holding the Makefile.
	SourceDir string
	// OutputDir is the absolute output root; executors write into
	// OutputDir/{os}-{arch}.
	OutputDir string
	// BinaryName is the file the build produces in SourceDir.
	BinaryName string
}

// Artifact is one published binary.
type Artifact struct {
	Target platform.Target
	Path   string
}

// Executor turns a source tree into binaries for one or more targets.
//
// Callers must call Close when done to release backend connections.
type Executor interface {
	// Name identifies the strategy in status output.
	Name() string

	// Build compiles req.SourceDir and publishes every produced binary under
	// req.OutputDir. It fails if any target fails; artifacts of the targets
	// that succeeded are still returned.
	Build(ctx context.Context, req Request) ([]Artifact, error)

	// Close releases any resources held by the executor. It is idempotent.
	Close() error
}

// ExecutorCreatorFunc creates an Executor. It enables injection of concrete
// executors without import cycles between the service and implementations.
type ExecutorCreatorFunc func(ctx context.Context) (Executor, error)

// Backend is the container build engine used by the containerized executor.
type Backend interface {
	// Probe checks that the engine is installed, its daemon reachable and
	// its multi-platform extension present.
	Probe(ctx context.Context) error

	// EnsureBuilder returns the persistent builder called name, creating it
	// when absent. Builders outlive the invocation and are never removed by
	// tarforge.
	EnsureBuilder(ctx context.Context, name string) (BuilderHandle, error)

	// Close releases engine connections.
	Close() error
}

// BuilderHandle is a persistent multi-platform builder instance.
type BuilderHandle interface {
	Name() string

	// BuildStage builds the Dockerfile up to req.Target for req.Platform and
	// exports that stage's filesystem into req.OutputDir.
	BuildStage(ctx context.Context, req StageRequest) error
}

// StageRequest describes one stage build and export.
type StageRequest struct {
	Platform   platform.Target
	Target     string
	ContextDir string
	Dockerfile string
	OutputDir  string
	BuildArgs  map[string]string
}
