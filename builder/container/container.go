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

// Package container cross-compiles the source tree inside the project
// Dockerfile's builder stage, once per declared platform, and turns each
// stage export into a normalized artifact directory.
//
// The container engine is reached through builder.Backend so the
// orchestration here can be tested without Docker.
package container

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cowdogmoo/tarforge/artifact"
	"github.com/cowdogmoo/tarforge/builder"
	"github.com/cowdogmoo/tarforge/config"
	"github.com/cowdogmoo/tarforge/errors"
	"github.com/cowdogmoo/tarforge/logging"
	"github.com/cowdogmoo/tarforge/platform"
)

// BinaryNameArg is the build argument carrying the program name into the
// Dockerfile.
const BinaryNameArg = "BINARY_NAME"

// Builder is the containerized executor.
type Builder struct {
	cfg     config.ContainerConfig
	baseDir string
	backend builder.Backend
}

// Verify that Builder implements builder.Executor at compile time
var _ builder.Executor = (*Builder)(nil)

// NewBuilder returns a containerized builder. The Dockerfile path in cfg is
// resolved against baseDir.
func NewBuilder(cfg config.ContainerConfig, baseDir string, backend builder.Backend) *Builder {
	return &Builder{cfg: cfg, baseDir: baseDir, backend: backend}
}

// Name implements builder.Executor.
func (b *Builder) Name() string { return "containerized" }

// Close releases the backend.
func (b *Builder) Close() error {
	return b.backend.Close()
}

// Build exports the builder stage for every configured platform into
// <req.OutputDir>/<os>-<arch> and normalizes it. Targets are independent:
// a failed target leaves no directory behind and the others still run.
func (b *Builder) Build(ctx context.Context, req builder.Request) ([]builder.Artifact, error) {
	dockerfile, err := config.ResolvePath(b.baseDir, b.cfg.Dockerfile)
	if err != nil || dockerfile == "" {
		return nil, errors.Newf(errors.ErrInvalidArguments, "invalid Dockerfile path %q", b.cfg.Dockerfile)
	}
	if info, err := os.Stat(dockerfile); err != nil || info.IsDir() {
		return nil, errors.Newf(errors.ErrFileNotFound, "Dockerfile %s not found", dockerfile)
	}

	targets, err := platform.ParsePlatforms(b.cfg.Platforms)
	if err != nil {
		return nil, errors.Newf(errors.ErrInvalidArguments, "%v", err)
	}
	if len(targets) == 0 {
		return nil, errors.Newf(errors.ErrInvalidArguments, "no container platforms configured")
	}

	if err := b.backend.Probe(ctx); err != nil {
		if errors.Is(err, errors.ErrBackendUnavailable) {
			return nil, err
		}
		return nil, errors.Newf(errors.ErrBackendUnavailable, "%v", err)
	}

	handle, err := b.backend.EnsureBuilder(ctx, b.cfg.BuilderName)
	if err != nil {
		return nil, err
	}
	logging.InfoContext(ctx, "Using builder %s", handle.Name())

	jobs := make([]builder.TargetJob, 0, len(targets))
	for _, target := range targets {
		jobs = append(jobs, builder.TargetJob{
			Target: target,
			Build: func(ctx context.Context) (builder.Artifact, error) {
				return b.buildTarget(ctx, handle, target, dockerfile, req)
			},
		})
	}

	return builder.NewTargetOrchestrator(b.cfg.Concurrency).Run(ctx, jobs)
}

func (b *Builder) buildTarget(ctx context.Context, handle builder.BuilderHandle, target platform.Target, dockerfile string, req builder.Request) (builder.Artifact, error) {
	outDir := filepath.Join(req.OutputDir, target.Dir())
	if err := os.RemoveAll(outDir); err != nil {
		return builder.Artifact{}, errors.Wrap("clear output directory", outDir, err)
	}
	if err := os.MkdirAll(outDir, config.DirPermReadWriteExec); err != nil {
		return builder.Artifact{}, errors.Wrap("create output directory", outDir, err)
	}

	err := handle.BuildStage(ctx, builder.StageRequest{
		Platform:   target,
		Target:     b.cfg.TargetStage,
		ContextDir: req.SourceDir,
		Dockerfile: dockerfile,
		OutputDir:  outDir,
		BuildArgs:  map[string]string{BinaryNameArg: req.BinaryName},
	})
	if err == nil {
		err = artifact.Normalize(ctx, outDir, b.cfg.WorkDir, req.BinaryName)
	}
	if err == nil {
		err = artifact.Verify(outDir, req.BinaryName)
	}
	if err != nil {
		if rmErr := os.RemoveAll(outDir); rmErr != nil {
			logging.WarnContext(ctx, "Failed to remove %s: %v", outDir, rmErr)
		}
		return builder.Artifact{}, err
	}

	return builder.Artifact{Target: target, Path: filepath.Join(outDir, req.BinaryName)}, nil
}
