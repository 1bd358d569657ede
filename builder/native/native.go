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

// Package native compiles the extracted source tree with the host toolchain
// and publishes the binary under <output>/<os>-<arch>.
package native

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cowdogmoo/tarforge/artifact"
	"github.com/cowdogmoo/tarforge/builder"
	"github.com/cowdogmoo/tarforge/config"
	"github.com/cowdogmoo/tarforge/errors"
	"github.com/cowdogmoo/tarforge/logging"
	"github.com/cowdogmoo/tarforge/platform"
)

// relaxedFlags let legacy C with implicit declarations and missing return
// statements compile on modern compilers.
var relaxedFlags = []string{
	"-Wno-implicit-function-declaration",
	"-Wno-implicit-int",
	"-Wno-return-type",
	"-Wno-int-conversion",
}

// Toolchain is the compiler and flag set passed to make.
type Toolchain struct {
	CC      string
	CFlags  string
	LDFlags string
}

// MakeArgs returns the variable assignments for a make invocation.
func (tc Toolchain) MakeArgs() []string {
	return []string{"CC=" + tc.CC, "CFLAGS=" + tc.CFlags, "LDFLAGS=" + tc.LDFlags}
}

// SelectToolchain picks the compiler and flags for target's OS family and
// applies any non-empty overrides from cfg. Linux builds also link the
// TI-RPC library that provides the legacy RPC headers.
func SelectToolchain(target platform.Target, cfg config.NativeConfig) Toolchain {
	base := append([]string{"-O2", "-std=gnu89", "-fcommon"}, relaxedFlags...)

	var tc Toolchain
	switch target.OS {
	case "linux":
		tc = Toolchain{
			CC:      "gcc",
			CFlags:  strings.Join(append(base, "-I/usr/include/tirpc"), " "),
			LDFlags: "-lm -ltirpc",
		}
	case "macos":
		tc = Toolchain{CC: "clang", CFlags: strings.Join(base, " "), LDFlags: "-lm"}
	default:
		tc = Toolchain{CC: "cc", CFlags: strings.Join(relaxedFlags, " "), LDFlags: "-lm"}
	}

	if cfg.CC != "" {
		tc.CC = cfg.CC
	}
	if cfg.CFlags != "" {
		tc.CFlags = cfg.CFlags
	}
	if cfg.LDFlags != "" {
		tc.LDFlags = cfg.LDFlags
	}
	return tc
}

// Builder runs make on the host.
type Builder struct {
	cfg    config.NativeConfig
	runner builder.CommandRunner
	host   platform.Target
}

// Verify that Builder implements builder.Executor at compile time
var _ builder.Executor = (*Builder)(nil)

// NewBuilder returns a native builder for the current host.
func NewBuilder(cfg config.NativeConfig, runner builder.CommandRunner) *Builder {
	return &Builder{cfg: cfg, runner: runner, host: platform.ResolveHost()}
}

// Name implements builder.Executor.
func (b *Builder) Name() string { return "native" }

// Close implements builder.Executor.
func (b *Builder) Close() error { return nil }

// Build compiles req.SourceDir in place and copies the binary to
// <req.OutputDir>/<host os>-<host arch>/<req.BinaryName>. A previous
// artifact for the host is replaced only once the new binary exists.
func (b *Builder) Build(ctx context.Context, req builder.Request) ([]builder.Artifact, error) {
	if _, err := os.Stat(filepath.Join(req.SourceDir, "Makefile")); err != nil {
		return nil, errors.Newf(errors.ErrFileNotFound, "no Makefile in %s", req.SourceDir)
	}

	makeProgram := b.cfg.Make
	if makeProgram == "" {
		makeProgram = "make"
	}
	if _, err := b.runner.LookPath(makeProgram); err != nil {
		return nil, errors.NewBuildError(b.host.Dir(), errors.Wrap("find", makeProgram, err))
	}

	tc := SelectToolchain(b.host, b.cfg)
	logging.InfoContext(ctx, "Compiling for %s with %s", b.host, tc.CC)
	logging.DebugContext(ctx, "CFLAGS=%s LDFLAGS=%s", tc.CFlags, tc.LDFlags)

	clean := builder.Command{Name: makeProgram, Args: []string{"clean"}, Dir: req.SourceDir}
	builder.BestEffort(ctx, "make clean", b.runner.Run(ctx, clean))

	build := builder.Command{Name: makeProgram, Args: tc.MakeArgs(), Dir: req.SourceDir}
	if err := b.runner.Run(ctx, build); err != nil {
		return nil, errors.NewBuildError(b.host.Dir(), err)
	}

	src := filepath.Join(req.SourceDir, req.BinaryName)
	if info, err := os.Stat(src); err != nil || !info.Mode().IsRegular() {
		return nil, errors.NewBuildError(b.host.Dir(), errors.Newf(errors.ErrBuildFailed, "make succeeded but %s was not produced", src))
	}

	targetDir := filepath.Join(req.OutputDir, b.host.Dir())
	if err := os.RemoveAll(targetDir); err != nil {
		return nil, errors.Wrap("clear output directory", targetDir, err)
	}
	path, err := artifact.CopyBinary(src, targetDir)
	if err == nil {
		err = artifact.Verify(targetDir, filepath.Base(path))
	}
	if err != nil {
		return nil, errors.NewBuildError(b.host.Dir(), err)
	}

	logging.InfoContext(ctx, "Built %s", path)
	return []builder.Artifact{{Target: b.host, Path: path}}, nil
}
