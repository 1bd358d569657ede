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
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cowdogmoo/tarforge/archive"
	"github.com/cowdogmoo/tarforge/config"
	"github.com/cowdogmoo/tarforge/errors"
	"github.com/cowdogmoo/tarforge/logging"
)

// Invocation is one request to build or clean.
type Invocation struct {
	// ArchivePath is the source archive. Required for every mode but clean.
	ArchivePath string
	// OutputDir is the artifact root. Empty uses the configured default.
	OutputDir string
	Mode      Mode
}

// BuildService validates invocations and sequences extraction and the build
// executors. It owns the clean path.
type BuildService struct {
	cfg     *config.Config
	baseDir string
	runner  CommandRunner

	// Executor creation functions
	containerCreator ExecutorCreatorFunc
	nativeCreator    ExecutorCreatorFunc
}

// NewBuildService creates a new build service. Relative paths are resolved
// against baseDir. The creator functions are only called when the plan
// needs that executor.
func NewBuildService(cfg *config.Config, baseDir string, runner CommandRunner, containerCreator, nativeCreator ExecutorCreatorFunc) *BuildService {
	if cfg == nil {
		cfg = config.Default()
	}
	if runner == nil {
		runner = NewExecRunner()
	}
	return &BuildService{
		cfg:              cfg,
		baseDir:          baseDir,
		runner:           runner,
		containerCreator: containerCreator,
		nativeCreator:    nativeCreator,
	}
}

// Run executes inv. Validation happens before any side effect; afterwards
// the plan for inv.Mode runs step by step and stops at the first failure,
// leaving the output of earlier steps in place.
func (s *BuildService) Run(ctx context.Context, inv Invocation) error {
	if !inv.Mode.Valid() {
		_, err := ParseMode(string(inv.Mode))
		return err
	}

	if inv.Mode == ModeClean {
		return s.Clean(ctx, inv.OutputDir)
	}

	if inv.ArchivePath == "" {
		return errors.Newf(errors.ErrInvalidArguments, "an input archive (-i/--input-file) is required for build type %s", inv.Mode)
	}
	archivePath, err := config.ResolvePath(s.baseDir, inv.ArchivePath)
	if err != nil {
		return errors.Newf(errors.ErrInvalidArguments, "invalid archive path %q: %v", inv.ArchivePath, err)
	}
	if info, err := os.Stat(archivePath); err != nil || !info.Mode().IsRegular() {
		return errors.Newf(errors.ErrFileNotFound, "archive %s does not exist or is not a regular file", archivePath)
	}

	outputDir, err := s.outputDir(inv.OutputDir)
	if err != nil {
		return err
	}

	logging.InfoContext(ctx, "Build type: %s", inv.Mode)
	logging.InfoContext(ctx, "Archive: %s", archivePath)
	logging.InfoContext(ctx, "Output: %s", outputDir)

	req := Request{OutputDir: outputDir}
	for _, step := range Plan(inv.Mode) {
		switch step {
		case StepExtract:
			sourceDir, err := s.extractor().Extract(ctx, archivePath)
			if err != nil {
				return err
			}
			req.SourceDir = sourceDir
			req.BinaryName = s.binaryName(sourceDir)
			logging.InfoContext(ctx, "Source: %s (binary %s)", sourceDir, req.BinaryName)
		case StepContainerized:
			if err := s.runExecutor(ctx, s.containerCreator, req); err != nil {
				return err
			}
		case StepNative:
			if err := s.runExecutor(ctx, s.nativeCreator, req); err != nil {
				return err
			}
		}
	}

	logging.InfoContext(ctx, "Build complete")
	return nil
}

// Clean tears down build state: a stale source tree gets a best-effort
// make clean, then the output root, the scratch area and legacy top-level
// binaries are removed. The persistent container builder is never touched.
// Clean is idempotent.
func (s *BuildService) Clean(ctx context.Context, outputDir string) error {
	resolved, err := s.outputDir(outputDir)
	if err != nil {
		return err
	}
	logging.InfoContext(ctx, "Cleaning build state")

	ex := s.extractor()
	var derived []string
	if sourceDir, err := ex.Locate(ctx); err == nil {
		derived = append(derived, DeriveBinaryName(sourceDir))
		if _, statErr := os.Stat(filepath.Join(sourceDir, "Makefile")); statErr == nil {
			BestEffort(ctx, "make clean in stale source tree",
				s.runner.Run(ctx, Command{Name: s.makeProgram(), Args: []string{"clean"}, Dir: sourceDir}))
		}
	}

	if err := os.RemoveAll(resolved); err != nil {
		return errors.Wrap("remove output directory", resolved, err)
	}
	logging.DebugContext(ctx, "Removed %s", resolved)

	if err := ex.Remove(); err != nil {
		return err
	}
	logging.DebugContext(ctx, "Removed %s", ex.ScratchDir)

	for _, path := range s.legacyArtifacts(derived...) {
		BestEffort(ctx, "remove legacy artifact "+path, removeFile(path))
	}

	logging.InfoContext(ctx, "Clean complete")
	return nil
}

// runExecutor creates, runs and closes one executor.
func (s *BuildService) runExecutor(ctx context.Context, create ExecutorCreatorFunc, req Request) error {
	if create == nil {
		return fmt.Errorf("no executor configured")
	}

	exec, err := create(ctx)
	if err != nil {
		return err
	}
	defer func() {
		BestEffort(ctx, "close "+exec.Name()+" executor", exec.Close())
	}()

	logging.InfoContext(ctx, "==> %s build", exec.Name())
	artifacts, err := exec.Build(ctx, req)
	for _, a := range artifacts {
		logging.InfoContext(ctx, "Artifact %s: %s", a.Target.Dir(), a.Path)
	}
	if err != nil {
		return errors.Wrap(exec.Name()+" build", "", err)
	}
	return nil
}

func (s *BuildService) extractor() *archive.Extractor {
	scratch, err := config.ResolvePath(s.baseDir, s.cfg.Build.ScratchDir)
	if err != nil || scratch == "" {
		scratch = filepath.Join(s.baseDir, ".scratch")
	}
	return archive.NewExtractor(scratch)
}

// outputDir resolves the output root and refuses locations whose removal
// by clean would destroy the installation.
func (s *BuildService) outputDir(dir string) (string, error) {
	if dir == "" {
		dir = s.cfg.Output.Dir
	}
	if dir == "" {
		dir = "output"
	}
	resolved, err := config.ResolvePath(s.baseDir, dir)
	if err != nil {
		return "", errors.Newf(errors.ErrInvalidArguments, "invalid output directory %q: %v", dir, err)
	}
	if resolved == filepath.Clean(s.baseDir) || resolved == filepath.Dir(resolved) {
		return "", errors.Newf(errors.ErrInvalidArguments, "refusing to use %s as the output directory", resolved)
	}
	return resolved, nil
}

func (s *BuildService) binaryName(sourceDir string) string {
	if s.cfg.Build.BinaryName != "" {
		return s.cfg.Build.BinaryName
	}
	return DeriveBinaryName(sourceDir)
}

func (s *BuildService) makeProgram() string {
	if s.cfg.Native.Make != "" {
		return s.cfg.Native.Make
	}
	return "make"
}

// legacyArtifacts lists top-level files older layouts left in the
// installation directory: the configured extras, the configured binary name
// and any binary names derived from a stale source tree.
func (s *BuildService) legacyArtifacts(derived ...string) []string {
	names := append([]string{}, s.cfg.Build.LegacyArtifacts...)
	if s.cfg.Build.BinaryName != "" {
		names = append(names, s.cfg.Build.BinaryName)
	}
	names = append(names, derived...)

	seen := make(map[string]bool, len(names))
	paths := make([]string, 0, len(names))
	for _, name := range names {
		path, err := config.ResolvePath(s.baseDir, name)
		if err != nil || path == "" || seen[path] {
			continue
		}
		seen[path] = true
		paths = append(paths, path)
	}
	return paths
}

// removeFile deletes a regular file or symlink. A missing file is not an error.
func removeFile(path string) error {
	info, err := os.Lstat(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return os.Remove(path)
}

// BestEffort logs and discards the error of a step whose failure is an
// expected steady state. A nil err logs nothing.
func BestEffort(ctx context.Context, desc string, err error) {
	if err == nil {
		return
	}
	logging.WarnContext(ctx, "%s failed (ignored): %v", desc, err)
}
