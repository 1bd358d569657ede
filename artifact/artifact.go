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

// Package artifact turns raw build output into the published layout: one
// directory per target holding exactly the compiled binary.
package artifact

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/cowdogmoo/tarforge/config"
	"github.com/cowdogmoo/tarforge/errors"
	"github.com/cowdogmoo/tarforge/logging"
)

// RootFSDenylist lists the standard root filesystem entries a container
// stage export carries alongside the build working directory.
var RootFSDenylist = []string{
	"bin", "boot", "dev", "etc", "home", "lib", "lib32", "lib64", "libx32",
	"media", "mnt", "opt", "proc", "root", "run", "sbin", "srv", "sys",
	"tmp", "usr", "var",
}

// stagingSuffix names the binary while the export tree around it is removed,
// so a binary named like the working directory does not collide with it.
const stagingSuffix = ".tarforge-staging"

// Normalize rewrites a stage export in outputDir in place. The binary found
// at <outputDir>/<workDir>/<binaryName> is moved to <outputDir>/<binaryName>,
// the root filesystem denylist and the working directory are removed, and
// any other remaining entry is pruned. Running it again on a normalized
// directory is a no-op. A missing binary fails with ErrBuildFailed.
func Normalize(ctx context.Context, outputDir, workDir, binaryName string) error {
	if binaryName == "" {
		return errors.Newf(errors.ErrInvalidArguments, "binary name is empty")
	}

	nested := filepath.Join(outputDir, relWorkDir(workDir), binaryName)
	final := filepath.Join(outputDir, binaryName)
	staging := filepath.Join(outputDir, "."+binaryName+stagingSuffix)

	switch {
	case isRegular(nested):
		if err := os.Rename(nested, staging); err != nil {
			return errors.Wrap("stage binary", nested, err)
		}
	case isRegular(final):
		if err := os.Rename(final, staging); err != nil {
			return errors.Wrap("stage binary", final, err)
		}
	case isRegular(staging):
		// Left by an interrupted earlier run.
	default:
		return errors.Newf(errors.ErrBuildFailed, "binary %s not found in %s", binaryName, outputDir)
	}

	removed := 0
	denied := make([]string, 0, len(RootFSDenylist)+1)
	denied = append(denied, RootFSDenylist...)
	denied = append(denied, topComponent(workDir))
	for _, name := range denied {
		if name == "" {
			continue
		}
		path := filepath.Join(outputDir, name)
		if _, err := os.Lstat(path); err != nil {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return errors.Wrap("remove exported entry", path, err)
		}
		removed++
	}

	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return errors.Wrap("read output directory", outputDir, err)
	}
	for _, entry := range entries {
		path := filepath.Join(outputDir, entry.Name())
		if path == staging {
			continue
		}
		logging.DebugContext(ctx, "Pruning unexpected export entry %s", path)
		if err := os.RemoveAll(path); err != nil {
			return errors.Wrap("remove exported entry", path, err)
		}
		removed++
	}

	if err := os.Rename(staging, final); err != nil {
		return errors.Wrap("move binary", final, err)
	}
	logging.DebugContext(ctx, "Normalized %s (%d entries removed)", outputDir, removed)
	return nil
}

// CopyBinary atomically copies the file at src into dstDir, creating dstDir
// when needed, and returns the destination path. The source permission bits
// are kept.
func CopyBinary(src, dstDir string) (string, error) {
	info, err := os.Stat(src)
	if err != nil || !info.Mode().IsRegular() {
		return "", errors.Newf(errors.ErrBuildFailed, "binary %s was not produced", src)
	}

	if err := os.MkdirAll(dstDir, config.DirPermReadWriteExec); err != nil {
		return "", errors.Wrap("create output directory", dstDir, err)
	}
	dst := filepath.Join(dstDir, filepath.Base(src))

	// #nosec G304 -- src is the build output inside the scratch tree.
	in, err := os.Open(src)
	if err != nil {
		return "", errors.Wrap("open binary", src, err)
	}
	defer func() { _ = in.Close() }()

	t, err := renameio.TempFile("", dst)
	if err != nil {
		return "", errors.Wrap("create temporary file", dst, err)
	}
	defer func() { _ = t.Cleanup() }()

	if _, err := io.Copy(t, in); err != nil {
		return "", errors.Wrap("copy binary", dst, err)
	}
	if err := t.Chmod(info.Mode().Perm()); err != nil {
		return "", errors.Wrap("set binary mode", dst, err)
	}
	if err := t.CloseAtomicallyReplace(); err != nil {
		return "", errors.Wrap("replace binary", dst, err)
	}
	return dst, nil
}

// Verify checks that dir holds exactly one regular file named binaryName.
func Verify(dir, binaryName string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return errors.Wrap("read output directory", dir, err)
	}
	if len(entries) != 1 || entries[0].Name() != binaryName || !entries[0].Type().IsRegular() {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		return errors.Newf(errors.ErrBuildFailed, "expected only %s in %s, found %v", binaryName, dir, names)
	}
	return nil
}

func isRegular(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode().IsRegular()
}

// relWorkDir turns a container working directory such as /build into a path
// relative to the export root.
func relWorkDir(workDir string) string {
	return strings.TrimPrefix(filepath.Clean("/"+filepath.ToSlash(workDir)), "/")
}

func topComponent(workDir string) string {
	rel := relWorkDir(workDir)
	if rel == "" {
		return ""
	}
	top, _, _ := strings.Cut(rel, "/")
	return top
}
