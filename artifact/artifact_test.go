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

package artifact_test

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/tarforge/artifact"
	"github.com/cowdogmoo/tarforge/errors"
	"github.com/cowdogmoo/tarforge/logging"
)

func testContext() context.Context {
	return logging.WithLogger(context.Background(), logging.NewCustomLoggerWithOptions("error", "text", true, false))
}

// simulateExport lays out what a builder stage export looks like: the root
// filesystem plus the working directory holding sources, objects and the
// binary.
func simulateExport(t *testing.T, dir, workDir, binary string) {
	t.Helper()
	for _, name := range artifact.RootFSDenylist {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, name, "nested"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name, "nested", "file"), []byte("x"), 0o644))
	}
	wd := filepath.Join(dir, filepath.FromSlash(workDir))
	require.NoError(t, os.MkdirAll(wd, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(wd, "main.o"), []byte("obj"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(wd, "Makefile"), []byte("all:"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(wd, binary), []byte("\x7fELF"), 0o755))
	require.NoError(t, os.Symlink("usr/bin", filepath.Join(dir, "bin2")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".dockerenv"), nil, 0o644))
}

func onlyEntry(t *testing.T, dir string) os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "expected exactly one entry in %s", dir)
	return entries[0]
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		workDir string
		binary  string
	}{
		{name: "default workdir", workDir: "/build", binary: "prog"},
		{name: "nested workdir", workDir: "/src/app", binary: "prog"},
		{name: "binary named like workdir", workDir: "/build", binary: "build"},
		{name: "binary named like denylisted dir", workDir: "/work", binary: "tmp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			simulateExport(t, dir, tt.workDir[1:], tt.binary)

			require.NoError(t, artifact.Normalize(testContext(), dir, tt.workDir, tt.binary))

			entry := onlyEntry(t, dir)
			assert.Equal(t, tt.binary, entry.Name())
			assert.True(t, entry.Type().IsRegular())

			info, err := os.Stat(filepath.Join(dir, tt.binary))
			require.NoError(t, err)
			assert.NotZero(t, info.Mode().Perm()&0o100)
			assert.NoError(t, artifact.Verify(dir, tt.binary))
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	dir := t.TempDir()
	simulateExport(t, dir, "build", "prog")

	require.NoError(t, artifact.Normalize(testContext(), dir, "/build", "prog"))
	require.NoError(t, artifact.Normalize(testContext(), dir, "/build", "prog"))

	assert.Equal(t, "prog", onlyEntry(t, dir).Name())
}

func TestNormalize_MissingBinary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "usr", "bin"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "build"), 0o755))

	err := artifact.Normalize(testContext(), dir, "/build", "prog")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrBuildFailed))
}

func TestNormalize_EmptyBinaryName(t *testing.T) {
	err := artifact.Normalize(testContext(), t.TempDir(), "/build", "")
	assert.True(t, stderrors.Is(err, errors.ErrInvalidArguments))
}

func TestCopyBinary(t *testing.T) {
	srcDir := t.TempDir()
	src := filepath.Join(srcDir, "prog")
	require.NoError(t, os.WriteFile(src, []byte("binary-v1"), 0o755))

	dstDir := filepath.Join(t.TempDir(), "output", "linux-amd64")
	dst, err := artifact.CopyBinary(src, dstDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dstDir, "prog"), dst)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "binary-v1", string(data))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())

	// A second copy replaces the first.
	require.NoError(t, os.WriteFile(src, []byte("binary-v2"), 0o755))
	_, err = artifact.CopyBinary(src, dstDir)
	require.NoError(t, err)
	data, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "binary-v2", string(data))
	assert.Equal(t, "prog", onlyEntry(t, dstDir).Name())
}

func TestCopyBinary_MissingSource(t *testing.T) {
	dstDir := filepath.Join(t.TempDir(), "out")
	_, err := artifact.CopyBinary(filepath.Join(t.TempDir(), "prog"), dstDir)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrBuildFailed))
	assert.NoDirExists(t, dstDir, "no output directory for a failed copy")
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prog"), []byte("x"), 0o755))
	assert.NoError(t, artifact.Verify(dir, "prog"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra"), []byte("x"), 0o644))
	assert.True(t, stderrors.Is(artifact.Verify(dir, "prog"), errors.ErrBuildFailed))
}
