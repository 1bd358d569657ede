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

package archive_test

import (
	"archive/tar"
	"bytes"
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"

	"github.com/cowdogmoo/tarforge/archive"
	"github.com/cowdogmoo/tarforge/errors"
	"github.com/cowdogmoo/tarforge/logging"
)

type entry struct {
	name     string
	body     string
	mode     int64
	typeflag byte
	linkname string
}

func testContext() context.Context {
	logger := logging.NewCustomLoggerWithOptions("error", "text", true, false)
	return logging.WithLogger(context.Background(), logger)
}

func tarBytes(t *testing.T, entries []entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: e.mode, Typeflag: e.typeflag, Linkname: e.linkname}
		if hdr.Mode == 0 {
			hdr.Mode = 0o644
		}
		if hdr.Typeflag == 0 {
			hdr.Typeflag = tar.TypeReg
		}
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(e.body))
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if hdr.Typeflag == tar.TypeReg {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	return buf.Bytes()
}

func gzipBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gw := pgzip.NewWriter(&buf)
	_, err := gw.Write(data)
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	return buf.Bytes()
}

func xzBytes(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	require.NoError(t, err)
	_, err = xw.Write(data)
	require.NoError(t, err)
	require.NoError(t, xw.Close())
	return buf.Bytes()
}

func writeArchive(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

var sourceTree = []entry{
	{name: "prog-1.2.3/", typeflag: tar.TypeDir, mode: 0o755},
	{name: "prog-1.2.3/Makefile", body: "all:\n\tcc -o prog main.c\n"},
	{name: "prog-1.2.3/main.c", body: "int main(){return 0;}\n"},
	{name: "prog-1.2.3/configure", body: "#!/bin/sh\n", mode: 0o755},
	{name: "prog-1.2.3/src/util.c", body: "/* util */\n"},
}

func TestExtract_Formats(t *testing.T) {
	raw := tarBytes(t, sourceTree)

	tests := []struct {
		name string
		file string
		data []byte
	}{
		{name: "gzip", file: "prog.tar.gz", data: gzipBytes(t, raw)},
		{name: "xz", file: "prog.tar.xz", data: xzBytes(t, raw)},
		{name: "plain tar", file: "prog.tar", data: raw},
		{name: "extension ignored", file: "prog.zip", data: gzipBytes(t, raw)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scratch := filepath.Join(t.TempDir(), ".scratch")
			ex := archive.NewExtractor(scratch)

			sourceDir, err := ex.Extract(testContext(), writeArchive(t, tt.file, tt.data))
			require.NoError(t, err)

			assert.Equal(t, filepath.Join(scratch, "prog-1.2.3"), sourceDir)
			info, err := os.Stat(sourceDir)
			require.NoError(t, err)
			assert.True(t, info.IsDir())

			rel, err := filepath.Rel(scratch, sourceDir)
			require.NoError(t, err)
			assert.False(t, strings.HasPrefix(rel, ".."), "source dir must be inside the scratch root")

			assert.FileExists(t, filepath.Join(sourceDir, "Makefile"))
			assert.FileExists(t, filepath.Join(sourceDir, "src", "util.c"))

			cfg, err := os.Stat(filepath.Join(sourceDir, "configure"))
			require.NoError(t, err)
			assert.NotZero(t, cfg.Mode().Perm()&0o100, "executable bit preserved")
		})
	}
}

func TestExtract_RecreatesScratch(t *testing.T) {
	scratch := filepath.Join(t.TempDir(), ".scratch")
	require.NoError(t, os.MkdirAll(filepath.Join(scratch, "stale-0.9"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(scratch, "leftover.o"), []byte("x"), 0o644))

	ex := archive.NewExtractor(scratch)
	path := writeArchive(t, "prog.tar.gz", gzipBytes(t, tarBytes(t, sourceTree)))

	sourceDir, err := ex.Extract(testContext(), path)
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(scratch, "stale-0.9"))
	assert.NoFileExists(t, filepath.Join(scratch, "leftover.o"))

	again, err := ex.Extract(testContext(), path)
	require.NoError(t, err)
	assert.Equal(t, sourceDir, again)
}

func TestExtract_LayoutErrors(t *testing.T) {
	tests := []struct {
		name    string
		entries []entry
		wantErr error
	}{
		{
			name:    "only top-level files",
			entries: []entry{{name: "README", body: "hi"}, {name: "main.c", body: "int x;"}},
			wantErr: errors.ErrExtractionEmpty,
		},
		{
			name:    "empty archive",
			entries: nil,
			wantErr: errors.ErrExtractionEmpty,
		},
		{
			name: "two top-level directories",
			entries: []entry{
				{name: "a/", typeflag: tar.TypeDir, mode: 0o755},
				{name: "b/file", body: "x"},
			},
			wantErr: errors.ErrAmbiguousArchiveLayout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scratch := filepath.Join(t.TempDir(), ".scratch")
			ex := archive.NewExtractor(scratch)

			sourceDir, err := ex.Extract(testContext(), writeArchive(t, "x.tar.gz", gzipBytes(t, tarBytes(t, tt.entries))))
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, tt.wantErr), "got %v", err)
			assert.Empty(t, sourceDir)
			assert.DirExists(t, scratch, "scratch left for inspection")
		})
	}
}

func TestExtract_RejectsTraversal(t *testing.T) {
	scratch := filepath.Join(t.TempDir(), "work", ".scratch")
	ex := archive.NewExtractor(scratch)

	data := gzipBytes(t, tarBytes(t, []entry{
		{name: "prog/", typeflag: tar.TypeDir, mode: 0o755},
		{name: "../escaped", body: "owned"},
	}))

	_, err := ex.Extract(testContext(), writeArchive(t, "evil.tar.gz", data))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
	assert.NoFileExists(t, filepath.Join(filepath.Dir(scratch), "escaped"))
}

func TestExtract_SymlinkCannotRedirectWrites(t *testing.T) {
	outside := t.TempDir()
	scratch := filepath.Join(t.TempDir(), ".scratch")
	ex := archive.NewExtractor(scratch)

	data := gzipBytes(t, tarBytes(t, []entry{
		{name: "prog/", typeflag: tar.TypeDir, mode: 0o755},
		{name: "prog/link", typeflag: tar.TypeSymlink, linkname: outside},
		{name: "prog/link/pwned", body: "owned"},
	}))

	_, _ = ex.Extract(testContext(), writeArchive(t, "link.tar.gz", data))
	assert.NoFileExists(t, filepath.Join(outside, "pwned"))
}

func TestExtract_InvalidInput(t *testing.T) {
	dir := t.TempDir()
	notArchive := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notArchive, []byte("just text"), 0o644))

	tests := []struct {
		name string
		path string
	}{
		{name: "missing file", path: filepath.Join(dir, "missing.tar.gz")},
		{name: "directory", path: dir},
		{name: "not an archive", path: notArchive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := archive.NewExtractor(filepath.Join(t.TempDir(), ".scratch"))
			_, err := ex.Extract(testContext(), tt.path)
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrFileNotFound), "got %v", err)
		})
	}
}

func TestLocate(t *testing.T) {
	scratch := filepath.Join(t.TempDir(), ".scratch")
	ex := archive.NewExtractor(scratch)

	_, err := ex.Locate(testContext())
	assert.True(t, stderrors.Is(err, errors.ErrExtractionEmpty))

	require.NoError(t, os.MkdirAll(filepath.Join(scratch, "prog-2.0"), 0o755))
	got, err := ex.Locate(testContext())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(scratch, "prog-2.0"), got)

	require.NoError(t, ex.Remove())
	assert.NoDirExists(t, scratch)
	assert.NoError(t, ex.Remove(), "removing a missing scratch dir is not an error")
}

func TestDetectFormat(t *testing.T) {
	raw := tarBytes(t, sourceTree)

	assert.Equal(t, archive.FormatGzip, archive.DetectFormat(gzipBytes(t, raw)))
	assert.Equal(t, archive.FormatXZ, archive.DetectFormat(xzBytes(t, raw)))
	assert.Equal(t, archive.FormatBzip2, archive.DetectFormat([]byte("BZh91AY&SY")))
	assert.Equal(t, archive.FormatTar, archive.DetectFormat(raw))
	assert.Equal(t, archive.FormatUnknown, archive.DetectFormat([]byte("PK\x03\x04")))
	assert.Equal(t, archive.FormatUnknown, archive.DetectFormat(nil))
	assert.Equal(t, "xz", archive.FormatXZ.String())
}
