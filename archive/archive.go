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

// Package archive unpacks a source archive into a scratch directory and
// locates the single source tree inside it.
package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/cowdogmoo/tarforge/config"
	"github.com/cowdogmoo/tarforge/errors"
	"github.com/cowdogmoo/tarforge/logging"
)

// Extractor owns a scratch directory that is wiped and refilled on every
// extraction.
type Extractor struct {
	ScratchDir string
}

// NewExtractor returns an Extractor rooted at scratchDir.
func NewExtractor(scratchDir string) *Extractor {
	return &Extractor{ScratchDir: scratchDir}
}

// Extract unpacks archivePath into a freshly recreated scratch directory and
// returns the path of the single top-level directory it contains.
//
// The archive must be a regular, readable file (ErrFileNotFound otherwise).
// An archive with no top-level directory fails with ErrExtractionEmpty and
// leaves the scratch directory in place for inspection; more than one fails
// with ErrAmbiguousArchiveLayout.
func (e *Extractor) Extract(ctx context.Context, archivePath string) (string, error) {
	f, err := openArchive(archivePath)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	if err := e.reset(); err != nil {
		return "", err
	}

	stream, closeStream, format, err := decompress(f)
	if err != nil {
		return "", errors.Newf(errors.ErrFileNotFound, "%s is not a readable compressed archive: %v", archivePath, err)
	}
	defer closeStream()

	logging.InfoContext(ctx, "Extracting %s (%s) into %s", archivePath, format, e.ScratchDir)

	count, err := e.untar(ctx, stream)
	if err != nil {
		return "", errors.Wrap("extract archive", archivePath, err)
	}
	logging.DebugContext(ctx, "Extracted %d entries", count)

	return e.Locate(ctx)
}

// Locate returns the single top-level directory already present in the
// scratch area without extracting anything.
func (e *Extractor) Locate(ctx context.Context) (string, error) {
	entries, err := os.ReadDir(e.ScratchDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.Newf(errors.ErrExtractionEmpty, "scratch directory %s does not exist", e.ScratchDir)
		}
		return "", errors.Wrap("read scratch directory", e.ScratchDir, err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	sort.Strings(dirs)

	switch len(dirs) {
	case 0:
		return "", errors.Newf(errors.ErrExtractionEmpty, "no top-level directory in %s", e.ScratchDir)
	case 1:
		sourceDir := filepath.Join(e.ScratchDir, dirs[0])
		logging.DebugContext(ctx, "Resolved source directory: %s", sourceDir)
		return sourceDir, nil
	default:
		return "", errors.Newf(errors.ErrAmbiguousArchiveLayout, "%d top-level directories in %s: %v", len(dirs), e.ScratchDir, dirs)
	}
}

// Remove deletes the scratch directory. A missing directory is not an error.
func (e *Extractor) Remove() error {
	if err := os.RemoveAll(e.ScratchDir); err != nil {
		return errors.Wrap("remove scratch directory", e.ScratchDir, err)
	}
	return nil
}

func openArchive(archivePath string) (*os.File, error) {
	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, errors.Newf(errors.ErrFileNotFound, "archive %s: %v", archivePath, err)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.Newf(errors.ErrFileNotFound, "archive %s is not a regular file", archivePath)
	}

	// #nosec G304 -- the archive path is supplied by the operator.
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, errors.Newf(errors.ErrFileNotFound, "archive %s is not readable: %v", archivePath, err)
	}
	return f, nil
}

func (e *Extractor) reset() error {
	if err := os.RemoveAll(e.ScratchDir); err != nil {
		return errors.Wrap("remove scratch directory", e.ScratchDir, err)
	}
	if err := os.MkdirAll(e.ScratchDir, config.DirPermReadWriteExec); err != nil {
		return errors.Wrap("create scratch directory", e.ScratchDir, err)
	}
	return nil
}

// untar materializes directories, regular files, symlinks and hard links.
// Entry names that are absolute or climb out of the scratch directory are
// rejected; every path is resolved with SecureJoin so links inside the
// archive cannot redirect later writes outside it.
func (e *Extractor) untar(ctx context.Context, r io.Reader) (int, error) {
	tr := tar.NewReader(r)
	count := 0

	for {
		if err := ctx.Err(); err != nil {
			return count, err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, err
		}

		if !filepath.IsLocal(filepath.FromSlash(hdr.Name)) {
			return count, fmt.Errorf("entry %q escapes the extraction directory", hdr.Name)
		}

		target, err := securejoin.SecureJoin(e.ScratchDir, hdr.Name)
		if err != nil {
			return count, fmt.Errorf("failed to resolve entry %q: %w", hdr.Name, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, dirMode(hdr)); err != nil {
				return count, err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, hdr); err != nil {
				return count, err
			}
		case tar.TypeSymlink:
			if err := writeSymlink(target, hdr.Linkname); err != nil {
				return count, err
			}
		case tar.TypeLink:
			source, err := securejoin.SecureJoin(e.ScratchDir, hdr.Linkname)
			if err != nil {
				return count, fmt.Errorf("failed to resolve link %q: %w", hdr.Linkname, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), config.DirPermReadWriteExec); err != nil {
				return count, err
			}
			_ = os.Remove(target)
			if err := os.Link(source, target); err != nil {
				return count, err
			}
		default:
			// Devices, fifos and pax headers carry nothing a build needs.
			continue
		}
		count++
	}
}

func dirMode(hdr *tar.Header) os.FileMode {
	return os.FileMode(hdr.Mode).Perm() | 0o700
}

func writeFile(target string, r io.Reader, hdr *tar.Header) error {
	if err := os.MkdirAll(filepath.Dir(target), config.DirPermReadWriteExec); err != nil {
		return err
	}

	mode := os.FileMode(hdr.Mode).Perm() | 0o600
	// #nosec G304 -- target is resolved inside the scratch directory.
	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.CopyN(out, r, hdr.Size); err != nil && err != io.EOF {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	// OpenFile applies the umask; restore the archived permission bits.
	return os.Chmod(target, mode)
}

func writeSymlink(target, linkname string) error {
	if err := os.MkdirAll(filepath.Dir(target), config.DirPermReadWriteExec); err != nil {
		return err
	}
	_ = os.Remove(target)
	return os.Symlink(linkname, target)
}
