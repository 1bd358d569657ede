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

package archive

import (
	"bufio"
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// Format is the compression wrapper around a tar stream.
type Format int

// Supported archive formats.
const (
	FormatUnknown Format = iota
	FormatTar
	FormatGzip
	FormatXZ
	FormatBzip2
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatTar:
		return "tar"
	case FormatGzip:
		return "gzip"
	case FormatXZ:
		return "xz"
	case FormatBzip2:
		return "bzip2"
	default:
		return "unknown"
	}
}

var (
	gzipMagic  = []byte{0x1f, 0x8b}
	xzMagic    = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	bzip2Magic = []byte("BZh")
	tarMagic   = []byte("ustar")
)

// tarMagicOffset is where the ustar magic sits in the first tar header.
const tarMagicOffset = 257

// DetectFormat identifies the archive format from its leading bytes.
// File extensions are not consulted.
func DetectFormat(header []byte) Format {
	switch {
	case bytes.HasPrefix(header, gzipMagic):
		return FormatGzip
	case bytes.HasPrefix(header, xzMagic):
		return FormatXZ
	case bytes.HasPrefix(header, bzip2Magic):
		return FormatBzip2
	case len(header) >= tarMagicOffset+len(tarMagic) &&
		bytes.Equal(header[tarMagicOffset:tarMagicOffset+len(tarMagic)], tarMagic):
		return FormatTar
	default:
		return FormatUnknown
	}
}

// decompress sniffs r and returns a reader over the uncompressed tar stream.
// The returned closer releases decoder resources and must always be called.
func decompress(r io.Reader) (io.Reader, func(), Format, error) {
	br := bufio.NewReaderSize(r, 512)
	header, err := br.Peek(tarMagicOffset + len(tarMagic))
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, nil, FormatUnknown, err
	}

	format := DetectFormat(header)
	noop := func() {}

	switch format {
	case FormatGzip:
		gz, err := pgzip.NewReader(br)
		if err != nil {
			return nil, nil, format, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return gz, func() { _ = gz.Close() }, format, nil
	case FormatXZ:
		xr, err := xz.NewReader(br)
		if err != nil {
			return nil, nil, format, fmt.Errorf("failed to open xz stream: %w", err)
		}
		return xr, noop, format, nil
	case FormatBzip2:
		return bzip2.NewReader(br), noop, format, nil
	case FormatTar:
		return br, noop, format, nil
	default:
		return nil, nil, format, fmt.Errorf("unrecognized archive format")
	}
}
