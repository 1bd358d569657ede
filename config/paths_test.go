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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseDir(t *testing.T) {
	dir, err := BaseDir()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(dir))

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestResolveBaseDir(t *testing.T) {
	configured := t.TempDir()
	cfg := &Config{BaseDir: configured}
	got, err := cfg.ResolveBaseDir()
	require.NoError(t, err)
	assert.Equal(t, configured, got)

	exeDir, err := BaseDir()
	require.NoError(t, err)
	got, err = (&Config{}).ResolveBaseDir()
	require.NoError(t, err)
	assert.Equal(t, exeDir, got)
}

func TestResolvePath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("TARFORGE_TEST_DIR", "/srv/data")

	tests := []struct {
		name string
		base string
		path string
		want string
	}{
		{name: "empty stays empty", base: "/opt/tarforge", path: "", want: ""},
		{name: "relative joins base", base: "/opt/tarforge", path: "output", want: "/opt/tarforge/output"},
		{name: "relative with dots", base: "/opt/tarforge", path: "./a/../src.tar.gz", want: "/opt/tarforge/src.tar.gz"},
		{name: "absolute kept", base: "/opt/tarforge", path: "/tmp/src.tar.gz", want: "/tmp/src.tar.gz"},
		{name: "tilde", base: "/opt/tarforge", path: "~/src.tar.gz", want: filepath.Join(home, "src.tar.gz")},
		{name: "env var", base: "/opt/tarforge", path: "${TARFORGE_TEST_DIR}/out", want: "/srv/data/out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolvePath(tt.base, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ExpandPath("~")
	require.NoError(t, err)
	assert.Equal(t, home, got)

	got, err = ExpandPath("plain/path")
	require.NoError(t, err)
	assert.Equal(t, "plain/path", got)
}
