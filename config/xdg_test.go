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

// TestGetConfigDirs_WithXDGConfigHome tests GetConfigDirs with XDG_CONFIG_HOME set
func TestGetConfigDirs_WithXDGConfigHome(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	dirs := GetConfigDirs()

	require.NotEmpty(t, dirs)
	assert.Equal(t, filepath.Join(tmpDir, "tarforge"), dirs[0])

	home, _ := os.UserHomeDir()
	assert.Contains(t, dirs, filepath.Join(home, ".tarforge"))
}

// TestGetConfigDirs_WithoutXDGConfigHome tests GetConfigDirs defaults to ~/.config
func TestGetConfigDirs_WithoutXDGConfigHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")

	dirs := GetConfigDirs()

	assert.Equal(t, []string{
		filepath.Join(home, ".config", "tarforge"),
		filepath.Join(home, ".tarforge"),
	}, dirs)
}

func TestSearchDirs_EndsWithBaseAndWorkingDir(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	dirs := SearchDirs()
	base, err := BaseDir()
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(dirs), 2)
	assert.Equal(t, ".", dirs[len(dirs)-1])
	assert.Equal(t, base, dirs[len(dirs)-2])
}

// TestConfigFile_CreatesParentDirs tests that ConfigFile creates the tarforge directory
func TestConfigFile_CreatesParentDirs(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	path, err := ConfigFile("config.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, "tarforge", "config.yaml"), path)

	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
