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

// Package platform resolves and names build targets. A Target is the
// canonical {os}-{arch} pair used for output directories; container
// platforms are parsed through containerd's OCI platform normalization.
package platform

import (
	"fmt"
	"strings"

	"github.com/containerd/platforms"
	specs "github.com/opencontainers/image-spec/specs-go/v1"
)

// Canonical operating system names.
const (
	OSLinux = "linux"
	OSMacOS = "macos"
)

// Target identifies one OS/architecture build target.
type Target struct {
	OS      string
	Arch    string
	Variant string
}

// String returns the canonical os-arch name.
func (t Target) String() string {
	return t.Dir()
}

// Dir returns the output subdirectory name for the target.
func (t Target) Dir() string {
	if t.Variant != "" {
		return fmt.Sprintf("%s-%s-%s", t.OS, t.Arch, t.Variant)
	}
	return fmt.Sprintf("%s-%s", t.OS, t.Arch)
}

// Platform returns the os/arch specifier understood by container builders.
func (t Target) Platform() string {
	return platforms.Format(t.OCI())
}

// OCI returns the target as an OCI platform.
func (t Target) OCI() specs.Platform {
	osName := t.OS
	if osName == OSMacOS {
		osName = "darwin"
	}
	return specs.Platform{OS: osName, Architecture: t.Arch, Variant: t.Variant}
}

// osNames holds the exact kernel names with a canonical spelling. The
// lower-case darwin entry covers runtime.GOOS and OCI platform strings.
var osNames = map[string]string{
	"Darwin": OSMacOS,
	"darwin": OSMacOS,
	"Linux":  OSLinux,
}

var archNames = map[string]string{
	"x86_64":  "amd64",
	"aarch64": "arm64",
	"arm64":   "arm64",
}

// Canonicalize maps raw uname values to a Target with an exact-match table.
// Unknown kernel names are lower-cased; unknown machine names pass through
// unchanged.
func Canonicalize(rawOS, rawArch string) Target {
	osName, ok := osNames[rawOS]
	if !ok {
		osName = strings.ToLower(rawOS)
	}

	arch, ok := archNames[rawArch]
	if !ok {
		arch = rawArch
	}

	return Target{OS: osName, Arch: arch}
}

// ParsePlatform converts a container platform specifier such as
// "linux/arm64" into a Target. Architecture aliases (x86_64, aarch64) and
// redundant variants are normalized.
func ParsePlatform(specifier string) (Target, error) {
	if strings.TrimSpace(specifier) == "" {
		return Target{}, fmt.Errorf("platform specifier is empty")
	}
	if !strings.Contains(specifier, "/") {
		return Target{}, fmt.Errorf("invalid platform %q (expected os/arch)", specifier)
	}

	p, err := platforms.Parse(specifier)
	if err != nil {
		return Target{}, fmt.Errorf("invalid platform %q: %w", specifier, err)
	}
	p = platforms.Normalize(p)

	t := Canonicalize(p.OS, p.Architecture)
	t.Variant = p.Variant
	return t, nil
}

// ParsePlatforms parses every specifier, dropping duplicates while keeping
// the declared order.
func ParsePlatforms(specifiers []string) ([]Target, error) {
	targets := make([]Target, 0, len(specifiers))
	seen := make(map[Target]bool, len(specifiers))
	for _, s := range specifiers {
		t, err := ParsePlatform(s)
		if err != nil {
			return nil, err
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		targets = append(targets, t)
	}
	return targets, nil
}
