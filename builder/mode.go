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
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/cowdogmoo/tarforge/errors"
)

// Mode selects which build strategies an invocation runs.
type Mode string

// Build modes.
const (
	ModeNative        Mode = "native"
	ModeContainerized Mode = "containerized"
	ModeClean         Mode = "clean"
	ModeAll           Mode = "all"
)

// Modes returns every recognized mode in help order.
func Modes() []Mode {
	return []Mode{ModeNative, ModeContainerized, ModeClean, ModeAll}
}

// ModeNames returns the mode names for usage text and completion.
func ModeNames() []string {
	names := make([]string, 0, len(Modes()))
	for _, m := range Modes() {
		names = append(names, string(m))
	}
	return names
}

// Valid reports whether m is a recognized mode.
func (m Mode) Valid() bool {
	for _, known := range Modes() {
		if m == known {
			return true
		}
	}
	return false
}

// maxSuggestionDistance bounds how far a typo may be from a mode name for a
// suggestion to be offered.
const maxSuggestionDistance = 3

// ParseMode converts s into a Mode. Unknown values fail with
// ErrInvalidArguments, naming the closest mode when one is near.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.TrimSpace(s))
	if m.Valid() {
		return m, nil
	}

	if suggestion := suggestMode(string(m)); suggestion != "" {
		return "", errors.Newf(errors.ErrInvalidArguments, "unknown build type %q (did you mean %q?); valid types: %s",
			s, suggestion, strings.Join(ModeNames(), ", "))
	}
	return "", errors.Newf(errors.ErrInvalidArguments, "unknown build type %q; valid types: %s",
		s, strings.Join(ModeNames(), ", "))
}

func suggestMode(s string) string {
	if s == "" {
		return ""
	}
	best := ""
	bestDistance := maxSuggestionDistance + 1
	for _, name := range ModeNames() {
		d := fuzzy.LevenshteinDistance(strings.ToLower(s), name)
		if d < bestDistance {
			best, bestDistance = name, d
		}
	}
	return best
}
