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

// Package errors provides error wrapping utilities and the error taxonomy
// shared by every tarforge component.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is; every one of them is
// terminal for the current invocation.
var (
	// ErrInvalidArguments reports bad or missing flags, an unknown build
	// mode or unexpected positional arguments.
	ErrInvalidArguments = stderrors.New("invalid arguments")
	// ErrFileNotFound reports a missing archive or a missing build
	// descriptor (Makefile, Dockerfile).
	ErrFileNotFound = stderrors.New("file not found")
	// ErrExtractionEmpty reports an archive that produced no top-level
	// directory.
	ErrExtractionEmpty = stderrors.New("archive produced no top-level directory")
	// ErrAmbiguousArchiveLayout reports an archive that produced more than
	// one top-level directory.
	ErrAmbiguousArchiveLayout = stderrors.New("archive produced more than one top-level directory")
	// ErrBackendUnavailable reports a missing container engine, an
	// unreachable daemon or a missing buildx extension.
	ErrBackendUnavailable = stderrors.New("container backend unavailable")
	// ErrBuildFailed reports a build that did not produce its binary.
	ErrBuildFailed = stderrors.New("build failed")
)

// Wrap wraps an error with a descriptive action and optional detail.
// It returns a formatted error in the form "failed to <action> [(<detail>)]: <error>".
//
// Example usage:
//
//	if err := extractor.Extract(ctx, path); err != nil {
//	    return errors.Wrap("extract archive", path, err)
//	}
func Wrap(action, detail string, err error) error {
	if err == nil {
		return nil
	}

	if detail != "" {
		return fmt.Errorf("failed to %s (%s): %w", action, detail, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}

// Newf returns an error that matches sentinel with errors.Is and carries a
// formatted message.
func Newf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// BuildError reports a failed build for one platform.
type BuildError struct {
	Platform string
	Err      error
}

// NewBuildError returns a BuildError for platform. The result always
// matches ErrBuildFailed; err may add a more specific cause.
func NewBuildError(platform string, err error) *BuildError {
	return &BuildError{Platform: platform, Err: err}
}

// Error implements the error interface.
func (e *BuildError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("build failed for %s", e.Platform)
	}
	return fmt.Sprintf("build failed for %s: %v", e.Platform, e.Err)
}

// Unwrap exposes both ErrBuildFailed and the underlying cause.
func (e *BuildError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrBuildFailed}
	}
	return []error{ErrBuildFailed, e.Err}
}

// Is reports whether err matches any of targets.
func Is(err error, targets ...error) bool {
	for _, target := range targets {
		if stderrors.Is(err, target) {
			return true
		}
	}
	return false
}

// Join is errors.Join from the standard library.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// ExitCode maps an invocation result to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return 1
}
