//go:build linux || darwin || freebsd || netbsd || openbsd

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

package platform

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// ResolveHost returns the canonical target of the machine running tarforge,
// read from uname(2). It falls back to the Go runtime values if the syscall
// fails.
func ResolveHost() Target {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return Canonicalize(runtime.GOOS, runtime.GOARCH)
	}
	return Canonicalize(
		unix.ByteSliceToString(uts.Sysname[:]),
		unix.ByteSliceToString(uts.Machine[:]),
	)
}
