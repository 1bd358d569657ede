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

// Step is one stage of a build plan.
type Step int

const (
	// StepExtract unpacks the archive into the scratch area.
	StepExtract Step = iota
	// StepContainerized cross-compiles every declared platform.
	StepContainerized
	// StepNative compiles for the host.
	StepNative
)

// String returns a human-readable representation of the step
func (s Step) String() string {
	switch s {
	case StepExtract:
		return "extract"
	case StepContainerized:
		return "containerized"
	case StepNative:
		return "native"
	default:
		return "unknown"
	}
}

// Plan returns the ordered steps for mode. Steps run in order and the first
// failure ends the run; completed steps are not rolled back. Clean has no
// build steps and an unknown mode has none either.
func Plan(mode Mode) []Step {
	switch mode {
	case ModeNative:
		return []Step{StepExtract, StepNative}
	case ModeContainerized:
		return []Step{StepExtract, StepContainerized}
	case ModeAll:
		return []Step{StepExtract, StepContainerized, StepNative}
	default:
		return nil
	}
}
