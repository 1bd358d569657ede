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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode Mode
		want []Step
	}{
		{mode: ModeNative, want: []Step{StepExtract, StepNative}},
		{mode: ModeContainerized, want: []Step{StepExtract, StepContainerized}},
		{mode: ModeAll, want: []Step{StepExtract, StepContainerized, StepNative}},
		{mode: ModeClean, want: nil},
		{mode: Mode("bogus"), want: nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Plan(tt.mode))
		})
	}
}

func TestStepString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "extract", StepExtract.String())
	assert.Equal(t, "containerized", StepContainerized.String())
	assert.Equal(t, "native", StepNative.String())
	assert.Equal(t, "unknown", Step(42).String())
}
