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
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cowdogmoo/tarforge/errors"
	"github.com/cowdogmoo/tarforge/platform"
)

var (
	linuxARM64 = platform.Target{OS: "linux", Arch: "arm64"}
	linuxAMD64 = platform.Target{OS: "linux", Arch: "amd64"}
)

func okJob(target platform.Target) TargetJob {
	return TargetJob{
		Target: target,
		Build: func(ctx context.Context) (Artifact, error) {
			return Artifact{Target: target, Path: "/out/" + target.Dir() + "/prog"}, nil
		},
	}
}

func TestTargetOrchestratorRun(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		jobs          []TargetJob
		wantArtifacts []string
		wantFailed    []string
	}{
		{
			name:          "all succeed",
			jobs:          []TargetJob{okJob(linuxARM64), okJob(linuxAMD64)},
			wantArtifacts: []string{"linux-arm64", "linux-amd64"},
		},
		{
			name: "one failure does not stop the other",
			jobs: []TargetJob{
				okJob(linuxARM64),
				{
					Target: linuxAMD64,
					Build: func(ctx context.Context) (Artifact, error) {
						return Artifact{}, fmt.Errorf("compiler crashed")
					},
				},
			},
			wantArtifacts: []string{"linux-arm64"},
			wantFailed:    []string{"linux-amd64"},
		},
		{
			name: "failure first still runs later targets",
			jobs: []TargetJob{
				{
					Target: linuxARM64,
					Build: func(ctx context.Context) (Artifact, error) {
						return Artifact{}, fmt.Errorf("exporter failed")
					},
				},
				okJob(linuxAMD64),
			},
			wantArtifacts: []string{"linux-amd64"},
			wantFailed:    []string{"linux-arm64"},
		},
		{
			name: "no jobs",
			jobs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			artifacts, err := NewTargetOrchestrator(1).Run(context.Background(), tt.jobs)

			var dirs []string
			for _, a := range artifacts {
				dirs = append(dirs, a.Target.Dir())
			}
			assert.Equal(t, tt.wantArtifacts, dirs)

			if len(tt.wantFailed) == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrBuildFailed)
			for _, dir := range tt.wantFailed {
				assert.Contains(t, err.Error(), "build failed for "+dir)
			}
		})
	}
}

func TestTargetOrchestratorSequentialByDefault(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var order []string
	var running, peak int32

	job := func(target platform.Target) TargetJob {
		return TargetJob{
			Target: target,
			Build: func(ctx context.Context) (Artifact, error) {
				n := atomic.AddInt32(&running, 1)
				defer atomic.AddInt32(&running, -1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				order = append(order, target.Dir())
				mu.Unlock()
				return Artifact{Target: target}, nil
			},
		}
	}

	_, err := NewTargetOrchestrator(0).Run(context.Background(), []TargetJob{job(linuxARM64), job(linuxAMD64)})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
	assert.Equal(t, []string{"linux-arm64", "linux-amd64"}, order)
}

func TestTargetOrchestratorCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	jobs := []TargetJob{{
		Target: linuxARM64,
		Build: func(ctx context.Context) (Artifact, error) {
			called = true
			return Artifact{}, nil
		},
	}}

	artifacts, err := NewTargetOrchestrator(2).Run(ctx, jobs)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, errors.ErrBuildFailed)
	assert.Empty(t, artifacts)
	assert.False(t, called)
}
