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

	"golang.org/x/sync/errgroup"

	"github.com/cowdogmoo/tarforge/errors"
	"github.com/cowdogmoo/tarforge/logging"
	"github.com/cowdogmoo/tarforge/platform"
)

// DefaultMaxConcurrency runs targets one after another.
const DefaultMaxConcurrency = 1

// TargetOrchestrator runs per-target build jobs with a concurrency limit.
type TargetOrchestrator struct {
	maxConcurrency int
}

// NewTargetOrchestrator creates an orchestrator with the specified concurrency limit.
func NewTargetOrchestrator(maxConcurrency int) *TargetOrchestrator {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}

	return &TargetOrchestrator{
		maxConcurrency: maxConcurrency,
	}
}

// TargetJob builds one target and returns its published artifact.
type TargetJob struct {
	Target platform.Target
	Build  func(ctx context.Context) (Artifact, error)
}

// Run executes every job. A failing job does not cancel the others; only
// cancellation of ctx stops jobs that have not started. Artifacts of the
// successful jobs are returned in job order together with a joined
// BuildError for each failed target.
func (o *TargetOrchestrator) Run(ctx context.Context, jobs []TargetJob) ([]Artifact, error) {
	logging.DebugContext(ctx, "Running %d target builds (concurrency %d)", len(jobs), o.maxConcurrency)

	// Plain Group rather than WithContext: one target's failure must not
	// abort its siblings.
	var g errgroup.Group
	g.SetLimit(o.maxConcurrency)

	artifacts := make([]Artifact, len(jobs))
	failures := make([]error, len(jobs))
	done := make([]bool, len(jobs))

	for i, job := range jobs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				failures[i] = errors.NewBuildError(job.Target.Dir(), err)
				return nil
			}

			logging.InfoContext(ctx, "Building %s", job.Target.Platform())
			artifact, err := job.Build(ctx)
			if err != nil {
				logging.ErrorContext(ctx, "Build for %s failed: %v", job.Target.Platform(), err)
				failures[i] = errors.NewBuildError(job.Target.Dir(), err)
				return nil
			}

			artifacts[i] = artifact
			done[i] = true
			logging.InfoContext(ctx, "Built %s: %s", job.Target.Platform(), artifact.Path)
			return nil
		})
	}
	_ = g.Wait()

	succeeded := make([]Artifact, 0, len(jobs))
	for i := range jobs {
		if done[i] {
			succeeded = append(succeeded, artifacts[i])
		}
	}
	return succeeded, errors.Join(failures...)
}
