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

	"github.com/cowdogmoo/tarforge/config"
	"github.com/cowdogmoo/tarforge/logging"
)

// BuildOptions represents build configuration overrides from the CLI.
// These options take precedence over values in the loaded configuration.
type BuildOptions struct {
	// BinaryName overrides the name of the produced program.
	BinaryName string

	// Platforms overrides the containerized target platforms.
	Platforms []string

	// Concurrency overrides how many containerized targets build at once.
	Concurrency int
}

// ApplyOverrides applies CLI overrides to cfg.
// Precedence: BuildOptions > Config > Defaults
func ApplyOverrides(ctx context.Context, cfg *config.Config, opts BuildOptions) {
	if opts.BinaryName != "" {
		cfg.Build.BinaryName = opts.BinaryName
		logging.DebugContext(ctx, "Binary name override: %s", opts.BinaryName)
	}
	if len(opts.Platforms) > 0 {
		cfg.Container.Platforms = opts.Platforms
		logging.DebugContext(ctx, "Platform override: %v", opts.Platforms)
	}
	if opts.Concurrency > 0 {
		cfg.Container.Concurrency = opts.Concurrency
		logging.DebugContext(ctx, "Concurrency override: %d", opts.Concurrency)
	}
}
