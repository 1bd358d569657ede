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

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/cowdogmoo/tarforge/builder"
	"github.com/cowdogmoo/tarforge/builder/buildkit"
	"github.com/cowdogmoo/tarforge/builder/container"
	"github.com/cowdogmoo/tarforge/builder/native"
	"github.com/cowdogmoo/tarforge/config"
	"github.com/cowdogmoo/tarforge/errors"
	"github.com/cowdogmoo/tarforge/logging"
)

// Context key type for storing config
type configKeyType struct{}

// configKey is the context key for storing the config
var configKey = configKeyType{}

// rootOptions holds the flags that are not config keys.
type rootOptions struct {
	cfgFile   string
	inputFile string
	quiet     bool
	verbose   bool
}

// flagKeys maps config keys to the flags overriding them.
var flagKeys = map[string]string{
	"log.level":             "log-level",
	"log.format":            "log-format",
	"output.dir":            "output",
	"build.mode":            "type",
	"build.binary_name":     "binary-name",
	"container.platforms":   "platform",
	"container.concurrency": "parallel",
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tarforge -i <archive> [-o <dir>] [-t native|containerized|clean|all]",
		Short: "Build a C source archive natively and for multiple Linux platforms",
		Long: `tarforge extracts a source archive and compiles the program it contains.

Build types:
  native         compile with the host toolchain into <output>/<os>-<arch>
  containerized  cross-compile every configured platform with Docker buildx
  all            containerized, then native; stops at the first failure
  clean          remove build output, the scratch area and legacy binaries

Configuration precedence (highest to lowest):
  1. CLI flags
  2. Environment variables (TARFORGE_*)
  3. Configuration file (config.yaml)
  4. Built-in defaults`,
		Example: `  tarforge -i prog-1.2.3.tar.gz
  tarforge -i prog-1.2.3.tar.xz -t all -o dist
  tarforge -t clean`,
		Version:           builder.Version,
		Args:              noArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return initConfig(cmd, opts) },
		RunE:              func(cmd *cobra.Command, args []string) error { return runBuild(cmd, opts) },
	}
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return errors.Newf(errors.ErrInvalidArguments, "%v", err)
	})

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.cfgFile, "config", "c", "", "Config file (default: search $XDG_CONFIG_HOME/tarforge, ~/.tarforge, the install dir and .)")
	pf.String("log-level", "", "Log level (debug, info, warn, error)")
	pf.String("log-format", "", "Log format (text, json, color)")
	pf.BoolVarP(&opts.quiet, "quiet", "q", false, "Quiet mode - only show errors")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose mode - show debug output")

	f := cmd.Flags()
	f.StringVarP(&opts.inputFile, "input-file", "i", "", "Source archive (.tar.gz, .tgz, .tar.xz, .tar.bz2 or .tar); required except for clean")
	f.StringP("output", "o", "", "Artifact root directory (default \"output\" next to the executable)")
	f.StringP("type", "t", "", "Build type: "+strings.Join(builder.ModeNames(), ", ")+" (default \"containerized\")")
	f.String("binary-name", "", "Name of the binary make produces (default: archive directory name without its version)")
	f.StringSlice("platform", nil, "Container target platform, repeatable (default linux/arm64,linux/amd64)")
	f.Int("parallel", 0, "Container targets to build at once (default 1)")

	_ = cmd.RegisterFlagCompletionFunc("type", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return builder.ModeNames(), cobra.ShellCompDirectiveNoFileComp
	})

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newConfigCmd())
	return cmd
}

// noArgs rejects positional arguments as a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return errors.Newf(errors.ErrInvalidArguments, "unexpected argument %q for %s", args[0], cmd.CommandPath())
	}
	return nil
}

// configFromContext retrieves the config from the command context.
// Returns nil if no config is stored in context.
func configFromContext(cmd *cobra.Command) *config.Config {
	if cfg, ok := cmd.Context().Value(configKey).(*config.Config); ok {
		return cfg
	}
	return nil
}

// initConfig initializes configuration with proper precedence:
// CLI Flags > Environment Variables > Config File > Defaults
func initConfig(cmd *cobra.Command, opts *rootOptions) error {
	// 1. Load config (handles defaults, env vars, and config file)
	var cfg *config.Config
	var loadErr error
	if opts.cfgFile != "" {
		cfg, loadErr = config.LoadFromPath(opts.cfgFile)
		if loadErr != nil {
			return errors.Newf(errors.ErrFileNotFound, "cannot load config %s: %v", opts.cfgFile, loadErr)
		}
	} else {
		cfg, loadErr = config.Load()
		if loadErr != nil && !config.IsNotFoundError(loadErr) {
			return errors.Wrap("load config", "", loadErr)
		}
	}

	// 2. Layer flags over the loaded values
	v := viper.New()
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("output.dir", cfg.Output.Dir)
	v.SetDefault("build.mode", cfg.Build.Mode)
	v.SetDefault("build.binary_name", cfg.Build.BinaryName)
	v.SetDefault("container.platforms", cfg.Container.Platforms)
	v.SetDefault("container.concurrency", cfg.Container.Concurrency)

	if err := bindFlags(v, cmd); err != nil {
		return err
	}

	// 3. Initialize logging with final values
	cfg.Log.Level = v.GetString("log.level")
	cfg.Log.Format = v.GetString("log.format")
	if err := logging.Initialize(cfg.Log.Level, cfg.Log.Format, opts.quiet, opts.verbose); err != nil {
		return errors.Newf(errors.ErrInvalidArguments, "%v", err)
	}

	// 4. Update config with final values
	// Relative paths stay relative; the build service resolves them against
	// the base directory, not the working directory.
	cfg.Build.Mode = v.GetString("build.mode")
	cfg.Output.Dir = v.GetString("output.dir")
	builder.ApplyOverrides(cmd.Context(), cfg, builder.BuildOptions{
		BinaryName:  v.GetString("build.binary_name"),
		Platforms:   v.GetStringSlice("container.platforms"),
		Concurrency: v.GetInt("container.concurrency"),
	})

	// 5. Store the logger and config in context
	ctx := context.WithValue(cmd.Context(), configKey, cfg)
	ctx = logging.WithLogger(ctx, logging.Default())
	cmd.SetContext(ctx)

	if loadErr != nil {
		logging.DebugContext(ctx, "No config file found, using defaults")
	}
	return nil
}

// bindFlags binds every flag that overrides a config key, looking in the
// command's own and inherited flags.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for key, name := range flagKeys {
		flag := lookupFlag(cmd, name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind %s flag: %w", name, err)
		}
	}
	return nil
}

func lookupFlag(cmd *cobra.Command, name string) *pflag.Flag {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f
	}
	return cmd.InheritedFlags().Lookup(name)
}

func runBuild(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	cfg := configFromContext(cmd)
	if cfg == nil {
		return fmt.Errorf("configuration not initialized")
	}

	mode, err := builder.ParseMode(cfg.Build.Mode)
	if err != nil {
		return err
	}

	baseDir, err := cfg.ResolveBaseDir()
	if err != nil {
		return errors.Wrap("resolve base directory", "", err)
	}
	logging.DebugContext(ctx, "Base directory: %s", baseDir)

	runner := builder.NewExecRunner()
	service := builder.NewBuildService(cfg, baseDir, runner,
		containerCreator(cfg, baseDir, runner),
		nativeCreator(cfg, runner))

	return service.Run(ctx, builder.Invocation{
		ArchivePath: opts.inputFile,
		OutputDir:   cfg.Output.Dir,
		Mode:        mode,
	})
}

// containerCreator wires the containerized executor to the Docker/BuildKit
// backend.
func containerCreator(cfg *config.Config, baseDir string, runner builder.CommandRunner) builder.ExecutorCreatorFunc {
	return func(ctx context.Context) (builder.Executor, error) {
		backend, err := buildkit.NewBackend(cfg.Container, runner)
		if err != nil {
			return nil, err
		}
		return container.NewBuilder(cfg.Container, baseDir, backend), nil
	}
}

func nativeCreator(cfg *config.Config, runner builder.CommandRunner) builder.ExecutorCreatorFunc {
	return func(ctx context.Context) (builder.Executor, error) {
		return native.NewBuilder(cfg.Native, runner), nil
	}
}
