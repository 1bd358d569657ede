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
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cowdogmoo/tarforge/config"
	"github.com/cowdogmoo/tarforge/errors"
	"github.com/cowdogmoo/tarforge/logging"
)

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect tarforge configuration",
		Long: `Inspect tarforge's configuration.

Configuration precedence (highest to lowest):
1. CLI flags
2. Environment variables (TARFORGE_*)
3. Configuration file (config.yaml)
4. Built-in defaults`,
		Args: noArgs,
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Long: `Display the configuration with values from all sources merged:
built-in defaults, the configuration file, environment variables and
CLI flag overrides.`,
		Args: noArgs,
		RunE: runConfigShow,
	})
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(cmd, force)
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config file")
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file in use",
		Args:  noArgs,
		RunE:  runConfigPath,
	})
	return configCmd
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := configFromContext(cmd)
	if cfg == nil {
		return fmt.Errorf("configuration not initialized")
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, "# Effective tarforge configuration")
	_, _ = fmt.Fprintln(out, "# Sources: defaults -> config file -> environment variables -> CLI flags")
	_, err = fmt.Fprint(out, string(data))
	return err
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	path, err := config.FindConfigFile()
	if err == nil {
		_, err = fmt.Fprintln(out, path)
		return err
	}
	if !config.IsNotFoundError(err) {
		return err
	}

	defaultPath := "config.yaml"
	if dirs := config.GetConfigDirs(); len(dirs) > 0 {
		defaultPath = filepath.Join(dirs[0], "config.yaml")
	}
	_, err = fmt.Fprintf(out, "%s (not created yet)\n", defaultPath)
	return err
}

func runConfigInit(cmd *cobra.Command, force bool) error {
	ctx := cmd.Context()
	configPath, err := config.ConfigFile("config.yaml")
	if err != nil {
		return errors.Wrap("get config path", "", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		if !force {
			return errors.Newf(errors.ErrInvalidArguments, "config file already exists at %s (use --force to overwrite)", configPath)
		}
		logging.WarnContext(ctx, "Overwriting existing config file at %s", configPath)
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	data = append([]byte("# tarforge configuration; see `tarforge config show` for effective values\n"), data...)

	if err := os.WriteFile(configPath, data, config.FilePermReadWrite); err != nil {
		return errors.Wrap("write config file", configPath, err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), configPath)
	return err
}
