//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	// mage utility functions
	"github.com/magefile/mage/sh"
)

const versionVar = "github.com/cowdogmoo/tarforge/builder.Version"

func init() {
	os.Setenv("GO111MODULE", "on")
}

// InstallDeps downloads the module dependencies.
func InstallDeps() error {
	fmt.Println(color.YellowString("Installing dependencies."))

	if err := sh.RunV("go", "mod", "tidy"); err != nil {
		return fmt.Errorf(color.RedString(
			"failed to install dependencies: %v", err))
	}
	return nil
}

// Compile builds bin/tarforge for GOOS/GOARCH (default: the host) with the
// version taken from git describe.
//
// Example usage:
//
// ```go
// mage compile
// GOOS=darwin GOARCH=arm64 mage compile
// ```
func Compile() error {
	cwd, err := changeToRepoRoot()
	if err != nil {
		return err
	}
	defer os.Chdir(cwd)

	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil || strings.TrimSpace(version) == "" {
		version = "dev"
	}

	out := filepath.Join("bin", "tarforge")
	fmt.Println(color.YellowString("Compiling %s (%s).", out, version))

	ldflags := fmt.Sprintf("-s -w -X %s=%s", versionVar, strings.TrimSpace(version))
	env := map[string]string{"CGO_ENABLED": "0"}
	if err := sh.RunWithV(env, "go", "build", "-trimpath", "-ldflags", ldflags, "-o", out, "./cmd/tarforge"); err != nil {
		return fmt.Errorf(color.RedString("failed to compile tarforge: %v", err))
	}
	return nil
}

// GenerateSchema writes schema/tarforge-config.json.
func GenerateSchema() error {
	cwd, err := changeToRepoRoot()
	if err != nil {
		return err
	}
	defer os.Chdir(cwd)

	fmt.Println(color.YellowString("Generating the config schema."))
	return sh.RunV("go", "run", "./cmd/schema-gen")
}

// Clean removes compiled binaries.
func Clean() error {
	cwd, err := changeToRepoRoot()
	if err != nil {
		return err
	}
	defer os.Chdir(cwd)

	fmt.Println(color.YellowString("Removing bin/."))
	return sh.Rm("bin")
}
