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

// Package config loads tarforge settings from defaults, an optional
// config.yaml, and TARFORGE_* environment variables. Command-line flags are
// layered on top by the command package, giving the precedence
// flags > env > config file > defaults.
package config

import (
	stderrors "errors"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for every environment variable override.
const EnvPrefix = "TARFORGE"

// ConfigFileName is the file name (without extension) searched for in the
// config directories.
const ConfigFileName = "config"

// Config is the effective tarforge configuration.
type Config struct {
	// BaseDir is the installation directory. Relative paths (archive, output,
	// scratch area, Dockerfile) resolve against it. Empty means the directory
	// holding the tarforge executable.
	BaseDir   string          `mapstructure:"base_dir" yaml:"base_dir" json:"base_dir,omitempty"`
	Log       LogConfig       `mapstructure:"log" yaml:"log" json:"log"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output" json:"output"`
	Build     BuildConfig     `mapstructure:"build" yaml:"build" json:"build"`
	Native    NativeConfig    `mapstructure:"native" yaml:"native" json:"native"`
	Container ContainerConfig `mapstructure:"container" yaml:"container" json:"container"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	Format string `mapstructure:"format" yaml:"format" json:"format" jsonschema:"enum=color,enum=text,enum=json"`
}

// OutputConfig holds the artifact output root.
type OutputConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir" json:"dir"`
}

// BuildConfig holds settings shared by every build strategy.
type BuildConfig struct {
	// Mode is the build type used when --type is not given.
	Mode string `mapstructure:"mode" yaml:"mode" json:"mode" jsonschema:"enum=native,enum=containerized,enum=clean,enum=all"`
	// BinaryName is the program produced by make. Empty derives it from the
	// extracted source directory name.
	BinaryName string `mapstructure:"binary_name" yaml:"binary_name" json:"binary_name,omitempty"`
	// ScratchDir receives the extracted source tree.
	ScratchDir string `mapstructure:"scratch_dir" yaml:"scratch_dir" json:"scratch_dir"`
	// LegacyArtifacts are top-level files left by older layouts that clean removes.
	LegacyArtifacts []string `mapstructure:"legacy_artifacts" yaml:"legacy_artifacts" json:"legacy_artifacts,omitempty"`
}

// NativeConfig overrides the host toolchain.
type NativeConfig struct {
	Make    string `mapstructure:"make" yaml:"make" json:"make"`
	CC      string `mapstructure:"cc" yaml:"cc" json:"cc,omitempty"`
	CFlags  string `mapstructure:"cflags" yaml:"cflags" json:"cflags,omitempty"`
	LDFlags string `mapstructure:"ldflags" yaml:"ldflags" json:"ldflags,omitempty"`
}

// ContainerConfig holds the containerized cross-compilation settings.
type ContainerConfig struct {
	BuilderName string   `mapstructure:"builder_name" yaml:"builder_name" json:"builder_name"`
	Platforms   []string `mapstructure:"platforms" yaml:"platforms" json:"platforms"`
	TargetStage string   `mapstructure:"target_stage" yaml:"target_stage" json:"target_stage"`
	Dockerfile  string   `mapstructure:"dockerfile" yaml:"dockerfile" json:"dockerfile"`
	// WorkDir is the working directory of the builder stage; the binary is
	// found there in the exported filesystem.
	WorkDir     string `mapstructure:"workdir" yaml:"workdir" json:"workdir"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency" json:"concurrency" jsonschema:"minimum=1"`
	// Endpoint is a BuildKit address (tcp://, unix://, docker-container://).
	// Empty uses the persistent buildx builder.
	Endpoint string    `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint,omitempty"`
	TLS      TLSConfig `mapstructure:"tls" yaml:"tls" json:"tls"`
}

// TLSConfig holds client certificates for a remote BuildKit endpoint.
type TLSConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	CACert  string `mapstructure:"ca_cert" yaml:"ca_cert" json:"ca_cert,omitempty"`
	Cert    string `mapstructure:"cert" yaml:"cert" json:"cert,omitempty"`
	Key     string `mapstructure:"key" yaml:"key" json:"key,omitempty"`
}

// ErrConfigNotFound is returned by Load when no config file exists in any of
// the searched directories. The returned Config still holds the defaults.
var ErrConfigNotFound = stderrors.New("config file not found")

// Load reads config.yaml from the first search directory that has one and
// returns the merged configuration. When no file exists it returns the
// defaults together with an error satisfying IsNotFoundError.
func Load() (*Config, error) {
	v := New()
	for _, dir := range SearchDirs() {
		v.AddConfigPath(dir)
	}

	readErr := v.ReadInConfig()
	if readErr != nil && !IsNotFoundError(readErr) {
		return nil, readErr
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	if readErr != nil {
		return cfg, ErrConfigNotFound
	}
	return cfg, nil
}

// FindConfigFile returns the path of the config file Load would read. When
// no search directory has one it returns ErrConfigNotFound.
func FindConfigFile() (string, error) {
	v := New()
	for _, dir := range SearchDirs() {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		if IsNotFoundError(err) {
			return "", ErrConfigNotFound
		}
		return "", err
	}
	return v.ConfigFileUsed(), nil
}

// LoadFromPath loads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	v := New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return unmarshal(v)
}

// Default returns the built-in defaults with environment overrides applied.
func Default() *Config {
	cfg, err := unmarshal(New())
	if err != nil {
		return &Config{}
	}
	return cfg
}

// New returns a viper instance carrying the defaults and environment
// bindings, ready for a config file or flags to be layered on.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName(ConfigFileName)
	v.SetConfigType("yaml")

	setDefaults(v)

	// TARFORGE_LOG_LEVEL, TARFORGE_CONTAINER_BUILDER_NAME, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults sets default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("base_dir", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "color")

	v.SetDefault("output.dir", "output")

	v.SetDefault("build.mode", "containerized")
	v.SetDefault("build.binary_name", "")
	v.SetDefault("build.scratch_dir", ".scratch")
	v.SetDefault("build.legacy_artifacts", []string{})

	v.SetDefault("native.make", "make")
	v.SetDefault("native.cc", "")
	v.SetDefault("native.cflags", "")
	v.SetDefault("native.ldflags", "")

	v.SetDefault("container.builder_name", "tarforge-builder")
	v.SetDefault("container.platforms", []string{"linux/arm64", "linux/amd64"})
	v.SetDefault("container.target_stage", "builder")
	v.SetDefault("container.dockerfile", "Dockerfile")
	v.SetDefault("container.workdir", "/build")
	v.SetDefault("container.concurrency", 1)
	v.SetDefault("container.endpoint", "")
	v.SetDefault("container.tls.enabled", false)
	v.SetDefault("container.tls.ca_cert", "")
	v.SetDefault("container.tls.cert", "")
	v.SetDefault("container.tls.key", "")
}

// bindEnvVars explicitly binds environment variables to nested config keys,
// which AutomaticEnv alone does not resolve during Unmarshal.
func bindEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		_ = v.BindEnv(key, EnvVar(key))
	}
	// BuildKit's own variable is honored for the endpoint.
	_ = v.BindEnv("container.endpoint", "TARFORGE_CONTAINER_ENDPOINT", "BUILDKIT_HOST")
}

// EnvVar returns the environment variable overriding key, e.g.
// container.builder_name -> TARFORGE_CONTAINER_BUILDER_NAME.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// IsNotFoundError reports whether err means no config file was found.
func IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var notFound viper.ConfigFileNotFoundError
	if stderrors.As(err, &notFound) {
		return true
	}
	return stderrors.Is(err, ErrConfigNotFound) || stderrors.Is(err, os.ErrNotExist)
}
