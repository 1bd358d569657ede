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

// Package buildkit implements builder.Backend with Docker and BuildKit.
//
// By default the backend uses a persistent buildx builder running in a
// docker-container driver, creating it on first use. When an endpoint is
// configured it connects to that BuildKit daemon directly (tcp://, unix://
// or docker-container://), with optional mutual TLS for tcp.
package buildkit

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	dockerconfig "github.com/docker/cli/cli/config"
	"github.com/docker/docker/api/types"
	dockercontainer "github.com/docker/docker/api/types/container"
	dockerclient "github.com/docker/docker/client"
	"github.com/moby/buildkit/client"
	"github.com/moby/buildkit/client/llb"
	"github.com/moby/buildkit/session"
	"github.com/moby/buildkit/session/auth/authprovider"
	digest "github.com/opencontainers/go-digest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"

	// registers the docker-container:// connection scheme
	_ "github.com/moby/buildkit/client/connhelper/dockercontainer"

	"github.com/cowdogmoo/tarforge/builder"
	"github.com/cowdogmoo/tarforge/config"
	"github.com/cowdogmoo/tarforge/errors"
	"github.com/cowdogmoo/tarforge/logging"
)

const (
	// containerPrefix is how buildx names the containers of a
	// docker-container builder: buildx_buildkit_<builder><node index>.
	containerPrefix = "buildx_buildkit_"

	dockerContainerScheme = "docker-container://"

	dockerfileFrontend = "dockerfile.v0"
)

// Solver is the part of the BuildKit client the backend uses.
type Solver interface {
	Info(ctx context.Context) (*client.Info, error)
	Solve(ctx context.Context, def *llb.Definition, opt client.SolveOpt, statusChan chan *client.SolveStatus) (*client.SolveResponse, error)
	Close() error
}

// DialFunc opens a BuildKit connection.
type DialFunc func(ctx context.Context, address string, opts ...client.ClientOpt) (Solver, error)

func dialBuildKit(ctx context.Context, address string, opts ...client.ClientOpt) (Solver, error) {
	c, err := client.New(ctx, address, opts...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// DockerClient is the part of the Engine API the backend uses. The Docker
// SDK client satisfies it.
type DockerClient interface {
	Ping(ctx context.Context) (types.Ping, error)
	ContainerList(ctx context.Context, options dockercontainer.ListOptions) ([]dockercontainer.Summary, error)
	Close() error
}

var _ DockerClient = (*dockerclient.Client)(nil)

// Backend reaches BuildKit through Docker buildx or a configured endpoint.
type Backend struct {
	cfg    config.ContainerConfig
	runner builder.CommandRunner
	docker DockerClient
	dial   DialFunc

	mu      sync.Mutex
	solvers []Solver
}

// Verify that Backend implements builder.Backend at compile time
var _ builder.Backend = (*Backend)(nil)

// NewBackend creates a backend using the Docker environment (DOCKER_HOST and
// friends) for the Engine API and runner for the docker CLI.
func NewBackend(cfg config.ContainerConfig, runner builder.CommandRunner) (*Backend, error) {
	dockerCli, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Newf(errors.ErrBackendUnavailable, "failed to create Docker client: %v", err)
	}
	return newBackend(cfg, runner, dockerCli, dialBuildKit), nil
}

func newBackend(cfg config.ContainerConfig, runner builder.CommandRunner, docker DockerClient, dial DialFunc) *Backend {
	return &Backend{cfg: cfg, runner: runner, docker: docker, dial: dial}
}

// ContainerName returns the container buildx runs for the first node of
// the named builder.
func ContainerName(builderName string) string {
	return containerPrefix + builderName + "0"
}

// Probe checks that the Docker daemon answers and that the buildx plugin is
// installed. With a remote endpoint neither is needed and reachability is
// checked when connecting.
func (b *Backend) Probe(ctx context.Context) error {
	if b.remoteEndpoint() {
		logging.DebugContext(ctx, "Using remote BuildKit endpoint %s; skipping Docker checks", logging.RedactURL(b.cfg.Endpoint))
		return nil
	}

	if _, err := b.docker.Ping(ctx); err != nil {
		return errors.Newf(errors.ErrBackendUnavailable, "cannot connect to Docker daemon: %v (is Docker running?)", err)
	}

	out, err := b.runner.Output(ctx, builder.Command{Name: "docker", Args: []string{"buildx", "version"}})
	if err != nil {
		return errors.Newf(errors.ErrBackendUnavailable, "docker buildx is not available: %v", err)
	}
	logging.DebugContext(ctx, "buildx: %s", strings.TrimSpace(string(out)))
	return nil
}

// EnsureBuilder returns a connected handle for the named builder. The
// builder is reused when its container is running, bootstrapped when it
// exists but is stopped, and created otherwise. A configured endpoint
// bypasses buildx entirely.
func (b *Backend) EnsureBuilder(ctx context.Context, name string) (builder.BuilderHandle, error) {
	addr := b.cfg.Endpoint
	if addr == "" {
		if name == "" {
			return nil, errors.Newf(errors.ErrInvalidArguments, "container builder name is empty")
		}
		containerName, err := b.ensureBuildxBuilder(ctx, name)
		if err != nil {
			return nil, err
		}
		addr = dockerContainerScheme + containerName
	} else {
		name = logging.RedactURL(addr)
	}

	solver, err := b.connect(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &Handle{name: name, solver: solver}, nil
}

func (b *Backend) ensureBuildxBuilder(ctx context.Context, name string) (string, error) {
	containerName := ContainerName(name)

	running, err := b.containerRunning(ctx, containerName)
	if err != nil {
		return "", err
	}
	if running {
		logging.DebugContext(ctx, "Reusing builder %s (container: %s)", name, containerName)
		return containerName, nil
	}

	inspect := builder.Command{Name: "docker", Args: []string{"buildx", "inspect", "--bootstrap", name}}
	if err := b.runner.Run(ctx, inspect); err != nil {
		logging.InfoContext(ctx, "Creating builder %s", name)
		create := builder.Command{Name: "docker", Args: []string{
			"buildx", "create", "--name", name, "--driver", "docker-container", "--bootstrap",
		}}
		if err := b.runner.Run(ctx, create); err != nil {
			return "", errors.Newf(errors.ErrBackendUnavailable, "failed to create builder %s: %v", name, err)
		}
	}

	running, err = b.containerRunning(ctx, containerName)
	if err != nil {
		return "", err
	}
	if !running {
		return "", errors.Newf(errors.ErrBackendUnavailable, "builder container %s is not running after bootstrap", containerName)
	}
	return containerName, nil
}

// containerRunning scans containers for a running one named containerName.
func (b *Backend) containerRunning(ctx context.Context, containerName string) (bool, error) {
	containers, err := b.docker.ContainerList(ctx, dockercontainer.ListOptions{All: true})
	if err != nil {
		return false, errors.Newf(errors.ErrBackendUnavailable, "failed to list containers: %v", err)
	}

	for _, c := range containers {
		if c.State != "running" {
			continue
		}
		for _, n := range c.Names {
			if strings.TrimPrefix(n, "/") == containerName {
				return true, nil
			}
		}
	}
	return false, nil
}

func (b *Backend) connect(ctx context.Context, addr string) (Solver, error) {
	opts, err := b.clientOptions(ctx, addr)
	if err != nil {
		return nil, err
	}

	solver, err := b.dial(ctx, addr, opts...)
	if err != nil {
		return nil, errors.Newf(errors.ErrBackendUnavailable, "failed to connect to BuildKit at %s: %v", logging.RedactURL(addr), err)
	}

	info, err := solver.Info(ctx)
	if err != nil {
		_ = solver.Close()
		return nil, errors.Newf(errors.ErrBackendUnavailable, "failed to verify BuildKit connection at %s: %v", logging.RedactURL(addr), err)
	}
	logging.InfoContext(ctx, "BuildKit client connected (version %s)", info.BuildkitVersion.Version)

	b.mu.Lock()
	b.solvers = append(b.solvers, solver)
	b.mu.Unlock()
	return solver, nil
}

func (b *Backend) clientOptions(ctx context.Context, addr string) ([]client.ClientOpt, error) {
	if !strings.HasPrefix(addr, "tcp://") {
		return nil, nil
	}

	if b.cfg.TLS.Enabled {
		tlsConfig, err := loadTLSConfig(b.cfg.TLS)
		if err != nil {
			return nil, errors.Wrap("load TLS config", "", err)
		}
		logging.InfoContext(ctx, "TLS enabled for BuildKit connection")
		return []client.ClientOpt{client.WithGRPCDialOption(
			grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)),
		)}, nil
	}

	logging.WarnContext(ctx, "Connecting to BuildKit without TLS (insecure)")
	return []client.ClientOpt{client.WithGRPCDialOption(
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)}, nil
}

func (b *Backend) remoteEndpoint() bool {
	return b.cfg.Endpoint != "" && !strings.HasPrefix(b.cfg.Endpoint, dockerContainerScheme)
}

// Close releases every BuildKit connection and the Docker client. The
// builder container itself keeps running for the next invocation.
func (b *Backend) Close() error {
	b.mu.Lock()
	solvers := b.solvers
	b.solvers = nil
	b.mu.Unlock()

	var errs []error
	for _, s := range solvers {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close BuildKit client: %w", err))
		}
	}
	if b.docker != nil {
		if err := b.docker.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Docker client: %w", err))
		}
	}
	return stderrors.Join(errs...)
}

// loadTLSConfig creates a TLS configuration for secure BuildKit connections.
//
// The function configures:
//   - TLS 1.3 minimum version
//   - Optional CA certificate for server verification (cfg.CACert)
//   - Optional client certificate for mutual TLS (cfg.Cert + cfg.Key)
//
// Certificate files should be PEM-encoded.
func loadTLSConfig(cfg config.TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS13,
	}

	if cfg.CACert != "" {
		path, err := config.ExpandPath(cfg.CACert)
		if err != nil {
			return nil, err
		}
		caCert, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA cert")
		}
		tlsConfig.RootCAs = caCertPool
	}

	if cfg.Cert != "" && cfg.Key != "" {
		certPath, err := config.ExpandPath(cfg.Cert)
		if err != nil {
			return nil, err
		}
		keyPath, err := config.ExpandPath(cfg.Key)
		if err != nil {
			return nil, err
		}
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load client cert/key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	} else if cfg.Cert != "" || cfg.Key != "" {
		return nil, fmt.Errorf("client cert and key must be set together")
	}

	return tlsConfig, nil
}

// Handle is a connected builder.
type Handle struct {
	name   string
	solver Solver
}

// Verify that Handle implements builder.BuilderHandle at compile time
var _ builder.BuilderHandle = (*Handle)(nil)

// Name returns the builder name, or the redacted endpoint for direct
// connections.
func (h *Handle) Name() string { return h.name }

// BuildStage solves the Dockerfile up to req.Target for req.Platform and
// writes the resulting filesystem into req.OutputDir with the local
// exporter.
func (h *Handle) BuildStage(ctx context.Context, req builder.StageRequest) error {
	platformName := req.Platform.Platform()
	logging.DebugContext(ctx, "Solving %s (target %s) for %s", req.Dockerfile, req.Target, platformName)

	ch := make(chan *client.SolveStatus)
	done := make(chan struct{})

	go displayProgress(ctx, platformName, ch, done)

	_, err := h.solver.Solve(ctx, nil, solveOpt(ctx, req), ch)
	<-done

	if err != nil {
		return errors.Wrap("build stage", platformName, err)
	}
	return nil
}

func solveOpt(ctx context.Context, req builder.StageRequest) client.SolveOpt {
	frontendAttrs := map[string]string{
		"filename": filepath.Base(req.Dockerfile),
		"platform": req.Platform.Platform(),
	}
	if req.Target != "" {
		frontendAttrs["target"] = req.Target
	}
	for key, value := range req.BuildArgs {
		frontendAttrs["build-arg:"+key] = value
	}

	return client.SolveOpt{
		Frontend:      dockerfileFrontend,
		FrontendAttrs: frontendAttrs,
		Exports: []client.ExportEntry{
			{
				Type:      client.ExporterLocal,
				OutputDir: req.OutputDir,
			},
		},
		LocalDirs: map[string]string{
			"context":    req.ContextDir,
			"dockerfile": filepath.Dir(req.Dockerfile),
		},
		Session: createAuthProvider(ctx),
	}
}

// createAuthProvider creates a BuildKit session auth provider from Docker config.
// This enables authentication for base image pulls from private registries.
// Returns nil if no Docker config is available (falls back to anonymous access).
func createAuthProvider(ctx context.Context) []session.Attachable {
	dockerCfg, err := dockerconfig.Load(dockerconfig.Dir())
	if err != nil {
		logging.DebugContext(ctx, "Failed to load Docker config for auth: %v (using anonymous access)", err)
		return nil
	}

	ap := authprovider.NewDockerAuthProvider(authprovider.DockerAuthProviderConfig{
		ConfigFile: dockerCfg,
	})
	return []session.Attachable{ap}
}

// displayProgress consumes BuildKit solve status updates until ch is
// closed, then closes done. Vertex names go to the debug log and build
// output is streamed.
func displayProgress(ctx context.Context, platformName string, ch <-chan *client.SolveStatus, done chan<- struct{}) {
	defer close(done)

	for status := range ch {
		// codespell:ignore vertexes
		for _, vertex := range status.Vertexes {
			if vertex.Name != "" {
				logging.DebugContext(ctx, "[%s %s] %s", platformName, shortDigest(vertex.Digest), vertex.Name)
			}
		}
		for _, log := range status.Logs {
			logging.PrintContext(ctx, string(log.Data))
		}
	}
}

func shortDigest(d digest.Digest) string {
	if d.Validate() != nil {
		return "-"
	}
	enc := d.Encoded()
	if len(enc) > 12 {
		enc = enc[:12]
	}
	return enc
}
