// Package docker runs discovery as a one-shot container per job on the
// host Docker daemon.
package docker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"scholarsource/internal/config"
	"scholarsource/internal/engine"
	"scholarsource/internal/job"
)

const (
	managedByLabel = "managed-by"
	managedByValue = "scholarsource"
	jobIDLabel     = "job.id"

	// Environment handed to the crew container.
	envInputs   = "SCHOLARSOURCE_INPUTS"
	envJobID    = "SCHOLARSOURCE_JOB_ID"
	envToolsURL = "SCHOLARSOURCE_TOOLS_URL"

	stopTimeoutSeconds = 10
	cleanupTimeout     = 30 * time.Second
)

// Engine implements job.Engine using Docker.
type Engine struct {
	client   *client.Client
	parser   *engine.Parser
	image    string
	network  string
	cpu      float64
	memoryMB int
	toolsURL string
	active   *containers
	logger   *slog.Logger
}

// New connects to the daemon from the environment (DOCKER_HOST etc.) and
// removes containers left behind by a previous process.
func New(ctx context.Context, cfg config.EngineConfig, parser *engine.Parser, logger *slog.Logger) (*Engine, error) {
	if parser == nil {
		return nil, fmt.Errorf("parser is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	e := &Engine{
		client:   dockerClient,
		parser:   parser,
		image:    cfg.Image,
		network:  cfg.Network,
		cpu:      cfg.CPU,
		memoryMB: cfg.Memory,
		toolsURL: cfg.ToolsURL,
		active:   newContainers(),
		logger:   logger.With("component", "engine", "engine", "docker"),
	}

	if n, err := e.sweep(ctx); err != nil {
		e.logger.Warn("Failed to sweep leftover containers", "error", err)
	} else if n > 0 {
		e.logger.Info("Removed leftover containers", "count", n)
	}
	return e, nil
}

// Name identifies the engine in logs and metadata.
func (e *Engine) Name() string { return "docker" }

// Discover runs the crew image for one job and parses its stdout.
func (e *Engine) Discover(ctx context.Context, jobID string, in job.Inputs) (*job.Result, error) {
	logger := e.logger.With("job_id", jobID)

	if err := e.active.reserve(jobID); err != nil {
		return nil, err
	}
	defer func() {
		if id := e.active.release(jobID); id != "" {
			e.removeContainer(id)
		}
	}()

	if err := e.pullImageIfNeeded(ctx); err != nil {
		return nil, fmt.Errorf("pull image %s: %w", e.image, err)
	}

	containerID, err := e.createContainer(ctx, jobID, in)
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	e.active.commit(jobID, containerID)

	started := time.Now()
	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}
	logger.Debug("Container started", "container", shortID(containerID))

	exitCode, err := e.waitForExit(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("wait for container: %w", err)
	}

	stdout, stderr, err := e.collectLogs(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("read container logs: %w", err)
	}
	logger.Info("Container exited", "exit_code", exitCode, "duration", time.Since(started))

	if exitCode != 0 {
		return nil, exitError(exitCode, stderr)
	}
	return e.parser.Parse(stdout, in)
}

// Ready checks that the Docker daemon is reachable.
func (e *Engine) Ready(ctx context.Context) error {
	_, err := e.client.Ping(ctx)
	return err
}

// Close removes any containers still running and releases the client.
func (e *Engine) Close() error {
	for _, id := range e.active.active() {
		e.removeContainer(id)
	}
	return e.client.Close()
}

func (e *Engine) pullImageIfNeeded(ctx context.Context) error {
	if _, err := e.client.ImageInspect(ctx, e.image); err == nil {
		return nil
	}

	e.logger.Info("Pulling engine image", "image", e.image)
	reader, err := e.client.ImagePull(ctx, e.image, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

func (e *Engine) createContainer(ctx context.Context, jobID string, in job.Inputs) (string, error) {
	env, err := containerEnv(jobID, in, e.toolsURL)
	if err != nil {
		return "", err
	}

	containerConfig := &container.Config{
		Image: e.image,
		Env:   env,
		Labels: map[string]string{
			managedByLabel: managedByValue,
			jobIDLabel:     jobID,
		},
	}

	hostConfig := &container.HostConfig{
		ExtraHosts: []string{"host.docker.internal:host-gateway"},
		Resources: container.Resources{
			NanoCPUs: int64(e.cpu * 1e9),
			Memory:   int64(e.memoryMB) * 1024 * 1024,
		},
	}
	if e.network != "" {
		hostConfig.NetworkMode = container.NetworkMode(e.network)
	}

	resp, err := e.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "scholarsource-job-"+jobID)
	if err != nil {
		return "", err
	}
	for _, w := range resp.Warnings {
		e.logger.Warn("Container create warning", "job_id", jobID, "warning", w)
	}
	return resp.ID, nil
}

func (e *Engine) waitForExit(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := e.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("%s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	}
}

// collectLogs reads the finished container's output and splits the
// multiplexed stream into stdout and stderr.
func (e *Engine) collectLogs(ctx context.Context, containerID string) ([]byte, string, error) {
	logs, err := e.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, "", err
	}
	defer logs.Close()

	return demux(logs)
}

func demux(r io.Reader) ([]byte, string, error) {
	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, r); err != nil {
		return nil, "", err
	}
	return stdout.Bytes(), stderr.String(), nil
}

// removeContainer stops and removes a container. It runs detached from
// the job's context so a cancelled job still gets cleaned up.
func (e *Engine) removeContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	timeout := stopTimeoutSeconds
	_ = e.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout})
	if err := e.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		e.logger.Warn("Failed to remove container", "container", shortID(containerID), "error", err)
	}
}

// sweep removes every container carrying the managed-by label. Any such
// container belongs to a process that is no longer running.
func (e *Engine) sweep(ctx context.Context) (int, error) {
	list, err := e.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", managedByLabel+"="+managedByValue)),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list containers: %w", err)
	}
	for _, c := range list {
		e.logger.Debug("Removing leftover container", "job_id", c.Labels[jobIDLabel], "state", c.State)
		e.removeContainer(c.ID)
	}
	return len(list), nil
}

func containerEnv(jobID string, in job.Inputs, toolsURL string) ([]string, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode inputs: %w", err)
	}
	env := []string{
		envJobID + "=" + jobID,
		envInputs + "=" + string(payload),
	}
	if toolsURL != "" {
		env = append(env, envToolsURL+"="+toolsURL)
	}
	return env, nil
}

func exitError(code int, stderr string) error {
	if line := lastLine(stderr); line != "" {
		return fmt.Errorf("engine exited with code %d: %s", code, line)
	}
	return fmt.Errorf("engine exited with code %d", code)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\r\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

var _ job.Engine = (*Engine)(nil)
