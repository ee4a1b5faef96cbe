package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TheRealFREDP3D/Qwen-Web-Bridge/internal/logging"
)

// ChromeImage is the container image used for remote browsers.
const ChromeImage = "browserless/chrome:latest"

// Instance is a browser container started by the Pool.
type Instance struct {
	ContainerID string
	ConnectURL  string
	Port        string
}

// Pool starts headless Chrome containers through the docker API.
type Pool struct {
	client *client.Client
	logger *zap.Logger
}

// NewPool connects to the docker daemon described by the environment.
func NewPool(logger *zap.Logger) (*Pool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &Pool{client: cli, logger: logging.OrNop(logger)}, nil
}

// StartBrowser creates and starts a browser container and waits until its
// DevTools endpoint answers.
func (p *Pool) StartBrowser(ctx context.Context) (*Instance, error) {
	name := "qwen-bridge-" + uuid.NewString()[:8]

	containerConfig := &container.Config{
		Image: ChromeImage,
		Labels: map[string]string{
			"managed-by": "qwen-web-bridge",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=1",
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{
			"3000/tcp": struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			"3000/tcp": []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: "0"},
			},
		},
	}

	resp, err := p.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		p.remove(resp.ID)
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := p.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		p.remove(resp.ID)
		return nil, fmt.Errorf("failed to inspect container: %w", err)
	}

	bindings := inspect.NetworkSettings.Ports["3000/tcp"]
	if len(bindings) == 0 {
		p.remove(resp.ID)
		return nil, fmt.Errorf("container %s exposes no devtools port", resp.ID[:12])
	}
	port := bindings[0].HostPort

	if err := p.waitForBrowserReady(ctx, port); err != nil {
		p.remove(resp.ID)
		return nil, fmt.Errorf("browser failed to become ready: %w", err)
	}

	p.logger.Info("browser container started",
		zap.String("container", resp.ID[:12]),
		zap.String("port", port))

	return &Instance{
		ContainerID: resp.ID,
		ConnectURL:  fmt.Sprintf("ws://127.0.0.1:%s", port),
		Port:        port,
	}, nil
}

// StopBrowser stops and removes a container.
func (p *Pool) StopBrowser(ctx context.Context, containerID string) error {
	timeout := 10
	if err := p.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("failed to stop container: %w", err)
	}
	if err := p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

// EnsureImage pulls the browser image if it is not present locally.
func (p *Pool) EnsureImage(ctx context.Context) error {
	images, err := p.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == ChromeImage {
				return nil
			}
		}
	}

	p.logger.Info("pulling browser image", zap.String("image", ChromeImage))
	reader, err := p.client.ImagePull(ctx, ChromeImage, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close releases the docker client.
func (p *Pool) Close() error {
	return p.client.Close()
}

func (p *Pool) remove(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true}); err != nil {
		p.logger.Warn("failed to remove container", zap.String("container", containerID), zap.Error(err))
	}
}

// waitForBrowserReady polls /json/version until it answers 200.
func (p *Pool) waitForBrowserReady(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://127.0.0.1:%s/json/version", port)
	maxRetries := 20

	for i := 0; i < maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	return fmt.Errorf("browser did not become ready after %d retries", maxRetries)
}

// DockerLauncher launches browsers as containers from a Pool and drives them with rod.
type DockerLauncher struct {
	pool   *Pool
	logger *zap.Logger
}

// NewDockerLauncher wraps pool as a Launcher.
func NewDockerLauncher(pool *Pool, logger *zap.Logger) *DockerLauncher {
	return &DockerLauncher{pool: pool, logger: logging.OrNop(logger)}
}

// Launch starts a container and connects to it. Containers are always headless.
func (l *DockerLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	if !opts.Headless {
		l.logger.Warn("docker browsers are always headless, ignoring visible mode")
	}

	inst, err := l.pool.StartBrowser(ctx)
	if err != nil {
		return nil, err
	}

	stop := func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := l.pool.StopBrowser(stopCtx, inst.ContainerID); err != nil {
			l.logger.Warn("failed to stop browser container", zap.String("container", inst.ContainerID), zap.Error(err))
		}
	}

	b, err := ConnectRod(inst.ConnectURL, opts.NavigationTimeout, stop)
	if err != nil {
		stop()
		return nil, err
	}
	return b, nil
}
