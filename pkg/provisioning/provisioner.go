// Package provisioning starts the dependent service the snapshot is loaded into.
package provisioning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/rs/zerolog"
)

const (
	DefaultImage            = "qdrant/qdrant"
	DefaultPort             = 6333
	DefaultStorageDir       = "qdrant_storage"
	DefaultContainerStorage = "/qdrant/storage"

	stateRunning = "running"
)

// ErrProvisionFailure wraps every error returned by a Provisioner.
var ErrProvisionFailure = errors.New("provision failed")

// Provisioner makes sure a named service instance is running. It is a no-op
// when the instance is already up.
type Provisioner interface {
	EnsureRunning(ctx context.Context, name string) error
}

// DockerConfig describes the container started by DockerProvisioner.
type DockerConfig struct {
	Image            string
	Port             int
	StorageDir       string
	ContainerStorage string
	Pull             bool
}

// DefaultDockerConfig binds ./qdrant_storage and port 6333.
func DefaultDockerConfig() DockerConfig {
	storage := DefaultStorageDir
	if wd, err := os.Getwd(); err == nil {
		storage = filepath.Join(wd, DefaultStorageDir)
	}
	return DockerConfig{
		Image:            DefaultImage,
		Port:             DefaultPort,
		StorageDir:       storage,
		ContainerStorage: DefaultContainerStorage,
		Pull:             true,
	}
}

// dockerAPI is the part of the Docker Engine client the provisioner uses.
type dockerAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	Close() error
}

// DockerProvisioner runs the service as a local Docker container.
type DockerProvisioner struct {
	api    dockerAPI
	cfg    DockerConfig
	logger zerolog.Logger
}

// NewDockerProvisioner connects to the Docker daemon configured in the
// environment (DOCKER_HOST and friends).
func NewDockerProvisioner(cfg DockerConfig, logger zerolog.Logger) (*DockerProvisioner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("%w: docker client: %w", ErrProvisionFailure, err)
	}
	return newDockerProvisioner(cli, cfg, logger), nil
}

func newDockerProvisioner(api dockerAPI, cfg DockerConfig, logger zerolog.Logger) *DockerProvisioner {
	if cfg.Image == "" {
		cfg.Image = DefaultImage
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.ContainerStorage == "" {
		cfg.ContainerStorage = DefaultContainerStorage
	}
	return &DockerProvisioner{
		api:    api,
		cfg:    cfg,
		logger: logger.With().Str("component", "provisioner").Logger(),
	}
}

func (p *DockerProvisioner) EnsureRunning(ctx context.Context, name string) error {
	existing, err := p.find(ctx, name)
	if err != nil {
		return err
	}

	if existing != nil {
		if existing.State == stateRunning {
			p.logger.Info().Str("container", name).Msg("Container is already running")
			return nil
		}
		p.logger.Info().Str("container", name).Str("state", string(existing.State)).Msg("Starting existing container")
		if err := p.api.ContainerStart(ctx, existing.ID, container.StartOptions{}); err != nil {
			return fmt.Errorf("%w: start %s: %w", ErrProvisionFailure, name, err)
		}
		return nil
	}

	p.logger.Info().Str("container", name).Str("image", p.cfg.Image).Msg("Starting the Docker container")
	if p.cfg.Pull {
		if err := p.pull(ctx); err != nil {
			return err
		}
	}

	port := nat.Port(strconv.Itoa(p.cfg.Port) + "/tcp")
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			port: []nat.PortBinding{{HostPort: strconv.Itoa(p.cfg.Port)}},
		},
	}
	if p.cfg.StorageDir != "" {
		if err := os.MkdirAll(p.cfg.StorageDir, 0755); err != nil {
			return fmt.Errorf("%w: storage dir: %w", ErrProvisionFailure, err)
		}
		hostCfg.Binds = []string{p.cfg.StorageDir + ":" + p.cfg.ContainerStorage}
	}

	created, err := p.api.ContainerCreate(ctx, &container.Config{
		Image:        p.cfg.Image,
		ExposedPorts: nat.PortSet{port: struct{}{}},
	}, hostCfg, nil, nil, name)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrProvisionFailure, name, err)
	}

	if err := p.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("%w: start %s: %w", ErrProvisionFailure, name, err)
	}
	p.logger.Info().Str("container", name).Str("id", created.ID).Msg("Container started")
	return nil
}

func (p *DockerProvisioner) Close() error {
	return p.api.Close()
}

// find returns the container whose name matches exactly, running or not.
func (p *DockerProvisioner) find(ctx context.Context, name string) (*container.Summary, error) {
	list, err := p.api.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", "^/?"+name+"$")),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list containers: %w", ErrProvisionFailure, err)
	}
	for i := range list {
		for _, n := range list[i].Names {
			if n == "/"+name || n == name {
				return &list[i], nil
			}
		}
	}
	return nil, nil
}

func (p *DockerProvisioner) pull(ctx context.Context) error {
	rc, err := p.api.ImagePull(ctx, p.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("%w: pull %s: %w", ErrProvisionFailure, p.cfg.Image, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("%w: pull %s: %w", ErrProvisionFailure, p.cfg.Image, err)
	}
	return nil
}
