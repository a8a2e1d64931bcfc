// Package docker implements the container infrastructure provider on top of the Docker Engine API. Containers
// created by the provider carry labels recording their declared size, so that listings can report sizes back to the
// reconciler.
package docker

import (
	"context"
	"strconv"
	"strings"

	"github.com/cyverse/compute-qms/internal/infra"
	"github.com/cyverse/compute-qms/internal/model"
	"github.com/cyverse/compute-qms/logging"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logging.GetLogger().WithFields(logrus.Fields{"package": "docker"})

// Client is the subset of the Docker client used by the provider.
type Client interface {
	ContainerCreate(
		ctx context.Context,
		config *container.Config,
		hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig,
		platform *ocispec.Platform,
		containerName string,
	) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	Close() error
}

// Config holds the provider settings.
type Config struct {
	// Network is the Docker network that new containers join. Empty means the daemon default.
	Network string

	// LabelPrefix namespaces the labels that the provider sets on containers.
	LabelPrefix string

	// DefaultImage is used when a creation request doesn't name an image.
	DefaultImage string

	// ManagedOnly limits listings to containers created by the provider.
	ManagedOnly bool
}

// Provider manages containers through a Docker daemon.
type Provider struct {
	cli Client
	cfg Config
}

// New creates a provider connected to the daemon described by the environment.
func New(cfg Config) (*Provider, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "unable to create the docker client")
	}
	return NewWithClient(cli, cfg), nil
}

// NewWithClient creates a provider that uses the given client.
func NewWithClient(cli Client, cfg Config) *Provider {
	if cfg.DefaultImage == "" {
		cfg.DefaultImage = "alpine:latest"
	}
	return &Provider{cli: cli, cfg: cfg}
}

// Close closes the Docker client.
func (p *Provider) Close() error {
	return p.cli.Close()
}

func (p *Provider) label(name string) string {
	return p.cfg.LabelPrefix + "." + name
}

func (p *Provider) managedLabel() string {
	return p.label("managed")
}

// labels returns the labels to set on a new container.
func (p *Provider) labels(spec infra.Spec) map[string]string {
	labels := make(map[string]string, len(spec.Labels)+4)
	for k, v := range spec.Labels {
		labels[k] = v
	}
	labels[p.managedLabel()] = "true"
	labels[p.label("vcpus")] = strconv.FormatInt(spec.Size.VCPUs, 10)
	labels[p.label("memory_mb")] = strconv.FormatInt(spec.Size.MemoryMB, 10)
	labels[p.label("disk_gb")] = strconv.FormatInt(spec.Size.DiskGB, 10)
	return labels
}

// sizeFromLabels recovers the declared size from a container's labels. Missing or malformed labels count as zero.
func (p *Provider) sizeFromLabels(labels map[string]string) model.ResourceSize {
	parse := func(name string) int64 {
		v, err := strconv.ParseInt(labels[p.label(name)], 10, 64)
		if err != nil {
			return 0
		}
		return v
	}
	return model.ResourceSize{
		VCPUs:    parse("vcpus"),
		MemoryMB: parse("memory_mb"),
		DiskGB:   parse("disk_gb"),
	}
}

func checkKind(kind model.ResourceType) error {
	if kind != model.ResourceTypeContainer {
		return &infra.ErrUnsupportedKind{Kind: kind}
	}
	return nil
}

// CreateResource creates and starts a container.
func (p *Provider) CreateResource(ctx context.Context, kind model.ResourceType, spec infra.Spec) (*infra.Resource, error) {
	log := log.WithFields(logrus.Fields{"context": "creating container", "name": spec.Name})

	if err := checkKind(kind); err != nil {
		return nil, err
	}

	image := spec.Image
	if image == "" {
		image = p.cfg.DefaultImage
	}

	hostConfig := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: "unless-stopped"},
		Resources: container.Resources{
			NanoCPUs: spec.Size.VCPUs * 1e9,
			Memory:   spec.Size.MemoryMB * 1024 * 1024,
		},
	}

	var networkingConfig *network.NetworkingConfig
	if p.cfg.Network != "" {
		networkingConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{p.cfg.Network: {}},
		}
	}

	resp, err := p.cli.ContainerCreate(
		ctx,
		&container.Config{Image: image, Labels: p.labels(spec)},
		hostConfig,
		networkingConfig,
		nil,
		spec.Name,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create container %s", spec.Name)
	}

	if err = p.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Don't leave a created but unstarted container behind.
		if rmErr := p.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true}); rmErr != nil {
			log.Errorf("unable to remove container %s after a failed start: %s", resp.ID, rmErr)
		}
		return nil, errors.Wrapf(err, "unable to start container %s", spec.Name)
	}

	log.Infof("started container %s", resp.ID)

	return &infra.Resource{
		ID:    resp.ID,
		Name:  spec.Name,
		Type:  model.ResourceTypeContainer,
		Size:  spec.Size,
		State: "running",
	}, nil
}

// DeleteResource force-removes a container.
func (p *Provider) DeleteResource(ctx context.Context, kind model.ResourceType, id string) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	err := p.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	return errors.Wrapf(err, "unable to remove container %s", id)
}

// ListResources lists containers on the daemon, including stopped ones. Unless the provider is limited to managed
// containers, containers created outside of the control plane are included and their sizes are reported as zero.
func (p *Provider) ListResources(ctx context.Context, kind model.ResourceType) ([]infra.Resource, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}

	opts := container.ListOptions{All: true}
	if p.cfg.ManagedOnly {
		opts.Filters = filters.NewArgs(filters.Arg("label", p.managedLabel()+"=true"))
	}

	containers, err := p.cli.ContainerList(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "unable to list containers")
	}

	result := make([]infra.Resource, 0, len(containers))
	for _, c := range containers {
		name := c.ID
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		result = append(result, infra.Resource{
			ID:    c.ID,
			Name:  name,
			Type:  model.ResourceTypeContainer,
			Size:  p.sizeFromLabels(c.Labels),
			State: string(c.State),
		})
	}

	return result, nil
}
