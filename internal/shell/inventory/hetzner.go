package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/hetznercloud/hcloud-go/v2/hcloud"
)

// HetznerSource lists servers from a Hetzner Cloud account.
type HetznerSource struct {
	client *hcloud.Client
	logger *slog.Logger
}

// NewHetznerSource creates a Hetzner Cloud inventory source.
func NewHetznerSource(apiToken string, logger *slog.Logger) *HetznerSource {
	return &HetznerSource{
		client: hcloud.NewClient(hcloud.WithToken(apiToken)),
		logger: logger.With("source", "hetzner"),
	}
}

func (s *HetznerSource) Name() string { return "hetzner" }

// ListInstances returns all servers in the account.
func (s *HetznerSource) ListInstances(ctx context.Context) ([]Instance, error) {
	servers, err := s.client.Server.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list hetzner servers: %w", err)
	}

	instances := make([]Instance, 0, len(servers))
	for _, srv := range servers {
		instance := Instance{
			ProviderID: strconv.FormatInt(srv.ID, 10),
			Name:       srv.Name,
			Status:     string(srv.Status),
			CreatedAt:  srv.Created,
		}
		if srv.PublicNet.IPv4.IP != nil && !srv.PublicNet.IPv4.IP.IsUnspecified() {
			instance.PublicIP = srv.PublicNet.IPv4.IP.String()
		}
		if srv.Datacenter != nil && srv.Datacenter.Location != nil {
			instance.Region = srv.Datacenter.Location.Name
			instance.Country = srv.Datacenter.Location.Country
		}
		instances = append(instances, instance)
	}

	s.logger.Debug("listed hetzner servers", "count", len(instances))
	return instances, nil
}
