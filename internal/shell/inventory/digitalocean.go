package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/digitalocean/godo"
)

// DigitalOceanSource lists droplets from a DigitalOcean account.
type DigitalOceanSource struct {
	client *godo.Client
	logger *slog.Logger
}

// NewDigitalOceanSource creates a DigitalOcean inventory source.
func NewDigitalOceanSource(apiToken string, logger *slog.Logger) *DigitalOceanSource {
	return &DigitalOceanSource{
		client: godo.NewFromToken(apiToken),
		logger: logger.With("source", "digitalocean"),
	}
}

func (s *DigitalOceanSource) Name() string { return "digitalocean" }

// ListInstances returns all droplets in the account, following pagination.
func (s *DigitalOceanSource) ListInstances(ctx context.Context) ([]Instance, error) {
	var instances []Instance
	opts := &godo.ListOptions{PerPage: 100}

	for {
		droplets, resp, err := s.client.Droplets.List(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list droplets: %w", err)
		}

		for _, droplet := range droplets {
			instance := Instance{
				ProviderID: strconv.Itoa(droplet.ID),
				Name:       droplet.Name,
				Status:     droplet.Status,
			}
			if ip, err := droplet.PublicIPv4(); err == nil {
				instance.PublicIP = ip
			}
			if droplet.Region != nil {
				instance.Region = droplet.Region.Slug
			}
			if created, err := time.Parse(time.RFC3339, droplet.Created); err == nil {
				instance.CreatedAt = created
			}
			instances = append(instances, instance)
		}

		if resp.Links == nil || resp.Links.IsLastPage() {
			break
		}
		page, err := resp.Links.CurrentPage()
		if err != nil {
			break
		}
		opts.Page = page + 1
	}

	s.logger.Debug("listed droplets", "count", len(instances))
	return instances, nil
}
