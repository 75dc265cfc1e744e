// Package inventory pulls the live instance list from cloud providers and
// reconciles it against the fleet records. This is part of the Imperative
// Shell - handles I/O with cloud APIs.
package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Instance is one running VPS as reported by a cloud provider.
type Instance struct {
	ProviderID string
	Name       string
	PublicIP   string
	Region     string
	Country    string
	Status     string
	CreatedAt  time.Time
}

// Source lists the instances a cloud account currently runs.
type Source interface {
	// Name identifies the provider (e.g. "hetzner").
	Name() string

	// ListInstances returns all instances visible to the account.
	ListInstances(ctx context.Context) ([]Instance, error)
}

// =============================================================================
// Factory
// =============================================================================

// SourceConfig selects and configures one provider source.
type SourceConfig struct {
	Kind string // "hetzner", "digitalocean", "aws"

	// Hetzner / DigitalOcean
	APIToken string

	// AWS
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// NewSource creates a provider source from config.
func NewSource(cfg SourceConfig, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Kind {
	case "hetzner":
		if cfg.APIToken == "" {
			return nil, fmt.Errorf("hetzner source requires an API token")
		}
		return NewHetznerSource(cfg.APIToken, logger), nil
	case "digitalocean":
		if cfg.APIToken == "" {
			return nil, fmt.Errorf("digitalocean source requires an API token")
		}
		return NewDigitalOceanSource(cfg.APIToken, logger), nil
	case "aws":
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return nil, fmt.Errorf("aws source requires access key credentials")
		}
		return NewAWSSource(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.Region, logger), nil
	default:
		return nil, fmt.Errorf("unknown inventory source kind: %q", cfg.Kind)
	}
}
