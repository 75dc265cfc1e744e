package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/artpar/vpsfleet/internal/core/domain"
)

// =============================================================================
// YAML Fleet Snapshot
// =============================================================================

// FleetSnapshot is the YAML document the fleet was historically kept in. It
// remains the import/export interchange format: field names and the
// `vps_servers` top-level key are frozen.
type FleetSnapshot struct {
	Servers   []domain.ServerRecord `yaml:"vps_servers"`
	TotalBill string                `yaml:"total_bill,omitempty"`
	NATFee    string                `yaml:"nat_fee,omitempty"`
}

// EncodeSnapshot writes the snapshot as YAML to w.
func EncodeSnapshot(w io.Writer, snapshot *FleetSnapshot) error {
	data, err := yaml.Marshal(snapshot)
	if err != nil {
		return NewStoreError("EncodeSnapshot", "snapshot", "", "failed to encode snapshot", ErrInvalidData)
	}
	if _, err := w.Write(data); err != nil {
		return NewStoreError("EncodeSnapshot", "snapshot", "", err.Error(), err)
	}
	return nil
}

// DecodeSnapshot reads a fleet snapshot from r.
func DecodeSnapshot(r io.Reader) (*FleetSnapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, NewStoreError("DecodeSnapshot", "snapshot", "", err.Error(), err)
	}

	var snapshot FleetSnapshot
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return nil, NewStoreError("DecodeSnapshot", "snapshot", "", fmt.Sprintf("failed to decode snapshot: %v", err), ErrInvalidData)
	}
	return &snapshot, nil
}

// WriteSnapshot writes the snapshot to path atomically (temp file + rename).
func WriteSnapshot(path string, snapshot *FleetSnapshot) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return NewStoreError("WriteSnapshot", "snapshot", path, err.Error(), err)
	}

	tmp, err := os.CreateTemp(dir, ".fleet-*.yaml")
	if err != nil {
		return NewStoreError("WriteSnapshot", "snapshot", path, err.Error(), err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := EncodeSnapshot(tmp, snapshot); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return NewStoreError("WriteSnapshot", "snapshot", path, err.Error(), err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return NewStoreError("WriteSnapshot", "snapshot", path, err.Error(), err)
	}
	return nil
}

// ReadSnapshot reads a fleet snapshot from path.
func ReadSnapshot(path string) (*FleetSnapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewStoreError("ReadSnapshot", "snapshot", path, "snapshot file not found", ErrNotFound)
		}
		return nil, NewStoreError("ReadSnapshot", "snapshot", path, err.Error(), err)
	}
	defer f.Close()

	return DecodeSnapshot(f)
}

// =============================================================================
// Snapshot <-> Store
// =============================================================================

// BuildFleetSnapshot assembles a snapshot of the whole fleet. Billing totals
// are the caller's concern; they are filled in only when a statement is at
// hand.
func BuildFleetSnapshot(ctx context.Context, s Store) (*FleetSnapshot, error) {
	servers, err := s.ListAllServers(ctx)
	if err != nil {
		return nil, err
	}
	return &FleetSnapshot{Servers: servers}, nil
}

// ImportSnapshot upserts every record of a snapshot inside one transaction:
// unknown names are created, known names are updated in place keeping their
// ID and creation time. A single bad record rolls the whole import back.
func ImportSnapshot(ctx context.Context, s Store, snapshot *FleetSnapshot) (created, updated int, err error) {
	err = s.WithTx(ctx, func(tx Store) error {
		now := time.Now().UTC()
		for i := range snapshot.Servers {
			incoming := snapshot.Servers[i]
			if incoming.Status == "" {
				// Legacy files predate the status column.
				incoming.Status = domain.StatusActive
			}
			if verr := incoming.Validate(); verr != nil {
				return NewStoreError("ImportSnapshot", "server", incoming.Name, verr.Error(), ErrInvalidData)
			}

			existing, gerr := tx.GetServer(ctx, incoming.Name)
			if gerr != nil {
				if !errors.Is(gerr, ErrNotFound) {
					return gerr
				}
				if incoming.ID == "" {
					incoming.ID = uuid.NewString()
				}
				incoming.CreatedAt = now
				incoming.UpdatedAt = now
				if cerr := tx.CreateServer(ctx, &incoming); cerr != nil {
					return cerr
				}
				created++
				continue
			}

			incoming.ID = existing.ID
			incoming.CreatedAt = existing.CreatedAt
			incoming.UpdatedAt = now
			if uerr := tx.UpdateServer(ctx, &incoming); uerr != nil {
				return uerr
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return created, updated, nil
}
