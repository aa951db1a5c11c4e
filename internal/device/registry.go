package device

import (
	"context"
	"database/sql"
	"errors"
	"log"
)

// Registry maps reporting device network addresses to device ids.
type Registry struct {
	db *sql.DB
}

// NewRegistry creates a registry.
func NewRegistry(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// ByAddress resolves a device id from the address a punch arrived from.
// Best-effort: an unknown address or a failed lookup both yield nil, a punch
// from an unregistered reader is still a punch.
func (r *Registry) ByAddress(ctx context.Context, addr string) *string {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT device_id FROM devices WHERE ip_address = $1 LIMIT 1
	`, addr).Scan(&id)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Printf("device lookup failed for %s: %v", addr, err)
		}
		return nil
	}
	return &id
}

// Register ensures a device record exists and tracks its current address.
func (r *Registry) Register(ctx context.Context, deviceID, addr string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, ip_address)
		VALUES ($1, NULLIF($2, ''))
		ON CONFLICT (device_id) DO UPDATE SET
			ip_address = COALESCE(EXCLUDED.ip_address, devices.ip_address),
			updated_at = NOW()
	`, deviceID, addr)
	return err
}
