// Package store manages durable per-tenant credential records.
//
// Each tenant's WhatsApp credentials live in their own sqlite database under
// <data>/tenants/<tenantID>.db, written by whatsmeow's sqlstore as the network
// rotates keys. This package only deals in whole records: path resolution,
// existence, listing for restore-on-startup, and deletion on logout. The blob
// contents are opaque here.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	. "github.com/sellerdesk/walink/internal/logging"
	"github.com/sellerdesk/walink/internal/paths"
)

const dbSuffix = ".db"

// tenantIDPattern limits tenant ids to filename-safe characters. Tenant ids
// are externally assigned; anything that could escape the tenants directory
// is rejected before it reaches the filesystem.
var tenantIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// Store resolves and manages per-tenant credential databases.
type Store struct {
	dir string
}

// New creates a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := paths.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// ValidTenantID reports whether id is acceptable as a tenant id.
func ValidTenantID(id string) bool {
	return tenantIDPattern.MatchString(id) && !strings.Contains(id, "..")
}

// Dir returns the tenants directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the credential database path for a tenant.
func (s *Store) Path(tenantID string) (string, error) {
	if !ValidTenantID(tenantID) {
		return "", fmt.Errorf("invalid tenant id %q", tenantID)
	}
	return filepath.Join(s.dir, tenantID+dbSuffix), nil
}

// Exists reports whether a credential record exists for the tenant.
func (s *Store) Exists(tenantID string) bool {
	path, err := s.Path(tenantID)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// ListKnownTenants returns the ids of all tenants with stored credentials.
// Derived from the directory listing so it can never disagree with the
// records themselves.
func (s *Store) ListKnownTenants() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants directory: %w", err)
	}

	var tenants []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, dbSuffix) {
			continue
		}
		id := strings.TrimSuffix(name, dbSuffix)
		if !ValidTenantID(id) {
			L_warn("store: skipping unrecognized file in tenants directory", "file", name)
			continue
		}
		tenants = append(tenants, id)
	}
	return tenants, nil
}

// Delete removes the tenant's credential record. Deleting a tenant with no
// record is a no-op success. sqlite sidecar files (wal/shm) are removed too.
func (s *Store) Delete(tenantID string) error {
	path, err := s.Path(tenantID)
	if err != nil {
		return err
	}

	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete credential record: %w", err)
		}
	}
	return nil
}
