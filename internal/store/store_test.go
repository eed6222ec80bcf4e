package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dir := t.TempDir()
	s, err := New(filepath.Join(dir, "tenants"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func writeRecord(t *testing.T, s *Store, tenantID string) {
	t.Helper()

	path, err := s.Path(tenantID)
	if err != nil {
		t.Fatalf("failed to resolve path for %s: %v", tenantID, err)
	}
	if err := os.WriteFile(path, []byte("blob"), 0600); err != nil {
		t.Fatalf("failed to write record: %v", err)
	}
}

func TestExistsAndList(t *testing.T) {
	s := setupTestStore(t)

	if s.Exists("seller-7") {
		t.Fatal("expected no record for seller-7")
	}

	tenants, err := s.ListKnownTenants()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(tenants) != 0 {
		t.Fatalf("expected empty list, got %v", tenants)
	}

	writeRecord(t, s, "seller-7")
	writeRecord(t, s, "seller-42")

	if !s.Exists("seller-7") {
		t.Fatal("expected record for seller-7")
	}

	tenants, err = s.ListKnownTenants()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(tenants) != 2 {
		t.Fatalf("expected 2 tenants, got %v", tenants)
	}
}

func TestListIgnoresForeignFiles(t *testing.T) {
	s := setupTestStore(t)

	writeRecord(t, s, "seller-7")
	if err := os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0600); err != nil {
		t.Fatalf("failed to write foreign file: %v", err)
	}

	tenants, err := s.ListKnownTenants()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(tenants) != 1 || tenants[0] != "seller-7" {
		t.Fatalf("expected [seller-7], got %v", tenants)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	s := setupTestStore(t)

	// Deleting a tenant with no record succeeds
	if err := s.Delete("seller-7"); err != nil {
		t.Fatalf("delete of missing record failed: %v", err)
	}

	writeRecord(t, s, "seller-7")
	path, _ := s.Path("seller-7")

	// Sidecar files follow the record
	if err := os.WriteFile(path+"-wal", []byte("w"), 0600); err != nil {
		t.Fatalf("failed to write wal: %v", err)
	}

	if err := s.Delete("seller-7"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if s.Exists("seller-7") {
		t.Fatal("record still exists after delete")
	}
	if _, err := os.Stat(path + "-wal"); !os.IsNotExist(err) {
		t.Fatal("wal sidecar still exists after delete")
	}
}

func TestValidTenantID(t *testing.T) {
	valid := []string{"seller-42", "a", "Shop_7", "t.example"}
	for _, id := range valid {
		if !ValidTenantID(id) {
			t.Errorf("expected %q to be valid", id)
		}
	}

	invalid := []string{"", "../etc", "a/b", ".hidden", "a b", "-lead"}
	for _, id := range invalid {
		if ValidTenantID(id) {
			t.Errorf("expected %q to be invalid", id)
		}
	}

	if _, err := setupTestStore(t).Path("../escape"); err == nil {
		t.Fatal("expected error for path traversal id")
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := setupTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := "seller-" + string(rune('a'+n))
			path, err := s.Path(id)
			if err != nil {
				t.Errorf("path for %s: %v", id, err)
				return
			}
			if err := os.WriteFile(path, []byte("blob"), 0600); err != nil {
				t.Errorf("write for %s: %v", id, err)
				return
			}
			if !s.Exists(id) {
				t.Errorf("record for %s missing", id)
			}
			if _, err := s.ListKnownTenants(); err != nil {
				t.Errorf("list failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	tenants, err := s.ListKnownTenants()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(tenants) != 8 {
		t.Fatalf("expected 8 tenants, got %d", len(tenants))
	}
}

func TestNewCreatesNestedDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data", "tenants")

	if _, err := New(dir); err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("tenants directory missing: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("expected a directory")
	}
}
