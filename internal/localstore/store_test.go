package localstore

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/tillworks/tillsync/internal/pos"
)

// setupTestStore creates a temporary store for testing.
func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "till.db")
	store, err := Open(path, log.New(os.Stderr, "[test] ", 0))
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return store, path
}

func testSale(id string, total float64) *pos.Sale {
	return &pos.Sale{
		ID:           id,
		CustomerName: "Ana",
		Total:        total,
		CreatedAt:    1000,
	}
}

func TestPutIdempotent(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	sale := testSale("rec-1", 100)
	if err := store.Put(ctx, pos.CollectionPayments, sale); err != nil {
		t.Fatalf("first Put failed: %v", err)
	}
	if err := store.Put(ctx, pos.CollectionPayments, sale); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}

	records, err := store.GetAll(ctx, pos.CollectionPayments)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after double put, got %d", len(records))
	}
	got := records[0].(*pos.Sale)
	if got.Total != 100 || got.CustomerName != "Ana" {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestPutOverwrites(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, pos.CollectionPayments, testSale("rec-1", 100)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, pos.CollectionPayments, testSale("rec-1", 250)); err != nil {
		t.Fatalf("overwrite Put failed: %v", err)
	}

	rec, err := store.Get(ctx, pos.CollectionPayments, "rec-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec.(*pos.Sale).Total != 250 {
		t.Errorf("expected overwritten total 250, got %v", rec.(*pos.Sale).Total)
	}
}

func TestGetAllEmptyCollection(t *testing.T) {
	store, _ := setupTestStore(t)

	records, err := store.GetAll(context.Background(), pos.CollectionProducts)
	if err != nil {
		t.Fatalf("GetAll on empty collection failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty slice, got %d records", len(records))
	}
}

func TestGetAbsentRecord(t *testing.T) {
	store, _ := setupTestStore(t)

	rec, err := store.Get(context.Background(), pos.CollectionPayments, "nope")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil for absent record, got %+v", rec)
	}
}

func TestDeleteAbsentRecord(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.Delete(context.Background(), pos.CollectionPayments, "nope"); err != nil {
		t.Errorf("deleting absent record should not error: %v", err)
	}
}

func TestDelete(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, pos.CollectionPayments, testSale("rec-1", 100)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Delete(ctx, pos.CollectionPayments, "rec-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	rec, err := store.Get(ctx, pos.CollectionPayments, "rec-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec != nil {
		t.Errorf("record still present after delete: %+v", rec)
	}
}

func TestUnknownCollection(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.GetAll(ctx, "receipts"); err == nil {
		t.Error("GetAll accepted unknown collection")
	}
	if err := store.Put(ctx, "receipts", testSale("rec-1", 100)); err == nil {
		t.Error("Put accepted unknown collection")
	}
	if err := store.Delete(ctx, "receipts", "rec-1"); err == nil {
		t.Error("Delete accepted unknown collection")
	}
}

func TestReopenExistingStore(t *testing.T) {
	store, path := setupTestStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, pos.CollectionPayments, testSale("rec-1", 100)); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Re-opening at the same schema version must be a no-op migration and the
	// data must survive.
	reopened, err := Open(path, log.New(os.Stderr, "[test] ", 0))
	if err != nil {
		t.Fatalf("re-open failed: %v", err)
	}
	defer reopened.Close()

	records, err := reopened.GetAll(ctx, pos.CollectionPayments)
	if err != nil {
		t.Fatalf("GetAll after re-open failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected 1 record after re-open, got %d", len(records))
	}
}

func TestOpenNewerSchemaVersion(t *testing.T) {
	store, path := setupTestStore(t)

	if _, err := store.conn.Exec("PRAGMA user_version=99"); err != nil {
		t.Fatalf("failed to bump version: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := Open(path, log.New(os.Stderr, "[test] ", 0)); err == nil {
		t.Error("opening a store with a newer schema version should fail")
	}
}

func TestPutRejectsEmptyID(t *testing.T) {
	store, _ := setupTestStore(t)

	if err := store.Put(context.Background(), pos.CollectionPayments, testSale("", 100)); err == nil {
		t.Error("Put accepted record without id")
	}
}
