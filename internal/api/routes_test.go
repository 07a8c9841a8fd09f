package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/tillworks/tillsync/internal/localstore"
	"github.com/tillworks/tillsync/internal/pos"
	"github.com/tillworks/tillsync/internal/remote"
	"github.com/tillworks/tillsync/internal/syncer"
)

type fakeConn struct {
	online bool
}

func (f *fakeConn) Online() bool { return f.online }

type apiEnv struct {
	local  *localstore.Store
	remote *remote.MemoryStore
	conn   *fakeConn
	server *httptest.Server
}

func setupAPI(t *testing.T, online bool) *apiEnv {
	t.Helper()

	logger := log.New(os.Stderr, "[test] ", log.LstdFlags)

	local, err := localstore.Open(filepath.Join(t.TempDir(), "till.db"), logger)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { local.Close() })

	rs := remote.NewMemoryStore()
	conn := &fakeConn{online: online}

	svc := syncer.NewService(local, rs, conn, logger)

	handler := NewHandler(local, svc.Writer, svc, conn, logger)
	server := httptest.NewServer(handler.Routes())
	t.Cleanup(server.Close)

	return &apiEnv{local: local, remote: rs, conn: conn, server: server}
}

func doJSON(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func TestCreateSaleOnline(t *testing.T) {
	env := setupAPI(t, true)

	sale := &pos.Sale{CustomerName: "Ada", Total: 12.50, CreatedAt: 1700000000000}
	resp := doJSON(t, http.MethodPost, env.server.URL+"/api/v1/collections/payments/", sale)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	var stored pos.Sale
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if stored.ID == "" {
		t.Fatal("Expected an id on the stored sale")
	}
	if pos.IsTempID(stored.ID) {
		t.Errorf("Online create should get a server id, got %s", stored.ID)
	}

	if len(env.remote.Records(pos.CollectionPayments)) != 1 {
		t.Error("Expected sale in remote store")
	}

	rec, err := env.local.Get(context.Background(), pos.CollectionPayments, stored.ID)
	if err != nil {
		t.Fatalf("Failed to read cache: %v", err)
	}
	if rec == nil {
		t.Error("Expected sale in local cache")
	}
}

func TestCreateSaleOfflineQueues(t *testing.T) {
	env := setupAPI(t, false)

	sale := &pos.Sale{CustomerName: "Grace", Total: 9.95, CreatedAt: 1700000000001}
	resp := doJSON(t, http.MethodPost, env.server.URL+"/api/v1/collections/payments/", sale)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	var stored pos.Sale
	if err := json.NewDecoder(resp.Body).Decode(&stored); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !pos.IsTempID(stored.ID) {
		t.Errorf("Offline create should get a temp id, got %s", stored.ID)
	}

	if len(env.remote.Records(pos.CollectionPayments)) != 0 {
		t.Error("Remote store should be untouched while offline")
	}

	pending, err := env.local.CountPending(context.Background())
	if err != nil {
		t.Fatalf("Failed to count pending: %v", err)
	}
	if pending != 1 {
		t.Errorf("Expected 1 queued mutation, got %d", pending)
	}
}

func TestListRecords(t *testing.T) {
	env := setupAPI(t, true)

	ctx := context.Background()
	for _, name := range []string{"Mug", "Plate"} {
		p := &pos.Product{ID: "p-" + name, Name: name, SKU: "SKU-" + name, Price: 3}
		if err := env.local.Put(ctx, pos.CollectionProducts, p); err != nil {
			t.Fatalf("Failed to seed product: %v", err)
		}
	}

	resp := doJSON(t, http.MethodGet, env.server.URL+"/api/v1/collections/products/", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var products []pos.Product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(products) != 2 {
		t.Errorf("Expected 2 products, got %d", len(products))
	}
}

func TestGetRecordNotFound(t *testing.T) {
	env := setupAPI(t, true)

	resp := doJSON(t, http.MethodGet, env.server.URL+"/api/v1/collections/products/nope", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestUnknownCollection(t *testing.T) {
	env := setupAPI(t, true)

	resp := doJSON(t, http.MethodGet, env.server.URL+"/api/v1/collections/invoices/", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown collection, got %d", resp.StatusCode)
	}
}

func TestCreateRejectsInvalidRecord(t *testing.T) {
	env := setupAPI(t, true)

	// Negative total fails validation
	sale := &pos.Sale{CustomerName: "Eve", Total: -1, CreatedAt: 1700000000002}
	resp := doJSON(t, http.MethodPost, env.server.URL+"/api/v1/collections/payments/", sale)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestUpdateMergesPartialBody(t *testing.T) {
	env := setupAPI(t, true)

	ctx := context.Background()
	sale := &pos.Sale{ID: "rec-1", CustomerName: "Ada", Total: 12.50, PaymentMethod: "card", CreatedAt: 1700000000000}
	if err := env.local.Put(ctx, pos.CollectionPayments, sale); err != nil {
		t.Fatalf("Failed to seed sale: %v", err)
	}
	env.remote.Seed(pos.CollectionPayments, "rec-1", mustEncode(t, sale))

	// A body with just the changed field must not blank the rest.
	resp := doJSON(t, http.MethodPatch, env.server.URL+"/api/v1/collections/payments/rec-1",
		map[string]bool{"paid": true})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var updated pos.Sale
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !updated.Paid {
		t.Error("Expected paid flag set")
	}
	if updated.CustomerName != "Ada" || updated.Total != 12.50 || updated.PaymentMethod != "card" {
		t.Errorf("Patch blanked untouched fields: %+v", updated)
	}
	if updated.CreatedAt != 1700000000000 {
		t.Errorf("Patch rewrote createdAt: %d", updated.CreatedAt)
	}

	rec, err := env.local.Get(ctx, pos.CollectionPayments, "rec-1")
	if err != nil {
		t.Fatalf("Failed to read cache: %v", err)
	}
	cached, ok := rec.(*pos.Sale)
	if !ok || !cached.Paid || cached.CustomerName != "Ada" {
		t.Errorf("Cache missing merged record: %+v", rec)
	}
}

func TestDeleteRecord(t *testing.T) {
	env := setupAPI(t, true)

	ctx := context.Background()
	p := &pos.Product{ID: "p-1", Name: "Mug", SKU: "SKU-1", Price: 3}
	if err := env.local.Put(ctx, pos.CollectionProducts, p); err != nil {
		t.Fatalf("Failed to seed product: %v", err)
	}
	env.remote.Seed(pos.CollectionProducts, "p-1", mustEncode(t, p))

	resp := doJSON(t, http.MethodDelete, env.server.URL+"/api/v1/collections/products/p-1", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", resp.StatusCode)
	}

	rec, err := env.local.Get(ctx, pos.CollectionProducts, "p-1")
	if err != nil {
		t.Fatalf("Failed to read cache: %v", err)
	}
	if rec != nil {
		t.Error("Expected product removed from cache")
	}
	if len(env.remote.Records(pos.CollectionProducts)) != 0 {
		t.Error("Expected product removed from remote")
	}
}

func TestSyncStatus(t *testing.T) {
	env := setupAPI(t, false)

	sale := &pos.Sale{CustomerName: "Joan", Total: 5, CreatedAt: 1700000000003}
	resp := doJSON(t, http.MethodPost, env.server.URL+"/api/v1/collections/payments/", sale)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, env.server.URL+"/api/v1/sync/status", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var status SyncStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode status: %v", err)
	}
	if status.Online {
		t.Error("Expected offline status")
	}
	if status.Syncing {
		t.Error("Expected no sync in progress")
	}
	if status.Pending != 1 {
		t.Errorf("Expected 1 pending mutation, got %d", status.Pending)
	}
}

func TestTriggerSyncDrainsQueue(t *testing.T) {
	env := setupAPI(t, false)

	sale := &pos.Sale{CustomerName: "Mary", Total: 7, CreatedAt: 1700000000004}
	resp := doJSON(t, http.MethodPost, env.server.URL+"/api/v1/collections/payments/", sale)
	resp.Body.Close()

	// Connectivity comes back
	env.conn.online = true

	resp = doJSON(t, http.MethodPost, env.server.URL+"/api/v1/sync/trigger", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	pending, err := env.local.CountPending(context.Background())
	if err != nil {
		t.Fatalf("Failed to count pending: %v", err)
	}
	if pending != 0 {
		t.Errorf("Expected drained queue, got %d pending", pending)
	}
	if len(env.remote.Records(pos.CollectionPayments)) != 1 {
		t.Error("Expected sale uploaded to remote")
	}
}

func mustEncode(t *testing.T, rec pos.Record) json.RawMessage {
	t.Helper()
	data, err := pos.Encode(rec)
	if err != nil {
		t.Fatalf("Failed to encode record: %v", err)
	}
	return data
}
