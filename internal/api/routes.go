// Package api exposes the terminal's local REST surface.
//
// Register frontends talk to this API, never to the central store directly.
// Reads are served from the local cache, writes go through the sync writer
// so they survive connectivity loss.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tillworks/tillsync/internal/localstore"
	"github.com/tillworks/tillsync/internal/pos"
	"github.com/tillworks/tillsync/internal/syncer"
)

// Connectivity reports the current online flag.
type Connectivity interface {
	Online() bool
}

type Handler struct {
	store  *localstore.Store
	writer *syncer.Writer
	svc    *syncer.Service
	conn   Connectivity
	logger *log.Logger
}

func NewHandler(store *localstore.Store, writer *syncer.Writer, svc *syncer.Service, conn Connectivity, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{
		store:  store,
		writer: writer,
		svc:    svc,
		conn:   conn,
		logger: logger,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/collections/{collection}", func(r chi.Router) {
			r.Get("/", h.ListRecords)
			r.Post("/", h.CreateRecord)
			r.Get("/{id}", h.GetRecord)
			r.Patch("/{id}", h.UpdateRecord)
			r.Delete("/{id}", h.DeleteRecord)
		})

		r.Post("/sync/trigger", h.TriggerSync)
		r.Get("/sync/status", h.GetSyncStatus)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ListRecords returns every cached record in a collection.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	if !pos.KnownCollection(collection) {
		http.Error(w, "unknown collection", http.StatusNotFound)
		return
	}

	records, err := h.store.GetAll(r.Context(), collection)
	if err != nil {
		h.logger.Printf("list %s failed: %v", collection, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")
	if !pos.KnownCollection(collection) {
		http.Error(w, "unknown collection", http.StatusNotFound)
		return
	}

	rec, err := h.store.Get(r.Context(), collection, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// CreateRecord saves a new record through the sync writer. The response
// carries the stored record, including the id it was assigned; a temp id
// means the record is queued for upload.
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	if !pos.KnownCollection(collection) {
		http.Error(w, "unknown collection", http.StatusNotFound)
		return
	}

	body, err := readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := pos.Decode(collection, body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec.SetRecordID("")

	h.persist(w, r, collection, rec, http.StatusCreated)
}

// UpdateRecord applies a partial update. The request body's fields are laid
// over the cached record, so omitting a field leaves it untouched rather
// than blanking it.
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")
	if !pos.KnownCollection(collection) {
		http.Error(w, "unknown collection", http.StatusNotFound)
		return
	}

	body, err := readBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stored, err := h.store.Get(r.Context(), collection, id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if stored != nil {
		body, err = mergePatch(stored, body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	rec, err := pos.Decode(collection, body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec.SetRecordID(id)

	h.persist(w, r, collection, rec, http.StatusOK)
}

func (h *Handler) persist(w http.ResponseWriter, r *http.Request, collection string, rec pos.Record, status int) {
	if err := h.writer.Save(r.Context(), collection, rec); err != nil {
		h.logger.Printf("save %s failed: %v", collection, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, rec)
}

// mergePatch overlays the patch body's fields onto the stored record.
func mergePatch(stored pos.Record, patch []byte) ([]byte, error) {
	base, err := pos.Encode(stored)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	var overlay map[string]json.RawMessage
	if err := json.Unmarshal(patch, &overlay); err != nil {
		return nil, err
	}
	for k, v := range overlay {
		fields[k] = v
	}
	return json.Marshal(fields)
}

func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")
	if !pos.KnownCollection(collection) {
		http.Error(w, "unknown collection", http.StatusNotFound)
		return
	}

	if err := h.writer.Delete(r.Context(), collection, id); err != nil {
		h.logger.Printf("delete %s/%s failed: %v", collection, id, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TriggerSync starts a sync pass unless one is already running.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if h.svc.Syncing() {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "already_syncing"})
		return
	}

	if err := h.svc.SyncNow(r.Context()); err != nil {
		h.logger.Printf("sync trigger failed: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// SyncStatus is the payload of GET /api/v1/sync/status.
type SyncStatus struct {
	Online  bool `json:"online"`
	Syncing bool `json:"syncing"`
	Pending int  `json:"pending"`
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := h.store.CountPending(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, SyncStatus{
		Online:  h.conn.Online(),
		Syncing: h.svc.Syncing(),
		Pending: pending,
	})
}

// Snapshot implements the dashboard state source over the same data the
// status endpoint serves.
func (h *Handler) Snapshot(ctx context.Context) SyncStatus {
	pending, _ := h.store.CountPending(ctx)
	return SyncStatus{
		Online:  h.conn.Online(),
		Syncing: h.svc.Syncing(),
		Pending: pending,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, errors.New("empty request body")
	}
	defer r.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}
