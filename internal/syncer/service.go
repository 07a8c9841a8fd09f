package syncer

import (
	"context"
	"log"

	"github.com/tillworks/tillsync/internal/localstore"
	"github.com/tillworks/tillsync/internal/remote"
)

// Service bundles the sync components wired against one local store and one
// remote store. It is the surface handed to the HTTP API, the spool watcher
// and the connectivity monitor.
type Service struct {
	Coord     *Coordinator
	Engine    *Engine
	Refresher *Refresher
	Writer    *Writer
}

// NewService wires a coordinator, engine, refresher and writer over the given
// stores and connectivity source.
func NewService(local *localstore.Store, rs remote.Store, conn Connectivity, logger *log.Logger) *Service {
	coord := NewCoordinator()
	return &Service{
		Coord:     coord,
		Engine:    NewEngine(local, rs, conn, coord, logger),
		Refresher: NewRefresher(local, rs, conn, logger),
		Writer:    NewWriter(local, rs, conn, logger),
	}
}

// SyncNow drains the outbox once. Explicit trigger for the API and CLI.
func (s *Service) SyncNow(ctx context.Context) error {
	return s.Engine.Run(ctx)
}

// HandleReconnect runs the full transition-to-online pipeline: the syncing
// flag is raised immediately so the UI can show its indicator before the
// refresh step starts, every collection is refreshed in parallel, and the
// engine drains the outbox once all refreshes settle.
func (s *Service) HandleReconnect(ctx context.Context) {
	s.Coord.Begin()
	defer s.Coord.End()

	s.Refresher.RefreshAll(ctx)

	// Queue access failures surface on the next trigger; the engine already
	// logged everything worth knowing.
	_ = s.Engine.Run(ctx)
}

// Syncing reports whether a sync span is currently open.
func (s *Service) Syncing() bool {
	return s.Coord.Syncing()
}

// OnStatus subscribes a listener to sync start/end transitions.
func (s *Service) OnStatus(fn Listener) {
	s.Coord.Subscribe(fn)
}
