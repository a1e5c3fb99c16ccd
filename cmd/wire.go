// File: cmd/wire.go
// Description: Shared component wiring for the subcommands. Each command
// builds the slice of the app it needs from here.

package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/avelichko7/textlens/internal/backend"
	"github.com/avelichko7/textlens/internal/bus"
	"github.com/avelichko7/textlens/internal/locator"
	"github.com/avelichko7/textlens/internal/observability"
	"github.com/avelichko7/textlens/internal/session"
	"github.com/avelichko7/textlens/internal/storage"
)

// app bundles the wired long-lived components.
type app struct {
	log      *zap.Logger
	store    storage.Store
	cache    *storage.Cache
	slot     *locator.PendingSlot
	replayer *locator.Replayer
	backend  *backend.Client
	session  *session.Manager
	router   *bus.Router
}

func newApp() (*app, error) {
	log := observability.GetLogger()

	stateFile, err := appCfg.Storage.StateFile()
	if err != nil {
		return nil, err
	}
	store, err := storage.NewFileStore(stateFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open state file: %w", err)
	}

	cache := storage.NewCache(store, log)
	be := backend.New(appCfg.Backend, log)
	provider := session.NewHTTPProvider(appCfg.Identity, log)
	mgr := session.NewManager(provider, be, cache, log)

	return &app{
		log:      log,
		store:    store,
		cache:    cache,
		slot:     locator.NewPendingSlot(store, appCfg.Locator.PendingTTL, log),
		replayer: locator.NewReplayer(appCfg.Locator, log),
		backend:  be,
		session:  mgr,
		router:   bus.New(log, 32),
	}, nil
}

func (a *app) close() {
	a.router.Shutdown()
}
