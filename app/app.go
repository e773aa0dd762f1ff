package app

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"bitbucket.org/kleinnic74/tourist/cache/boltstore"
	"bitbucket.org/kleinnic74/tourist/events"
	"bitbucket.org/kleinnic74/tourist/fetcher"
	"bitbucket.org/kleinnic74/tourist/flickr"
	"bitbucket.org/kleinnic74/tourist/logging"
	"bitbucket.org/kleinnic74/tourist/rest"

	"github.com/gorilla/mux"
	"github.com/kleinnic74/fflags"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

type Options struct {
	LibDir    string `json:"libdir"`
	Port      uint   `json:"port"`
	APIKey    string `json:"-"`
	SearchURL string `json:"searchUrl,omitempty"`
}

type App struct {
	dir string

	db    *bolt.DB
	bus   *events.Bus
	coord *fetcher.Coordinator

	router *mux.Router
	addr   string

	shutdownHandlers shutdownHandlers
}

type shutdownHandler func(context.Context, *App)

type shutdownHandlers struct {
	h []shutdownHandler
}

func (hdls *shutdownHandlers) Add(h shutdownHandler) {
	hdls.h = append(hdls.h, h)
}

func (hdls shutdownHandlers) Execute(ctx context.Context, a *App) {
	for i := len(hdls.h) - 1; i >= 0; i-- {
		hdls.h[i](ctx, a)
	}
}

const dbName = "tourist.db"

func NewApp(ctx context.Context, o Options) (a *App, err error) {
	logger, ctx := logging.SubFrom(ctx, "app")

	logger.Info("Cache directory", zap.String("dir", o.LibDir))
	if err = os.MkdirAll(o.LibDir, os.ModePerm); err != nil {
		return nil, err
	}

	a = &App{
		dir:    o.LibDir,
		addr:   fmt.Sprintf(":%d", o.Port),
		router: mux.NewRouter(),
		bus:    events.NewBus(),
	}
	defer func() {
		if err != nil {
			a.shutdownHandlers.Execute(ctx, a)
		}
	}()

	a.db, err = bolt.Open(filepath.Join(o.LibDir, dbName), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("Failed to initialize data store: %w", err)
	}
	a.shutdownHandlers.Add(func(ctx context.Context, a *App) {
		a.db.Close()
		logging.From(ctx).Info("Closed data store")
	})

	store, err := boltstore.NewBoltStore(a.db)
	if err != nil {
		return nil, fmt.Errorf("Failed to initialize photo cache: %w", err)
	}

	remote := flickr.NewClient(o.SearchURL, o.APIKey)
	a.coord = fetcher.NewCoordinator(store, remote, remote, a.bus)
	a.shutdownHandlers.Add(func(ctx context.Context, a *App) {
		a.coord.Close()
		a.bus.Close()
		logging.From(ctx).Info("Closed fetch coordinator")
	})

	// REST Handlers

	metrics := rest.NewMetricsHandler()
	metrics.InitRoutes(a.router)

	sse := rest.NewSSEHandler(a.bus)
	sse.InitRoutes(a.router)

	markersApp := rest.NewApp(store, a.coord)
	markersApp.InitRoutes(a.router)

	if err = fflags.IfEnabled(fflags.Define("fetch.sessions"), func() error {
		sessions := rest.NewSessionsHandler(a.coord)
		sessions.InitRoutes(a.router)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("Failed to initialize fetch session endpoint: %w", err)
	}

	return a, nil
}

func (a *App) Run(ctx context.Context) {
	logger, ctx := logging.SubFrom(ctx, "app")

	var wg sync.WaitGroup
	server := http.Server{
		Addr:        a.addr,
		Handler:     rest.WithMiddleWares(a.router, "rest"),
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}
	wg.Add(1)
	go func() {
		logger, _ := logging.SubFrom(ctx, "http")
		logger.Info("Starting HTTP server...", zap.String("bindAddr", a.addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
		logger.Info("DONE")
		wg.Done()
	}()

	<-ctx.Done()

	logger.Info("Stopping...")

	ctxShutdown, cancelServerShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelServerShutdown()
	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	wg.Wait()

	a.shutdownHandlers.Execute(ctx, a)

	logger.Info("Terminated gracefully")
}
