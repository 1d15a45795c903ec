// Package app wires the user directory together: configuration, logging,
// storage selection, the favorites notifier and file watcher, the view
// state controller, the HTTP router and the gRPC server. It also runs the
// servers with graceful shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/text/language"
	"google.golang.org/grpc"

	"github.com/patric-chuzhbe/userdir/internal/config"
	"github.com/patric-chuzhbe/userdir/internal/db/jsondb"
	"github.com/patric-chuzhbe/userdir/internal/db/memorystorage"
	"github.com/patric-chuzhbe/userdir/internal/db/postgresdb"
	"github.com/patric-chuzhbe/userdir/internal/db/redisdb"
	"github.com/patric-chuzhbe/userdir/internal/db/storage"
	"github.com/patric-chuzhbe/userdir/internal/favorites"
	"github.com/patric-chuzhbe/userdir/internal/grpcserver"
	"github.com/patric-chuzhbe/userdir/internal/ipchecker"
	"github.com/patric-chuzhbe/userdir/internal/logger"
	"github.com/patric-chuzhbe/userdir/internal/models"
	"github.com/patric-chuzhbe/userdir/internal/notifier"
	"github.com/patric-chuzhbe/userdir/internal/recordcache"
	"github.com/patric-chuzhbe/userdir/internal/recordsource"
	"github.com/patric-chuzhbe/userdir/internal/router"
	"github.com/patric-chuzhbe/userdir/internal/service"
	"github.com/patric-chuzhbe/userdir/internal/viewstate"
)

const shutdownTimeout = 10 * time.Second

// App holds the configuration, storage backend, background workers and the
// HTTP handler of the user directory.
type App struct {
	cfg            *config.Config
	db             storage.Storage
	notifier       *notifier.Notifier
	watcher        *favorites.Watcher
	service        *service.Service
	stopBackground context.CancelFunc
	httpHandler    http.Handler
}

// New loads the configuration from flags, environment and the optional JSON
// file, initializes the logger and builds the App.
func New() (*App, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, err
	}

	err = logger.Init(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	return NewWithConfig(cfg)
}

// NewWithConfig builds the App from a ready configuration and starts its
// background workers. The caller owns the logger.
func NewWithConfig(cfg *config.Config) (*App, error) {
	var err error
	app := &App{cfg: cfg}

	app.db, err = getStorageByType(cfg)
	if err != nil {
		return nil, err
	}

	backgroundCtx, stopBackground := context.WithCancel(context.Background())
	app.stopBackground = stopBackground

	app.notifier = notifier.New(cfg.NotifierCapacity)
	app.notifier.Run(backgroundCtx)
	app.notifier.ListenErrors(func(err error) {
		logger.Log.Debugln("Error passed from the `app.notifier.ListenErrors()`:", err)
	})

	store := favorites.New(backgroundCtx, app.db, app.notifier)

	if fileDB, ok := app.db.(*jsondb.JSONDB); ok && cfg.WatchFavoritesFile {
		app.watcher, err = favorites.NewWatcher(fileDB, store)
		if err != nil {
			stopBackground()
			return nil, err
		}
		app.watcher.Run(backgroundCtx)
	}

	locale, err := language.Parse(cfg.Locale)
	if err != nil {
		stopBackground()
		return nil, fmt.Errorf("in internal/app/app.go/NewWithConfig(): error while `language.Parse()` calling: %w", err)
	}

	cache := recordcache.New(app.db)
	source := recordsource.New(cfg.APIBaseURL, cfg.APITimeout)
	view := viewstate.New(
		source,
		store,
		viewstate.WithPageSize(cfg.PageSize),
		viewstate.WithFetchLimit(cfg.FetchLimit),
		viewstate.WithLocale(locale),
		viewstate.WithRecordCache(cache),
	)
	app.service = service.New(view, store, cache, source, app.db)

	checker, err := ipchecker.New(cfg.TrustedSubnet)
	if err != nil {
		stopBackground()
		return nil, err
	}
	app.httpHandler = router.New(app.service, checker)

	return app, nil
}

// Service exposes the composed operations for in-process clients.
func (a *App) Service() *service.Service {
	return a.service
}

// Handler returns the HTTP handler of the API.
func (a *App) Handler() http.Handler {
	return a.httpHandler
}

// Run starts the HTTP server, the optional gRPC server and the initial fetch.
// It blocks until a termination signal arrives or a server fails.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.run(ctx)
}

// run serves until ctx is done or a server fails. Storage and background
// workers are released on every return path.
func (a *App) run(ctx context.Context) error {
	logger.Log.Infoln("server running", "RunAddr", a.cfg.RunAddr, "usersAPI", a.cfg.APIBaseURL)

	server := &http.Server{
		Addr:    a.cfg.RunAddr,
		Handler: a.httpHandler,
	}
	serverErrCh := make(chan error, 2)

	var grpcServer *grpc.Server
	if a.cfg.GRPCAddr != "" {
		var (
			lis net.Listener
			err error
		)
		grpcServer, lis, err = grpcserver.NewGRPCServer(
			a.cfg.GRPCAddr,
			grpcserver.NewFavoritesHandler(a.service),
			grpcserver.NewHealthChecker(a.service),
		)
		if err != nil {
			return errors.Join(
				fmt.Errorf("in internal/app/app.go/run(): error while `grpcserver.NewGRPCServer()` calling: %w", err),
				a.Shutdown(),
			)
		}
		logger.Log.Infoln("gRPC server running", "GRPCAddr", lis.Addr().String())

		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				serverErrCh <- fmt.Errorf("gRPC server error: %w", err)
			}
		}()
	}

	go func() {
		if err := a.service.Load(ctx); err != nil {
			logger.Log.Warnln("initial users fetch failed, waiting for a retry", "error", err)
		}
	}()

	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Closing storage and exiting...")
		a.stopBackground()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if grpcServer != nil {
			grpcServer.GracefulStop()
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Join(fmt.Errorf("server shutdown error: %w", err), a.Shutdown())
		}

		return a.Shutdown()

	case err := <-serverErrCh:
		if grpcServer != nil {
			grpcServer.Stop()
		}
		if closeErr := server.Close(); closeErr != nil {
			logger.Log.Debugln("unable to close HTTP server", "error", closeErr)
		}
		shutdownErr := a.Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return shutdownErr
		}

		return errors.Join(fmt.Errorf("server error: %w", err), shutdownErr)
	}
}

// Shutdown stops the background workers and closes the storage.
func (a *App) Shutdown() error {
	a.stopBackground()
	<-a.notifier.Done()
	if a.watcher != nil {
		<-a.watcher.Done()
	}

	return a.db.Close()
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.RedisAddr != "" {
		return models.StorageTypeRedis
	}

	if cfg.FavoritesFile != "" {
		return models.StorageTypeFile
	}

	return models.StorageTypeMemory
}

func getStorageByType(cfg *config.Config) (storage.Storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
			cfg.MigrationsDir,
		)

	case models.StorageTypeRedis:
		return redisdb.New(context.Background(), cfg.RedisAddr, cfg.RedisDB)

	case models.StorageTypeFile:
		return jsondb.New(cfg.FavoritesFile)
	}

	return memorystorage.New()
}
