package stitch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/indigo-web/stitch/config"
	"github.com/indigo-web/stitch/http"
	"github.com/indigo-web/stitch/internal/address"
	"github.com/indigo-web/stitch/internal/completion"
	"github.com/indigo-web/stitch/internal/logging"
	"github.com/indigo-web/stitch/internal/router"
	"github.com/indigo-web/stitch/internal/server"
	"github.com/indigo-web/stitch/upload"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Handler produces a response for every request. Returning nil results in an empty 200 OK.
//
// Multipart requests are passed as soon as their head is received, while the files are still
// being uploaded. Use (*http.Request).Uploaded in order to wait for them.
type Handler = server.Handler

var ErrNotServing = errors.New("stitch: application is not serving")

// App wires together the configuration, the logger and the server.
type App struct {
	addr   address.Address
	cfg    *config.Config
	logger *zap.Logger
	sinks  upload.Factory
	hooks  server.Hooks

	mu     sync.Mutex
	server *server.Server
}

// New returns a new App instance. Panics if the address is malformed.
func New(addr string) *App {
	appAddr, err := address.Parse(addr)
	if err != nil {
		panic(fmt.Errorf("stitch: listen: bad addr: %v", err))
	}

	return &App{
		addr: appAddr,
		cfg:  config.Default(),
	}
}

// Tune replaces the default config.
func (a *App) Tune(cfg *config.Config) *App {
	a.cfg = cfg
	return a
}

// Logger replaces the logger, which is otherwise built from the config.
func (a *App) Logger(logger *zap.Logger) *App {
	a.logger = logger
	return a
}

// Uploads replaces the default upload sink, which streams files into config.Upload.Dir.
func (a *App) Uploads(sinks upload.Factory) *App {
	a.sinks = sinks
	return a
}

// NotifyOnStart calls the callback at the moment the server is ready to accept connections.
func (a *App) NotifyOnStart(cb func()) *App {
	a.hooks.OnStart = cb
	return a
}

// NotifyOnStop calls the callback at the moment the server is down.
func (a *App) NotifyOnStop(cb func()) *App {
	a.hooks.OnStop = cb
	return a
}

// Serve starts the application and blocks until it's stopped.
func (a *App) Serve(handler Handler) error {
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	if a.logger == nil {
		logger, err := logging.New(a.cfg.Log)
		if err != nil {
			return err
		}

		a.logger = logger
	}

	if a.sinks == nil {
		a.sinks = upload.NewDiskFactory(a.cfg.Upload)
	}

	r := router.New(a.cfg, a.sinks, completion.NewRegistry(), a.logger.Named("router"))
	srv, err := server.New(a.cfg, r, handler, a.hooks, a.logger.Named("server"))
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()

	a.logger.Info("serving", zap.Stringer("addr", a.addr))

	err = srv.Run(a.addr.String())

	a.mu.Lock()
	if a.server == srv {
		a.server = nil
	}
	a.mu.Unlock()

	return err
}

// Stop gracefully shuts the application down.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	srv := a.server
	a.server = nil
	a.mu.Unlock()

	if srv == nil {
		return ErrNotServing
	}

	err := srv.Stop(ctx)
	// syncing stderr fails on some platforms, which isn't worth reporting
	if syncErr := a.logger.Sync(); syncErr != nil && len(a.cfg.Log.File) > 0 {
		err = multierr.Append(err, syncErr)
	}

	return err
}

// Respond is a shorthand handler, responding with an empty 200 OK.
func Respond(request *http.Request) *http.Response {
	return http.Respond(request)
}
