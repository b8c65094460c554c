package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Application runs registered services until a signal or cancellation
type Application struct {
	log zerolog.Logger

	// lifecycle manages service lifecycles
	lifecycle *DefaultLifecycleManager

	mutex   sync.Mutex
	running bool

	// shutdownChan receives termination signals
	shutdownChan chan os.Signal

	shutdownTimeout time.Duration
}

// NewApplication creates a new application
func NewApplication(log zerolog.Logger) *Application {
	return &Application{
		log:             log,
		lifecycle:       NewLifecycleManager(log),
		shutdownChan:    make(chan os.Signal, 1),
		shutdownTimeout: 30 * time.Second,
	}
}

// Register registers a service with optional dependencies
func (app *Application) Register(name string, service Service, deps ...string) error {
	return app.lifecycle.Register(name, service, deps...)
}

// LifecycleManager returns the lifecycle manager
func (app *Application) LifecycleManager() LifecycleManager {
	return app.lifecycle
}

// Run starts every service and blocks until SIGINT, SIGTERM or ctx ends,
// then shuts down
func (app *Application) Run(ctx context.Context) error {
	app.mutex.Lock()
	if app.running {
		app.mutex.Unlock()
		return fmt.Errorf("application is already running")
	}
	app.running = true
	app.mutex.Unlock()

	signal.Notify(app.shutdownChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(app.shutdownChan)

	if err := app.lifecycle.Start(ctx); err != nil {
		app.mutex.Lock()
		app.running = false
		app.mutex.Unlock()
		return fmt.Errorf("failed to start services: %w", err)
	}

	select {
	case sig := <-app.shutdownChan:
		app.log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-ctx.Done():
		app.log.Info().Msg("context cancelled, shutting down")
	}

	return app.Shutdown(context.Background())
}

// Shutdown stops every service
func (app *Application) Shutdown(ctx context.Context) error {
	app.mutex.Lock()
	if !app.running {
		app.mutex.Unlock()
		return nil
	}
	app.running = false
	app.mutex.Unlock()

	shutdownCtx, cancel := context.WithTimeout(ctx, app.shutdownTimeout)
	defer cancel()

	if err := app.lifecycle.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop services: %w", err)
	}
	return nil
}
