package rosapp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/najoast/rosapp/bootstrap"
)

// Service runs an App under a bootstrap lifecycle manager
type Service struct {
	app *App

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	status bootstrap.RunStatus
	err    error
}

// NewService wraps app
func NewService(app *App) *Service {
	return &Service{app: app}
}

// Name returns the application name
func (s *Service) Name() string {
	return s.app.Name()
}

// App returns the wrapped application
func (s *Service) App() *App {
	return s.app
}

// Start runs the application's main loop in its own goroutine and returns
// once initialization finished.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("rosapp: %s already started", s.app.Name())
	}
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		status, err := s.app.Main(runCtx)
		s.mu.Lock()
		s.status = status
		s.err = err
		s.mu.Unlock()
	}()

	select {
	case <-s.app.Ready():
		return nil
	case <-done:
		_, err := s.Result()
		if err == nil {
			err = fmt.Errorf("rosapp: %s exited during startup", s.app.Name())
		}
		return err
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

// Stop asks the executive to stop the application, interrupts the pending
// receive and waits for the main loop to exit.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}

	if err := s.app.exec.RequestStop(s.app.ID()); err != nil {
		s.app.log.Debug().Err(err).Msg("stop request ignored")
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until the main loop exits
func (s *Service) Wait() (bootstrap.RunStatus, error) {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
	return s.Result()
}

// Result returns the exit status and error of a finished main loop
func (s *Service) Result() (bootstrap.RunStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.err
}

// Health maps the run status onto a health state
func (s *Service) Health(ctx context.Context) (bootstrap.HealthStatus, error) {
	status := s.app.Status()
	counters := s.app.Counters()

	health := bootstrap.HealthStatus{
		Message:   status.String(),
		LastCheck: time.Now(),
		Data: map[string]interface{}{
			"command_counter": counters.Command,
			"error_counter":   counters.Error,
		},
	}
	switch status {
	case bootstrap.RunStatusRun:
		health.State = bootstrap.HealthHealthy
	case bootstrap.RunStatusExit:
		health.State = bootstrap.HealthStopped
	case bootstrap.RunStatusError:
		health.State = bootstrap.HealthCritical
	default:
		health.State = bootstrap.HealthStarting
	}
	return health, nil
}

var _ bootstrap.Service = (*Service)(nil)
