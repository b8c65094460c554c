package main

import (
	"context"
	"fmt"
	"time"

	"github.com/najoast/rosapp/bootstrap"
	"github.com/najoast/rosapp/bus"
	"github.com/najoast/rosapp/config"
	"github.com/najoast/rosapp/evs"
	"github.com/najoast/rosapp/rosapp"
	"github.com/najoast/rosapp/table"
	"github.com/rs/zerolog"
)

// host wires the in-process collaborators around one application
type host struct {
	exec        *bootstrap.Executive
	bus         *bus.SoftwareBus
	events      *evs.Service
	tables      *table.Manager
	app         *rosapp.App
	service     *rosapp.Service
	application *bootstrap.Application
}

func newHost(cfg *config.Config, log zerolog.Logger) (*host, error) {
	h := &host{
		exec: bootstrap.NewExecutive(bootstrap.ExecutiveOptions{Logger: log}),
		bus: bus.New(bus.Options{
			MaxPipes:     cfg.Bus.MaxPipes,
			MaxPipeDepth: cfg.Bus.MaxPipeDepth,
			Logger:       log.With().Str("component", "bus").Logger(),
		}),
		events: evs.NewService(evs.Options{
			MaxFilters:  cfg.Events.MaxFilters,
			LogCapacity: cfg.Events.LogCapacity,
			Sinks:       []evs.Sink{evs.NewLogSink(log)},
		}),
		application: bootstrap.NewApplication(log),
	}

	tableOpts := table.DefaultOptions()
	tableOpts.Logger = log
	h.tables = table.NewManager(tableOpts)

	var src table.Source
	if cfg.Table.File != "" {
		src = table.FileSource(cfg.Table.File)
	}

	app, err := rosapp.New(rosapp.Options{
		Executive:   h.exec,
		Bus:         h.bus,
		Events:      h.events,
		Tables:      h.tables,
		Name:        cfg.App.Name,
		PipeName:    cfg.App.PipeName,
		PipeDepth:   cfg.App.PipeDepth,
		TableSource: src,
		RosoutDump:  cfg.App.RosoutDump,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}
	h.app = app
	h.service = rosapp.NewService(app)

	if err := h.application.Register(cfg.App.Name, h.service); err != nil {
		return nil, err
	}

	if cfg.Table.Watch && cfg.Table.File != "" {
		watch := &tableWatchService{
			app:      app,
			tables:   h.tables,
			file:     cfg.Table.File,
			debounce: cfg.Table.Debounce,
			log:      log,
		}
		if err := h.application.Register("table-watch", watch, cfg.App.Name); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *host) version() string {
	return rosapp.Version
}

// tableWatchService reloads the application table when its file changes.
// It starts after the application so the table handle exists.
type tableWatchService struct {
	app      *rosapp.App
	tables   *table.Manager
	file     string
	debounce time.Duration
	log      zerolog.Logger

	watcher *table.Watcher
}

func (s *tableWatchService) Name() string {
	return "table-watch"
}

func (s *tableWatchService) Start(ctx context.Context) error {
	w, err := table.NewWatcher(s.tables, s.debounce, s.log)
	if err != nil {
		return err
	}
	if err := w.Watch(s.file, s.app.TableHandle()); err != nil {
		w.Stop()
		return fmt.Errorf("watch table file: %w", err)
	}
	w.Start()
	s.watcher = w
	return nil
}

func (s *tableWatchService) Stop(ctx context.Context) error {
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Stop()
	s.watcher = nil
	return err
}

func (s *tableWatchService) Health(ctx context.Context) (bootstrap.HealthStatus, error) {
	if s.watcher == nil {
		return bootstrap.HealthStatus{State: bootstrap.HealthStopped}, nil
	}
	return bootstrap.HealthStatus{State: bootstrap.HealthHealthy, Message: s.file}, nil
}
