// Command rosapp hosts the ros application on an in-process software bus
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/najoast/rosapp/bootstrap"
	"github.com/najoast/rosapp/config"
	"github.com/najoast/rosapp/logging"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var configFile string
	if len(args) > 0 {
		configFile = args[0]
	}

	cfg, err := config.NewLoader().Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 2
	}

	log, closer, err := logging.New(cfg.Log, cfg.App.Name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		return 2
	}
	defer closer.Close()

	h, err := newHost(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to build host")
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the host shuts down as soon as the application exits on its own
	h.exec.OnExit(func(info bootstrap.AppInfo) {
		if info.Name == cfg.App.Name {
			cancel()
		}
	})

	log.Info().Str("version", h.version()).Msg("starting")
	if err := h.application.Run(ctx); err != nil {
		log.Error().Err(err).Msg("application failed")
		return 1
	}

	status, err := h.service.Result()
	ev := log.Info()
	if status != bootstrap.RunStatusExit {
		ev = log.Error().AnErr("cause", err)
	}
	ev.Str("status", status.String()).Msg("application exited")

	if status != bootstrap.RunStatusExit {
		return 1
	}
	return 0
}
