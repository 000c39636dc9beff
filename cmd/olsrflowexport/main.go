// Command olsrflowexport is the CLI front-end for the observation engine:
// it parses the two supported flags, loads the configuration file, and
// runs the engine until a termination signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/els0r/olsrflowexport/internal/config"
	"github.com/els0r/olsrflowexport/internal/logging"
	"github.com/els0r/olsrflowexport/pkg/engine"
)

func main() {
	configPath := flag.String("f", "", "path to the configuration file (mandatory)")
	verbosity := flag.Int("v", 2, "log verbosity, 0 (errors only) to 5 (trace)")
	flag.Parse()

	if *configPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	log := logging.New(*verbosity)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	eng, err := engine.New(cfg, log, nil)
	if err != nil {
		log.WithError(err).Error("failed to build observation engine")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	log.WithField("config", *configPath).Info("starting observation engine")
	if err := eng.Run(ctx); err != nil {
		log.WithError(err).Error("observation engine exited with error")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
