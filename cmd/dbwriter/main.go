package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cgplatform/dbwriter/pkg/config"
	"github.com/cgplatform/dbwriter/pkg/logger"
	"github.com/cgplatform/dbwriter/pkg/supervisor"
)

const defaultConfigPath = "/etc/dbwriter/config.yaml"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	command := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command = args[0]
		args = args[1:]
	}

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := flags.String("config", defaultConfigPath, "Path to the YAML config file")

	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 2
	}

	sup, err := supervisor.New(cfg, log)
	if err != nil {
		log.WithError(err).Error("Startup failed")
		return 1
	}

	ctx := context.Background()

	switch command {
	case "run":
		if err := sup.Run(ctx); err != nil {
			log.WithError(err).Error("Exited with fatal error")
			return 1
		}

	case "cleanup":
		if err := sup.CleanupOnce(ctx); err != nil {
			log.WithError(err).Error("Cleanup failed")
			return 1
		}

	case "health":
		if err := sup.Health(ctx); err != nil {
			log.WithError(err).Error("Health check failed")
			return 1
		}

		log.Info("Healthy")

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want run, cleanup or health)\n", command)
		return 2
	}

	return 0
}
