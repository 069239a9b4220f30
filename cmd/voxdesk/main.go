package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/voxdesk/voxdesk/internal/app"
	"github.com/voxdesk/voxdesk/internal/config"

	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if errRun := run(ctx, os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run parses flags, loads config, and either migrates or starts the server.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("voxdesk", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 0, "server port, overrides config and PORT")
	migrateOnly := fs.Bool("migrate", false, "run database migrations and exit")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	var (
		appCfg config.AppConfig
		err    error
	)
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg, err = config.Load(config.ResolveConfigPath(*cfgPath))
	} else {
		appCfg, err = config.LoadFromEnv()
	}
	if err != nil {
		return err
	}
	if *port != 0 {
		if errValidate := validatePort(*port); errValidate != nil {
			return errValidate
		}
		appCfg.Port = *port
	}

	if *migrateOnly {
		if errMigrate := app.Migrate(ctx, appCfg); errMigrate != nil {
			return errMigrate
		}
		log.Info("migrations applied")
		return nil
	}

	errServe := app.RunServer(ctx, appCfg)
	if errors.Is(errServe, app.ErrBootstrapIncomplete) {
		return fmt.Errorf("first start: %w", errServe)
	}
	return errServe
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
