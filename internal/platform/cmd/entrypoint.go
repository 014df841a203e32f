// Package cmd holds the startup plumbing shared by roundtable commands.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/louisbranch/roundtable/internal/platform/config"
	platformlog "github.com/louisbranch/roundtable/internal/platform/log"
	"github.com/louisbranch/roundtable/internal/platform/otel"
	"github.com/louisbranch/roundtable/internal/platform/timeouts"
)

// ServiceSim names the simulation command in logs and traces.
const ServiceSim = "sim"

// ParseConfig loads environment defaults into cfg.
func ParseConfig[T any](cfg *T) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	return config.ParseEnv(cfg)
}

// ParseArgs parses command-line flags.
func ParseArgs(fs *flag.FlagSet, args []string) error {
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}

// ParseConfigFromArgs loads defaults from env and then parses flags, so flags
// override the environment.
func ParseConfigFromArgs[T any](cfg *T, fs *flag.FlagSet, args []string) error {
	if err := ParseConfig(cfg); err != nil {
		return err
	}
	return ParseArgs(fs, args)
}

// RunWithTelemetry sets up tracing from ROUNDTABLE_OTEL_* and runs run.
func RunWithTelemetry(ctx context.Context, service string, run func(context.Context) error) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return fmt.Errorf("service name is required")
	}
	if run == nil {
		return fmt.Errorf("run function is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := otel.LoadConfig()
	if err != nil {
		return err
	}
	shutdown, err := otel.Setup(ctx, service, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.TelemetryShutdown)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger := platformlog.Base()
			logger.Warn().Err(err).Str("service", service).Msg("otel shutdown")
		}
	}()
	return run(ctx)
}
