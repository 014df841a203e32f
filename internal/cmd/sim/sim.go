// Package sim parses sim command flags and drives scenario runs, replays,
// and the recording catalogue.
package sim

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	entrypoint "github.com/louisbranch/roundtable/internal/platform/cmd"
	"github.com/louisbranch/roundtable/internal/platform/id"
	platformlog "github.com/louisbranch/roundtable/internal/platform/log"
	"github.com/louisbranch/roundtable/internal/platform/timeouts"
	"github.com/louisbranch/roundtable/internal/services/game/domain/replay"
	"github.com/louisbranch/roundtable/internal/services/game/storage"
	"github.com/louisbranch/roundtable/internal/services/game/storage/memory"
	"github.com/louisbranch/roundtable/internal/services/game/storage/sqlite"
	"github.com/louisbranch/roundtable/internal/tools/scenario"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Modes.
const (
	ModeRun    = "run"
	ModeReplay = "replay"
	ModeList   = "list"
)

// Config holds sim command configuration.
type Config struct {
	Mode string `env:"SIM_MODE" envDefault:"run"`
	// Scenario is a builtin name or a path to a .lua script.
	Scenario string `env:"SIM_SCENARIO" envDefault:"skirmish"`
	// DB is the SQLite recording store. Empty keeps recordings in memory.
	DB        string `env:"SIM_DB"`
	Recording string `env:"SIM_RECORDING"`
	// Export writes the recorded log to a .jsonl or .yaml file.
	Export string `env:"SIM_EXPORT"`
	// Import replays a .jsonl or .yaml log instead of a stored recording.
	Import string `env:"SIM_IMPORT"`
	// Delta overrides the scenario tick delta when positive.
	Delta       float64 `env:"SIM_DELTA"`
	Ticks       uint64  `env:"SIM_TICKS"`
	Verify      bool    `env:"SIM_VERIFY" envDefault:"true"`
	MetricsAddr string  `env:"SIM_METRICS_ADDR"`
	LogLevel    string  `env:"LOG_LEVEL" envDefault:"info"`
	LogConsole  bool    `env:"LOG_CONSOLE"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "run, replay or list")
	fs.StringVar(&cfg.Scenario, "scenario", cfg.Scenario, "builtin scenario name or .lua path")
	fs.StringVar(&cfg.DB, "db", cfg.DB, "SQLite recording store path")
	fs.StringVar(&cfg.Recording, "recording", cfg.Recording, "recording id to save or replay")
	fs.StringVar(&cfg.Export, "export", cfg.Export, "write the recorded log to a .jsonl or .yaml file")
	fs.StringVar(&cfg.Import, "import", cfg.Import, "replay a .jsonl or .yaml log file")
	fs.Float64Var(&cfg.Delta, "delta", cfg.Delta, "tick delta in seconds (overrides the scenario)")
	fs.Uint64Var(&cfg.Ticks, "ticks", cfg.Ticks, "ticks to replay (default: last entry plus tail)")
	fs.BoolVar(&cfg.Verify, "verify", cfg.Verify, "replay the live log and compare snapshots")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	fs.BoolVar(&cfg.LogConsole, "log-console", cfg.LogConsole, "human-readable logs")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	switch cfg.Mode {
	case ModeRun, ModeReplay, ModeList:
	default:
		return Config{}, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
	if cfg.Delta < 0 {
		return Config{}, fmt.Errorf("delta must not be negative")
	}
	return cfg, nil
}

// Run executes the configured mode, writing a summary to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	logger := platformlog.Configure(platformlog.Config{
		Level:   cfg.LogLevel,
		Service: entrypoint.ServiceSim,
		Console: cfg.LogConsole,
	})
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSim, func(ctx context.Context) error {
		store, closeStore, err := openStore(ctx, cfg.DB, logger)
		if err != nil {
			return err
		}
		defer closeStore()

		app := &app{cfg: cfg, store: store, out: out, logger: logger}
		if strings.TrimSpace(cfg.MetricsAddr) == "" {
			return app.run(ctx)
		}
		return serveMetrics(ctx, cfg.MetricsAddr, logger, app.run)
	})
}

func openStore(ctx context.Context, path string, logger zerolog.Logger) (storage.LogStore, func(), error) {
	if strings.TrimSpace(path) == "" {
		return memory.New(), func() {}, nil
	}
	store, err := sqlite.Open(ctx, path, sqlite.WithLogger(logger.With().Str(platformlog.FieldComponent, "storage").Logger()))
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Warn().Err(err).Msg("close recording store")
		}
	}, nil
}

// serveMetrics runs fn while a Prometheus listener serves addr. The listener
// stops when fn returns.
func serveMetrics(ctx context.Context, addr string, logger zerolog.Logger, fn func(context.Context) error) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: timeouts.ReadHeader}

	group, groupCtx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	group.Go(func() error {
		logger.Info().Str("addr", listener.Addr().String()).Msg("serving metrics")
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve metrics: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		select {
		case <-done:
		case <-groupCtx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	group.Go(func() error {
		defer close(done)
		return fn(groupCtx)
	})
	return group.Wait()
}

type app struct {
	cfg    Config
	store  storage.LogStore
	out    io.Writer
	logger zerolog.Logger
}

func (a *app) run(ctx context.Context) error {
	switch a.cfg.Mode {
	case ModeReplay:
		return a.replay(ctx)
	case ModeList:
		return a.list(ctx)
	default:
		return a.runScenario(ctx)
	}
}

func (a *app) loadScenario() (*scenario.Scenario, error) {
	name := strings.TrimSpace(a.cfg.Scenario)
	var (
		sc  *scenario.Scenario
		err error
	)
	if strings.HasSuffix(name, ".lua") {
		sc, err = scenario.LoadFile(name)
	} else {
		sc, err = scenario.Builtin(name)
	}
	if err != nil {
		return nil, err
	}
	if a.cfg.Delta > 0 {
		sc.Delta = a.cfg.Delta
	}
	return sc, nil
}

func (a *app) runScenario(ctx context.Context) error {
	sc, err := a.loadScenario()
	if err != nil {
		return err
	}
	world, err := scenario.NewWorld(a.logger)
	if err != nil {
		return err
	}
	live, err := scenario.Run(ctx, world, sc)
	if err != nil {
		return err
	}
	a.logger.Info().
		Str("scenario", sc.Name).
		Uint64("ticks", live.Ticks).
		Int("entries", len(live.Entries)).
		Int("rejected", live.Rejected).
		Msg("scenario finished")

	recordingID := strings.TrimSpace(a.cfg.Recording)
	if recordingID == "" {
		if recordingID, err = id.Prefixed(sc.Name); err != nil {
			return err
		}
	}
	record, err := a.store.SaveRecording(ctx, recordingID, live.Entries)
	if err != nil {
		return fmt.Errorf("save recording: %w", err)
	}
	fmt.Fprintf(a.out, "recording %s: %d entries, %d sessions, last tick %d, digest %s\n",
		record.ID, record.Entries, record.Sessions, record.LastTick, record.Digest)

	if a.cfg.Export != "" {
		if err := exportLog(a.cfg.Export, live.Entries); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "exported %s\n", a.cfg.Export)
	}

	if !a.cfg.Verify {
		return nil
	}
	fresh, err := scenario.NewWorld(a.logger)
	if err != nil {
		return err
	}
	verification, err := scenario.Verify(ctx, fresh, sc, live)
	if err != nil {
		return err
	}
	stats := verification.Playback.Stats
	fmt.Fprintf(a.out, "replay: emitted %d, skipped %d, missed %d, fidelity %.3f\n",
		stats.Emitted, stats.Skipped, stats.Missed, stats.Fidelity())
	if !verification.Match() {
		return fmt.Errorf("replay diverged from live run:\n%s", verification.Diff)
	}
	fmt.Fprintln(a.out, "replay matches live run")
	return nil
}

func (a *app) replay(ctx context.Context) error {
	var (
		entries []replay.Entry
		source  string
		err     error
	)
	switch {
	case a.cfg.Import != "":
		entries, err = importLog(a.cfg.Import)
		source = a.cfg.Import
	case a.cfg.Recording != "":
		_, entries, err = a.store.LoadRecording(ctx, a.cfg.Recording)
		source = a.cfg.Recording
	default:
		return errors.New("replay needs -recording or -import")
	}
	if err != nil {
		return err
	}
	delta := a.cfg.Delta
	if delta == 0 {
		delta = scenario.DefaultDelta
	}
	world, err := scenario.NewWorld(a.logger)
	if err != nil {
		return err
	}
	played, err := scenario.Replay(ctx, world, entries, delta, a.cfg.Ticks)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "replayed %s over %d ticks: emitted %d, skipped %d, missed %d, fidelity %.3f\n",
		source, played.Ticks, played.Stats.Emitted, played.Stats.Skipped, played.Stats.Missed, played.Stats.Fidelity())
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tKIND\tSTATUS\tSEED\tDRAWS")
	for _, s := range append(played.Snapshot.Archived, played.Snapshot.Sessions...) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%016x\t%d\n", s.ID, s.Kind, s.Status, s.Seed, s.Draws)
	}
	return w.Flush()
}

func (a *app) list(ctx context.Context) error {
	records, err := a.store.ListRecordings(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENTRIES\tSESSIONS\tLAST TICK\tCREATED")
	for _, record := range records {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", record.ID, record.Entries, record.Sessions, record.LastTick, record.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func exportLog(path string, entries []replay.Entry) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	defer func() {
		if closeErr := file.Close(); err == nil && closeErr != nil {
			err = fmt.Errorf("close export: %w", closeErr)
		}
	}()
	if isYAML(path) {
		return replay.EncodeYAML(file, entries)
	}
	return replay.EncodeJSONL(file, entries)
}

func importLog(path string) ([]replay.Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open import: %w", err)
	}
	defer file.Close()
	if isYAML(path) {
		return replay.DecodeYAML(file)
	}
	return replay.DecodeJSONL(file)
}
