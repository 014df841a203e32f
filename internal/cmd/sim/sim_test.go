package sim

import (
	"bytes"
	"context"
	"flag"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/roundtable/internal/services/game/domain/replay"
	"github.com/rs/zerolog"
)

func parse(t *testing.T, args ...string) Config {
	t.Helper()
	cfg, err := ParseConfig(flag.NewFlagSet("sim", flag.ContinueOnError), args)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.LogLevel = "disabled"
	return cfg
}

func TestParseConfigDefaults(t *testing.T) {
	cfg := parse(t)
	if cfg.Mode != ModeRun || cfg.Scenario != "skirmish" || !cfg.Verify {
		t.Fatalf("cfg = %+v, want run skirmish with verify", cfg)
	}
}

func TestParseConfigEnvAndFlags(t *testing.T) {
	t.Setenv("ROUNDTABLE_SIM_SCENARIO", "settlement")
	t.Setenv("ROUNDTABLE_SIM_DELTA", "0.5")
	cfg := parse(t, "-mode", "REPLAY", "-recording", "run-1")
	if cfg.Mode != ModeReplay || cfg.Scenario != "settlement" || cfg.Delta != 0.5 || cfg.Recording != "run-1" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseConfigRejectsInvalid(t *testing.T) {
	if _, err := ParseConfig(flag.NewFlagSet("sim", flag.ContinueOnError), []string{"-mode", "serve"}); err == nil {
		t.Fatal("expected unknown mode error")
	}
	if _, err := ParseConfig(flag.NewFlagSet("sim", flag.ContinueOnError), []string{"-delta", "-1"}); err == nil {
		t.Fatal("expected negative delta error")
	}
}

func TestRunRecordsExportsAndVerifies(t *testing.T) {
	dir := t.TempDir()
	cfg := parse(t,
		"-scenario", "skirmish",
		"-db", filepath.Join(dir, "sim.db"),
		"-recording", "skirmish-1",
		"-export", filepath.Join(dir, "skirmish.jsonl"),
	)
	var out bytes.Buffer
	if err := Run(context.Background(), cfg, &out); err != nil {
		t.Fatalf("run: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "recording skirmish-1:") || !strings.Contains(out.String(), "replay matches live run") {
		t.Fatalf("output = %q", out.String())
	}

	file, err := os.Open(filepath.Join(dir, "skirmish.jsonl"))
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer file.Close()
	entries, err := replay.DecodeJSONL(file)
	if err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(entries) == 0 || entries[0].SessionID != "battle-007" {
		t.Fatalf("entries = %+v", entries)
	}

	out.Reset()
	replayCfg := parse(t, "-mode", "replay", "-db", filepath.Join(dir, "sim.db"), "-recording", "skirmish-1")
	if err := Run(context.Background(), replayCfg, &out); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !strings.Contains(out.String(), "replayed skirmish-1") || !strings.Contains(out.String(), "battle-007") {
		t.Fatalf("replay output = %q", out.String())
	}

	out.Reset()
	listCfg := parse(t, "-mode", "list", "-db", filepath.Join(dir, "sim.db"))
	if err := Run(context.Background(), listCfg, &out); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), "skirmish-1") {
		t.Fatalf("list output = %q", out.String())
	}
}

func TestReplayFromYAMLImport(t *testing.T) {
	dir := t.TempDir()
	export := filepath.Join(dir, "settlement.yaml")
	var out bytes.Buffer
	if err := Run(context.Background(), parse(t, "-scenario", "settlement", "-export", export, "-verify=false"), &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	out.Reset()
	if err := Run(context.Background(), parse(t, "-mode", "replay", "-import", export, "-delta", "0.5"), &out); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !strings.Contains(out.String(), "org-A") || !strings.Contains(out.String(), "missed 0") {
		t.Fatalf("replay output = %q", out.String())
	}
}

func TestReplayNeedsSource(t *testing.T) {
	if err := Run(context.Background(), parse(t, "-mode", "replay"), io.Discard); err == nil {
		t.Fatal("expected missing source error")
	}
}

func TestServeMetricsServesPrometheus(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve port: %v", err)
	}
	addr := probe.Addr().String()
	probe.Close()

	err = serveMetrics(context.Background(), addr, zerolog.Nop(), func(ctx context.Context) error {
		client := &http.Client{Timeout: 2 * time.Second}
		var resp *http.Response
		var err error
		for attempt := 0; attempt < 20; attempt++ {
			if resp, err = client.Get("http://" + addr + "/metrics"); err == nil {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if !strings.Contains(string(body), "go_goroutines") {
			t.Errorf("metrics body missing go collector")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("serve metrics: %v", err)
	}
}
