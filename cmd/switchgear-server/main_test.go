package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signalsfoundry/switchgear-simulator/internal/config"
	"github.com/signalsfoundry/switchgear-simulator/internal/logging"
)

const smokeNetwork = `version: switchgear/v1
name: smoke
devices:
  - {id: S1, kind: source, sourceEnergized: true}
  - {id: CB1, kind: breaker, state: closed}
  - {id: L1, kind: load, power: {p: 5, q: 1}}
connections:
  - {id: c1, from: S1, to: CB1}
  - {id: c2, from: CB1, to: L1}
`

func TestServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	path := filepath.Join(t.TempDir(), "smoke.yaml")
	if err := os.WriteFile(path, []byte(smokeNetwork), 0o644); err != nil {
		t.Fatalf("write network: %v", err)
	}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg := config.Default()
	cfg.Server.Addr = lis.Addr().String()
	cfg.Sim.Network = path
	cfg.Sim.Mode = "accelerated"
	cfg.Sim.Tick = 10 * time.Millisecond
	cfg.Sim.Speed = 10
	cfg.Sim.Seed = 1
	cfg.Log.Level = "warn"

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, logging.Noop(), lis)
	}()

	base := "http://" + lis.Addr().String()
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(base + "/v1/conduction")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /v1/conduction: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		EnergizedDevices []string `json:"energizedDevices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(body.EnergizedDevices, ",") != "CB1,L1,S1" {
		t.Fatalf("energized = %v", body.EnergizedDevices)
	}

	metrics, err := http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	metrics.Body.Close()
	if metrics.StatusCode != http.StatusOK {
		t.Fatalf("/metrics status = %d", metrics.StatusCode)
	}

	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}

func TestRunRejectsMissingNetwork(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer lis.Close()

	cfg := config.Default()
	cfg.Sim.Network = filepath.Join(t.TempDir(), "absent.yaml")
	if err := run(context.Background(), cfg, logging.Noop(), lis); err == nil {
		t.Fatalf("expected error for missing network document")
	}
}

func TestRootCommandFlagsReachConfig(t *testing.T) {
	cmd := newRootCmd()
	for _, name := range []string{"config", "addr", "network", "mode", "speed", "seed", "log-level"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Fatalf("flag --%s missing", name)
		}
	}
	cmd.SetArgs([]string{"--mode", "warp"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "sim.mode") {
		t.Fatalf("Execute with bad mode = %v", err)
	}
}
