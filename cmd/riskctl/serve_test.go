package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vaultrisk/config"
	"vaultrisk/gateway"
)

func TestServeExposesVaultViews(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "riskctl.toml")
	if code, _, stderr := runCLI(t, "init", "--config", path, "--vault0", testVault0, "--vault1", testVault1, "--backend", "memory"); code != 0 {
		t.Fatalf("init failed: %s", stderr)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	logPath := filepath.Join(dir, "logs", "riskctl.log")
	cfg.Logging.File = logPath
	if err := config.Write(path, cfg); err != nil {
		t.Fatalf("write: %v", err)
	}

	var stdout, stderr bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n, err := openNode(ctx, path, "info", &stdout, &stderr)
	if err != nil {
		t.Fatalf("open node: %v", err)
	}
	defer n.Close(ctx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- serve(ctx, n, ln) }()
	base := "http://" + ln.Addr().String()

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/vaults")
	if err != nil {
		t.Fatalf("vaults: %v", err)
	}
	var views [2]gateway.VaultView
	err = json.NewDecoder(resp.Body).Decode(&views)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode vaults: %v", err)
	}
	if !strings.EqualFold(views[0].Vault, testVault0) || views[1].Deposited != "1" {
		t.Fatalf("unexpected vaults %+v", views)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}
	if stderr.Len() != 0 {
		t.Fatalf("logs should go to the configured file, got %q", stderr.String())
	}
	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "gateway listening") {
		t.Fatalf("log file missing listen record: %q", data)
	}
}
