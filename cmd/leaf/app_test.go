package main

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func withHome(t *testing.T) string {
	t.Helper()
	home := filepath.Join(t.TempDir(), "leaf")
	oldHome, oldConfig := flagHome, flagConfig
	flagHome, flagConfig = home, ""
	old := slog.Default()
	t.Cleanup(func() {
		flagHome, flagConfig = oldHome, oldConfig
		slog.SetDefault(old)
	})
	return home
}

func TestLoadAppBootstrapsHome(t *testing.T) {
	home := withHome(t)

	a, err := loadApp(true)
	if err != nil {
		t.Fatalf("loadApp: %v", err)
	}
	defer a.Close()

	for _, name := range []string{"config.yaml", "guests.yaml", "leaf.log"} {
		if _, err := os.Stat(filepath.Join(home, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}
	if a.regErr != nil {
		t.Errorf("bootstrapped registry should load: %v", a.regErr)
	}
	if a.registry.Len() != 0 {
		t.Errorf("expected empty registry, got %d guests", a.registry.Len())
	}
	if a.cfg.EnvsRoot != filepath.Join(home, "envs") {
		t.Errorf("EnvsRoot = %q", a.cfg.EnvsRoot)
	}
}

func TestLoadAppWithoutBootstrapWritesNothing(t *testing.T) {
	home := withHome(t)

	a, err := loadApp(false)
	if err != nil {
		t.Fatalf("loadApp: %v", err)
	}
	a.Close()

	if _, err := os.Stat(home); !os.IsNotExist(err) {
		t.Error("read-only commands should not create the leaf home")
	}
}

func TestLogRecordsCarryBootID(t *testing.T) {
	home := withHome(t)

	a, err := loadApp(true)
	if err != nil {
		t.Fatalf("loadApp: %v", err)
	}
	slog.Info("menu shown")
	a.Close()
	a.Close()

	data, err := os.ReadFile(filepath.Join(home, "leaf.log"))
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("log line is not JSON: %q", line)
		}
		if rec["msg"] == "menu shown" {
			found = true
			if rec["boot_id"] != a.bootID {
				t.Errorf("boot_id = %v, want %s", rec["boot_id"], a.bootID)
			}
		}
	}
	if !found {
		t.Error("record not written to leaf.log")
	}
}

func TestSetupLoggingRejectsBadLevel(t *testing.T) {
	if _, err := setupLogging(filepath.Join(t.TempDir(), "leaf.log"), "chatty", false, "id"); err == nil {
		t.Error("expected error for unknown level")
	}
}
