package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := RunLog(t.TempDir(), "run-1")
	logger, err := New(Options{Level: "info", File: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Debug("hidden")
	logger.Info("visible")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	out := string(data)
	if !strings.Contains(out, `"msg":"visible"`) {
		t.Errorf("log = %q, want visible JSON line", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("log = %q, debug line should be filtered", out)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Fatal("New() error = nil, want error")
	}
}

func TestPaths(t *testing.T) {
	if got := MonitorLog("/d"); got != filepath.Join("/d", "monitor.log") {
		t.Errorf("MonitorLog() = %q", got)
	}
	if got := PlanLog("/d"); got != filepath.Join("/d", "plan.log") {
		t.Errorf("PlanLog() = %q", got)
	}
	if got := RunLog("/d", "r"); got != filepath.Join("/d", "r-testrun.log") {
		t.Errorf("RunLog() = %q", got)
	}
	if OrNop(nil) == nil {
		t.Error("OrNop(nil) = nil")
	}
}
