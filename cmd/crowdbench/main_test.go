package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/torosent/crowdbench/internal/action"
	"github.com/torosent/crowdbench/internal/config"
	"github.com/torosent/crowdbench/internal/ledger"
	"github.com/torosent/crowdbench/internal/logging"
	"github.com/torosent/crowdbench/internal/plan"
)

func execute(t *testing.T, registry *action.Registry, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand(registry)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestForwardFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	config.RegisterFlags(fs)
	runFlags(fs)
	if err := fs.Parse([]string{"--data-dir=/tmp/x", "--header", "A=1", "--header", "B=2", "--plan=old.json", "-c", "5"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	got := forwardFlags(fs, map[string]string{"plan": "new.json"})
	joined := strings.Join(got, " ")
	for _, want := range []string{"--data-dir=/tmp/x", "--header=A=1", "--header=B=2", "--concurrency=5", "--plan=new.json"} {
		if !strings.Contains(joined, want) {
			t.Errorf("forwarded flags %q missing %q", joined, want)
		}
	}
	if strings.Contains(joined, "old.json") {
		t.Errorf("override not applied: %q", joined)
	}
	if strings.Contains(joined, "--port") {
		t.Errorf("unset flags must not be forwarded: %q", joined)
	}
}

func TestPlanCommandWritesDocument(t *testing.T) {
	dir := t.TempDir()
	hosts := filepath.Join(dir, "conf.yaml")
	writeFile(t, hosts, "hosts:\n  - host: w2\n    web_port: 8081\n  - host: w1\n    web_port: 8081\n")
	def := filepath.Join(dir, "run.yaml")
	writeFile(t, def, "intervals: [10, 10]\nactions:\n  ActionSample: [5, -2]\n  ActionExample: 2\n")

	out, err := execute(t, action.DefaultRegistry(),
		"plan", "--data-dir", dir, "--hosts-file", hosts, "--definition", def, "--run-id", "r1", "--seed", "7")
	if err != nil {
		t.Fatalf("plan: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Test run: r1") {
		t.Fatalf("missing run id in output:\n%s", out)
	}
	if !strings.Contains(out, "TOTAL load:") {
		t.Fatalf("missing description in output:\n%s", out)
	}

	doc, err := plan.ReadDocument(planPath(dir, "r1"))
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	if len(doc) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(doc))
	}
	w1, _ := doc.Worker("w1")
	if got := w1.Actions["ActionSample"]; len(got) != 2 || got[0] != 3 || got[1] != -1 {
		t.Fatalf("unexpected w1 share %v", got)
	}
	planLog, err := os.ReadFile(logging.PlanLog(dir))
	if err != nil || !strings.Contains(string(planLog), "test run planned") {
		t.Fatalf("plan log = %q, %v", planLog, err)
	}
	if _, err := os.Stat(logging.MonitorLog(dir)); !os.IsNotExist(err) {
		t.Fatalf("planning wrote to the monitor log: %v", err)
	}
}

func TestPlanCommandRejectsUnknownAction(t *testing.T) {
	dir := t.TempDir()
	hosts := filepath.Join(dir, "conf.yaml")
	writeFile(t, hosts, "hosts:\n  - host: w1\n")
	def := filepath.Join(dir, "run.yaml")
	writeFile(t, def, "intervals: [10]\nactions:\n  Missing: [1]\n")

	_, err := execute(t, action.DefaultRegistry(), "plan", "--data-dir", dir, "--hosts-file", hosts, "--definition", def)
	if err == nil || !strings.Contains(err.Error(), "Missing") {
		t.Fatalf("expected unknown action error, got %v", err)
	}
}

func TestActionCommandRecordsRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	registry := action.NewRegistry()
	registry.MustRegister("Ping", func(env action.Env) action.Action {
		return action.Func(func(ctx context.Context, s *action.Session, u action.User) (int, string) {
			code, reason, _ := s.Get(ctx, u, env.Target+"/ping", nil)
			return code, reason
		})
	})

	dir := t.TempDir()
	p := plan.Plan{Intervals: []int{1}, Actions: map[string][]int{"Ping": {1}}}
	parts, err := plan.Distribute(&p, []string{"w1"})
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if err := plan.WriteDocument(planPath(dir, "r1"), plan.Document(parts)); err != nil {
		t.Fatalf("write plan: %v", err)
	}

	out, err := execute(t, registry, "action",
		"--data-dir", dir, "--target", srv.URL, "--grace", "200ms",
		"--run-id", "r1", "--worker", "w1", "--name", "Ping")
	if err != nil {
		t.Fatalf("action: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Ping results") {
		t.Fatalf("missing report:\n%s", out)
	}

	store, err := ledger.Open(ledger.Path(dir, "r1"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer store.Close()
	counts, err := store.Counts(context.Background())
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	var passed int64
	for _, c := range counts {
		if c.Atomic && c.Outcome == ledger.OutcomePassed {
			passed += c.Count
		}
	}
	if passed == 0 {
		t.Fatalf("expected passed requests in ledger, got %+v", counts)
	}
}

func TestActionsCommandListsCatalog(t *testing.T) {
	out, err := execute(t, action.DefaultRegistry(), "actions")
	if err != nil {
		t.Fatalf("actions: %v", err)
	}
	if out != "ActionExample\nActionSample\n" {
		t.Fatalf("unexpected catalog %q", out)
	}
}

func TestHostsCommands(t *testing.T) {
	dir := t.TempDir()
	hosts := filepath.Join(dir, "conf.yaml")

	if _, err := execute(t, action.DefaultRegistry(), "hosts", "add", "w1", "--hosts-file", hosts, "--web-port", "9000"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := execute(t, action.DefaultRegistry(), "hosts", "add", "w2", "--hosts-file", hosts); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, err := execute(t, action.DefaultRegistry(), "hosts", "--hosts-file", hosts)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "http://w1:9000") || !strings.Contains(out, "http://w2:8081") {
		t.Fatalf("unexpected listing:\n%s", out)
	}

	if _, err := execute(t, action.DefaultRegistry(), "hosts", "remove", "w1", "--hosts-file", hosts); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := execute(t, action.DefaultRegistry(), "hosts", "remove", "w1", "--hosts-file", hosts); err == nil {
		t.Fatal("expected error removing a missing host")
	}
	list, err := config.LoadHosts(hosts)
	if err != nil || len(list) != 1 || list[0].Host != "w2" {
		t.Fatalf("unexpected inventory %+v (%v)", list, err)
	}
}
