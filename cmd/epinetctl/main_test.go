package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"epinet/internal/model"
	"epinet/pkg/epinet"
)

const testRunFile = `
seed: 4
replicates: 2
control:
  resimulate_each_step: true
  representation: edgelist
  num_steps: 4
population:
  size: 8
networks:
  - name: main
    formation: [edges]
    coef: [-1.2]
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("execute %v: %v", args, err)
	}
	return out.String()
}

func writeRunFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "run.yaml")
	if err := os.WriteFile(path, []byte(testRunFile), 0o644); err != nil {
		t.Fatalf("write run file: %v", err)
	}
	return path
}

func TestVersionCmd(t *testing.T) {
	out := execute(t, "version")
	if !strings.Contains(out, "epinetctl version "+version) {
		t.Fatalf("unexpected version output: %q", out)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(execute(t, "version", "--json")), &payload); err != nil {
		t.Fatalf("decode version json: %v", err)
	}
	if payload["version"] != version {
		t.Fatalf("unexpected version payload: %v", payload)
	}
}

func TestRunThenQuery(t *testing.T) {
	dir := t.TempDir()
	runFile := writeRunFile(t, dir)
	artifacts := filepath.Join(dir, "runs")

	var summary epinet.RunSummary
	out := execute(t, "run", "--config", runFile, "--artifacts-dir", artifacts, "--batch-id", "b1", "--json")
	if err := json.Unmarshal([]byte(out), &summary); err != nil {
		t.Fatalf("decode run summary: %v\n%s", err, out)
	}
	if summary.BatchID != "b1" || len(summary.RunIDs) != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	var runs []epinet.RunItem
	if err := json.Unmarshal([]byte(execute(t, "runs", "--artifacts-dir", artifacts, "--json")), &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 2 || runs[0].BatchID != "b1" {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	var rows []model.StepDiagnostics
	out = execute(t, "diagnostics", "--artifacts-dir", artifacts, "--run-id", summary.RunIDs[0], "--network", "0", "--json")
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatalf("decode diagnostics: %v", err)
	}
	if len(rows) != 4 || rows[0].At != 1 || rows[3].At != 4 {
		t.Fatalf("unexpected diagnostics: %+v", rows)
	}

	table := execute(t, "cumulative", "--artifacts-dir", artifacts, "--latest")
	if !strings.HasPrefix(table, "tail") {
		t.Fatalf("unexpected cumulative table: %q", table)
	}

	exportDir := filepath.Join(dir, "exports")
	out = execute(t, "export", "--artifacts-dir", artifacts, "--latest", "--out", exportDir)
	if !strings.Contains(out, "exported ") {
		t.Fatalf("unexpected export output: %q", out)
	}
	if _, err := os.Stat(filepath.Join(exportDir, runs[0].RunID, "config.json")); err != nil {
		t.Fatalf("expected exported config: %v", err)
	}
}

func TestRunFlagOverrides(t *testing.T) {
	dir := t.TempDir()
	runFile := writeRunFile(t, dir)
	artifacts := filepath.Join(dir, "runs")

	out := execute(t, "run", "--config", runFile, "--artifacts-dir", artifacts, "--replicates", "1", "--steps", "2")
	if !strings.Contains(out, "1 replicate(s)") {
		t.Fatalf("expected replicate override in output: %q", out)
	}
	if !strings.Contains(out, "ensemble summary:") {
		t.Fatalf("expected ensemble table: %q", out)
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"run", "--artifacts-dir", t.TempDir()})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for config without networks")
	}
}
