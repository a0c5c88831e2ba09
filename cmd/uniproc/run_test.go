// run_test.go tests the 'uniproc run' command.
package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kolkov/uniproc/internal/kernel/thread"
	"github.com/kolkov/uniproc/internal/scenario"
)

const scenarioDir = "../../examples/scenarios"

// TestParseRunArgs covers flag handling.
func TestParseRunArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    runConfig
		wantErr string
	}{
		{
			name: "file only",
			args: []string{"a.json"},
			want: runConfig{file: "a.json", timeout: defaultTimeout},
		},
		{
			name: "all flags",
			args: []string{"-v", "-json", "-q", "-timeout", "2s", "a.json"},
			want: runConfig{file: "a.json", verbose: true, json: true, quiet: true, timeout: 2 * time.Second},
		},
		{
			name: "flags after file",
			args: []string{"a.json", "-v"},
			want: runConfig{file: "a.json", verbose: true, timeout: defaultTimeout},
		},
		{name: "no file", args: []string{"-v"}, wantErr: "no scenario file"},
		{name: "two files", args: []string{"a.json", "b.json"}, wantErr: "only one scenario"},
		{name: "unknown flag", args: []string{"-x", "a.json"}, wantErr: "unknown flag: -x"},
		{name: "timeout missing", args: []string{"a.json", "-timeout"}, wantErr: "requires a duration"},
		{name: "timeout invalid", args: []string{"-timeout", "soon", "a.json"}, wantErr: "invalid -timeout"},
		{name: "timeout zero", args: []string{"-timeout", "0s", "a.json"}, wantErr: "must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseRunArgs(tt.args)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("parseRunArgs() error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRunArgs() error: %v", err)
			}
			if *got != tt.want {
				t.Errorf("parseRunArgs() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

// TestRunScenario_Donation runs a shipped scenario and checks the report.
func TestRunScenario_Donation(t *testing.T) {
	config := &runConfig{file: filepath.Join(scenarioDir, "donation.json"), timeout: defaultTimeout}
	var logs, out bytes.Buffer

	if err := runScenario(config, newLogger(config, &logs), &out); err != nil {
		t.Fatalf("runScenario() error: %v", err)
	}
	report := out.String()
	for _, want := range []string{
		"scenario donation",
		"note",
		"high has lock",
		"donations=1",
		"priorities: high=40 low=10",
	} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
	if logs.Len() != 0 {
		t.Errorf("unexpected log output at warn level:\n%s", logs.String())
	}
}

// TestRunScenario_Quiet verifies -q drops the trace but keeps the summary.
func TestRunScenario_Quiet(t *testing.T) {
	config := &runConfig{file: filepath.Join(scenarioDir, "wake_order.json"), quiet: true, timeout: defaultTimeout}
	var logs, out bytes.Buffer

	if err := runScenario(config, newLogger(config, &logs), &out); err != nil {
		t.Fatalf("runScenario() error: %v", err)
	}
	if strings.Contains(out.String(), "#1 ") {
		t.Errorf("quiet report contains trace lines:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "semaphores: s=0") {
		t.Errorf("report missing semaphore summary:\n%s", out.String())
	}
}

// TestRunScenario_VerboseJSON verifies -v -json logs events as JSON.
func TestRunScenario_VerboseJSON(t *testing.T) {
	config := &runConfig{file: filepath.Join(scenarioDir, "monitor.json"), verbose: true, json: true, timeout: defaultTimeout}
	var logs, out bytes.Buffer

	if err := runScenario(config, newLogger(config, &logs), &out); err != nil {
		t.Fatalf("runScenario() error: %v", err)
	}
	first, _, _ := strings.Cut(logs.String(), "\n")
	if !strings.HasPrefix(first, "{") || !strings.Contains(logs.String(), `"thread":"consumer"`) {
		t.Errorf("expected JSON event logs, got:\n%s", logs.String())
	}
}

// TestRunScenario_Deadlock verifies a failed run still prints its report.
func TestRunScenario_Deadlock(t *testing.T) {
	path := writeScenario(t, `{
		"version": "v1.0.0",
		"name": "stuck",
		"semaphores": {"s": 0},
		"threads": [{"name": "a", "ops": [{"op": "down", "target": "s"}]}]
	}`)
	config := &runConfig{file: path, timeout: defaultTimeout}
	var logs, out bytes.Buffer

	err := runScenario(config, newLogger(config, &logs), &out)
	if !errors.Is(err, thread.ErrDeadlock) {
		t.Fatalf("runScenario() error = %v, want ErrDeadlock", err)
	}
	if !strings.Contains(out.String(), "block") {
		t.Errorf("report missing trace:\n%s", out.String())
	}
	if !strings.Contains(logs.String(), "machine halted") {
		t.Errorf("expected halt warning in logs, got:\n%s", logs.String())
	}
}

// TestRunScenario_Invalid verifies validation errors stop the run.
func TestRunScenario_Invalid(t *testing.T) {
	path := writeScenario(t, `{"version": "v1.0.0", "threads": [{"name": "a", "ops": [{"op": "fly"}]}]}`)
	config := &runConfig{file: path, timeout: defaultTimeout}
	var logs, out bytes.Buffer

	err := runScenario(config, newLogger(config, &logs), &out)
	var ve *scenario.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("runScenario() error = %v, want *scenario.ValidationError", err)
	}
	if out.Len() != 0 {
		t.Errorf("invalid scenario produced output:\n%s", out.String())
	}
}

// TestValidateFile checks the validate report for good and bad files.
func TestValidateFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if !validateFile(filepath.Join(scenarioDir, "chain.json"), &stdout, &stderr) {
		t.Fatalf("validateFile() = false, stderr:\n%s", stderr.String())
	}
	if !strings.Contains(stdout.String(), "ok (v1.0.0, 3 threads, 2 deferred)") {
		t.Errorf("stdout = %q", stdout.String())
	}

	stdout.Reset()
	bad := writeScenario(t, `{"version": "v9.0.0", "threads": []}`)
	if validateFile(bad, &stdout, &stderr) {
		t.Fatal("validateFile() = true for unsupported version")
	}
	if !strings.Contains(stderr.String(), "unsupported version") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

// TestExampleScenarios validates every scenario shipped in examples/.
func TestExampleScenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join(scenarioDir, "*.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Fatal("no example scenarios found")
	}
	for _, file := range files {
		t.Run(filepath.Base(file), func(t *testing.T) {
			config := &runConfig{file: file, quiet: true, timeout: defaultTimeout}
			var logs, out bytes.Buffer
			if err := runScenario(config, newLogger(config, &logs), &out); err != nil {
				t.Errorf("runScenario() error: %v\n%s", err, out.String())
			}
		})
	}
}

func writeScenario(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.json")
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("failed to write scenario: %v", err)
	}
	return path
}
