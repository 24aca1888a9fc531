package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"taxlab-hq/ledger/pkg/cli"
	"taxlab-hq/ledger/pkg/config"
)

// writeConfig writes a configuration keeping every file under a temporary
// directory and returns its path.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := `
server:
  listen_address: "127.0.0.1:0"
countries:
  - name: uk
    households: 30
    seed: 3
dataset:
  path: "` + filepath.Join(dir, "data", "datasets.db") + `"
cache:
  backend: sqlite
  version: "test"
  sqlite:
    path: "` + filepath.Join(dir, "data", "cache.db") + `"
telemetry:
  logging:
    level: error
  metrics:
    enabled: false
` + extra
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"run", "parameters", "dataset", "cache", "validate", "version", "completion"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
	for _, path := range [][]string{{"cache", "prune"}, {"dataset", "warm"}} {
		cmd, _, err := rootCmd.Find(path)
		if err != nil || cmd.Name() != path[1] {
			t.Errorf("command %q not registered", strings.Join(path, " "))
		}
	}
}

func TestCountryPath(t *testing.T) {
	tests := []struct {
		path, name, want string
	}{
		{"data/datasets.db", "uk", "data/datasets-uk.db"},
		{"/var/lib/ledger/micro.sqlite", "us", "/var/lib/ledger/micro-us.sqlite"},
		{"datasets", "uk", "datasets-uk"},
	}
	for _, tt := range tests {
		if got := countryPath(tt.path, tt.name); got != tt.want {
			t.Errorf("countryPath(%q, %q) = %q, want %q", tt.path, tt.name, got, tt.want)
		}
	}
}

func TestCacheVersion(t *testing.T) {
	cfg := config.Default()
	if got := cacheVersion(cfg); got != Version {
		t.Errorf("cacheVersion() = %q, want build version %q", got, Version)
	}
	cfg.Cache.Version = "2024.1"
	if got := cacheVersion(cfg); got != "2024.1" {
		t.Errorf("cacheVersion() = %q, want %q", got, "2024.1")
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{0.2, "0.2"},
		{12570.0, "12570"},
		{true, "true"},
		{"weekly", "weekly"},
	}
	for _, tt := range tests {
		if got := formatValue(tt.in); got != tt.want {
			t.Errorf("formatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParametersCommand(t *testing.T) {
	path := writeConfig(t, "")

	out := execute(t, "parameters", "--config", path, "--country", "uk", "--date", "", "--format", "csv")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "name,kind,value,unit,label" {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.Contains(out, "\nbasic_rate,parametric,") {
		t.Errorf("basic_rate missing from:\n%s", out)
	}

	dated := execute(t, "parameters", "--config", path, "--country", "uk", "--date", "2020-01-01", "--format", "json")
	if !strings.Contains(dated, `"name": "basic_rate"`) {
		t.Errorf("dated catalog missing basic_rate:\n%s", dated)
	}

	if _, err := executeErr("parameters", "--config", path, "--country", "fr", "--date", "", "--format", "text"); err == nil {
		t.Error("unknown country accepted")
	}
	if _, err := executeErr("parameters", "--config", path, "--country", "uk", "--date", "", "--format", "junit"); err == nil {
		t.Error("unknown format accepted")
	}
}

func TestCachePruneCommand(t *testing.T) {
	path := writeConfig(t, "")
	out := execute(t, "cache", "prune", "--config", path)
	if !strings.Contains(out, "Pruned 0 entries (kept version test)") {
		t.Errorf("output = %q", out)
	}

	disabled := writeConfig(t, "")
	data, _ := os.ReadFile(disabled)
	data = []byte(strings.Replace(string(data), "cache:\n", "cache:\n  enabled: false\n", 1))
	if err := os.WriteFile(disabled, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := executeErr("cache", "prune", "--config", disabled)
	var cfgErr *cli.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "cache.enabled" {
		t.Errorf("prune with cache disabled: error = %v", err)
	}
}

func TestValidateCommand(t *testing.T) {
	path := writeConfig(t, "")

	out := execute(t, "validate", "--config", path, "--check=false")
	if !strings.Contains(out, "✓ Configuration valid") || !strings.Contains(out, "Country: uk") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "catalog_uk") {
		t.Error("checks ran without --check")
	}

	out = execute(t, "validate", "--config", path, "--check")
	for _, want := range []string{"✓ cache", "✓ catalog_uk", "✓ dataset_uk"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := executeErr("validate", "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--check=false"); err == nil {
		t.Error("missing config file accepted")
	}
}

func TestDatasetWarmCommand(t *testing.T) {
	path := writeConfig(t, "")
	out := execute(t, "dataset", "warm", "--config", path, "--country", "uk")
	if !strings.Contains(out, "Datasets: [") || !strings.Contains(out, "✓ 1 dataset(s) ready") {
		t.Errorf("output = %q", out)
	}
}

func TestRunDryRun(t *testing.T) {
	path := writeConfig(t, "")
	out := execute(t, "run", "--config", path, "--dry-run", "--listen", "", "--log-level", "")
	if strings.TrimSpace(out) != "✓ Configuration valid" {
		t.Errorf("output = %q", out)
	}
}

func TestReloadConfig(t *testing.T) {
	oldFile, oldVerbose, oldLevel := cfgFile, verbose, runFlags.logLevel
	t.Cleanup(func() { cfgFile, verbose, runFlags.logLevel = oldFile, oldVerbose, oldLevel })
	verbose, runFlags.logLevel = false, ""

	cfgFile = writeConfig(t, "")
	cfg, err := loadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := setupLogging(cfg, io.Discard); err != nil {
		t.Fatal(err)
	}
	level := logLevel
	if level.Level() != slog.LevelError {
		t.Fatalf("initial level = %v, want error", level.Level())
	}

	data, err := os.ReadFile(cfgFile)
	if err != nil {
		t.Fatal(err)
	}
	edited := strings.Replace(string(data), "level: error", "level: debug", 1)
	if err := os.WriteFile(cfgFile, []byte(edited), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := reloadConfig(level); err != nil {
		t.Fatalf("reloadConfig() error = %v", err)
	}
	if level.Level() != slog.LevelDebug {
		t.Errorf("level after reload = %v, want debug", level.Level())
	}
	if got := config.GetConfig().Telemetry.Logging.Level; got != "debug" {
		t.Errorf("process config level = %q, want debug", got)
	}

	runFlags.logLevel = "warn"
	if err := reloadConfig(level); err != nil {
		t.Fatal(err)
	}
	if level.Level() != slog.LevelWarn {
		t.Errorf("level with --log-level = %v, want warn", level.Level())
	}

	if err := os.WriteFile(cfgFile, []byte("cache:\n  workers: -1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := reloadConfig(level); err == nil {
		t.Error("reloadConfig() accepted an invalid file")
	}
	if level.Level() != slog.LevelWarn {
		t.Errorf("failed reload changed the level to %v", level.Level())
	}
	if got := config.GetConfig().Telemetry.Logging.Level; got != "debug" {
		t.Errorf("failed reload replaced the process config (level %q)", got)
	}
}

func TestCompleteCountries(t *testing.T) {
	oldFile := cfgFile
	t.Cleanup(func() { cfgFile = oldFile })

	cfgFile = writeConfig(t, "")
	tests := []struct {
		prefix string
		want   []string
	}{
		{"", []string{"uk"}},
		{"u", []string{"uk"}},
		{"fr", nil},
	}
	for _, tt := range tests {
		got, directive := completeCountries(parametersCmd, nil, tt.prefix)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("completeCountries(%q) = %v, want %v", tt.prefix, got, tt.want)
		}
		if directive != cobra.ShellCompDirectiveNoFileComp {
			t.Errorf("directive = %v, want NoFileComp", directive)
		}
	}

	cfgFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, directive := completeCountries(parametersCmd, nil, ""); directive != cobra.ShellCompDirectiveError {
		t.Errorf("directive for a missing config = %v, want Error", directive)
	}
}

func TestCompletionCommand(t *testing.T) {
	path := writeConfig(t, "")

	out := execute(t, "__complete", "parameters", "--config", path, "--country", "")
	if !strings.Contains(out, "uk\n") {
		t.Errorf("country completions = %q, want uk", out)
	}
	out = execute(t, "__complete", "parameters", "--config", path, "--format", "")
	for _, want := range []string{"text\n", "json\n", "csv\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("format completions = %q, missing %q", out, want)
		}
	}

	if script := execute(t, "completion", "bash"); !strings.Contains(script, "ledger") {
		t.Error("bash completion script does not mention ledger")
	}
	if _, err := executeErr("completion", "tcsh"); err == nil {
		t.Error("completion tcsh should fail")
	}
}
