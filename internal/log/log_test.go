package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInit_StderrLevels(t *testing.T) {
	var stderr bytes.Buffer

	// Initialize non-verbose, non-interactive
	if err := Init(Options{
		Verbose:     false,
		JSONFormat:  false,
		Interactive: false,
		Stderr:      &stderr,
	}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	output := stderr.String()

	// Debug and Info should NOT appear on stderr
	if strings.Contains(output, "debug message") {
		t.Error("debug should not appear on stderr in non-verbose mode")
	}
	if strings.Contains(output, "info message") {
		t.Error("info should not appear on stderr in non-verbose mode")
	}

	// Warn and Error should appear
	if !strings.Contains(output, "warn message") {
		t.Error("warn should appear on stderr")
	}
	if !strings.Contains(output, "error message") {
		t.Error("error should appear on stderr")
	}
}

func TestInit_VerboseStderr(t *testing.T) {
	var stderr bytes.Buffer

	if err := Init(Options{
		Verbose: true,
		Stderr:  &stderr,
	}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Debug("debug message")
	Info("info message")

	output := stderr.String()
	if !strings.Contains(output, "debug message") {
		t.Error("debug should appear on stderr in verbose mode")
	}
	if !strings.Contains(output, "info message") {
		t.Error("info should appear on stderr in verbose mode")
	}
}

func TestInit_InteractiveSuppressesVerbose(t *testing.T) {
	var stderr bytes.Buffer

	if err := Init(Options{
		Verbose:     true,
		Interactive: true,
		Stderr:      &stderr,
	}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Debug("debug message")
	Info("info message")
	Warn("warn message")

	output := stderr.String()
	if strings.Contains(output, "debug message") {
		t.Error("debug should not appear on stderr in interactive mode")
	}
	if strings.Contains(output, "info message") {
		t.Error("info should not appear on stderr in interactive mode")
	}
	if !strings.Contains(output, "warn message") {
		t.Error("warn should still appear on stderr in interactive mode")
	}
}

func TestInit_FileLogging(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "tracexec.log")

	if err := Init(Options{
		Stderr: &bytes.Buffer{},
		File:   logPath,
	}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Debug("file debug message")
	Close()

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(content), "file debug message") {
		t.Errorf("expected log file to contain debug message, got: %s", content)
	}
}

func TestInit_JSONFormat(t *testing.T) {
	var stderr bytes.Buffer

	if err := Init(Options{
		JSONFormat: true,
		Stderr:     &stderr,
	}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	Warn("structured message", "pid", 42)

	output := stderr.String()
	if !strings.Contains(output, `"msg":"structured message"`) {
		t.Errorf("expected JSON output, got: %s", output)
	}
	if !strings.Contains(output, `"pid":42`) {
		t.Errorf("expected pid attribute in JSON output, got: %s", output)
	}
}
