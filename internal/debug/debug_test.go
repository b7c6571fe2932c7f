package debug

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func useTempLogPath(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, LogDirName, LogFileName)
	origGetLogPath := getLogPath
	getLogPath = func() (string, error) {
		return logPath, nil
	}
	t.Cleanup(func() {
		getLogPath = origGetLogPath
		resetForTest()
	})
	return logPath
}

func TestInit_Disabled(t *testing.T) {
	resetForTest()

	if err := Init(false); err != nil {
		t.Fatalf("Init(false) failed: %v", err)
	}
	if Enabled() {
		t.Error("Enabled() should return false when initialized with false")
	}
	if Logger().Enabled(t.Context(), slog.LevelError) {
		t.Error("Logger() should discard everything when disabled")
	}

	// Logging should be a no-op
	Logf("test %s", "formatted")
}

func TestInit_Enabled(t *testing.T) {
	resetForTest()
	logPath := useTempLogPath(t)

	if err := Init(true); err != nil {
		t.Fatalf("Init(true) failed: %v", err)
	}
	if !Enabled() {
		t.Error("Enabled() should return true when initialized with true")
	}
	if !Logger().Enabled(t.Context(), slog.LevelDebug) {
		t.Error("Logger() should record debug level when enabled")
	}

	Logger().Info("settings file changed, reloading", "path", "/tmp/settings.json")
	Logf("test %s %d", "formatted", 42)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	contentStr := string(content)
	for _, want := range []string{
		"debug log started",
		"settings file changed, reloading",
		"path=/tmp/settings.json",
		"test formatted 42",
		"level=DEBUG",
	} {
		if !strings.Contains(contentStr, want) {
			t.Errorf("log file missing %q:\n%s", want, contentStr)
		}
	}
}

func TestInit_TruncatesExistingLog(t *testing.T) {
	resetForTest()
	logPath := useTempLogPath(t)

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		t.Fatalf("Failed to create log directory: %v", err)
	}
	if err := os.WriteFile(logPath, []byte("old log content that should be truncated\n"), 0600); err != nil {
		t.Fatalf("Failed to write pre-existing log: %v", err)
	}

	if err := Init(true); err != nil {
		t.Fatalf("Init(true) failed: %v", err)
	}

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if strings.Contains(string(content), "old log content") {
		t.Error("Log file should have been truncated, but old content still present")
	}
	if !strings.Contains(string(content), "debug log started") {
		t.Error("Log file should contain new startup message")
	}
}

func TestClose(t *testing.T) {
	resetForTest()
	useTempLogPath(t)

	if err := Init(true); err != nil {
		t.Fatalf("Init(true) failed: %v", err)
	}

	Close()
	if Enabled() {
		t.Error("Enabled() should return false after Close")
	}

	// Multiple closes should be safe
	Close()
	Close()
	Logf("after close %d", 1)
}

func TestGetLogPath(t *testing.T) {
	path, err := GetLogPath()
	if err != nil {
		t.Fatalf("GetLogPath() failed: %v", err)
	}

	if !strings.HasSuffix(path, filepath.Join(LogDirName, LogFileName)) {
		t.Errorf("GetLogPath() = %q, want suffix %q", path, filepath.Join(LogDirName, LogFileName))
	}
}

// resetForTest resets the package state for testing.
func resetForTest() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	enabled = false
	logger = slog.New(slog.DiscardHandler)
}
