package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLevels(t *testing.T) {
	logger, err := New(Options{Debug: true, Level: "error"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("Expected debug level in debug mode, got %v", logger.GetLevel())
	}

	logger, err = New(Options{Level: "warn"})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if logger.GetLevel() != logrus.WarnLevel {
		t.Errorf("Expected warn level, got %v", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Errorf("Expected JSON formatter, got %T", logger.Formatter)
	}

	if _, err := New(Options{Level: "chatty"}); err == nil {
		t.Error("Expected error for an unknown level")
	}
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger, err := New(Options{Level: "info", File: path, MaxSize: 1})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.WithField("image", "img1").Info("processed")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"image":"img1"`) {
		t.Errorf("Expected the entry in the log file, got %q", data)
	}
}
