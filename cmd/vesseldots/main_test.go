package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRunWriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.toml")
	if code := run([]string{"-write-config", path}); code != exitOK {
		t.Fatalf("Expected exit code %d, got %d", exitOK, code)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected config file to exist: %v", err)
	}
}

func TestRunErrors(t *testing.T) {
	if code := run([]string{"-list-methods"}); code != exitOK {
		t.Errorf("Expected exit code %d for -list-methods, got %d", exitOK, code)
	}
	if code := run(nil); code != exitConfiguration {
		t.Errorf("Expected exit code %d without input, got %d", exitConfiguration, code)
	}
	empty := t.TempDir()
	if code := run([]string{"-input", empty, "-config", filepath.Join(empty, "none.yaml")}); code != exitInput {
		t.Errorf("Expected exit code %d for a directory without images, got %d", exitInput, code)
	}
}
