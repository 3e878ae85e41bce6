// Package testutil provides common test utilities for the bookferry project.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"bookferry/internal/config"
)

// TestEnv is a sandboxed directory for tests that touch the filesystem.
// Every path handed out is validated to stay inside the sandbox, and the
// directory is removed when the test completes.
type TestEnv struct {
	t       *testing.T
	rootDir string
}

// NewTestEnv creates a sandboxed test environment.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	return &TestEnv{t: t, rootDir: t.TempDir()}
}

// RootDir returns the sandbox root.
func (e *TestEnv) RootDir() string {
	return e.rootDir
}

// Path returns an absolute path within the sandbox, failing the test if the
// elements escape it.
func (e *TestEnv) Path(elem ...string) string {
	e.t.Helper()
	absPath := filepath.Clean(filepath.Join(e.rootDir, filepath.Join(elem...)))
	cleanRoot := filepath.Clean(e.rootDir)
	if absPath != cleanRoot && !strings.HasPrefix(absPath, cleanRoot+string(filepath.Separator)) {
		e.t.Fatalf("path %q escapes test sandbox %q", absPath, e.rootDir)
	}
	return absPath
}

// WriteFileString writes content to a file in the sandbox, creating parent
// directories as needed.
func (e *TestEnv) WriteFileString(path, content string) {
	e.t.Helper()
	absPath := e.Path(path)
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		e.t.Fatalf("failed to create directory for %q: %v", absPath, err)
	}
	if err := os.WriteFile(absPath, []byte(content), 0o644); err != nil {
		e.t.Fatalf("failed to write file %q: %v", absPath, err)
	}
}

// ReadFileString reads a sandbox file as a string.
func (e *TestEnv) ReadFileString(path string) string {
	e.t.Helper()
	content, err := os.ReadFile(e.Path(path))
	if err != nil {
		e.t.Fatalf("failed to read file %q: %v", path, err)
	}
	return string(content)
}

// FileExists reports whether a sandbox file exists.
func (e *TestEnv) FileExists(path string) bool {
	e.t.Helper()
	_, err := os.Stat(e.Path(path))
	return err == nil
}

// ResetConfig wipes the viper state, reloads the configuration defaults and
// schedules the same wipe for when the test completes. Tests that mutate
// backend flags or display knobs use this to avoid leaking state.
func ResetConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	config.InitConfig()
	t.Cleanup(func() {
		viper.Reset()
		config.InitConfig()
	})
}
