package store

import (
	"path/filepath"
	"testing"
	"time"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testStart = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// createTestRun creates a run with minimal required fields.
func createTestRun(id string, startOffset time.Duration) Run {
	return Run{
		ID:            id,
		Kind:          KindRun,
		StructurePath: "/models/OspSystemStructure.xml",
		WorkDir:       "/tmp/cosimkit_tmp/sim_" + id,
		Duration:      10,
		LogLevel:      "warning",
		StartedAt:     testStart.Add(startOffset),
	}
}
