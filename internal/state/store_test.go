package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "tako-state-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	cleanup := func() {
		os.RemoveAll(tmpDir)
	}

	return NewStore(tmpDir), cleanup
}

func writeRoutesFile(t *testing.T, store *Store, content string) {
	t.Helper()
	if err := os.WriteFile(store.RoutesPath(), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write routes file: %v", err)
	}
}

func TestLoadRoutesMissingFile(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	routes := store.LoadRoutes()
	if routes == nil {
		t.Fatal("LoadRoutes should never return nil")
	}
	if len(routes) != 0 {
		t.Errorf("Expected no routes, got %v", routes)
	}
}

func TestLoadRoutesValidFile(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	writeRoutesFile(t, store, `[{"app":"web","routes":["/","/health"]},{"app":"api","routes":["/v1"]}]`)

	routes := store.LoadRoutes()
	if len(routes) != 2 {
		t.Fatalf("Expected 2 route entries, got %d", len(routes))
	}
	if routes[0].App != "web" || len(routes[0].Routes) != 2 {
		t.Errorf("Unexpected first entry: %+v", routes[0])
	}
	if routes[1].App != "api" || routes[1].Routes[0] != "/v1" {
		t.Errorf("Unexpected second entry: %+v", routes[1])
	}
}

func TestLoadRoutesMalformedFile(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	for _, content := range []string{"not json", `{"app":"web"}`, "null", `[{"app":`} {
		writeRoutesFile(t, store, content)

		routes := store.LoadRoutes()
		if routes == nil {
			t.Fatalf("LoadRoutes returned nil for content %q", content)
		}
		if len(routes) != 0 {
			t.Errorf("Expected no routes for content %q, got %v", content, routes)
		}
	}
}

func TestLoadRoutesNotCached(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	writeRoutesFile(t, store, `[{"app":"web","routes":["/"]}]`)
	if routes := store.LoadRoutes(); len(routes) != 1 {
		t.Fatalf("Expected 1 route entry, got %d", len(routes))
	}

	// The file is authoritative on every call.
	writeRoutesFile(t, store, `[{"app":"web","routes":["/"]},{"app":"api","routes":["/v1"]}]`)
	if routes := store.LoadRoutes(); len(routes) != 2 {
		t.Errorf("Expected 2 route entries after rewrite, got %d", len(routes))
	}

	if err := os.Remove(store.RoutesPath()); err != nil {
		t.Fatalf("failed to remove routes file: %v", err)
	}
	if routes := store.LoadRoutes(); len(routes) != 0 {
		t.Errorf("Expected no routes after removal, got %d", len(routes))
	}
}

func TestSaveLastDeploy(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	raw := []byte(`{"command":"deploy","app":"x","version":"1"}`)
	if !store.SaveLastDeploy(raw) {
		t.Fatal("SaveLastDeploy reported failure")
	}

	content, err := os.ReadFile(store.LastDeployPath())
	if err != nil {
		t.Fatalf("failed to read last-deploy file: %v", err)
	}

	var got, want map[string]interface{}
	if err := json.Unmarshal(content, &got); err != nil {
		t.Fatalf("last-deploy file is not valid JSON: %v", err)
	}
	if err := json.Unmarshal(raw, &want); err != nil {
		t.Fatalf("failed to parse request: %v", err)
	}
	if got["command"] != want["command"] || got["app"] != want["app"] || got["version"] != want["version"] {
		t.Errorf("Expected persisted document %v, got %v", want, got)
	}
}

func TestSaveLastDeployOverwrites(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	if !store.SaveLastDeploy([]byte(`{"command":"deploy","app":"first"}`)) {
		t.Fatal("first SaveLastDeploy reported failure")
	}
	if !store.SaveLastDeploy([]byte(`{"command":"deploy","app":"second"}`)) {
		t.Fatal("second SaveLastDeploy reported failure")
	}

	content, err := os.ReadFile(store.LastDeployPath())
	if err != nil {
		t.Fatalf("failed to read last-deploy file: %v", err)
	}
	if string(content) != `{"command":"deploy","app":"second"}` {
		t.Errorf("Expected file to hold the second request, got %s", content)
	}
}

func TestSaveLastDeployReportsFailure(t *testing.T) {
	store := NewStore(filepath.Join(os.TempDir(), "tako-state-missing", "nested"))

	if store.SaveLastDeploy([]byte(`{}`)) {
		t.Error("Expected failure writing into a missing directory")
	}
}
