package server

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lilienblum/tako/internal/protocol"
	"github.com/lilienblum/tako/internal/state"
)

func setupTestDispatcher(t *testing.T) (*Dispatcher, *state.Store, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "tako-dispatch-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	store := state.NewStore(tmpDir)
	journal, err := state.OpenJournal(tmpDir)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to open journal: %v", err)
	}

	cleanup := func() {
		journal.Close()
		os.RemoveAll(tmpDir)
	}

	return NewDispatcher(store, journal, discardLogger()), store, cleanup
}

func TestDispatchIsTotal(t *testing.T) {
	d, _, cleanup := setupTestDispatcher(t)
	defer cleanup()

	kinds := []protocol.Kind{
		protocol.KindRoutes,
		protocol.KindDeploy,
		protocol.KindStatus,
		protocol.KindList,
		protocol.KindStop,
		protocol.KindUnknown,
		protocol.Kind(99),
	}

	for _, kind := range kinds {
		resp := d.Dispatch(protocol.Command{Kind: kind, Raw: []byte(`{}`)})
		if resp.Status != protocol.StatusOK {
			t.Errorf("kind %v: expected status ok, got %s", kind, resp.Status)
		}
		if resp.Message != "" {
			t.Errorf("kind %v: expected no message, got %s", kind, resp.Message)
		}
	}
}

func TestDispatchUnknownEmptyData(t *testing.T) {
	d, _, cleanup := setupTestDispatcher(t)
	defer cleanup()

	resp := d.Dispatch(protocol.Command{Kind: protocol.KindUnknown, Raw: []byte(`{"command":"ping"}`)})
	if string(resp.Data) != `{}` {
		t.Errorf("Expected empty data, got %s", resp.Data)
	}
}

func TestDispatchRoutes(t *testing.T) {
	d, store, cleanup := setupTestDispatcher(t)
	defer cleanup()

	if err := os.WriteFile(store.RoutesPath(), []byte(`[{"app":"web","routes":["/"]}]`), 0o644); err != nil {
		t.Fatalf("failed to write routes file: %v", err)
	}

	resp := d.Dispatch(protocol.Command{Kind: protocol.KindRoutes, Raw: []byte(`{"command":"routes"}`)})

	var data protocol.RoutesData
	if err := resp.UnmarshalData(&data); err != nil {
		t.Fatalf("UnmarshalData failed: %v", err)
	}
	if len(data.Routes) != 1 || data.Routes[0].App != "web" {
		t.Errorf("Expected the file's route entry, got %v", data.Routes)
	}
}

func TestDispatchDeployRecordsJournal(t *testing.T) {
	d, _, cleanup := setupTestDispatcher(t)
	defer cleanup()

	raw := []byte(`{"command":"deploy","app":"web","version":"3","routes":["/"]}`)
	resp := d.Dispatch(protocol.Command{
		Kind:    protocol.KindDeploy,
		App:     "web",
		Version: "3",
		Routes:  []string{"/"},
		Raw:     raw,
	})
	if string(resp.Data) != `{"ok":true}` {
		t.Fatalf("Expected deploy ack, got %s", resp.Data)
	}

	status := d.Dispatch(protocol.Command{Kind: protocol.KindStatus, App: "web"})
	var data protocol.AppData
	if err := status.UnmarshalData(&data); err != nil {
		t.Fatalf("UnmarshalData failed: %v", err)
	}
	if data.App.Version != "3" || data.App.State != protocol.StateRunning {
		t.Errorf("Unexpected journaled status: %+v", data.App)
	}
}

func TestDispatchDeployUnwritableStateStaysOK(t *testing.T) {
	// A store rooted in a directory that does not exist cannot persist
	// anything; the acknowledgement must not change.
	store := state.NewStore(filepath.Join(os.TempDir(), "tako-dispatch-missing", "nested"))
	d := NewDispatcher(store, nil, discardLogger())

	resp := d.Dispatch(protocol.Command{
		Kind: protocol.KindDeploy,
		App:  "web",
		Raw:  []byte(`{"command":"deploy","app":"web"}`),
	})
	if resp.Status != protocol.StatusOK {
		t.Errorf("Expected status ok despite write failure, got %s", resp.Status)
	}
	if string(resp.Data) != `{"ok":true}` {
		t.Errorf("Expected positive ack despite write failure, got %s", resp.Data)
	}
}

func TestDispatchStopUnknownApp(t *testing.T) {
	d, _, cleanup := setupTestDispatcher(t)
	defer cleanup()

	resp := d.Dispatch(protocol.Command{Kind: protocol.KindStop, App: "ghost"})
	if resp.Status != protocol.StatusOK {
		t.Errorf("Expected status ok, got %s", resp.Status)
	}
	if string(resp.Data) != `{"ok":true}` {
		t.Errorf("Expected positive ack, got %s", resp.Data)
	}
}
