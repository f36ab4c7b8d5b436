// Package state persists the emulator's on-disk documents: the routes file
// consumed by the routes command, the last-deploy record, and the sqlite
// deploy journal behind status queries.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/lilienblum/tako/internal/protocol"
)

// File names under the state directory.
const (
	// RoutesFile is the routes document; read fresh on every routes command.
	RoutesFile = "routes.json"
	// LastDeployFile receives the most recent deploy request verbatim.
	LastDeployFile = "last_deploy.json"
	// JournalFile is the sqlite database backing status, list, and stop.
	JournalFile = "runtime-state.sqlite3"
)

// Store reads and writes the emulator's JSON documents under a single state
// directory. Reads never fail (they fall back to empty results) and writes
// report success as a flag callers may discard, so command handling stays
// error-free regardless of filesystem condition.
type Store struct {
	dir string
	mu  sync.Mutex // serializes writes to the last-deploy file
}

// NewStore creates a store rooted at dir. The directory is not created here;
// the server ensures it at startup.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the state directory the store operates on.
func (s *Store) Dir() string {
	return s.dir
}

// RoutesPath returns the full path of the routes file.
func (s *Store) RoutesPath() string {
	return filepath.Join(s.dir, RoutesFile)
}

// LastDeployPath returns the full path of the last-deploy file.
func (s *Store) LastDeployPath() string {
	return filepath.Join(s.dir, LastDeployFile)
}

// LoadRoutes reads and parses the routes file. It returns an empty slice if
// the file is missing, unreadable, or not a well-formed route entry list.
// The result is never nil and the file is never cached between calls.
func (s *Store) LoadRoutes() []protocol.RouteEntry {
	data, err := os.ReadFile(s.RoutesPath())
	if err != nil {
		return []protocol.RouteEntry{}
	}

	var entries []protocol.RouteEntry
	if err := json.Unmarshal(data, &entries); err != nil || entries == nil {
		return []protocol.RouteEntry{}
	}
	return entries
}

// SaveLastDeploy overwrites the last-deploy file with the raw request
// document. The return value reports whether the write succeeded; deploy
// handling discards it.
func (s *Store) SaveLastDeploy(raw []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.WriteFile(s.LastDeployPath(), raw, 0o644) == nil
}
