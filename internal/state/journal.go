package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/lilienblum/tako/internal/protocol"

	// Import SQLite driver
	_ "modernc.org/sqlite"
)

// journalSchema holds per-app deploy state. Routes are replaced wholesale on
// every deploy, mirroring how the agent being emulated stores them.
const journalSchema = `
CREATE TABLE IF NOT EXISTS apps (
	name        TEXT PRIMARY KEY,
	deploy_id   TEXT NOT NULL,
	version     TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL DEFAULT 'running',
	deployed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS app_routes (
	app_name TEXT NOT NULL,
	position INTEGER NOT NULL,
	route    TEXT NOT NULL,
	PRIMARY KEY (app_name, position),
	FOREIGN KEY (app_name) REFERENCES apps(name) ON DELETE CASCADE
);
`

// Journal records deployed apps in a sqlite database so the status, list, and
// stop commands answer deterministically across requests. A server whose
// journal failed to open carries a nil Journal and skips it at call sites.
type Journal struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex // serializes journal writes
}

// OpenJournal opens (creating if needed) the journal database under dir.
func OpenJournal(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	dbPath := filepath.Join(dir, JournalFile)

	// WAL mode plus a busy timeout so outside inspectors can read the
	// database while the server holds it open.
	connStr := dbPath + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_time_format=sqlite"

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal database: %w", err)
	}

	if _, err := db.Exec(journalSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	return &Journal{db: db, dbPath: dbPath}, nil
}

// Path returns the journal database file path.
func (j *Journal) Path() string {
	return j.dbPath
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordDeploy upserts an app row under a fresh deploy id and replaces its
// routes. The app comes back up in the running state even if it was stopped.
// Returns the deploy id for logging.
func (j *Journal) RecordDeploy(name, version string, routes []string) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	deployID := uuid.New().String()

	tx, err := j.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO apps (name, deploy_id, version, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			deploy_id   = excluded.deploy_id,
			version     = excluded.version,
			state       = excluded.state,
			deployed_at = CURRENT_TIMESTAMP
	`, name, deployID, version, protocol.StateRunning)
	if err != nil {
		return "", fmt.Errorf("failed to upsert app: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM app_routes WHERE app_name = ?`, name); err != nil {
		return "", fmt.Errorf("failed to clear routes: %w", err)
	}
	for i, route := range routes {
		if _, err := tx.Exec(`INSERT INTO app_routes (app_name, position, route) VALUES (?, ?, ?)`,
			name, i, route); err != nil {
			return "", fmt.Errorf("failed to insert route: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit deploy: %w", err)
	}
	return deployID, nil
}

// MarkStopped flips an app's state to stopped. Unknown apps are a no-op, not
// an error.
func (j *Journal) MarkStopped(name string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if _, err := j.db.Exec(`UPDATE apps SET state = ? WHERE name = ?`, protocol.StateStopped, name); err != nil {
		return fmt.Errorf("failed to mark app stopped: %w", err)
	}
	return nil
}

// App looks up one app by name. Returns nil without error when the app has
// never been deployed.
func (j *Journal) App(name string) (*protocol.AppStatus, error) {
	var status protocol.AppStatus
	err := j.db.QueryRow(`SELECT name, version, state FROM apps WHERE name = ?`, name).
		Scan(&status.Name, &status.Version, &status.State)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query app: %w", err)
	}

	routes, err := j.appRoutes(name)
	if err != nil {
		return nil, err
	}
	status.Routes = routes

	return &status, nil
}

// Apps returns every recorded app ordered by name. The result is never nil.
func (j *Journal) Apps() ([]protocol.AppStatus, error) {
	rows, err := j.db.Query(`SELECT name, version, state FROM apps ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query apps: %w", err)
	}
	defer rows.Close()

	apps := []protocol.AppStatus{}
	for rows.Next() {
		var status protocol.AppStatus
		if err := rows.Scan(&status.Name, &status.Version, &status.State); err != nil {
			return nil, fmt.Errorf("failed to scan app: %w", err)
		}
		apps = append(apps, status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate apps: %w", err)
	}

	for i := range apps {
		routes, err := j.appRoutes(apps[i].Name)
		if err != nil {
			return nil, err
		}
		apps[i].Routes = routes
	}

	return apps, nil
}

// appRoutes returns an app's routes in deploy order, never nil.
func (j *Journal) appRoutes(name string) ([]string, error) {
	rows, err := j.db.Query(`SELECT route FROM app_routes WHERE app_name = ? ORDER BY position`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	routes := []string{}
	for rows.Next() {
		var route string
		if err := rows.Scan(&route); err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		routes = append(routes, route)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate routes: %w", err)
	}
	return routes, nil
}
