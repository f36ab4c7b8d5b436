package server

import (
	"log/slog"

	"github.com/lilienblum/tako/internal/protocol"
	"github.com/lilienblum/tako/internal/state"
)

// Dispatcher maps classified commands onto state operations and builds the
// response document. It is total: every command, known or not, yields an ok
// response. State failures are absorbed and logged, never surfaced to the
// client; error responses exist only for requests that failed to decode.
type Dispatcher struct {
	store   *state.Store
	journal *state.Journal // nil when the journal could not be opened
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher over the given state handles. journal
// may be nil, in which case status and list answer from an empty journal.
func NewDispatcher(store *state.Store, journal *state.Journal, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		store:   store,
		journal: journal,
		logger:  logger,
	}
}

// Dispatch produces the response for one classified command.
func (d *Dispatcher) Dispatch(cmd protocol.Command) protocol.Response {
	switch cmd.Kind {
	case protocol.KindRoutes:
		return d.handleRoutes()
	case protocol.KindDeploy:
		return d.handleDeploy(cmd)
	case protocol.KindStatus:
		return d.handleStatus(cmd)
	case protocol.KindList:
		return d.handleList()
	case protocol.KindStop:
		return d.handleStop(cmd)
	default:
		return protocol.OKResponse(struct{}{})
	}
}

func (d *Dispatcher) handleRoutes() protocol.Response {
	return protocol.OKResponse(protocol.RoutesData{Routes: d.store.LoadRoutes()})
}

// handleDeploy persists the request document verbatim and journals the app.
// Both writes are best-effort: the acknowledgement is positive regardless.
func (d *Dispatcher) handleDeploy(cmd protocol.Command) protocol.Response {
	if !d.store.SaveLastDeploy(cmd.Raw) {
		d.logger.Warn("last-deploy write failed", "path", d.store.LastDeployPath())
	}

	if d.journal != nil {
		deployID, err := d.journal.RecordDeploy(cmd.App, cmd.Version, cmd.Routes)
		if err != nil {
			d.logger.Warn("journal write failed", "app", cmd.App, "error", err)
		} else {
			d.logger.Debug("recorded deploy", "app", cmd.App, "version", cmd.Version, "deploy_id", deployID)
		}
	}

	return protocol.OKResponse(protocol.AckData{OK: true})
}

func (d *Dispatcher) handleStatus(cmd protocol.Command) protocol.Response {
	if d.journal != nil {
		status, err := d.journal.App(cmd.App)
		if err != nil {
			d.logger.Warn("journal lookup failed", "app", cmd.App, "error", err)
		} else if status != nil {
			return protocol.OKResponse(protocol.AppData{App: *status})
		}
	}
	// Unknown apps answer with an empty document, not an error.
	return protocol.OKResponse(struct{}{})
}

func (d *Dispatcher) handleList() protocol.Response {
	apps := []protocol.AppStatus{}
	if d.journal != nil {
		recorded, err := d.journal.Apps()
		if err != nil {
			d.logger.Warn("journal scan failed", "error", err)
		} else {
			apps = recorded
		}
	}
	return protocol.OKResponse(protocol.AppsData{Apps: apps})
}

func (d *Dispatcher) handleStop(cmd protocol.Command) protocol.Response {
	if d.journal != nil {
		if err := d.journal.MarkStopped(cmd.App); err != nil {
			d.logger.Warn("journal write failed", "app", cmd.App, "error", err)
		}
	}
	return protocol.OKResponse(protocol.AckData{OK: true})
}
