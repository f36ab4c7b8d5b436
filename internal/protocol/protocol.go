// Package protocol defines the wire format spoken over the tako control
// socket: one JSON request per connection, answered by one JSON response
// terminated with a newline.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
)

// MaxRequestSize is the largest payload accepted on a single connection.
const MaxRequestSize = 1 << 20 // 1 MiB

// Response status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Commands recognized by the server. Anything else is acknowledged with an
// empty data document.
const (
	CmdRoutes = "routes"
	CmdDeploy = "deploy"
	CmdStatus = "status"
	CmdList   = "list"
	CmdStop   = "stop"
)

// App lifecycle states recorded in the deploy journal.
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// Kind identifies the command variant a request document decoded to.
type Kind int

// Command variants produced by Decode.
const (
	KindUnknown Kind = iota
	KindRoutes
	KindDeploy
	KindStatus
	KindList
	KindStop
)

// String returns the wire command word for the kind, or "unknown".
func (k Kind) String() string {
	switch k {
	case KindRoutes:
		return CmdRoutes
	case KindDeploy:
		return CmdDeploy
	case KindStatus:
		return CmdStatus
	case KindList:
		return CmdList
	case KindStop:
		return CmdStop
	default:
		return "unknown"
	}
}

// Command is the classified form of a request document. Kind selects the
// variant; App, Version, and Routes carry the payload fields relevant to that
// variant. Raw always holds the trimmed request document exactly as received,
// for handlers that persist it verbatim.
type Command struct {
	Kind    Kind
	App     string
	Version string
	Routes  []string
	Raw     json.RawMessage
}

// Response is the single reply written for every request.
type Response struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// RouteEntry is one element of the routes file: an app name and its route
// paths. The server reads these, never writes them.
type RouteEntry struct {
	App    string   `json:"app"`
	Routes []string `json:"routes"`
}

// AppStatus describes one deployed app as recorded in the journal. Only
// fields with deterministic values are exposed.
type AppStatus struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	State   string   `json:"state"`
	Routes  []string `json:"routes"`
}

// AckData is the data document acknowledging a state-changing command.
type AckData struct {
	OK bool `json:"ok"`
}

// RoutesData is the data document answering a routes command.
type RoutesData struct {
	Routes []RouteEntry `json:"routes"`
}

// AppData is the data document answering a status command for a known app.
type AppData struct {
	App AppStatus `json:"app"`
}

// AppsData is the data document answering a list command.
type AppsData struct {
	Apps []AppStatus `json:"apps"`
}

// Decode turns raw connection bytes into a classified Command. Invalid UTF-8
// sequences are dropped, surrounding whitespace is trimmed, and an empty
// payload decodes as the empty document. A document that is not valid JSON,
// or not a JSON object, is the only failure mode.
func Decode(raw []byte) (Command, error) {
	text := bytes.TrimSpace(bytes.ToValidUTF8(raw, nil))
	if len(text) == 0 {
		text = []byte("{}")
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(text, &doc); err != nil {
		return Command{}, err
	}
	if doc == nil {
		return Command{}, errors.New("request is not a JSON object")
	}

	cmd := Command{Kind: KindUnknown, Raw: text}

	// A missing or non-string command field classifies as unknown rather
	// than failing the request.
	var name string
	if field, ok := doc["command"]; ok {
		_ = json.Unmarshal(field, &name)
	}

	switch name {
	case CmdRoutes:
		cmd.Kind = KindRoutes
	case CmdDeploy:
		cmd.Kind = KindDeploy
		cmd.App = stringField(doc, "app")
		cmd.Version = stringField(doc, "version")
		if field, ok := doc["routes"]; ok {
			_ = json.Unmarshal(field, &cmd.Routes)
		}
	case CmdStatus:
		cmd.Kind = KindStatus
		cmd.App = stringField(doc, "app")
	case CmdList:
		cmd.Kind = KindList
	case CmdStop:
		cmd.Kind = KindStop
		cmd.App = stringField(doc, "app")
	}

	return cmd, nil
}

// stringField extracts a string-valued field, tolerating absence and
// mismatched types.
func stringField(doc map[string]json.RawMessage, key string) string {
	var s string
	if field, ok := doc[key]; ok {
		_ = json.Unmarshal(field, &s)
	}
	return s
}

// OKResponse builds a success response carrying the given data document.
func OKResponse(data interface{}) Response {
	dataJSON, _ := json.Marshal(data)
	return Response{
		Status: StatusOK,
		Data:   dataJSON,
	}
}

// ErrorResponse builds an error response carrying the failure text.
func ErrorResponse(err error) Response {
	return Response{
		Status:  StatusError,
		Message: err.Error(),
	}
}

// Encode serializes a response for the wire: the JSON document followed by a
// single newline.
func Encode(resp Response) []byte {
	data, _ := json.Marshal(resp)
	return append(data, '\n')
}

// UnmarshalData unmarshals the response data into the given value.
func (r *Response) UnmarshalData(v interface{}) error {
	return json.Unmarshal(r.Data, v)
}
