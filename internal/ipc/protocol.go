// Package ipc is the control channel between voxkey CLI invocations and the
// running daemon: one newline-delimited JSON request and reply per unix-socket
// connection.
package ipc

import "slices"

// Command names one control request.
type Command string

const (
	CommandStatus  Command = "status"
	CommandToggle  Command = "toggle"
	CommandPress   Command = "press"
	CommandRelease Command = "release"
	CommandStop    Command = "stop"
	CommandCancel  Command = "cancel"
)

// Commands lists every command the daemon accepts.
var Commands = []Command{CommandStatus, CommandToggle, CommandPress, CommandRelease, CommandStop, CommandCancel}

// Valid reports whether c is a known command.
func (c Command) Valid() bool {
	return slices.Contains(Commands, c)
}

// Request is one command. ID ties the client call to the daemon's log lines.
type Request struct {
	ID      string  `json:"id,omitempty"`
	Command Command `json:"command"`
}

// Response is the daemon's reply. State, Mode and Model describe the daemon at
// the time it answered.
type Response struct {
	ID      string `json:"id,omitempty"`
	OK      bool   `json:"ok"`
	State   string `json:"state,omitempty"`
	Mode    string `json:"mode,omitempty"`
	Model   string `json:"model,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}
