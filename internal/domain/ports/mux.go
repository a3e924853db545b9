package ports

import "io"

// JoinStatus describes the outcome of a join operation.
type JoinStatus string

const (
	JoinAttached     JoinStatus = "attached"
	JoinCreated      JoinStatus = "created"
	JoinRunningNoMux JoinStatus = "running_no_tmux"
)

// JoinResult is returned by MuxController.Join.
type JoinResult struct {
	Status  JoinStatus `json:"status"`
	MuxName string     `json:"mux_name,omitempty"`
	Message string     `json:"message,omitempty"`
}

// TerminalSize is a pseudo-terminal geometry in character cells.
type TerminalSize struct {
	Rows uint16 `json:"rows"`
	Cols uint16 `json:"cols"`
}

// TerminalPipe is a bidirectional byte stream to a mux session's
// pseudo-terminal with an out-of-band resize control.
type TerminalPipe interface {
	io.ReadWriteCloser

	// Resize changes the pseudo-terminal geometry without tearing down
	// the pipe.
	Resize(size TerminalSize) error
}

// MuxController manages persistent terminal multiplexer sessions hosting
// the assistant process.
type MuxController interface {
	// MuxName returns the deterministic mux session name for a session id.
	MuxName(sessionID string) string

	// Create starts a detached mux session running command in workingDir.
	Create(name, workingDir, command string, size TerminalSize) error

	// List returns the names of extant mux sessions.
	List() ([]string, error)

	// Join attaches to, or creates, the mux session for an indexed session.
	Join(sessionID string) (JoinResult, error)

	// Attach opens a pseudo-terminal pipe to a mux session.
	Attach(muxName string, size TerminalSize) (TerminalPipe, error)

	// Inject appends text to a mux session's input without attaching.
	// The caller is responsible for any trailing newline.
	Inject(muxName, text string) error

	// Terminate requests graceful termination of a mux session.
	Terminate(muxName string) error
}
