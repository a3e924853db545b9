package ports

// ProcessInfo describes a live assistant process hosting a session.
type ProcessInfo struct {
	SessionID string
	PID       int32
	InMux     bool   // hosted inside a mux session
	MuxName   string // mux session name when InMux
}

// ProcessRegistry discovers live assistant processes and maps them to
// session ids. Read-only; implementations never signal processes.
type ProcessRegistry interface {
	// ActiveSessions returns info for every session currently hosted by a
	// running assistant process. Results may be cached briefly.
	ActiveSessions() ([]ProcessInfo, error)

	// Lookup returns the process info for a single session id, if running.
	Lookup(sessionID string) (ProcessInfo, bool)
}

// MuxLister reports the names of extant mux sessions. The process registry
// uses it to decide whether a process is hosted inside a mux session.
type MuxLister interface {
	List() ([]string, error)
}
