// Package procscan discovers running assistant processes and maps them to
// session ids.
package procscan

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/cmericli/claude-remote/internal/domain/ports"
)

var uuidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// ProcessRecord is a snapshot of one OS process, decoupled from gopsutil
// so scans are testable.
type ProcessRecord struct {
	PID     int32
	Name    string
	Cmdline []string
	Cwd     string
}

// ProcessSource enumerates candidate OS processes.
type ProcessSource interface {
	Processes(ctx context.Context) ([]ProcessRecord, error)
}

// Options configures the registry.
type Options struct {
	LogsRoot string
	// Command is the assistant binary name to match (default "claude").
	Command string
	// MuxPrefix is the mux session name prefix used to flag in-mux processes.
	MuxPrefix string
	CacheTTL  time.Duration
}

func (o *Options) fill() {
	if o.Command == "" {
		o.Command = "claude"
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 2 * time.Second
	}
}

// registryImpl scans the process table for assistant processes. Results
// are cached briefly since callers hit this on every dashboard refresh.
type registryImpl struct {
	src   ProcessSource
	muxes ports.MuxLister
	clock ports.Clock
	opts  Options
	self  int32

	mu       sync.Mutex
	cached   []ports.ProcessInfo
	cachedAt time.Time
}

// New creates a process registry backed by the OS process table.
func New(muxes ports.MuxLister, clock ports.Clock, opts Options) ports.ProcessRegistry {
	return NewWithSource(gopsutilSource{}, muxes, clock, opts)
}

// NewWithSource creates a registry over an arbitrary process source.
func NewWithSource(src ProcessSource, muxes ports.MuxLister, clock ports.Clock, opts Options) ports.ProcessRegistry {
	opts.fill()
	return &registryImpl{
		src:   src,
		muxes: muxes,
		clock: clock,
		opts:  opts,
		self:  int32(os.Getpid()),
	}
}

// ActiveSessions returns running assistant processes mapped to sessions.
func (r *registryImpl) ActiveSessions() ([]ports.ProcessInfo, error) {
	r.mu.Lock()
	if r.cached != nil && r.clock.Now().Sub(r.cachedAt) < r.opts.CacheTTL {
		out := make([]ports.ProcessInfo, len(r.cached))
		copy(out, r.cached)
		r.mu.Unlock()
		return out, nil
	}
	r.mu.Unlock()

	procs, err := r.src.Processes(context.Background())
	if err != nil {
		return nil, err
	}

	muxNames := map[string]bool{}
	if r.muxes != nil {
		if names, err := r.muxes.List(); err == nil {
			for _, name := range names {
				muxNames[name] = true
			}
		}
	}

	var infos []ports.ProcessInfo
	for _, p := range procs {
		if !r.isAssistant(p) {
			continue
		}
		sessionID := r.resolveSession(p)
		if sessionID == "" {
			continue
		}
		info := ports.ProcessInfo{SessionID: sessionID, PID: p.PID}
		if r.opts.MuxPrefix != "" && len(sessionID) >= 8 {
			name := r.opts.MuxPrefix + sessionID[:8]
			if muxNames[name] {
				info.InMux = true
				info.MuxName = name
			}
		}
		infos = append(infos, info)
	}

	r.mu.Lock()
	r.cached = infos
	r.cachedAt = r.clock.Now()
	out := make([]ports.ProcessInfo, len(infos))
	copy(out, infos)
	r.mu.Unlock()
	return out, nil
}

// Lookup finds the process for one session.
func (r *registryImpl) Lookup(sessionID string) (ports.ProcessInfo, bool) {
	infos, err := r.ActiveSessions()
	if err != nil {
		return ports.ProcessInfo{}, false
	}
	for _, info := range infos {
		if info.SessionID == sessionID {
			return info, true
		}
	}
	return ports.ProcessInfo{}, false
}

// isAssistant filters the process table down to assistant invocations.
// Wrappers and our own process are excluded.
func (r *registryImpl) isAssistant(p ProcessRecord) bool {
	if p.PID == r.self {
		return false
	}
	base := filepath.Base(p.Name)
	if base != r.opts.Command {
		if len(p.Cmdline) == 0 || filepath.Base(p.Cmdline[0]) != r.opts.Command {
			return false
		}
	}
	if len(p.Cmdline) > 1 {
		// Subcommand invocations (mcp servers etc) are not sessions.
		for _, arg := range p.Cmdline[1:] {
			if arg == "mcp" {
				return false
			}
		}
	}
	return true
}

// resolveSession extracts the session id from the command line, falling
// back to the most recently written log under the process's project dir.
func (r *registryImpl) resolveSession(p ProcessRecord) string {
	for i, arg := range p.Cmdline {
		if (arg == "--resume" || arg == "-r" || arg == "--session-id") && i+1 < len(p.Cmdline) {
			if uuidRe.MatchString(p.Cmdline[i+1]) {
				return strings.ToLower(p.Cmdline[i+1])
			}
		}
	}
	return r.sessionFromCwd(p.Cwd)
}

// sessionFromCwd maps a working directory to its project log directory
// and picks the most recently modified session log there.
func (r *registryImpl) sessionFromCwd(cwd string) string {
	if cwd == "" || r.opts.LogsRoot == "" {
		return ""
	}
	projectDir := filepath.Join(r.opts.LogsRoot, encodeProjectDir(cwd))

	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return ""
	}

	type candidate struct {
		sessionID string
		modTime   time.Time
	}
	var cands []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		cands = append(cands, candidate{
			sessionID: strings.TrimSuffix(entry.Name(), ".jsonl"),
			modTime:   info.ModTime(),
		})
	}
	if len(cands) == 0 {
		return ""
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].modTime.After(cands[j].modTime) })
	return cands[0].sessionID
}

// encodeProjectDir mirrors the log writer's directory naming: the working
// directory with path separators replaced by dashes, dash-prefixed.
func encodeProjectDir(cwd string) string {
	cleaned := filepath.Clean(cwd)
	replaced := strings.NewReplacer("/", "-", ".", "-", "_", "-").Replace(cleaned)
	if !strings.HasPrefix(replaced, "-") {
		replaced = "-" + replaced
	}
	return replaced
}

// gopsutilSource reads the real process table.
type gopsutilSource struct{}

func (gopsutilSource) Processes(ctx context.Context) ([]ProcessRecord, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ProcessRecord, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		cmdline, err := p.CmdlineSliceWithContext(ctx)
		if err != nil {
			cmdline = nil
		}
		cwd, err := p.CwdWithContext(ctx)
		if err != nil {
			cwd = ""
		}
		out = append(out, ProcessRecord{PID: p.Pid, Name: name, Cmdline: cmdline, Cwd: cwd})
	}
	return out, nil
}

var _ ProcessSource = gopsutilSource{}
