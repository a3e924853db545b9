// Package mux manages tmux sessions hosting assistant processes.
package mux

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cmericli/claude-remote/internal/domain"
	"github.com/cmericli/claude-remote/internal/domain/ports"
	"github.com/cmericli/claude-remote/internal/store"
)

// SessionLookup resolves indexed session metadata; Join uses it for the
// working directory of a session it needs to restart.
type SessionLookup interface {
	Session(ctx context.Context, sessionID string) (store.SessionSummary, error)
}

// Options configures the controller.
type Options struct {
	// Binary is the mux binary (default "tmux").
	Binary string
	// Prefix namespaces mux sessions owned by this daemon.
	Prefix string
	// AssistantCommand is the binary used to resume a stopped session.
	AssistantCommand string
	// TerminateTimeout bounds how long Terminate waits for a graceful exit
	// before force-killing the session.
	TerminateTimeout time.Duration
}

func (o *Options) fill() {
	if o.Binary == "" {
		o.Binary = "tmux"
	}
	if o.Prefix == "" {
		o.Prefix = "claude-remote-"
	}
	if o.AssistantCommand == "" {
		o.AssistantCommand = "claude"
	}
	if o.TerminateTimeout <= 0 {
		o.TerminateTimeout = 5 * time.Second
	}
}

const terminatePollInterval = 50 * time.Millisecond

var defaultSize = ports.TerminalSize{Rows: 32, Cols: 120}

// Controller drives tmux through its CLI. Every operation surfaces tmux's
// stderr in the returned error so clients see the tool's own diagnostics.
type Controller struct {
	runner   CommandRunner
	registry ports.ProcessRegistry
	sessions SessionLookup
	opts     Options
}

// New creates a controller shelling out to the configured binary.
func New(registry ports.ProcessRegistry, sessions SessionLookup, opts Options) *Controller {
	opts.fill()
	return &Controller{
		runner:   execRunner{binary: opts.Binary},
		registry: registry,
		sessions: sessions,
		opts:     opts,
	}
}

// NewWithRunner creates a controller over an arbitrary command runner.
func NewWithRunner(runner CommandRunner, registry ports.ProcessRegistry, sessions SessionLookup, opts Options) *Controller {
	opts.fill()
	return &Controller{runner: runner, registry: registry, sessions: sessions, opts: opts}
}

// SetRegistry installs the process registry after construction. The
// controller and registry reference each other, so one side is wired late.
func (c *Controller) SetRegistry(registry ports.ProcessRegistry) {
	c.registry = registry
}

// MuxName derives the mux session name for an indexed session id.
func (c *Controller) MuxName(sessionID string) string {
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return c.opts.Prefix + short
}

// Create starts a detached mux session running command in workingDir.
func (c *Controller) Create(name, workingDir, command string, size ports.TerminalSize) error {
	if size.Rows == 0 || size.Cols == 0 {
		size = defaultSize
	}
	args := []string{"new-session", "-d", "-s", name,
		"-x", strconv.Itoa(int(size.Cols)), "-y", strconv.Itoa(int(size.Rows))}
	if workingDir != "" {
		args = append(args, "-c", workingDir)
	}
	if command != "" {
		args = append(args, command)
	}

	if _, stderr, err := c.runner.Run(context.Background(), args...); err != nil {
		return domain.NewMuxError("new-session", stderr, err)
	}
	log.Info().Str("mux", name).Str("dir", workingDir).Msg("mux session created")
	return nil
}

// List returns the names of extant mux sessions. A mux server that is not
// running means no sessions, not an error.
func (c *Controller) List() ([]string, error) {
	stdout, stderr, err := c.runner.Run(context.Background(),
		"list-sessions", "-F", "#{session_name}")
	if err != nil {
		if strings.Contains(stderr, "no server running") ||
			strings.Contains(stderr, "No such file or directory") {
			return nil, nil
		}
		return nil, domain.NewMuxError("list-sessions", stderr, err)
	}
	if stdout == "" {
		return nil, nil
	}
	return strings.Split(stdout, "\n"), nil
}

// Join attaches to, or creates, the mux session for an indexed session.
//
// Outcomes: the session already lives in a mux session (attached), the
// assistant runs outside any mux session (running_no_tmux), or nothing is
// running and a fresh mux session resumes it (created).
func (c *Controller) Join(sessionID string) (ports.JoinResult, error) {
	muxName := c.MuxName(sessionID)

	names, err := c.List()
	if err != nil {
		return ports.JoinResult{}, err
	}
	for _, name := range names {
		if name == muxName {
			return ports.JoinResult{Status: ports.JoinAttached, MuxName: muxName}, nil
		}
	}

	if c.registry == nil {
		return ports.JoinResult{}, errors.New("process registry not configured")
	}
	if info, ok := c.registry.Lookup(sessionID); ok {
		if info.InMux {
			return ports.JoinResult{Status: ports.JoinAttached, MuxName: info.MuxName}, nil
		}
		return ports.JoinResult{
			Status:  ports.JoinRunningNoMux,
			Message: fmt.Sprintf("assistant running as pid %d outside any mux session", info.PID),
		}, nil
	}

	sum, err := c.sessions.Session(context.Background(), sessionID)
	if err != nil {
		return ports.JoinResult{}, err
	}

	command := fmt.Sprintf("%s --resume %s", c.opts.AssistantCommand, sessionID)
	if err := c.Create(muxName, sum.WorkingDir, command, defaultSize); err != nil {
		return ports.JoinResult{}, err
	}
	return ports.JoinResult{Status: ports.JoinCreated, MuxName: muxName}, nil
}

// Attach opens a pseudo-terminal pipe running `tmux attach-session`.
func (c *Controller) Attach(muxName string, size ports.TerminalSize) (ports.TerminalPipe, error) {
	if err := c.hasSession(muxName); err != nil {
		return nil, err
	}
	if size.Rows == 0 || size.Cols == 0 {
		size = defaultSize
	}

	cmd := exec.Command(c.opts.Binary, "attach-session", "-t", muxName)
	cmd.Env = append(cmd.Environ(), "TERM=xterm-256color")
	return startPipe(cmd, size)
}

// Inject delivers text to a mux session's input. A trailing newline is
// translated to the Enter key so line-oriented prompts submit.
func (c *Controller) Inject(muxName, text string) error {
	if err := c.hasSession(muxName); err != nil {
		return err
	}

	submit := strings.HasSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\n")

	if text != "" {
		if _, stderr, err := c.runner.Run(context.Background(),
			"send-keys", "-t", muxName, "-l", "--", text); err != nil {
			return domain.NewMuxError("send-keys", stderr, err)
		}
	}
	if submit {
		if _, stderr, err := c.runner.Run(context.Background(),
			"send-keys", "-t", muxName, "Enter"); err != nil {
			return domain.NewMuxError("send-keys", stderr, err)
		}
	}
	return nil
}

// Terminate asks the hosted process to stop and force-kills the mux
// session if it still exists after the grace period.
func (c *Controller) Terminate(muxName string) error {
	if err := c.hasSession(muxName); err != nil {
		return err
	}

	// C-c reaches the pane's foreground process as SIGINT; the mux
	// session exits with it.
	if _, stderr, err := c.runner.Run(context.Background(),
		"send-keys", "-t", muxName, "C-c"); err != nil {
		log.Debug().Str("mux", muxName).Str("stderr", stderr).Msg("graceful interrupt failed")
	}

	deadline := time.Now().Add(c.opts.TerminateTimeout)
	for time.Now().Before(deadline) {
		if err := c.hasSession(muxName); err != nil {
			log.Info().Str("mux", muxName).Msg("mux session exited gracefully")
			return nil
		}
		time.Sleep(terminatePollInterval)
	}

	if _, stderr, err := c.runner.Run(context.Background(),
		"kill-session", "-t", muxName); err != nil {
		// Exited between the last poll and the kill.
		if strings.Contains(stderr, "can't find session") {
			return nil
		}
		return domain.NewMuxError("kill-session", stderr, err)
	}
	log.Info().Str("mux", muxName).Msg("mux session terminated")
	return nil
}

func (c *Controller) hasSession(muxName string) error {
	if _, stderr, err := c.runner.Run(context.Background(),
		"has-session", "-t", muxName); err != nil {
		if stderr != "" && !strings.Contains(stderr, "no server running") {
			log.Debug().Str("mux", muxName).Str("stderr", stderr).Msg("has-session failed")
		}
		return fmt.Errorf("%w: %s", domain.ErrMuxSessionNotFound, muxName)
	}
	return nil
}

var (
	_ ports.MuxController = (*Controller)(nil)
	_ ports.MuxLister     = (*Controller)(nil)
	_ error               = (*domain.MuxError)(nil)
)

// IsNotFound reports whether err denotes a missing session of either kind.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrSessionNotFound) || errors.Is(err, domain.ErrMuxSessionNotFound)
}
