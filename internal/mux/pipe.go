package mux

import (
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"

	"github.com/cmericli/claude-remote/internal/domain/ports"
)

// ptyPipe is a TerminalPipe over the pty of an attach-session process.
type ptyPipe struct {
	f   *os.File
	cmd *exec.Cmd

	closeOnce sync.Once
	closeErr  error
}

func startPipe(cmd *exec.Cmd, size ports.TerminalSize) (ports.TerminalPipe, error) {
	f, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
	if err != nil {
		return nil, err
	}
	return &ptyPipe{f: f, cmd: cmd}, nil
}

func (p *ptyPipe) Read(b []byte) (int, error) {
	return p.f.Read(b)
}

func (p *ptyPipe) Write(b []byte) (int, error) {
	return p.f.Write(b)
}

// Resize changes the pty geometry. The attached mux client picks the new
// size up immediately; the mux session itself resizes to the smallest
// attached client.
func (p *ptyPipe) Resize(size ports.TerminalSize) error {
	return pty.Setsize(p.f, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
}

// Close tears down the attach client. The mux session itself stays alive.
func (p *ptyPipe) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.f.Close()
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		p.cmd.Wait()
	})
	return p.closeErr
}
