package mux

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

// CommandRunner executes one mux binary invocation and captures its output.
// Injected so the controller is testable without a live tmux server.
type CommandRunner interface {
	Run(ctx context.Context, args ...string) (stdout, stderr string, err error)
}

const commandTimeout = 5 * time.Second

// execRunner shells out to the configured mux binary.
type execRunner struct {
	binary string
}

func (r execRunner) Run(ctx context.Context, args ...string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return strings.TrimRight(stdout.String(), "\n"), strings.TrimSpace(stderr.String()), err
}
