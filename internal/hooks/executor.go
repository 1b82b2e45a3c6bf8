// Package hooks runs a shell command when a node is activated, so that
// activations can open a contact's detail view in another program.
package hooks

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/alfredjeanlab/garden/internal/events"
)

// Bounds on how long an activation hook may run.
const (
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 300 * time.Second
)

// Environment variables describing the activated node.
const (
	EnvNodeID     = "GARDEN_NODE_ID"
	EnvNodeName   = "GARDEN_NODE_NAME"
	EnvNodeHealth = "GARDEN_NODE_HEALTH"
)

// Result describes one activation hook run.
type Result struct {
	// Output is trimmed stdout, or stderr when the command printed nothing
	// to stdout.
	Output   string
	ExitCode int // -1 if the process never exited on its own
	Duration time.Duration
	TimedOut bool
	Err      error
}

// Execute runs command through "sh -c" for the activated node. The node's
// id, name and health are added to the inherited environment.
func Execute(ctx context.Context, command string, timeout time.Duration, node events.NodeActivated) Result {
	runCtx, cancel := context.WithTimeout(ctx, boundTimeout(timeout))
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, "sh", "-c", command) //nolint:gosec // the command comes from the operator's config
	cmd.Env = nodeEnv(node)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// sh's children can keep the pipes open after sh itself is killed.
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Output:   strings.TrimSpace(stdout.String()),
		ExitCode: -1,
		Duration: time.Since(start),
		TimedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
		Err:      err,
	}
	if res.Output == "" {
		res.Output = strings.TrimSpace(stderr.String())
	}
	if cmd.ProcessState != nil && cmd.ProcessState.Exited() {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	return res
}

func boundTimeout(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultTimeout
	case d > MaxTimeout:
		return MaxTimeout
	}
	return d
}

func nodeEnv(node events.NodeActivated) []string {
	return append(os.Environ(),
		EnvNodeID+"="+node.ID,
		EnvNodeName+"="+node.Name,
		EnvNodeHealth+"="+string(node.Health),
	)
}
