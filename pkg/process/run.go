package process

import (
	"bytes"
	"context"
	"strings"
)

// Result holds the captured output of a short-lived helper process.
type Result struct {
	Stdout string
	Stderr string
	Status ExitStatus
}

// Output returns stderr when present, otherwise stdout, trimmed.
func (r Result) Output() string {
	if s := strings.TrimSpace(r.Stderr); s != "" {
		return s
	}
	return strings.TrimSpace(r.Stdout)
}

// Run executes c to completion. A non-zero exit is not an error; inspect
// Result.Status. If ctx ends first the helper is shut down and ctx.Err() is
// returned once it has exited.
func Run(ctx context.Context, c Command) (Result, error) {
	var stdout, stderr bytes.Buffer
	h, err := Spawn(c, func(stream Stream, chunk []byte) {
		if stream == Stderr {
			stderr.Write(chunk)
			return
		}
		stdout.Write(chunk)
	})
	if err != nil {
		return Result{}, err
	}

	select {
	case <-h.Done():
	case <-ctx.Done():
		if _, err := NewCoordinator(0, 0).Shutdown(context.Background(), h); err != nil {
			return Result{}, err
		}
		return Result{Stdout: stdout.String(), Stderr: stderr.String(), Status: h.ExitStatus()}, ctx.Err()
	}

	return Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
		Status: h.ExitStatus(),
	}, nil
}
