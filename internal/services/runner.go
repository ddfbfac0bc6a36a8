package services

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
)

// commandResult captures one external process invocation.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution so download logic can be tested
// without the real binary.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// ToolAvailable reports whether the named binary resolves on PATH.
func ToolAvailable(binary string) bool {
	_, err := exec.LookPath(binary)
	return err == nil
}
