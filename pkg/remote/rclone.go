package remote

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"photobackup/pkg/logger"
	"photobackup/pkg/shared"
)

type RcloneConfig struct {
	Binary     string
	Remote     string
	ExtraFlags []string
}

// RcloneBackend drives the rclone binary. Subprocesses get no timeout of
// their own; only ctx ends them.
type RcloneBackend struct {
	config *RcloneConfig
	logger *logger.Logger
}

func NewRcloneBackend(config *RcloneConfig, log *logger.Logger) *RcloneBackend {
	if log == nil {
		log = logger.Default()
	}
	return &RcloneBackend{
		config: config,
		logger: log,
	}
}

func (r *RcloneBackend) GetToolType() ToolType {
	return ToolTypeRclone
}

func (r *RcloneBackend) remoteSpec(p string) string {
	return r.config.Remote + ":" + p
}

func (r *RcloneBackend) args(subcommand string, operands ...string) []string {
	args := append([]string{subcommand}, r.config.ExtraFlags...)
	return append(args, operands...)
}

func (r *RcloneBackend) List(ctx context.Context) ([]shared.CacheEntry, error) {
	startTime := time.Now()

	procCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	cmd := exec.CommandContext(procCtx, r.config.Binary, r.args("ls", r.remoteSpec(""))...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ToolError{Type: ErrorTypeStart, Op: "ls", Cause: err}
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, &ToolError{Type: ErrorTypeStart, Op: "ls", Cause: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &ToolError{Type: ErrorTypeStart, Op: "ls", Cause: err}
	}

	var g errgroup.Group
	var entries []shared.CacheEntry
	var stderr bytes.Buffer

	g.Go(func() error {
		parsed, err := ParseListing(stdout)
		if err != nil {
			cancel()
			_, _ = io.Copy(io.Discard, stdout)
			return &ToolError{Type: ErrorTypeUnparsable, Op: "ls", Cause: err}
		}
		entries = parsed
		return nil
	})

	g.Go(func() error {
		scanner := bufio.NewScanner(stderrPipe)
		for scanner.Scan() {
			line := scanner.Text()
			stderr.WriteString(line)
			stderr.WriteByte('\n')
			r.logger.Debug("rclone ls stderr", map[string]any{"line": line})
		}
		return nil
	})

	groupErr := g.Wait()
	waitErr := cmd.Wait()

	if groupErr != nil {
		return nil, groupErr
	}
	if waitErr != nil {
		return nil, &ToolError{
			Type:   ErrorTypeExit,
			Op:     "ls",
			Stderr: strings.TrimSpace(stderr.String()),
			Cause:  waitErr,
		}
	}

	r.logger.Info("listed remote files", map[string]any{
		"remote":   r.config.Remote,
		"files":    len(entries),
		"duration": time.Since(startTime),
	})

	return entries, nil
}

func (r *RcloneBackend) CopyTo(ctx context.Context, localPath, remotePath string) error {
	cmd := exec.CommandContext(ctx, r.config.Binary, r.args("copyto", localPath, r.remoteSpec(remotePath))...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	startTime := time.Now()
	err := cmd.Run()
	output := strings.TrimSpace(stderr.String())

	if err != nil {
		errType := ErrorTypeExit
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			errType = ErrorTypeStart
		}
		return &ToolError{Type: errType, Op: "copyto", Stderr: output, Cause: err}
	}

	if output != "" {
		return &ToolError{Type: ErrorTypeOutput, Op: "copyto", Stderr: output}
	}

	r.logger.Debug("copied file to remote", map[string]any{
		"local_path":  localPath,
		"remote_path": remotePath,
		"duration":    time.Since(startTime),
		"stdout":      strings.TrimSpace(stdout.String()),
	})

	return nil
}

func (r *RcloneBackend) String() string {
	return fmt.Sprintf("%s (%s:)", r.config.Binary, r.config.Remote)
}
