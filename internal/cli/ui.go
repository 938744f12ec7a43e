package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"photobackup/pkg/logger"
	"photobackup/pkg/shared"
)

const (
	copyDirsDone   = "Done"
	copyDirsAdd    = "Add copy dir"
	copyDirsRemove = "Remove copy dir"
)

// terminalUI implements app.UI on top of a prompter. During a transfer it
// listens for the stop key.
type terminalUI struct {
	prompt prompter
	out    io.Writer
	errOut io.Writer

	// onStop is raised by the key listener; nil disables listening.
	onStop   func()
	in       *os.File
	mu       sync.Mutex
	listener *keyListener
}

func newTerminalUI(p prompter, out, errOut io.Writer) *terminalUI {
	return &terminalUI{
		prompt: p,
		out:    out,
		errOut: errOut,
	}
}

// lineEnd is \r\n while the terminal is raw, since output processing is off.
func (u *terminalUI) lineEnd() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.listener != nil {
		return "\r\n"
	}
	return "\n"
}

func (u *terminalUI) Println(msg string) {
	fmt.Fprint(u.out, msg+u.lineEnd())
}

func (u *terminalUI) Errorln(msg string) {
	fmt.Fprint(u.errOut, msg+u.lineEnd())
}

// Progress starts the key listener on the first item of a transfer.
func (u *terminalUI) Progress(msg string) {
	u.listen()
	u.Println(msg)
}

func (u *terminalUI) listen() {
	u.mu.Lock()
	if u.onStop == nil || u.in == nil || u.listener != nil {
		u.mu.Unlock()
		return
	}
	l, err := startKeyListener(u.in, u.onStop)
	if err != nil {
		u.onStop = nil
	} else {
		u.listener = l
	}
	u.mu.Unlock()

	// Logging goes through logWriter, which takes mu.
	if err != nil {
		logger.Debug("stop key not available", map[string]any{"error": err.Error()})
		return
	}
	fmt.Fprint(u.out, "Press q to stop after the current file.\r\n")
}

// logWriter wraps w so log records keep their line breaks while the
// terminal is raw.
func (u *terminalUI) logWriter(w io.Writer) io.Writer {
	return rawAwareWriter{ui: u, w: w}
}

type rawAwareWriter struct {
	ui *terminalUI
	w  io.Writer
}

func (r rawAwareWriter) Write(p []byte) (int, error) {
	if r.ui.lineEnd() == "\n" {
		return r.w.Write(p)
	}
	if _, err := r.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// stopListening restores the terminal after a command finished.
func (u *terminalUI) stopListening() {
	u.mu.Lock()
	l := u.listener
	u.listener = nil
	u.mu.Unlock()
	if l != nil {
		if err := l.Close(); err != nil {
			logger.Warn("failed to restore terminal", map[string]any{"error": err.Error()})
		}
	}
}

func (u *terminalUI) Confirm(question string) (bool, error) {
	return u.prompt.Confirm(question)
}

func (u *terminalUI) AskConfig(current shared.Config) (shared.Config, error) {
	var (
		update shared.Config
		err    error
	)

	if update.Source, err = u.prompt.Ask("Source dir", current.Source); err != nil {
		return shared.Config{}, err
	}
	if update.Target, err = u.prompt.Ask("Target dir", current.Target); err != nil {
		return shared.Config{}, err
	}
	if update.RemoteDir, err = u.prompt.Ask("Remote dir", current.RemoteDir); err != nil {
		return shared.Config{}, err
	}
	if update.FileTypes, err = u.prompt.Ask("File types", current.FileTypes); err != nil {
		return shared.Config{}, err
	}

	dirs, changed, err := u.editCopyDirs(current.CopyDirs)
	if err != nil {
		return shared.Config{}, err
	}
	if changed {
		update.CopyDirs = dirs
	}
	return update, nil
}

func (u *terminalUI) editCopyDirs(current []shared.DirectoryMapping) ([]shared.DirectoryMapping, bool, error) {
	dirs := append([]shared.DirectoryMapping{}, current...)
	changed := false

	for {
		for i, d := range dirs {
			u.Println(fmt.Sprintf("  [%d] %s", i+1, describeMapping(d)))
		}

		items := []string{copyDirsDone, copyDirsAdd}
		if len(dirs) > 0 {
			items = append(items, copyDirsRemove)
		}
		idx, err := u.prompt.Select(fmt.Sprintf("Copy dirs (%d)", len(dirs)), items)
		if err != nil {
			return nil, false, err
		}

		switch items[idx] {
		case copyDirsDone:
			return dirs, changed, nil
		case copyDirsAdd:
			var d shared.DirectoryMapping
			if d.Source, err = u.prompt.Ask("Copy dir source", ""); err != nil {
				return nil, false, err
			}
			if d.Target, err = u.prompt.Ask("Copy dir target", ""); err != nil {
				return nil, false, err
			}
			if d.RemoteDir, err = u.prompt.Ask("Copy dir remote dir", ""); err != nil {
				return nil, false, err
			}
			dirs = append(dirs, d)
			changed = true
		case copyDirsRemove:
			labels := make([]string, len(dirs))
			for i, d := range dirs {
				labels[i] = describeMapping(d)
			}
			i, err := u.prompt.Select("Remove which copy dir", labels)
			if err != nil {
				return nil, false, err
			}
			dirs = append(dirs[:i], dirs[i+1:]...)
			changed = true
		}
	}
}

func describeMapping(d shared.DirectoryMapping) string {
	return strings.Join([]string{d.Source, "->", d.Target + ",", "remote:" + d.RemoteDir}, " ")
}
