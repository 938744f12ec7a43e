package cli

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/muesli/cancelreader"
	"golang.org/x/term"

	"photobackup/pkg/logger"
)

const ctrlC = 0x03

var errNotTerminal = errors.New("stdin is not a terminal")

// watchKeys reads single bytes from r and calls onStop when q, Q or Ctrl+C
// is seen. It returns when r fails, which includes being cancelled.
func watchKeys(r io.Reader, onStop func()) {
	buf := make([]byte, 16)
	for {
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			switch b {
			case 'q', 'Q', ctrlC:
				onStop()
			}
		}
		if err != nil {
			return
		}
	}
}

// keyListener puts the terminal in raw mode so a single keypress stops a
// running transfer without waiting for Enter.
type keyListener struct {
	fd     int
	state  *term.State
	reader cancelreader.CancelReader
	done   chan struct{}
	once   sync.Once
}

func startKeyListener(in *os.File, onStop func()) (*keyListener, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, errNotTerminal
	}

	reader, err := cancelreader.NewReader(in)
	if err != nil {
		return nil, err
	}

	state, err := term.MakeRaw(fd)
	if err != nil {
		_ = reader.Close()
		return nil, err
	}

	l := &keyListener{
		fd:     fd,
		state:  state,
		reader: reader,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(l.done)
		watchKeys(reader, onStop)
	}()
	return l, nil
}

// Close stops reading and restores the terminal. Safe to call twice.
func (l *keyListener) Close() error {
	var err error
	l.once.Do(func() {
		// Without cancel support the reader stays blocked until the next key.
		cancelled := l.reader.Cancel()
		if cancelled {
			<-l.done
			_ = l.reader.Close()
		}
		err = term.Restore(l.fd, l.state)
		if !cancelled {
			logger.Warn("stop key reader could not be cancelled, the next keypress will be discarded", map[string]any{
				"fd": l.fd,
			})
		}
	})
	return err
}
