package ui

import (
	"errors"
	"os"

	"golang.org/x/term"
)

// ErrStopped is returned by ReadKey when the stop channel is closed.
var ErrStopped = errors.New("read stopped")

// RawMode manages terminal raw mode via golang.org/x/term, saving the
// original state on Enable and restoring it on Disable.
type RawMode struct {
	fd    int
	state *term.State
}

// NewRawMode creates a RawMode for stdin. Fails when stdin is not a TTY.
func NewRawMode() (*RawMode, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}
	return &RawMode{fd: fd}, nil
}

// Enable puts the terminal into raw mode.
func (rm *RawMode) Enable() error {
	state, err := term.MakeRaw(rm.fd)
	if err != nil {
		return err
	}
	rm.state = state
	return nil
}

// Disable restores the original terminal mode.
func (rm *RawMode) Disable() error {
	if rm.state == nil {
		return nil
	}
	err := term.Restore(rm.fd, rm.state)
	rm.state = nil
	return err
}

// ReadKey blocks until one byte arrives on stdin or stop is closed. A
// reader goroutine may stay blocked on stdin after ErrStopped; it consumes
// at most one byte, which the next prompt read tolerates.
func (rm *RawMode) ReadKey(stop <-chan struct{}) (byte, error) {
	byteCh := make(chan byte, 1)
	errCh := make(chan error, 1)
	go func() {
		var buf [1]byte
		n, err := os.Stdin.Read(buf[:])
		if err != nil || n == 0 {
			errCh <- ErrStopped
			return
		}
		byteCh <- buf[0]
	}()

	select {
	case <-stop:
		return 0, ErrStopped
	case b := <-byteCh:
		return b, nil
	case err := <-errCh:
		return 0, err
	}
}

// Width returns the terminal width, or a fallback of 80 columns.
func Width() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}
