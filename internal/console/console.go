// Package console waits for the operator to end the bus monitor.
//
// On a terminal the line is read through ergochat/readline so that Ctrl-C
// and Ctrl-D are handled by the line editor; piped input falls back to a
// bufio.Scanner.
package console

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

// LineReader reads whole lines from the console.
type LineReader struct {
	// rl and scanner are set once by the constructor. A read abandoned by
	// Wait may still be using rl when Close runs.
	rl      *readline.Instance
	scanner *bufio.Scanner

	mu      sync.Mutex
	pending chan readResult
}

type readResult struct {
	line string
	err  error
}

// NewLineReader reads from in. Readline is used only when in is the
// process stdin and it is a terminal.
func NewLineReader(in io.Reader) *LineReader {
	if f, ok := in.(*os.File); ok && f == os.Stdin && term.IsTerminal(int(f.Fd())) {
		r, err := newReadlineReader(&readline.Config{
			Prompt:                 "",
			DisableAutoSaveHistory: true,
		})
		if err == nil {
			return r
		}
	}
	return &LineReader{scanner: bufio.NewScanner(in)}
}

func newReadlineReader(cfg *readline.Config) (*LineReader, error) {
	rl, err := readline.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &LineReader{rl: rl}, nil
}

// IsInteractive reports whether readline is in use.
func (r *LineReader) IsInteractive() bool {
	return r.rl != nil
}

// ReadLine blocks until a line is read. It returns io.EOF at end of input
// and when the user interrupts the line editor.
func (r *LineReader) ReadLine() (string, error) {
	if r.rl != nil {
		line, err := r.rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			return "", io.EOF
		}
		return line, err
	}

	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

// Wait returns nil when a line is entered, io.EOF at end of input, or the
// context error when ctx is done first. A read abandoned by cancellation
// is picked up by the next Wait.
func (r *LineReader) Wait(ctx context.Context) error {
	r.mu.Lock()
	if r.pending == nil {
		ch := make(chan readResult, 1)
		r.pending = ch
		go func() {
			line, err := r.ReadLine()
			ch <- readResult{line: line, err: err}
		}()
	}
	ch := r.pending
	r.mu.Unlock()

	select {
	case res := <-ch:
		r.mu.Lock()
		r.pending = nil
		r.mu.Unlock()
		return res.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases the line editor and ends a pending read. Safe to call
// more than once.
func (r *LineReader) Close() error {
	if r.rl == nil {
		return nil
	}
	return r.rl.Close()
}
