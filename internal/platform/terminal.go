package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/xkilldash9x/angler/internal/hotkey"
)

// ErrInterrupted is returned by TerminalKeys.Next after Ctrl-C was typed. Raw mode
// swallows the signal, so the key source reports it instead.
var ErrInterrupted = errors.New("platform: interrupted")

// sequences maps what follows "ESC [" to a hotkey (xterm encoding).
var sequences = []struct {
	seq string
	key hotkey.Key
}{
	{"18~", hotkey.KeyF7},
	{"19~", hotkey.KeyF8},
	{"20~", hotkey.KeyF9},
	{"21~", hotkey.KeyF10},
	{"A", hotkey.KeyUp},
	{"B", hotkey.KeyDown},
	{"C", hotkey.KeyRight},
	{"D", hotkey.KeyLeft},
}

const ctrlC = 0x03

// TerminalKeys reads hotkeys from a terminal switched into raw mode.
type TerminalKeys struct {
	in      io.Reader
	restore func() error

	keys chan hotkey.Key
	done chan struct{}
	err  error

	closeOnce sync.Once
}

// NewTerminalKeys puts f into raw mode and starts decoding its input. Close restores
// the terminal.
func NewTerminalKeys(f *os.File) (*TerminalKeys, error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("%s is not a terminal", f.Name())
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to enter raw mode: %w", err)
	}
	t := newTerminalKeys(f)
	t.restore = func() error { return term.Restore(fd, old) }
	return t, nil
}

func newTerminalKeys(in io.Reader) *TerminalKeys {
	t := &TerminalKeys{
		in:   in,
		keys: make(chan hotkey.Key, 16),
		done: make(chan struct{}),
	}
	go t.read()
	return t
}

func (t *TerminalKeys) read() {
	defer close(t.done)
	buf := make([]byte, 256)
	var pending []byte
	for {
		n, err := t.in.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			var keys []hotkey.Key
			var interrupted bool
			keys, pending, interrupted = decodeKeys(pending)
			for _, k := range keys {
				t.keys <- k
			}
			if interrupted {
				t.err = ErrInterrupted
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.err = err
			}
			return
		}
	}
}

// Next returns the next decoded hotkey.
func (t *TerminalKeys) Next(ctx context.Context) (hotkey.Key, error) {
	select {
	case <-ctx.Done():
		return hotkey.KeyNone, ctx.Err()
	case k := <-t.keys:
		return k, nil
	case <-t.done:
		// Drain anything decoded before the reader stopped.
		select {
		case k := <-t.keys:
			return k, nil
		default:
		}
		if t.err != nil {
			return hotkey.KeyNone, t.err
		}
		return hotkey.KeyNone, io.EOF
	}
}

// Close restores the terminal mode.
func (t *TerminalKeys) Close() error {
	var err error
	t.closeOnce.Do(func() {
		if t.restore != nil {
			err = t.restore()
		}
	})
	return err
}

// decodeKeys extracts hotkeys from buf. It returns the decoded keys, the unconsumed
// tail (an incomplete escape sequence) and whether Ctrl-C was seen. Bytes that start
// no known sequence are skipped.
func decodeKeys(buf []byte) ([]hotkey.Key, []byte, bool) {
	var keys []hotkey.Key
	for len(buf) > 0 {
		if buf[0] == ctrlC {
			return keys, nil, true
		}
		if buf[0] != 0x1b {
			buf = buf[1:]
			continue
		}
		if len(buf) < 2 {
			return keys, buf, false
		}
		if buf[1] != '[' {
			buf = buf[1:]
			continue
		}

		body := buf[2:]
		matched, partial := false, false
		for _, s := range sequences {
			if bytes.HasPrefix(body, []byte(s.seq)) {
				keys = append(keys, s.key)
				buf = body[len(s.seq):]
				matched = true
				break
			}
			if bytes.HasPrefix([]byte(s.seq), body) {
				partial = true
			}
		}
		if matched {
			continue
		}
		if partial {
			return keys, buf, false
		}
		// Unknown CSI sequence: skip up to and including its final byte.
		buf = skipCSI(body)
	}
	return keys, nil, false
}

func skipCSI(body []byte) []byte {
	for i, b := range body {
		if b >= 0x40 && b <= 0x7e {
			return body[i+1:]
		}
	}
	return nil
}
