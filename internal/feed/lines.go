package feed

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/xkilldash9x/angler/internal/fishing"
)

// LineFeed reads one state label per line, e.g. from a classifier piped into stdin.
type LineFeed struct {
	lines chan string
	err   error
}

// NewLineFeed starts reading r in the background.
func NewLineFeed(r io.Reader) *LineFeed {
	f := &LineFeed{lines: make(chan string)}
	go func() {
		defer close(f.lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			f.lines <- line
		}
		f.err = sc.Err()
	}()
	return f
}

// Next returns the next state, or io.EOF when the input is exhausted.
func (f *LineFeed) Next(ctx context.Context) (fishing.State, error) {
	select {
	case <-ctx.Done():
		return fishing.StateUnknown, ctx.Err()
	case line, ok := <-f.lines:
		if !ok {
			if f.err != nil {
				return fishing.StateUnknown, f.err
			}
			return fishing.StateUnknown, io.EOF
		}
		return fishing.ParseState(line), nil
	}
}
