// Package platform adapts the agent to the desktop it runs on: X11 input injection
// and window focus through xdotool, and hotkeys read from the controlling terminal.
package platform

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/xkilldash9x/angler/internal/humanoid"
)

// execCommandContext is swapped out in tests.
var execCommandContext = exec.CommandContext

// Xdotool drives the game through the xdotool binary. It implements
// humanoid.Executor and fishing.FocusOracle.
type Xdotool struct {
	binary string
	window string
}

// NewXdotool creates an injector. window is the exact title of the game window.
func NewXdotool(window string) *Xdotool {
	return &Xdotool{binary: "xdotool", window: window}
}

// Available reports whether the xdotool binary can be found.
func (x *Xdotool) Available() error {
	if _, err := exec.LookPath(x.binary); err != nil {
		return fmt.Errorf("xdotool not found in PATH: %w", err)
	}
	return nil
}

func (x *Xdotool) run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := execCommandContext(ctx, x.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("xdotool %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func (x *Xdotool) Sleep(ctx context.Context, d time.Duration) error {
	return humanoid.SleepContext(ctx, d)
}

func (x *Xdotool) PressKey(ctx context.Context, key humanoid.Key) error {
	_, err := x.run(ctx, "keydown", string(key))
	return err
}

func (x *Xdotool) ReleaseKey(ctx context.Context, key humanoid.Key) error {
	_, err := x.run(ctx, "keyup", string(key))
	return err
}

func (x *Xdotool) PressAndRelease(ctx context.Context, key humanoid.Key) error {
	_, err := x.run(ctx, "key", string(key))
	return err
}

func (x *Xdotool) MoveMouseRelative(ctx context.Context, delta humanoid.MouseDelta) error {
	// "--" keeps negative offsets from being read as flags.
	_, err := x.run(ctx, "mousemove_relative", "--", strconv.Itoa(delta.DX), strconv.Itoa(delta.DY))
	return err
}

// IsTargetFocused compares the title of the active window with the game's.
func (x *Xdotool) IsTargetFocused(ctx context.Context) bool {
	out, err := x.run(ctx, "getactivewindow", "getwindowname")
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == x.window
}
