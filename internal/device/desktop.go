package device

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// commandRunner runs an external program and returns its combined output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Desktop controls the local X11 session with xdotool and captures it with ffmpeg or scrot.
type Desktop struct {
	Display       string
	ScreenshotDir string
	Screenshots   bool

	run commandRunner
}

func NewDesktop(display string, screenshots bool) *Desktop {
	if display == "" {
		display = ":0.0"
	}
	return &Desktop{
		Display:       display,
		ScreenshotDir: "screenshots",
		Screenshots:   screenshots,
		run:           execRunner,
	}
}

func (d *Desktop) Platform() string {
	return "desktop"
}

func (d *Desktop) Execute(ctx context.Context, a Action) error {
	var args []string
	switch a.Type {
	case ActionTapPoint:
		args = []string{"mousemove", strconv.Itoa(a.X), strconv.Itoa(a.Y), "click", "1"}
	case ActionTypeText:
		if a.Text == "" {
			return actionErr(a, fmt.Errorf("text is required"))
		}
		args = []string{"type", a.Text}
	case ActionPressKey:
		if a.Key == "" {
			return actionErr(a, fmt.Errorf("key is required"))
		}
		args = []string{"key", a.Key}
	case ActionScroll:
		button := "5"
		if a.Direction == "up" {
			button = "4"
		}
		args = []string{"click", "--repeat", "5", button}
	case ActionWait:
		timeout := waitTimeout(a)
		select {
		case <-time.After(timeout):
			return nil
		case <-ctx.Done():
			return actionErr(a, ctx.Err())
		}
	default:
		return actionErr(a, fmt.Errorf("%w: %s", ErrUnsupportedAction, a.Type))
	}

	output, err := d.run(ctx, "xdotool", args...)
	if err != nil {
		if strings.Contains(err.Error(), "executable file not found") {
			return actionErr(a, fmt.Errorf("xdotool is not installed"))
		}
		return actionErr(a, fmt.Errorf("%v: %s", err, strings.TrimSpace(string(output))))
	}
	return nil
}

func (d *Desktop) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Platform: d.Platform()}

	title, err := d.run(ctx, "xdotool", "getactivewindow", "getwindowname")
	if err == nil {
		snap.Title = strings.TrimSpace(string(title))
	}

	if !d.Screenshots {
		return snap, nil
	}
	shot, err := d.capture(ctx)
	if err != nil {
		return snap, err
	}
	snap.Screenshot = shot
	return snap, nil
}

func (d *Desktop) capture(ctx context.Context) ([]byte, error) {
	if err := os.MkdirAll(d.ScreenshotDir, 0755); err != nil {
		return nil, err
	}
	path := filepath.Join(d.ScreenshotDir, fmt.Sprintf("desktop_%d.png", time.Now().UnixNano()))
	defer os.Remove(path)

	output, err := d.run(ctx, "ffmpeg", "-f", "x11grab", "-i", d.Display, "-frames:v", "1", path, "-y")
	if err != nil {
		// scrot is the fallback when ffmpeg has no x11grab support
		output, err = d.run(ctx, "scrot", path)
		if err != nil {
			return nil, fmt.Errorf("failed to capture desktop: %v: %s", err, strings.TrimSpace(string(output)))
		}
	}
	return os.ReadFile(path)
}
