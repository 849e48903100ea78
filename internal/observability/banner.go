package observability

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

// termMu serializes all terminal output so status lines and log lines never interleave.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return w
}

// colorEnabled reports whether stdout is an interactive terminal.
func colorEnabled() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

type termWriter struct {
	out io.Writer
}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return tw.out.Write(p)
}

// NewTermWriter returns an io.Writer suitable for log.SetOutput().
func NewTermWriter() io.Writer {
	return termWriter{out: os.Stderr}
}

func PrintBanner() {
	banner := `
 _   _ ___ ____ ___ _     ___ _____
| | | |_ _|  _ \_ _| |   / _ \_   _|
| | | || || |_) | || |  | | | || |
| |_| || ||  __/| || |__| |_| || |
 \___/|___|_|  |___|_____\___/ |_|

      >> LLM-DRIVEN UI TESTING <<
`
	width := termWidth()
	color, reset := colorNeonCyan, colorReset
	if !colorEnabled() {
		color, reset = "", ""
	}

	termMu.Lock()
	defer termMu.Unlock()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		fmt.Printf("%s%s%s%s\n", strings.Repeat(" ", padding), color, l, reset)
	}
}

// StatusLine renders a one-line summary of the current run.
func StatusLine() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	role, step, since := GetStatus()
	passed, failed := GetResults()

	if step == "" {
		step = "Waiting..."
	}
	if len(step) > 40 {
		step = step[:37] + "..."
	}

	roleColor := colorReset
	switch role {
	case RoleAgent:
		roleColor = colorNeonCyan
	case RoleVerify:
		roleColor = colorNeonMag
	case RoleReplay:
		roleColor = colorPurple
	}
	if !colorEnabled() {
		roleColor = ""
	}

	return fmt.Sprintf("[%s] %s%-6s%s %s | for %v | pass %d fail %d | up %v | %.1fMB",
		time.Now().Format("15:04:05"),
		roleColor, role, resetIf(roleColor),
		step,
		time.Since(since).Round(time.Second),
		passed, failed,
		time.Since(startTime).Round(time.Second),
		float64(m.Alloc)/1024/1024,
	)
}

func PrintStatusLine() {
	line := StatusLine()
	termMu.Lock()
	defer termMu.Unlock()
	fmt.Fprintln(os.Stderr, line)
}

func resetIf(color string) string {
	if color == "" {
		return ""
	}
	return colorReset
}
