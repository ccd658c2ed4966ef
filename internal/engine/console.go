package engine

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/conneroisu/devreload/internal/build"
	"github.com/conneroisu/devreload/internal/errors"
	"github.com/conneroisu/devreload/internal/version"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	faint  = color.New(color.Faint)
)

// Console prints the human-facing one-liners: the startup banner and one
// line per finished stage run.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole creates a console writing to out. A nil out discards.
func NewConsole(out io.Writer) *Console {
	if out == nil {
		out = io.Discard
	}
	return &Console{out: out}
}

// Banner prints the startup banner.
func (c *Console) Banner(addr, source, output string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cyan.Fprintf(c.out, "devreload %s\n", version.GetShortVersion())
	fmt.Fprintf(c.out, "  ➜ Local:   ")
	green.Fprintf(c.out, "http://%s/\n", addr)
	faint.Fprintf(c.out, "  ➜ Watching %s, writing %s\n", source, output)
}

// Result prints the outcome of one stage run.
func (c *Console) Result(result build.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stamp := time.Now().Format("15:04:05")
	if result.OK() {
		faint.Fprintf(c.out, "%s ", stamp)
		green.Fprintf(c.out, "✓ %-6s", result.Stage)
		fmt.Fprintf(c.out, " %d artifact(s) in %s\n", len(result.Artifacts), result.Duration.Round(time.Millisecond))
		return
	}

	faint.Fprintf(c.out, "%s ", stamp)
	red.Fprintf(c.out, "✗ %-6s", result.Stage)
	fmt.Fprintf(c.out, " %s error: %v\n", errors.KindOf(result.Err), result.Err)
}

// Reloaded prints how many clients were told to reload.
func (c *Console) Reloaded(clients, failed int) {
	if clients == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if failed > 0 {
		yellow.Fprintf(c.out, "  ↻ reloaded %d client(s), dropped %d\n", clients-failed, failed)
		return
	}
	faint.Fprintf(c.out, "  ↻ reloaded %d client(s)\n", clients)
}
