package style

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/conneroisu/devreload/internal/errors"
)

// CommandTransform pipes the stylesheet through an external command that
// reads CSS on stdin and writes CSS to stdout, for example
// ["tailwindcss", "-i", "-", "-o", "-"].
type CommandTransform struct {
	Command []string
	Dir     string
}

// Transform implements Transformer.
func (t *CommandTransform) Transform(ctx context.Context, css string) (string, error) {
	if len(t.Command) == 0 {
		return "", errors.Compile("transform", "", 0, fmt.Errorf("no transform command configured"))
	}

	cmd := exec.CommandContext(ctx, t.Command[0], t.Command[1:]...)
	cmd.Dir = t.Dir
	cmd.Stdin = strings.NewReader(css)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return "", errors.Compile("transform", t.Command[0], 0, err)
	}

	return stdout.String(), nil
}
