// Package style compiles the style entry of the source tree into the CSS
// text of the Stylesheet artifact.
//
// Compilation has two steps: the Preprocessor flattens the entry (imports,
// variables, comments) and a Transformer expands the utility-class
// directives of Preamble + flattened source. The built-in UtilityTransform
// emits only the utilities used by the component sources; CommandTransform
// delegates to an external binary such as the Tailwind standalone CLI.
package style

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/conneroisu/devreload/internal/errors"
)

// Preamble is prepended to every preprocessed stylesheet before the
// utility transform runs.
const Preamble = "@tailwind base;\n@tailwind components;\n@tailwind utilities;\n"

// Compiler turns a style entry into CSS text.
type Compiler interface {
	Compile(ctx context.Context, entry string) (string, error)
}

// Transformer rewrites a stylesheet that still contains utility directives.
type Transformer interface {
	Transform(ctx context.Context, css string) (string, error)
}

// StyleCompiler is the default Compiler.
type StyleCompiler struct {
	pre       *Preprocessor
	transform Transformer
}

// NewCompiler creates a compiler reading sources from fs.
func NewCompiler(fs afero.Fs, transform Transformer) *StyleCompiler {
	return &StyleCompiler{pre: NewPreprocessor(fs), transform: transform}
}

// Compile preprocesses entry and runs the transform over Preamble plus the
// result.
func (c *StyleCompiler) Compile(ctx context.Context, entry string) (string, error) {
	css, err := c.pre.Preprocess(entry)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.transform.Transform(ctx, Preamble+css)
}

var directiveRe = regexp.MustCompile(`^@tailwind\s+([\w-]+)\s*;$`)

// UtilityTransform expands @tailwind directives using a built-in utility
// table, emitting only classes found in the component sources under Root.
type UtilityTransform struct {
	Fs         afero.Fs
	Root       string
	Extensions []string
}

// Transform implements Transformer.
func (t *UtilityTransform) Transform(ctx context.Context, css string) (string, error) {
	used, err := ScanClasses(t.Fs, t.Root, t.Extensions)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	emitted := make(map[string]bool)
	for i, line := range strings.Split(css, "\n") {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}

		m := directiveRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			if line != "" {
				b.WriteString(line + "\n")
			}
			continue
		}

		layer := m[1]
		if emitted[layer] {
			continue
		}
		emitted[layer] = true

		switch layer {
		case "base":
			b.WriteString(baseLayer)
		case "components":
			b.WriteString(renderComponents(used))
		case "utilities":
			b.WriteString(renderUtilities(used))
		default:
			return "", errors.Compile("transform", "", i+1, fmt.Errorf("unknown @tailwind layer %q", layer))
		}
	}

	return b.String(), nil
}
