package style

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"

	"github.com/conneroisu/devreload/internal/errors"
)

var (
	importRe  = regexp.MustCompile(`^@import\s+(?:url\(\s*)?["']([^"']+)["']\s*\)?\s*;$`)
	varDeclRe = regexp.MustCompile(`^\$([A-Za-z_][\w-]*)\s*:\s*(.+?)\s*;$`)
	varUseRe  = regexp.MustCompile(`\$([A-Za-z_][\w-]*)`)
)

// Preprocessor flattens a style entry into a single stylesheet.
//
// It inlines local @import rules relative to the importing file, expands
// $name: value; declarations into later usages and strips block comments.
// Remote imports (http, https, protocol-relative) are kept verbatim.
type Preprocessor struct {
	fs afero.Fs
}

// NewPreprocessor creates a Preprocessor reading sources from fs.
func NewPreprocessor(fs afero.Fs) *Preprocessor {
	return &Preprocessor{fs: fs}
}

// preprocessRun carries the state of one Preprocess call.
type preprocessRun struct {
	fs       afero.Fs
	vars     map[string]string
	visiting map[string]bool
	out      strings.Builder
}

// Preprocess returns the flattened stylesheet for entry.
func (p *Preprocessor) Preprocess(entry string) (string, error) {
	run := &preprocessRun{
		fs:       p.fs,
		vars:     make(map[string]string),
		visiting: make(map[string]bool),
	}

	src, err := afero.ReadFile(p.fs, entry)
	if err != nil {
		return "", errors.IO("read", entry, err)
	}
	if err := run.file(entry, string(src)); err != nil {
		return "", err
	}
	return run.out.String(), nil
}

func (r *preprocessRun) file(path, src string) error {
	key := filepath.Clean(path)
	if r.visiting[key] {
		return errors.Compile("import", path, 0, fmt.Errorf("import cycle through %s", filepath.Base(path)))
	}
	r.visiting[key] = true
	defer delete(r.visiting, key)

	stripped, err := stripComments(path, src)
	if err != nil {
		return err
	}
	if err := checkBraces(path, stripped); err != nil {
		return err
	}

	for i, line := range strings.Split(stripped, "\n") {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		if m := importRe.FindStringSubmatch(trimmed); m != nil {
			if isRemote(m[1]) {
				r.out.WriteString(trimmed + "\n")
				continue
			}
			target := filepath.Join(filepath.Dir(path), filepath.FromSlash(m[1]))
			if r.visiting[filepath.Clean(target)] {
				return errors.Compile("import", path, lineNo, fmt.Errorf("import cycle: %s imports %s", filepath.Base(path), m[1]))
			}
			data, err := afero.ReadFile(r.fs, target)
			if err != nil {
				return errors.Compile("import", path, lineNo, fmt.Errorf("cannot import %q: %w", m[1], err))
			}
			if err := r.file(target, string(data)); err != nil {
				return err
			}
			continue
		}

		expanded, err := r.expand(path, lineNo, line)
		if err != nil {
			return err
		}

		if m := varDeclRe.FindStringSubmatch(strings.TrimSpace(expanded)); m != nil && strings.HasPrefix(trimmed, "$") {
			r.vars[m[1]] = m[2]
			continue
		}

		r.out.WriteString(strings.TrimRight(expanded, " \t\r") + "\n")
	}

	return nil
}

// expand substitutes known variables in line. The name being declared on a
// declaration line is left alone.
func (r *preprocessRun) expand(path string, lineNo int, line string) (string, error) {
	trimmed := strings.TrimSpace(line)
	declared := ""
	if m := varDeclRe.FindStringSubmatch(trimmed); m != nil {
		declared = m[1]
		line = m[2]
	}

	var missing string
	expanded := outsideStrings(line, func(ref string) string {
		name := ref[1:]
		if v, ok := r.vars[name]; ok {
			return v
		}
		if missing == "" {
			missing = name
		}
		return ref
	})
	if missing != "" {
		return "", errors.Compile("expand", path, lineNo, fmt.Errorf("undefined variable $%s", missing))
	}

	if declared != "" {
		return "$" + declared + ": " + expanded + ";", nil
	}
	return expanded, nil
}

// outsideStrings applies varUseRe substitution to the parts of line that
// are not inside a quoted string.
func outsideStrings(line string, repl func(string) string) string {
	var b strings.Builder
	b.Grow(len(line))

	start := 0
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
				b.WriteString(line[start : i+1])
				start = i + 1
			}
		case c == '"' || c == '\'':
			b.WriteString(varUseRe.ReplaceAllStringFunc(line[start:i], repl))
			quote = c
			start = i
		}
	}
	if quote != 0 {
		b.WriteString(line[start:])
	} else {
		b.WriteString(varUseRe.ReplaceAllStringFunc(line[start:], repl))
	}
	return b.String()
}

// stripComments removes /* */ comments while keeping line breaks so that
// later errors still point at the right line.
func stripComments(path, src string) (string, error) {
	var b strings.Builder
	b.Grow(len(src))

	line := 1
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == '\n' {
			line++
		}

		switch {
		case quote != 0:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(src) {
				i++
				b.WriteByte(src[i])
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
			b.WriteByte(c)
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			start := line
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return "", errors.Compile("comment", path, start, fmt.Errorf("unterminated comment"))
			}
			body := src[i+2 : i+2+end]
			for n := strings.Count(body, "\n"); n > 0; n-- {
				b.WriteByte('\n')
				line++
			}
			i += end + 3
		default:
			b.WriteByte(c)
		}
	}

	if quote != 0 {
		return "", errors.Compile("string", path, line, fmt.Errorf("unterminated string"))
	}
	return b.String(), nil
}

// checkBraces reports the first unmatched brace in src.
func checkBraces(path, src string) error {
	var open []int
	line := 1
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '\n':
			line++
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '{':
			open = append(open, line)
		case c == '}':
			if len(open) == 0 {
				return errors.Compile("parse", path, line, fmt.Errorf("unexpected '}'"))
			}
			open = open[:len(open)-1]
		}
	}
	if len(open) > 0 {
		return errors.Compile("parse", path, open[len(open)-1], fmt.Errorf("unclosed block"))
	}
	return nil
}

func isRemote(target string) bool {
	return strings.HasPrefix(target, "http://") ||
		strings.HasPrefix(target, "https://") ||
		strings.HasPrefix(target, "//")
}
