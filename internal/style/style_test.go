package style

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/devreload/internal/errors"
)

func writeFiles(t *testing.T, fs afero.Fs, files map[string]string) {
	t.Helper()
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, filepath.FromSlash(name), []byte(content), 0o644))
	}
}

func compileErrorLine(t *testing.T, err error) int {
	t.Helper()
	require.Error(t, err)
	var e *errors.Error
	require.True(t, errors.As(err, &e), "expected *errors.Error, got %T", err)
	assert.Equal(t, errors.KindCompile, e.Kind)
	return e.Line
}

func TestPreprocessInlinesImportsAndVariables(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"src/index.css": `@import "theme/vars.css";
/* page styles */
body { color: $text; }
.btn { background: $accent; }
@import url("https://fonts.example.com/inter.css");
`,
		"src/theme/vars.css": `$primary: #3b82f6;
$text: #111827;
$accent: $primary;
`,
	})

	out, err := NewPreprocessor(fs).Preprocess(filepath.FromSlash("src/index.css"))
	require.NoError(t, err)

	assert.Equal(t, `body { color: #111827; }
.btn { background: #3b82f6; }
@import url("https://fonts.example.com/inter.css");
`, out)
}

func TestPreprocessKeepsCommentMarkersInStrings(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"index.css": `a::after { content: "/* not a comment */"; }`,
	})

	out, err := NewPreprocessor(fs).Preprocess("index.css")
	require.NoError(t, err)
	assert.Contains(t, out, `"/* not a comment */"`)
}

func TestPreprocessLeavesDollarsInStrings(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"index.css": `$accent: #f59e0b;
.price::before { content: "$USD"; color: $accent; }
.tag::after { content: '$EUR \'$x\''; }
`,
	})

	out, err := NewPreprocessor(fs).Preprocess("index.css")
	require.NoError(t, err)
	assert.Equal(t, `.price::before { content: "$USD"; color: #f59e0b; }
.tag::after { content: '$EUR \'$x\''; }
`, out)
}

func TestPreprocessErrors(t *testing.T) {
	tests := []struct {
		name   string
		files  map[string]string
		line   int
		reason string
	}{
		{
			name:   "undefined variable",
			files:  map[string]string{"index.css": "body {\n  color: $missing;\n}\n"},
			line:   2,
			reason: "undefined variable $missing",
		},
		{
			name:   "unterminated comment",
			files:  map[string]string{"index.css": "body {}\n\n/* open\n"},
			line:   3,
			reason: "unterminated comment",
		},
		{
			name:   "unclosed block",
			files:  map[string]string{"index.css": "a { color: red; }\nbody {\n  color: red;\n"},
			line:   2,
			reason: "unclosed block",
		},
		{
			name:   "unexpected brace",
			files:  map[string]string{"index.css": "a { color: red; }\n}\n"},
			line:   2,
			reason: "unexpected '}'",
		},
		{
			name:   "missing import",
			files:  map[string]string{"index.css": "\n@import \"nope.css\";\n"},
			line:   2,
			reason: "cannot import",
		},
		{
			name: "import cycle",
			files: map[string]string{
				"index.css": "@import \"a.css\";\n",
				"a.css":     "@import \"b.css\";\n",
				"b.css":     "\n@import \"a.css\";\n",
			},
			line:   2,
			reason: "import cycle",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFiles(t, fs, tt.files)

			_, err := NewPreprocessor(fs).Preprocess("index.css")
			assert.Equal(t, tt.line, compileErrorLine(t, err))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestPreprocessMissingEntryIsIOError(t *testing.T) {
	_, err := NewPreprocessor(afero.NewMemMapFs()).Preprocess("index.css")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindIO))
}

func TestExtractClasses(t *testing.T) {
	markup := []byte(`<main class="container">
  <h1 class="text-xl font-bold">{{.Title}}</h1>
  <button class="p-4 {{.Extra}} hover:bg-blue-600" disabled/>
  <p class="text-xl">again</p>
</main>`)

	assert.Equal(t,
		[]string{"container", "font-bold", "hover:bg-blue-600", "p-4", "text-xl"},
		ExtractClasses(markup))
}

func TestScanClassesOnlyReadsComponentSources(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"src/App.html":          `<div class="flex"></div>`,
		"src/parts/Card.tmpl":   `<section class="p-4"></section>`,
		"src/notes.txt":         `<div class="grid"></div>`,
		"src/.cache/Old.html":   `<div class="hidden"></div>`,
		"src/index.css":         `.x { }`,
	})

	used, err := ScanClasses(fs, "src", []string{".html", ".tmpl"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"flex": true, "p-4": true}, used)
}

func TestUtilityTransformEmitsOnlyUsedClasses(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"src/App.html": `<div class="container md:flex w-1/2 p-4 hover:bg-blue-600 not-a-utility"></div>`,
	})

	tr := &UtilityTransform{Fs: fs, Root: "src", Extensions: []string{".html"}}
	out, err := tr.Transform(context.Background(), Preamble+".custom { color: red; }\n")
	require.NoError(t, err)

	assert.Contains(t, out, "box-sizing: border-box;")
	assert.Contains(t, out, ".container { width: 100%;")
	assert.Contains(t, out, ".p-4 { padding: 1rem; }")
	assert.Contains(t, out, `.w-1\/2 { width: 50%; }`)
	assert.Contains(t, out, `.hover\:bg-blue-600:hover { background-color: #2563eb; }`)
	assert.Contains(t, out, "@media (min-width: 768px) {\n  .md\\:flex { display: flex; }\n}")
	assert.Contains(t, out, ".custom { color: red; }")

	assert.NotContains(t, out, ".grid {")
	assert.NotContains(t, out, "not-a-utility")
	assert.NotContains(t, out, "@tailwind")
}

func TestUtilityTransformUnknownLayer(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("src", 0o755))

	tr := &UtilityTransform{Fs: fs, Root: "src", Extensions: []string{".html"}}
	_, err := tr.Transform(context.Background(), Preamble+"@tailwind screens;\n")
	assert.Equal(t, 4, compileErrorLine(t, err))
}

func TestCompileIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{
		"src/index.css": "$brand: #10b981;\n.brand { color: $brand; }\n",
		"src/App.html":  `<h1 class="text-3xl font-bold text-green-500 sm:text-xl mb-4">Hi</h1>`,
	})

	c := NewCompiler(fs, &UtilityTransform{Fs: fs, Root: "src", Extensions: []string{".html"}})
	first, err := c.Compile(context.Background(), filepath.Join("src", "index.css"))
	require.NoError(t, err)
	second, err := c.Compile(context.Background(), filepath.Join("src", "index.css"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, first, ".brand { color: #10b981; }")
}

func TestCompileStopsOnPreprocessError(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFiles(t, fs, map[string]string{"src/index.css": "body {\n"})

	c := NewCompiler(fs, &UtilityTransform{Fs: fs, Root: "src", Extensions: []string{".html"}})
	_, err := c.Compile(context.Background(), filepath.Join("src", "index.css"))
	assert.Equal(t, 1, compileErrorLine(t, err))
}

func TestCommandTransform(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	tr := &CommandTransform{Command: []string{"cat"}}
	out, err := tr.Transform(context.Background(), Preamble)
	require.NoError(t, err)
	assert.Equal(t, Preamble, out)
}

func TestCommandTransformFailure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	tr := &CommandTransform{Command: []string{"sh", "-c", "echo boom >&2; exit 3"}}
	_, err := tr.Transform(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindCompile))
	assert.True(t, strings.Contains(err.Error(), "boom"))

	_, err = (&CommandTransform{}).Transform(context.Background(), "")
	assert.True(t, errors.IsKind(err, errors.KindCompile))
}
