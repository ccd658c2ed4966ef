package render

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"text/template"
)

// Runtime is the browser side of hydration, served at the runtime URL.
//
//go:embed runtime.js
var Runtime []byte

var hydrationTemplate = template.Must(template.New("hydrate").Funcs(template.FuncMap{
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}).Parse(`// Code generated by devreload. DO NOT EDIT.
// generation {{.Generation}}
const mount = {{json .MountID}};
const entry = {{json .EntryURL}};
const props = {{json .Props}};

import({{json .RuntimeURL}})
  .then((runtime) => runtime.hydrate({ mount, entry, props }))
  .catch((err) => {
    // the server-rendered markup stays in place
    console.error("[devreload] hydration failed:", err);
  });
`))

// Hydration describes the client re-render of the mounted component.
type Hydration struct {
	RuntimeURL   string
	SourcePrefix string
	Entry        string
	MountID      string
	Props        map[string]any
}

// EntryURL returns the source-passthrough URL of the entry, versioned by
// generation so browsers never reuse an old copy.
func (h Hydration) EntryURL(generation uint64) string {
	segments := strings.Split(path.Clean("/"+strings.ReplaceAll(h.Entry, "\\", "/")), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	prefix := strings.TrimSuffix(h.SourcePrefix, "/")
	return fmt.Sprintf("%s%s?v=%d", prefix, strings.Join(segments, "/"), generation)
}

// Script renders the HydrationScript artifact for a module generation.
func (h Hydration) Script(generation uint64) ([]byte, error) {
	props := h.Props
	if props == nil {
		props = map[string]any{}
	}

	var b strings.Builder
	err := hydrationTemplate.Execute(&b, struct {
		Generation uint64
		MountID    string
		EntryURL   string
		RuntimeURL string
		Props      map[string]any
	}{
		Generation: generation,
		MountID:    h.MountID,
		EntryURL:   h.EntryURL(generation),
		RuntimeURL: h.RuntimeURL,
		Props:      props,
	})
	if err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}
