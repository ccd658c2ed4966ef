// Package render turns the component entry of the source tree into the
// Page and HydrationScript artifacts.
//
// Components are html/template sources exposed to the rest of the engine as
// templ components. Each render goes through a ModuleLoader so a changed
// entry is never rendered from a stale parse.
package render

import (
	"context"
	"strings"

	"github.com/a-h/templ"

	"github.com/conneroisu/devreload/internal/errors"
)

// Renderer produces the component tree of a loaded module.
type Renderer interface {
	Component(mod *Module) (templ.Component, error)
}

// TemplateRenderer renders html/template modules with a fixed set of props.
type TemplateRenderer struct {
	Props map[string]any
}

// NewTemplateRenderer creates a renderer passing props to every module.
func NewTemplateRenderer(props map[string]any) *TemplateRenderer {
	if props == nil {
		props = make(map[string]any)
	}
	return &TemplateRenderer{Props: props}
}

// Component implements Renderer.
func (r *TemplateRenderer) Component(mod *Module) (templ.Component, error) {
	if mod == nil || mod.Template == nil {
		return nil, errors.Render("component", "", errors.New("module has no template"))
	}
	return templ.FromGoHTML(mod.Template, r.Props), nil
}

// ToString renders c and trims surrounding whitespace.
func ToString(ctx context.Context, c templ.Component) (string, error) {
	var b strings.Builder
	if err := c.Render(ctx, &b); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
