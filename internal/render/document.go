package render

import (
	"context"
	"html/template"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/a-h/templ"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var documentTemplate = template.Must(template.New("document").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="stylesheet" href="{{.Stylesheet}}">
</head>
<body>
<div id="{{.MountID}}">{{.Body}}</div>
<script type="module" src="{{.HydrationScript}}"></script>
<script>{{.Bootstrap}}</script>
</body>
</html>
`))

// Document describes the fixed page shell the rendered component is
// mounted into.
type Document struct {
	Title           string
	MountID         string
	Stylesheet      string
	HydrationScript string
	ReloadPath      string
	ReconnectDelay  time.Duration
}

type documentData struct {
	Title           string
	MountID         string
	Stylesheet      string
	HydrationScript string
	Body            template.HTML
	Bootstrap       template.JS
}

// Wrap returns a component rendering the full page with body mounted at
// MountID. The body markup is trimmed so the mount element wraps it tightly.
func (d Document) Wrap(body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		markup, err := templ.ToGoHTML(ctx, body)
		if err != nil {
			return err
		}
		return documentTemplate.Execute(w, documentData{
			Title:           d.Title,
			MountID:         d.MountID,
			Stylesheet:      d.Stylesheet,
			HydrationScript: d.HydrationScript,
			Body:            template.HTML(strings.TrimSpace(string(markup))),
			Bootstrap:       BootstrapScript(d.ReloadPath, d.ReconnectDelay),
		})
	})
}

// BootstrapScript returns the live-reload client embedded in every page.
// It reloads on the "reload" message and, once the socket closes, waits
// delay before forcing a reload.
func BootstrapScript(path string, delay time.Duration) template.JS {
	return template.JS(`(function () {
  var proto = location.protocol === "https:" ? "wss:" : "ws:";
  var ws = new WebSocket(proto + "//" + location.host + ` + strconv.Quote(path) + `);
  ws.onmessage = function (event) {
    if (event.data === "reload") {
      location.reload();
    }
  };
  ws.onclose = function () {
    setTimeout(function () { location.reload(); }, ` + strconv.FormatInt(delay.Milliseconds(), 10) + `);
  };
})();`)
}

// Title derives a page title from the component entry file name,
// e.g. "user_profile.html" becomes "User Profile".
func Title(entry string) string {
	base := filepath.Base(entry)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	return cases.Title(language.English, cases.NoLower).String(base)
}
