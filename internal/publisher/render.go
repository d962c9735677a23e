package publisher

import (
	"embed"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"strconv"

	"weatherstation-node/internal/types"
)

//go:embed templates/*.html
var viewsFS embed.FS

const pageTitle = "ESP32 Weather Station"

var statusTmpl *template.Template

var funcs = template.FuncMap{
	"fixed2": func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) },
}

func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(sub, "*.html")
	if err != nil {
		return err
	}
	statusTmpl = tmpl
	return nil
}

// LoadTemplates parses the embedded status page. Call during startup before
// serving requests.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

type statusPage struct {
	Title   string
	Reading types.Reading
}

// RenderStatusPage writes the HTML status page for r.
func RenderStatusPage(w io.Writer, r types.Reading) error {
	if statusTmpl == nil {
		return errors.New("status template not loaded: call publisher.LoadTemplates during startup")
	}
	return statusTmpl.ExecuteTemplate(w, "status.html", statusPage{Title: pageTitle, Reading: r})
}
