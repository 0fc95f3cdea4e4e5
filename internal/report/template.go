// Package report renders console output for maintenance runs and inbox
// inspections.
package report

import (
	"embed"
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/maxo-smsgw/smsgw/internal/inbox"
	"github.com/maxo-smsgw/smsgw/internal/model"
)

//go:embed templates/*.tmpl
var embeddedTemplates embed.FS

var (
	boldStyle  = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#16a34a"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#dc2626"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
)

// Engine renders the embedded report templates
type Engine struct {
	templates map[string]*template.Template
}

func plain(strs ...string) string {
	out := ""
	for _, s := range strs {
		out += s
	}
	return out
}

// NewEngine parses the templates. With styled off no escape sequences are
// written, which suits logs and pipes.
func NewEngine(styled bool) (*Engine, error) {
	funcs := template.FuncMap{
		"bold":  plain,
		"ok":    plain,
		"fail":  plain,
		"muted": plain,
		"took": func(start, end time.Time) string {
			return end.Sub(start).Round(time.Millisecond).String()
		},
	}
	if styled {
		funcs["bold"] = boldStyle.Render
		funcs["ok"] = okStyle.Render
		funcs["fail"] = failStyle.Render
		funcs["muted"] = mutedStyle.Render
	}

	e := &Engine{templates: make(map[string]*template.Template)}
	for _, name := range []string{"summary", "status", "inspect"} {
		content, err := embeddedTemplates.ReadFile("templates/" + name + ".tmpl")
		if err != nil {
			return nil, fmt.Errorf("failed to read embedded template %s: %w", name, err)
		}
		tmpl, err := template.New(name).Funcs(funcs).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		e.templates[name] = tmpl
	}
	return e, nil
}

func (e *Engine) render(w io.Writer, name string, data interface{}) error {
	tmpl, ok := e.templates[name]
	if !ok {
		return fmt.Errorf("unknown template: %s", name)
	}
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render %s report: %w", name, err)
	}
	return nil
}

// Summary writes the counters of one maintenance run.
func (e *Engine) Summary(w io.Writer, run *model.Run) error {
	return e.render(w, "summary", run)
}

// Status lists recorded runs, newest first.
func (e *Engine) Status(w io.Writer, runs []model.Run) error {
	return e.render(w, "status", runs)
}

// Inspect lists inspected gateway mail.
func (e *Engine) Inspect(w io.Writer, inspections []inbox.Inspection) error {
	return e.render(w, "inspect", inspections)
}
