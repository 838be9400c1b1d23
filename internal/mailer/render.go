package mailer

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"jaytaylor.com/html2text"
)

//go:embed templates/*.html
var builtinFS embed.FS

// builtinSubjects maps each bundled template to its subject line. Subjects go
// through text/template so they can reference the same render data.
var builtinSubjects = map[string]string{
	"welcome":              "Welcome to {{.OrganizationName}}",
	"appointment_reminder": "Appointment reminder for {{.PatientName}}",
	"care_plan_update":     "Your care plan has been updated",
	"verify_email":         "Please verify your email address",
}

// Rendered is the output of a template render, ready for the transport.
type Rendered struct {
	Subject  string
	HTMLBody string
	TextBody string
}

// Renderer turns template sources plus per-send data into a Rendered message.
// Built-in templates are parsed once at startup; catalog templates are parsed
// per send since staff can edit them at any time.
type Renderer struct {
	builtin *htmltemplate.Template
}

// NewRenderer parses the bundled templates. It fails only on a packaging
// error, so callers treat an error here as fatal.
func NewRenderer() (*Renderer, error) {
	t, err := htmltemplate.ParseFS(builtinFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse builtin templates: %w", err)
	}
	return &Renderer{builtin: t}, nil
}

// HasBuiltin reports whether a bundled template exists under the given
// normalized name.
func (r *Renderer) HasBuiltin(name string) bool {
	return r.builtin.Lookup(name+".html") != nil
}

// RenderBuiltin renders a bundled template. The plain-text body is always
// derived from the stripped HTML.
func (r *Renderer) RenderBuiltin(name string, data map[string]any) (Rendered, error) {
	tmpl := r.builtin.Lookup(name + ".html")
	if tmpl == nil {
		return Rendered{}, fmt.Errorf("no builtin template %q", name)
	}
	var html bytes.Buffer
	if err := tmpl.Execute(&html, data); err != nil {
		return Rendered{}, fmt.Errorf("render builtin %q: %w", name, err)
	}
	subject, err := renderSubject(builtinSubjects[name], data)
	if err != nil {
		return Rendered{}, fmt.Errorf("render subject for %q: %w", name, err)
	}
	text, err := html2text.FromString(html.String(), html2text.Options{TextOnly: true})
	if err != nil {
		return Rendered{}, fmt.Errorf("derive text body for %q: %w", name, err)
	}
	return Rendered{Subject: subject, HTMLBody: html.String(), TextBody: text}, nil
}

// RenderCatalog renders a staff-authored template from the catalog. An
// explicit text body wins; otherwise the text part is the stripped HTML.
func (r *Renderer) RenderCatalog(name, subjectSrc, htmlSrc, textSrc string, data map[string]any) (Rendered, error) {
	tmpl, err := htmltemplate.New(name).Parse(htmlSrc)
	if err != nil {
		return Rendered{}, fmt.Errorf("parse catalog template %q: %w", name, err)
	}
	var html bytes.Buffer
	if err := tmpl.Execute(&html, data); err != nil {
		return Rendered{}, fmt.Errorf("render catalog template %q: %w", name, err)
	}

	subject, err := renderSubject(subjectSrc, data)
	if err != nil {
		return Rendered{}, fmt.Errorf("render subject for %q: %w", name, err)
	}

	var text string
	if textSrc != "" {
		tt, err := texttemplate.New(name + ".txt").Parse(textSrc)
		if err != nil {
			return Rendered{}, fmt.Errorf("parse text body for %q: %w", name, err)
		}
		var buf bytes.Buffer
		if err := tt.Execute(&buf, data); err != nil {
			return Rendered{}, fmt.Errorf("render text body for %q: %w", name, err)
		}
		text = buf.String()
	} else {
		text, err = html2text.FromString(html.String(), html2text.Options{TextOnly: true})
		if err != nil {
			return Rendered{}, fmt.Errorf("derive text body for %q: %w", name, err)
		}
	}
	return Rendered{Subject: subject, HTMLBody: html.String(), TextBody: text}, nil
}

// html2textBody strips an HTML body down to readable plain text.
func html2textBody(html string) (string, error) {
	return html2text.FromString(html, html2text.Options{TextOnly: true})
}

func renderSubject(src string, data map[string]any) (string, error) {
	if src == "" {
		return "", nil
	}
	t, err := texttemplate.New("subject").Parse(src)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
