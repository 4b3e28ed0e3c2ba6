package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"resumekit/api/internal/resume"
)

//go:embed templates/*.html
var templateFS embed.FS

var resumeTemplates = template.Must(
	template.New("resume").Funcs(template.FuncMap{
		"lower": strings.ToLower,
		"join":  strings.Join,
		"dates": dateRange,
	}).ParseFS(templateFS, "templates/*.html"),
)

// TemplateData holds data for resume template rendering
type TemplateData struct {
	Template string
	Name     string
	Resume   resume.Resume
}

// RenderHTML renders the resume with the template it names. An empty
// template name means classic.
func RenderHTML(res resume.Resume) (string, error) {
	name := res.Template
	if name == "" {
		name = resume.TemplateClassic
	}
	if !resume.ValidTemplate(name) {
		return "", fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	data := TemplateData{
		Template: name,
		Name:     res.DisplayName(),
		Resume:   res,
	}
	var buf bytes.Buffer
	if err := resumeTemplates.ExecuteTemplate(&buf, name+".html", data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func dateRange(start, end string) string {
	switch {
	case start == "" && end == "":
		return ""
	case end == "":
		return start + " - Present"
	case start == "":
		return end
	default:
		return start + " - " + end
	}
}
