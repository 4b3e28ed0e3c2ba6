// Package resume defines the typed resume document stored in the "resumes"
// collection and its conversion to and from collection records.
package resume

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"resumekit/api/internal/collection"
)

const (
	CollectionName = "resumes"

	TemplateClassic = "classic"
	TemplateModern  = "modern"
	TemplateMinimal = "minimal"
)

var ErrMissingTitle = errors.New("resume title is required")

// Templates lists every template name the exporter can render.
var Templates = []string{TemplateClassic, TemplateModern, TemplateMinimal}

type Personal struct {
	FullName string   `json:"fullName,omitempty"`
	Headline string   `json:"headline,omitempty"`
	Email    string   `json:"email,omitempty"`
	Phone    string   `json:"phone,omitempty"`
	Location string   `json:"location,omitempty"`
	Links    []string `json:"links,omitempty"`
}

type Experience struct {
	Role       string   `json:"role,omitempty"`
	Company    string   `json:"company,omitempty"`
	Start      string   `json:"start,omitempty"`
	End        string   `json:"end,omitempty"`
	Highlights []string `json:"highlights,omitempty"`
}

type Education struct {
	School string `json:"school,omitempty"`
	Degree string `json:"degree,omitempty"`
	Start  string `json:"start,omitempty"`
	End    string `json:"end,omitempty"`
}

type Project struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
}

// Draft is a resume that has not been stored yet. The importer produces one
// and the builder turns it into a stored Resume.
type Draft struct {
	Title          string       `json:"title,omitempty"`
	Template       string       `json:"template,omitempty"`
	Personal       Personal     `json:"personal"`
	Summary        string       `json:"summary,omitempty"`
	Experience     []Experience `json:"experience,omitempty"`
	Education      []Education  `json:"education,omitempty"`
	Skills         []string     `json:"skills,omitempty"`
	Projects       []Project    `json:"projects,omitempty"`
	Certifications []string     `json:"certifications,omitempty"`
}

// Empty reports whether the draft carries no content at all.
func (d Draft) Empty() bool {
	return d.Title == "" &&
		d.Personal.FullName == "" &&
		d.Personal.Email == "" &&
		d.Summary == "" &&
		len(d.Experience) == 0 &&
		len(d.Education) == 0 &&
		len(d.Skills) == 0 &&
		len(d.Projects) == 0
}

// Resume is a stored resume. Fields the typed model does not know about are
// kept in Extra and written back unchanged.
type Resume struct {
	ID        string `json:"id"`
	OwnerID   string `json:"ownerId,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
	Draft

	Extra map[string]any `json:"-"`
}

var knownKeys = map[string]bool{
	"id": true, "ownerId": true, "createdAt": true, "updatedAt": true,
	"title": true, "template": true, "personal": true, "summary": true,
	"experience": true, "education": true, "skills": true, "projects": true,
	"certifications": true,
}

// FromRecord decodes a collection record.
func FromRecord(rec collection.Record) (Resume, error) {
	var out Resume
	if err := rec.Decode(&out); err != nil {
		return Resume{}, fmt.Errorf("decode resume %s: %w", rec.ID(), err)
	}
	for key, value := range rec {
		if knownKeys[key] {
			continue
		}
		if out.Extra == nil {
			out.Extra = make(map[string]any)
		}
		out.Extra[key] = value
	}
	return out, nil
}

// Record encodes the resume, including Extra fields, as a collection record.
func (r Resume) Record() (collection.Record, error) {
	return collection.FromValue(r)
}

// Payload is the insert payload for a draft, without any identity field.
func (d Draft) Payload() (collection.Record, error) {
	if strings.TrimSpace(d.Title) == "" {
		return nil, ErrMissingTitle
	}
	if d.Template == "" {
		d.Template = TemplateClassic
	}
	return collection.FromValue(d)
}

// MarshalJSON keeps the flat record shape with Extra merged in.
func (r Resume) MarshalJSON() ([]byte, error) {
	type plain Resume
	base, err := json.Marshal(plain(r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}
	var merged map[string]any
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for key, value := range r.Extra {
		if _, taken := merged[key]; !taken {
			merged[key] = value
		}
	}
	return json.Marshal(merged)
}

// ValidTemplate reports whether name is a known template.
func ValidTemplate(name string) bool {
	for _, t := range Templates {
		if t == name {
			return true
		}
	}
	return false
}

// DisplayName is the best available human label for the resume.
func (r Resume) DisplayName() string {
	if r.Title != "" {
		return r.Title
	}
	if r.Personal.FullName != "" {
		return r.Personal.FullName
	}
	return "Untitled resume"
}
