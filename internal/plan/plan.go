package plan

import "resumekit/api/internal/resume"

type Plan string
type Feature string

const (
	Free Plan = "free"
	Pro  Plan = "pro"
)

const (
	FeatureEditResume      Feature = "edit_resume"
	FeatureExportPDF       Feature = "export_pdf"
	FeatureExportDocx      Feature = "export_docx"
	FeaturePremiumTemplate Feature = "premium_template"
	FeatureImport          Feature = "import"
	FeatureHistory         Feature = "history"
)

// FreeResumeLimit caps how many resumes a free account may keep.
const FreeResumeLimit = 3

func Can(p Plan, feature Feature) bool {
	switch p {
	case Pro:
		return true
	case Free:
		return feature == FeatureEditResume || feature == FeatureExportPDF || feature == FeatureHistory
	default:
		return false
	}
}

func Normalize(p string) Plan {
	switch Plan(p) {
	case Free, Pro:
		return Plan(p)
	default:
		return Free
	}
}

// TemplateFeature is the feature a template requires. Classic is free.
func TemplateFeature(template string) Feature {
	if template == "" || template == resume.TemplateClassic {
		return FeatureEditResume
	}
	return FeaturePremiumTemplate
}

// CanCreateResume reports whether an account on p that already owns count
// resumes may create another one.
func CanCreateResume(p Plan, count int) bool {
	return p == Pro || count < FreeResumeLimit
}
