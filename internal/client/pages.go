package client

import (
	"context"
	"fmt"
	"strings"

	"resumekit/api/internal/importer"
	"resumekit/api/internal/navigation"
	"resumekit/api/internal/plan"
	"resumekit/api/internal/resume"
)

func homePage(_ context.Context, a *App, _ navigation.State) error {
	fmt.Fprintln(a.out, "Build a resume in minutes.")
	fmt.Fprintln(a.out, "  new <title>      start from scratch")
	fmt.Fprintln(a.out, "  import <file>    start from an existing pdf, docx or txt")
	fmt.Fprintln(a.out, "  go dashboard     see your resumes")
	return nil
}

func dashboardPage(ctx context.Context, a *App, _ navigation.State) error {
	list, err := a.listResumes(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No resumes yet.")
		return nil
	}
	printResumes(a, list)
	if !plan.CanCreateResume(a.plan, len(list)) {
		fmt.Fprintf(a.out, "Free plan limit of %d resumes reached, see /pricing.\n", plan.FreeResumeLimit)
	}
	return nil
}

func builderPage(ctx context.Context, a *App, state navigation.State) error {
	id := state.Query.Get("id")
	if id == "" {
		fmt.Fprintln(a.out, "No resume selected. Use \"new <title>\" or \"go builder?id=<id>\".")
		return nil
	}
	res, err := a.loadResume(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Editing %s [%s]\n", res.DisplayName(), res.ID)
	fmt.Fprintf(a.out, "  template  %s\n", res.Template)
	fmt.Fprintf(a.out, "  fullName  %s\n", res.Personal.FullName)
	fmt.Fprintf(a.out, "  headline  %s\n", res.Personal.Headline)
	fmt.Fprintf(a.out, "  email     %s\n", res.Personal.Email)
	fmt.Fprintf(a.out, "  summary   %s\n", res.Summary)
	fmt.Fprintf(a.out, "  skills    %s\n", strings.Join(res.Skills, ", "))
	fmt.Fprintf(a.out, "Use \"set %s <field> <value>\", then \"go preview?id=%s\".\n", res.ID, res.ID)
	return nil
}

func previewPage(ctx context.Context, a *App, state navigation.State) error {
	id := state.Query.Get("id")
	if id == "" {
		fmt.Fprintln(a.out, "Nothing to preview.")
		return nil
	}
	res, err := a.loadResume(ctx, id)
	if err != nil {
		return err
	}
	if t := state.Query.Get("template"); t != "" && resume.ValidTemplate(t) {
		res.Template = t
	}
	writeResumeText(a, res)
	return nil
}

// importPage consumes a pending file, parses it and keeps the draft for
// use-draft. Revisiting the page without a new file shows nothing stale.
func importPage(_ context.Context, a *App, _ navigation.State) error {
	file, ok := a.transfer.TakeFile()
	if !ok {
		if _, hasDraft := a.transfer.Pending(); hasDraft {
			fmt.Fprintln(a.out, "A parsed draft is waiting. Run \"use-draft\" to create a resume from it.")
			return nil
		}
		fmt.Fprintln(a.out, "No file selected. Run \"import <file>\".")
		return nil
	}
	text, err := importer.ExtractText(file.MimeType, file.Data)
	if err != nil {
		return fmt.Errorf("import %s: %w", file.Name, err)
	}
	draft := importer.ParseDraft(text)
	if draft.Empty() {
		return fmt.Errorf("import %s: %w", file.Name, importer.ErrNoText)
	}
	a.transfer.SetDraft(draft)
	fmt.Fprintf(a.out, "Parsed %s\n", file.Name)
	writeResumeText(a, resume.Resume{Draft: draft})
	fmt.Fprintln(a.out, "Run \"use-draft\" to create a resume from it.")
	return nil
}

func pricingPage(_ context.Context, a *App, _ navigation.State) error {
	fmt.Fprintf(a.out, "Current plan: %s\n", a.plan)
	features := []struct {
		feature plan.Feature
		label   string
	}{
		{plan.FeatureEditResume, "edit resumes"},
		{plan.FeatureExportPDF, "pdf export"},
		{plan.FeatureHistory, "revision history"},
		{plan.FeatureExportDocx, "docx export"},
		{plan.FeatureImport, "import from file"},
		{plan.FeaturePremiumTemplate, "modern and minimal templates"},
	}
	for _, f := range features {
		fmt.Fprintf(a.out, "  %-30s free:%-4s pro:%s\n", f.label, mark(plan.Can(plan.Free, f.feature)), mark(plan.Can(plan.Pro, f.feature)))
	}
	fmt.Fprintf(a.out, "Free accounts keep up to %d resumes.\n", plan.FreeResumeLimit)
	return nil
}

func loginPage(_ context.Context, a *App, _ navigation.State) error {
	fmt.Fprintln(a.out, "Sign in through the web app, then set RESUMEKIT_API_TOKEN to the access token.")
	fmt.Fprintln(a.out, "Without a token resumes are kept on this machine only.")
	return nil
}

func notFoundPage(_ context.Context, a *App, state navigation.State) error {
	fmt.Fprintf(a.out, "Nothing at %s. Try \"go dashboard\".\n", state.Path)
	return nil
}

func printResumes(a *App, list []resume.Resume) {
	for _, res := range list {
		template := res.Template
		if template == "" {
			template = resume.TemplateClassic
		}
		fmt.Fprintf(a.out, "  %s  %-30s %s\n", res.ID, res.DisplayName(), template)
	}
}

func writeResumeText(a *App, res resume.Resume) {
	fmt.Fprintf(a.out, "%s\n", res.DisplayName())
	if res.Personal.FullName != "" {
		fmt.Fprintf(a.out, "%s  %s\n", res.Personal.FullName, res.Personal.Headline)
	}
	contact := nonEmpty(res.Personal.Email, res.Personal.Phone, res.Personal.Location)
	if len(contact) > 0 {
		fmt.Fprintln(a.out, strings.Join(contact, " | "))
	}
	if res.Summary != "" {
		fmt.Fprintf(a.out, "\n%s\n", res.Summary)
	}
	if len(res.Experience) > 0 {
		fmt.Fprintln(a.out, "\nExperience")
		for _, exp := range res.Experience {
			fmt.Fprintf(a.out, "  %s, %s %s\n", exp.Role, exp.Company, strings.Join(nonEmpty(exp.Start, exp.End), "-"))
			for _, h := range exp.Highlights {
				fmt.Fprintf(a.out, "    - %s\n", h)
			}
		}
	}
	if len(res.Education) > 0 {
		fmt.Fprintln(a.out, "\nEducation")
		for _, edu := range res.Education {
			fmt.Fprintf(a.out, "  %s\n", strings.Join(nonEmpty(edu.Degree, edu.School), ", "))
		}
	}
	if len(res.Skills) > 0 {
		fmt.Fprintf(a.out, "\nSkills: %s\n", strings.Join(res.Skills, ", "))
	}
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}
