package client

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"resumekit/api/internal/collection"
	"resumekit/api/internal/export"
	"resumekit/api/internal/importer"
	"resumekit/api/internal/navigation"
	"resumekit/api/internal/plan"
	"resumekit/api/internal/resume"
	"resumekit/api/internal/session"
)

type command struct {
	usage   string
	minArgs int
	run     func(ctx context.Context, a *App, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"go":        {usage: "go <target>", minArgs: 1, run: cmdGo},
		"replace":   {usage: "replace <target>", minArgs: 1, run: cmdReplace},
		"back":      {usage: "back", run: cmdBack},
		"where":     {usage: "where", run: cmdWhere},
		"list":      {usage: "list", run: cmdList},
		"new":       {usage: "new <title>", minArgs: 1, run: cmdNew},
		"set":       {usage: "set <id> <field> <value>", minArgs: 3, run: cmdSet},
		"rm":        {usage: "rm <id>", minArgs: 1, run: cmdRemove},
		"profile":   {usage: "profile <email> <name>", minArgs: 2, run: cmdProfile},
		"import":    {usage: "import <file>", minArgs: 1, run: cmdImport},
		"use-draft": {usage: "use-draft", run: cmdUseDraft},
		"export":    {usage: "export <id> <out.pdf|out.docx|out.html>", minArgs: 2, run: cmdExport},
		"metrics":   {usage: "metrics", run: cmdMetrics},
		"help":      {usage: "help", run: cmdHelp},
		"quit":      {usage: "quit", run: func(context.Context, *App, []string) error { return ErrQuit }},
	}
}

func cmdGo(_ context.Context, a *App, args []string) error {
	a.nav.Navigate(args[0], navigation.ModePush)
	return nil
}

func cmdReplace(_ context.Context, a *App, args []string) error {
	a.nav.Navigate(args[0], navigation.ModeReplace)
	return nil
}

func cmdBack(_ context.Context, a *App, _ []string) error {
	a.nav.GoBack()
	return nil
}

func cmdWhere(_ context.Context, a *App, _ []string) error {
	state := a.nav.State()
	fmt.Fprintf(a.out, "%s route=%s page=%s\n", state.Href(), state.Route(), a.CurrentPage())
	return nil
}

func cmdList(ctx context.Context, a *App, _ []string) error {
	list, err := a.listResumes(ctx)
	if err != nil {
		return err
	}
	printResumes(a, list)
	return nil
}

func cmdNew(ctx context.Context, a *App, args []string) error {
	created, err := a.createResume(ctx, resume.Draft{Title: strings.Join(args, " ")})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created %s\n", created.ID())
	a.nav.Navigate("/builder?id="+created.ID(), navigation.ModePush)
	return nil
}

func cmdSet(ctx context.Context, a *App, args []string) error {
	id, field, value := args[0], args[1], strings.Join(args[2:], " ")
	if collection.IsIdentityKey(field) {
		return fmt.Errorf("%s cannot be changed", field)
	}
	var update collection.Record
	switch field {
	case "skills", "certifications":
		update = collection.Record{field: splitCSV(value)}
	case "fullName", "headline", "email", "phone", "location":
		current, ok, err := a.resumes.FindOne(ctx, collection.ByID(id))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no resume %s", id)
		}
		personal, _ := current["personal"].(map[string]any)
		merged := make(map[string]any, len(personal)+1)
		for k, v := range personal {
			merged[k] = v
		}
		merged[field] = value
		update = collection.Record{"personal": merged}
	default:
		update = collection.Record{field: value}
	}
	ok, err := a.resumes.UpdateOne(ctx, collection.ByID(id), update)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no resume %s", id)
	}
	fmt.Fprintf(a.out, "updated %s.%s\n", id, field)
	return nil
}

func cmdRemove(ctx context.Context, a *App, args []string) error {
	ok, err := a.resumes.DeleteOne(ctx, collection.ByID(args[0]))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no resume %s", args[0])
	}
	fmt.Fprintf(a.out, "deleted %s\n", args[0])
	return nil
}

// cmdProfile creates or updates the single users record for this email.
func cmdProfile(ctx context.Context, a *App, args []string) error {
	email := strings.ToLower(args[0])
	name := strings.Join(args[1:], " ")
	existing, ok, err := a.users.FindOne(ctx, collection.Filter{"email": email})
	if err != nil {
		return err
	}
	if ok {
		if _, err := a.users.UpdateOne(ctx, collection.ByID(existing.ID()), collection.Record{"name": name}); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "profile %s updated\n", existing.ID())
		return nil
	}
	created, err := a.users.InsertOne(ctx, collection.Record{"email": email, "name": name})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "profile %s created\n", created.ID())
	return nil
}

func cmdImport(_ context.Context, a *App, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > importer.MaxUploadBytes {
		return importer.ErrTooLarge
	}
	name := filepath.Base(path)
	a.transfer.SetFile(session.PendingFile{
		Name:     name,
		MimeType: importer.DetectMimeType(name, ""),
		Data:     data,
	})
	a.nav.Navigate("/import", navigation.ModePush)
	return nil
}

func cmdUseDraft(ctx context.Context, a *App, _ []string) error {
	draft, ok := a.transfer.TakeDraft()
	if !ok {
		return fmt.Errorf("no pending draft, run \"import <file>\" first")
	}
	if strings.TrimSpace(draft.Title) == "" {
		draft.Title = resume.Resume{Draft: draft}.DisplayName()
	}
	created, err := a.createResume(ctx, draft)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created %s from draft\n", created.ID())
	a.nav.Navigate("/builder?id="+created.ID(), navigation.ModePush)
	return nil
}

func cmdExport(ctx context.Context, a *App, args []string) error {
	if a.exporter == nil {
		return export.ErrPDFDependencyMissing
	}
	id, out := args[0], args[1]
	format, err := export.ParseFormat(strings.TrimPrefix(strings.ToLower(filepath.Ext(out)), "."))
	if err != nil {
		return err
	}
	if format == export.FormatDOCX && !plan.Can(a.plan, plan.FeatureExportDocx) {
		return fmt.Errorf("docx export needs the pro plan, see /pricing")
	}
	res, err := a.loadResume(ctx, id)
	if err != nil {
		return err
	}
	result, err := a.exporter.Export(ctx, res, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, result.Data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(a.out, "wrote %s (%d bytes)\n", out, len(result.Data))
	return nil
}

// cmdMetrics prints counters and gauges as name{labels} value.
func cmdMetrics(_ context.Context, a *App, _ []string) error {
	if a.metrics == nil {
		fmt.Fprintln(a.out, "metrics are not enabled")
		return nil
	}
	families, err := a.metrics.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var value float64
			switch {
			case m.GetCounter() != nil:
				value = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				value = m.GetGauge().GetValue()
			default:
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", lp.GetName(), lp.GetValue()))
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			fmt.Fprintf(a.out, "%s %g\n", name, value)
		}
	}
	return nil
}

func cmdHelp(_ context.Context, a *App, _ []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(a.out, "  %s\n", commands[name].usage)
	}
	return nil
}

func (a *App) createResume(ctx context.Context, draft resume.Draft) (collection.Record, error) {
	payload, err := draft.Payload()
	if err != nil {
		return nil, err
	}
	payload["createdAt"] = time.Now().UTC().Format(time.RFC3339Nano)
	return a.resumes.InsertOne(ctx, payload)
}

func (a *App) loadResume(ctx context.Context, id string) (resume.Resume, error) {
	rec, ok, err := a.resumes.FindOne(ctx, collection.ByID(id))
	if err != nil {
		return resume.Resume{}, err
	}
	if !ok {
		return resume.Resume{}, fmt.Errorf("no resume %s", id)
	}
	return resume.FromRecord(rec)
}

// listResumes returns resumes newest first. Backends differ in their natural
// order, so the listing is always sorted here.
func (a *App) listResumes(ctx context.Context) ([]resume.Resume, error) {
	records, err := a.resumes.Find(ctx, collection.Filter{})
	if err != nil {
		return nil, err
	}
	out := make([]resume.Resume, 0, len(records))
	for _, rec := range records {
		res, err := resume.FromRecord(rec)
		if err != nil {
			a.logger.Printf("client: skipping resume: %v", err)
			continue
		}
		out = append(out, res)
	}
	created := make(map[string]time.Time, len(out))
	for _, res := range out {
		created[res.ID] = parseCreatedAt(res.CreatedAt)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := created[out[i].ID], created[out[j].ID]
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// parseCreatedAt reads an RFC 3339 timestamp with or without fractional
// seconds. Unparseable values sort last.
func parseCreatedAt(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}
	}
	return t
}

func splitCSV(value string) []any {
	parts := strings.Split(value, ",")
	out := make([]any, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
