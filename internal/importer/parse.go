package importer

import (
	"regexp"
	"strings"

	"resumekit/api/internal/resume"
)

type section int

const (
	sectionHeader section = iota
	sectionSummary
	sectionExperience
	sectionEducation
	sectionSkills
	sectionProjects
	sectionCertifications
	sectionOther
)

var headingNames = []struct {
	section section
	names   []string
}{
	{sectionSummary, []string{"summary", "profile", "about", "about me", "objective", "professional summary"}},
	{sectionExperience, []string{"experience", "work experience", "professional experience", "employment", "employment history", "work history"}},
	{sectionEducation, []string{"education"}},
	{sectionSkills, []string{"skills", "technical skills", "core skills"}},
	{sectionProjects, []string{"projects", "personal projects"}},
	{sectionCertifications, []string{"certifications", "certificates", "licenses & certifications"}},
	{sectionOther, []string{"interests", "languages", "references"}},
}

var headings = func() map[string]section {
	out := make(map[string]section)
	for _, h := range headingNames {
		for _, name := range h.names {
			out[name] = h.section
		}
	}
	return out
}()

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().\-]{7,}\d`)
	linkPattern  = regexp.MustCompile(`(?i)\b(?:https?://\S+|(?:www\.)?(?:linkedin\.com|github\.com|gitlab\.com)/\S+)`)
	datePattern  = regexp.MustCompile(`(?i)((?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+)?(\d{4})\s*(?:-|–|—|to)\s*((?:(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+)?\d{4}|present|current|now)`)
	yearPattern  = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	schoolWords  = regexp.MustCompile(`(?i)university|college|school|institute|academy|polytechnic`)
	fieldSplit   = regexp.MustCompile(`\s*(?:,|\||–|—| - )\s*`)
	bulletPrefix = "-*•·▪◦‣"
)

// ParseDraft builds a draft from extracted resume text. It recognises common
// section headings and contact details; anything it cannot place is dropped.
func ParseDraft(text string) resume.Draft {
	var draft resume.Draft
	current := sectionHeader
	var headerLines, summaryLines []string
	var exp *resume.Experience
	var proj *resume.Project

	flushExperience := func() {
		if exp != nil && (exp.Role != "" || exp.Company != "" || len(exp.Highlights) > 0) {
			draft.Experience = append(draft.Experience, *exp)
		}
		exp = nil
	}
	flushProject := func() {
		if proj != nil && proj.Name != "" {
			draft.Projects = append(draft.Projects, *proj)
		}
		proj = nil
	}

	for _, raw := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if next, ok := headingOf(line); ok {
			flushExperience()
			flushProject()
			current = next
			continue
		}

		if draft.Personal.Email == "" {
			draft.Personal.Email = emailPattern.FindString(line)
		}
		if current == sectionHeader {
			for _, link := range linkPattern.FindAllString(line, -1) {
				draft.Personal.Links = appendUnique(draft.Personal.Links, strings.TrimRight(link, ".,;)"))
			}
			if phone := phonePattern.FindString(line); draft.Personal.Phone == "" && phone != "" && !datePattern.MatchString(line) {
				draft.Personal.Phone = strings.TrimSpace(phone)
			}
		}

		bullet, isBullet := stripBullet(line)
		switch current {
		case sectionHeader:
			headerLines = append(headerLines, line)
		case sectionSummary:
			summaryLines = append(summaryLines, bullet)
		case sectionExperience:
			if isBullet {
				if exp == nil {
					exp = &resume.Experience{}
				}
				exp.Highlights = append(exp.Highlights, bullet)
				continue
			}
			if exp != nil && exp.Company == "" && len(exp.Highlights) == 0 && !datePattern.MatchString(line) {
				// "Role" on one line, "Company" on the next.
				exp.Company = line
				continue
			}
			if exp != nil && len(exp.Highlights) == 0 && exp.Start == "" && datePattern.MatchString(line) && isOnlyDates(line) {
				exp.Start, exp.End = dateRange(line)
				continue
			}
			flushExperience()
			exp = parseExperienceLine(line)
		case sectionEducation:
			if isBullet && len(draft.Education) > 0 {
				continue
			}
			draft.Education = append(draft.Education, parseEducationLine(bullet))
		case sectionSkills:
			for _, skill := range splitList(bullet) {
				draft.Skills = appendUnique(draft.Skills, skill)
			}
		case sectionProjects:
			if isBullet && proj != nil {
				proj.Description = joinSentence(proj.Description, bullet)
				continue
			}
			flushProject()
			proj = parseProjectLine(bullet)
		case sectionCertifications:
			draft.Certifications = appendUnique(draft.Certifications, bullet)
		}
	}
	flushExperience()
	flushProject()

	applyHeader(&draft, headerLines)
	draft.Summary = strings.Join(summaryLines, " ")
	switch {
	case draft.Personal.FullName != "":
		draft.Title = draft.Personal.FullName
	default:
		draft.Title = "Imported resume"
	}
	return draft
}

func headingOf(line string) (section, bool) {
	if len(line) > 40 {
		return 0, false
	}
	key := strings.ToLower(strings.TrimRight(strings.TrimSpace(line), ":"))
	key = strings.Join(strings.Fields(key), " ")
	s, ok := headings[key]
	return s, ok
}

func stripBullet(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, bulletPrefix)
	if trimmed == line {
		return line, false
	}
	return strings.TrimSpace(trimmed), true
}

// applyHeader takes the first line that is not contact data as the name and
// the line after it, when short, as the headline.
func applyHeader(draft *resume.Draft, lines []string) {
	var rest []string
	for _, line := range lines {
		if emailPattern.MatchString(line) || linkPattern.MatchString(line) {
			continue
		}
		if phone := phonePattern.FindString(line); phone != "" && len(strings.TrimSpace(strings.Replace(line, phone, "", 1))) < 3 {
			continue
		}
		rest = append(rest, line)
	}
	if len(rest) > 0 {
		draft.Personal.FullName = rest[0]
	}
	if len(rest) > 1 && len(rest[1]) <= 80 {
		headline := rest[1]
		for _, sep := range []string{" | ", " · ", " • "} {
			if parts := strings.Split(headline, sep); len(parts) > 1 {
				headline = strings.TrimSpace(parts[0])
				if draft.Personal.Location == "" {
					draft.Personal.Location = strings.TrimSpace(parts[len(parts)-1])
				}
				break
			}
		}
		draft.Personal.Headline = headline
	}
}

func parseExperienceLine(line string) *resume.Experience {
	exp := &resume.Experience{}
	if loc := datePattern.FindStringIndex(line); loc != nil {
		exp.Start, exp.End = dateRange(line[loc[0]:loc[1]])
		line = strings.TrimSpace(line[:loc[0]] + line[loc[1]:])
	}
	line = strings.Trim(line, " ,|-–—()")
	for _, sep := range []string{" at ", " @ ", " | ", " – ", " — ", " - ", ", "} {
		if i := strings.Index(line, sep); i > 0 {
			exp.Role = strings.TrimSpace(line[:i])
			exp.Company = strings.Trim(strings.TrimSpace(line[i+len(sep):]), " ,|-–—")
			return exp
		}
	}
	exp.Role = line
	return exp
}

func parseEducationLine(line string) resume.Education {
	var edu resume.Education
	if loc := datePattern.FindStringIndex(line); loc != nil {
		edu.Start, edu.End = dateRange(line[loc[0]:loc[1]])
		line = line[:loc[0]] + line[loc[1]:]
	} else if years := yearPattern.FindAllString(line, -1); len(years) > 0 {
		edu.End = years[len(years)-1]
		line = yearPattern.ReplaceAllString(line, "")
	}
	var parts []string
	for _, part := range fieldSplit.Split(line, -1) {
		if part = strings.Trim(part, " ()"); part != "" {
			parts = append(parts, part)
		}
	}
	for _, part := range parts {
		if edu.School == "" && schoolWords.MatchString(part) {
			edu.School = part
			continue
		}
		if edu.Degree == "" {
			edu.Degree = part
		}
	}
	if edu.School == "" && len(parts) > 0 {
		edu.School, edu.Degree = parts[0], ""
		if len(parts) > 1 {
			edu.Degree = parts[1]
		}
	}
	return edu
}

func parseProjectLine(line string) *resume.Project {
	proj := &resume.Project{}
	if url := linkPattern.FindString(line); url != "" {
		proj.URL = strings.TrimRight(url, ".,;)")
		line = strings.TrimSpace(strings.Replace(line, url, "", 1))
	}
	for _, sep := range []string{": ", " - ", " – ", " — "} {
		if i := strings.Index(line, sep); i > 0 {
			proj.Name = strings.TrimSpace(line[:i])
			proj.Description = strings.TrimSpace(line[i+len(sep):])
			return proj
		}
	}
	proj.Name = strings.Trim(line, " ()")
	return proj
}

func dateRange(text string) (string, string) {
	m := datePattern.FindStringSubmatch(text)
	if m == nil {
		return "", ""
	}
	start := strings.TrimSpace(m[1] + m[2])
	end := strings.TrimSpace(m[3])
	switch strings.ToLower(end) {
	case "present", "current", "now":
		end = ""
	}
	return start, end
}

func isOnlyDates(line string) bool {
	return strings.TrimSpace(datePattern.ReplaceAllString(line, "")) == ""
}

func splitList(line string) []string {
	fields := strings.FieldsFunc(line, func(r rune) bool {
		return r == ',' || r == ';' || r == '|' || r == '•' || r == '·'
	})
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(field)
		if i := strings.Index(field, ":"); i >= 0 && i < len(field)-1 {
			// "Languages: Go" keeps only the skill.
			field = strings.TrimSpace(field[i+1:])
		}
		if field != "" {
			out = append(out, field)
		}
	}
	return out
}

func appendUnique(list []string, value string) []string {
	if value == "" {
		return list
	}
	for _, existing := range list {
		if strings.EqualFold(existing, value) {
			return list
		}
	}
	return append(list, value)
}

func joinSentence(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}
