package scraper

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"gophora/discovery-service/internal/model"
)

const (
	// MaxDescriptionRunes caps stored descriptions.
	MaxDescriptionRunes = 2000
	// MaxRequirementsRunes caps extracted requirement text.
	MaxRequirementsRunes = 500
	requirementsFallback = 300
	maxSkills            = 10
)

// skillVocabulary is the closed set ExtractSkills recognises.
var skillVocabulary = []string{
	"python", "javascript", "java", "react", "node", "sql", "aws", "docker",
	"kubernetes", "git", "agile", "scrum", "rest", "api", "typescript", "vue",
	"angular", "mongodb", "postgresql", "redis", "machine learning", "ai",
	"data science", "devops", "ci/cd",
}

var skillPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(skillVocabulary))
	for i, s := range skillVocabulary {
		out[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(s) + `\b`)
	}
	return out
}()

var (
	seniorKeywords = []string{"senior", "lead", "principal", "architect", "5+ years", "7+ years"}
	entryKeywords  = []string{"junior", "entry", "graduate", "intern", "0-2 years", "no experience"}

	// entryLevelKeywords and tempKeywords drive the entry-level sweep.
	entryLevelKeywords = []string{
		"entry", "junior", "no experience", "trainee", "intern", "customer service",
		"data entry", "virtual assistant", "support", "beginner",
	}
	tempKeywords = []string{"hourly", "part-time", "part time", "temporary", "contract", "freelance", "gig"}

	requirementPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:requirements?|qualifications?|what we.*looking for)[\s\S]{0,500}`),
		regexp.MustCompile(`(?i)(?:you should have|you will need|must have)[\s\S]{0,300}`),
	}

	salaryPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$\d+(?:,\d{3})*(?:\.\d{2})?(?:\s*-\s*\$\d+(?:,\d{3})*(?:\.\d{2})?)?`),
		regexp.MustCompile(`\d+(?:,\d{3})*\s*(?:USD|EUR|GBP)`),
	}
)

// HTMLToText strips markup and collapses whitespace. Plain text passes
// through with only whitespace normalised.
func HTMLToText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return collapseSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return collapseSpace(s)
	}
	doc.Find("script, style").Remove()
	doc.Find("br, p, li, div, h1, h2, h3, h4").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	return collapseSpace(doc.Text())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// ExtractSkills returns up to ten vocabulary skills mentioned in text, in
// vocabulary order.
func ExtractSkills(text string) []string {
	found := make([]string, 0, maxSkills)
	for i, re := range skillPatterns {
		if re.MatchString(text) {
			found = append(found, skillVocabulary[i])
			if len(found) == maxSkills {
				break
			}
		}
	}
	return found
}

// DetermineExperienceLevel classifies text as Senior, Entry or Mid-level.
// Senior keywords win over entry keywords.
func DetermineExperienceLevel(text string) string {
	lower := strings.ToLower(text)
	if containsAny(lower, seniorKeywords) {
		return "Senior"
	}
	if containsAny(lower, entryKeywords) {
		return "Entry"
	}
	return "Mid-level"
}

// ExtractRequirements pulls the requirements section out of a description,
// falling back to its opening.
func ExtractRequirements(description string) string {
	for _, re := range requirementPatterns {
		if m := re.FindString(description); m != "" {
			return Truncate(strings.TrimSpace(m), MaxRequirementsRunes)
		}
	}
	return Truncate(strings.TrimSpace(description), requirementsFallback)
}

// ExtractSalary returns the first salary-looking fragment of text, or "".
func ExtractSalary(text string) string {
	for _, re := range salaryPatterns {
		if m := re.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// IsEntryLevel reports whether text looks like entry-level or temporary work.
func IsEntryLevel(text string) bool {
	lower := strings.ToLower(text)
	return containsAny(lower, entryLevelKeywords) || containsAny(lower, tempKeywords)
}

// IsTemporary reports whether text mentions hourly, contract or gig work.
func IsTemporary(text string) bool {
	return containsAny(strings.ToLower(text), tempKeywords)
}

// MatchesFilter reports whether filter occurs (case-insensitive) in the
// title, description or any tag. An empty filter matches everything.
func MatchesFilter(filter, title, description string, tags []string) bool {
	f := strings.ToLower(strings.TrimSpace(filter))
	if f == "" {
		return true
	}
	combined := strings.ToLower(title + " " + description + " " + strings.Join(tags, " "))
	return strings.Contains(combined, f)
}

func containsAny(lower string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// finalize applies the heuristics every adapter shares. Adapters fill the
// raw fields; finalize derives the rest.
func finalize(r *model.RawListing, now time.Time) {
	r.Title = collapseSpace(r.Title)
	r.Company = collapseSpace(r.Company)
	r.Location = collapseSpace(r.Location)
	r.CanonicalURL = strings.TrimSpace(r.CanonicalURL)

	desc := HTMLToText(r.Description)
	if r.Requirements == "" {
		r.Requirements = ExtractRequirements(desc)
	} else {
		r.Requirements = Truncate(HTMLToText(r.Requirements), MaxRequirementsRunes)
	}
	r.Description = Truncate(desc, MaxDescriptionRunes)

	text := r.Title + " " + desc + " " + strings.Join(r.Tags, " ")
	r.Skills = mergeSkills(ExtractSkills(text), r.Tags)
	if r.ExperienceLevel == "" {
		r.ExperienceLevel = DetermineExperienceLevel(r.Title + " " + desc)
	}
	if r.CompensationText == "" {
		r.CompensationText = ExtractSalary(desc)
	}
	if !r.IsImmediate {
		r.IsImmediate = IsTemporary(r.JobType + " " + r.Title)
	}
	if r.FetchedAt.IsZero() {
		r.FetchedAt = now
	}
}

// mergeSkills appends tags that name a vocabulary skill, keeping the cap.
func mergeSkills(skills, tags []string) []string {
	seen := make(map[string]bool, len(skills))
	for _, s := range skills {
		seen[s] = true
	}
	for _, t := range tags {
		lt := strings.ToLower(strings.TrimSpace(t))
		if len(skills) >= maxSkills {
			break
		}
		if seen[lt] {
			continue
		}
		for _, v := range skillVocabulary {
			if v == lt {
				skills = append(skills, lt)
				seen[lt] = true
				break
			}
		}
	}
	return skills
}

func parseTime(layouts []string, s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

var commonLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}
