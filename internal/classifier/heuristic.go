package classifier

import (
	"context"
	"strings"

	"gophora/discovery-service/internal/model"
	"gophora/discovery-service/internal/scraper"
)

const (
	heuristicBaseTrust  = 75
	redFlagPenalty      = 35
	missingFieldPenalty = 10
	shortDescription    = 80
)

var categoryKeywords = []struct {
	category model.Category
	words    []string
}{
	{model.CategoryContribution, []string{"volunteer", "non-profit", "nonprofit", "charity", "open source contributor"}},
	{model.CategoryEducation, []string{"course", "bootcamp", "tutor", "teaching assistant", "scholarship", "apprenticeship"}},
	{model.CategoryHobbies, []string{"hobby", "community project", "meetup", "club"}},
}

// Heuristic is a deterministic rule classifier used when no model API key
// is configured. It is intentionally conservative: it never approves a
// listing that carries a red flag phrase.
type Heuristic struct {
	redFlags []string
}

// NewHeuristic returns a Heuristic using the default red flag list.
func NewHeuristic() *Heuristic {
	return &Heuristic{redFlags: scraper.DefaultRedFlags}
}

func (h *Heuristic) Classify(_ context.Context, raw model.RawListing) (model.ClassificationResult, error) {
	text := raw.Title + " " + raw.Description
	flags := scraper.MatchRedFlags(raw.Title, raw.Company, raw.Description, h.redFlags)

	legit := len(flags) == 0
	trust := heuristicBaseTrust - redFlagPenalty*len(flags)
	if strings.TrimSpace(raw.Company) == "" {
		trust -= missingFieldPenalty
		flags = append(flags, "missing company")
	}
	if len([]rune(strings.TrimSpace(raw.Description))) < shortDescription {
		trust -= missingFieldPenalty
		flags = append(flags, "vague description")
	}

	experience := raw.ExperienceLevel
	if experience == "" {
		experience = scraper.DetermineExperienceLevel(text)
	}
	immediate := raw.IsImmediate || scraper.IsTemporary(raw.JobType+" "+raw.Title)

	res := model.ClassificationResult{
		IsLegitimate:    legit,
		TrustScore:      trust,
		Confidence:      0.5,
		RedFlags:        flags,
		Category:        categorize(text),
		SkillLevel:      skillLevelFor(experience, immediate),
		IsImmediate:     immediate,
		RequiredSkills:  raw.Skills,
		ExperienceLevel: experience,
	}
	if raw.CompensationText != "" {
		s := raw.CompensationText
		res.SalaryRange = &s
	}
	if raw.JobType != "" {
		res.TimeCommitment = raw.JobType
	}
	res.Normalize()
	return res, nil
}

func categorize(text string) model.Category {
	lower := strings.ToLower(text)
	for _, c := range categoryKeywords {
		for _, w := range c.words {
			if strings.Contains(lower, w) {
				return c.category
			}
		}
	}
	return model.CategoryWork
}

func skillLevelFor(experience string, immediate bool) model.SkillLevel {
	switch experience {
	case "Senior":
		return model.SkillHigh
	case "Entry":
		if immediate {
			return model.SkillZero
		}
		return model.SkillLow
	}
	return model.SkillMedium
}
