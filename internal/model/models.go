// Package model defines shared data structures for the discovery service.
package model

import "time"

// Group is the logical partition a listing is stored under.
type Group string

const (
	GroupSkillBased Group = "skill_based"
	GroupImmediate  Group = "immediate"
)

// RawListing is a normalised offer fetched from an external source, before
// classification. Every adapter produces exactly this shape.
type RawListing struct {
	Title            string     `json:"title"`
	Company          string     `json:"company"`
	Description      string     `json:"description"`
	Requirements     string     `json:"requirements,omitempty"`
	Location         string     `json:"location"`
	JobType          string     `json:"jobType,omitempty"`
	CompensationText string     `json:"compensation,omitempty"`
	CanonicalURL     string     `json:"canonicalUrl"`
	SourceName       string     `json:"source"`
	Tags             []string   `json:"tags,omitempty"`
	Skills           []string   `json:"skills,omitempty"`
	ExperienceLevel  string     `json:"experienceLevel,omitempty"`
	Group            Group      `json:"group"`
	IsImmediate      bool       `json:"isImmediate"`
	PostedAt         *time.Time `json:"postedAt,omitempty"`
	FetchedAt        time.Time  `json:"fetchedAt"`
}

// Deduplicable reports whether the record carries a canonical URL. Records
// without one are never persisted.
func (r RawListing) Deduplicable() bool { return r.CanonicalURL != "" }

// Listing is a stored opportunity: the raw record plus its classification,
// embedding and lifecycle fields.
type Listing struct {
	RawListing

	ID               string     `json:"id"`
	TrustScore       int        `json:"trustScore"`
	IsLegitimate     bool       `json:"isLegitimate"`
	Confidence       float64    `json:"confidence"`
	RedFlags         []string   `json:"redFlags"`
	CredibilityNotes string     `json:"credibilityNotes,omitempty"`
	Category         Category   `json:"category"`
	Subcategory      string     `json:"subcategory,omitempty"`
	SkillLevel       SkillLevel `json:"skillLevel"`
	PaymentTimeframe *string    `json:"paymentTimeframe,omitempty"`
	RequiredSkills   []string   `json:"requiredSkills"`
	SalaryRange      *string    `json:"salaryRange,omitempty"`
	TimeCommitment   string     `json:"timeCommitment,omitempty"`
	Deadline         *time.Time `json:"deadline,omitempty"`
	Embedding        []float32  `json:"-"`
	Status           Status     `json:"status"`
	Approved         bool       `json:"approved"`
	StoredAt         time.Time  `json:"storedAt"`
	InactiveAt       *time.Time `json:"inactiveAt,omitempty"`
	Views            int64      `json:"views"`
	Applications     int64      `json:"applications"`
}

// NewListing combines a raw record with its classification and embedding.
// Approval is derived here and nowhere else. Lifecycle fields (ID, StoredAt,
// Status, counters) are owned by the Store.
func NewListing(raw RawListing, c ClassificationResult, embedding []float32) Listing {
	l := Listing{
		RawListing:       raw,
		TrustScore:       c.TrustScore,
		IsLegitimate:     c.IsLegitimate,
		Confidence:       c.Confidence,
		RedFlags:         c.RedFlags,
		CredibilityNotes: c.CredibilityNotes,
		Category:         c.Category,
		Subcategory:      c.Subcategory,
		SkillLevel:       c.SkillLevel,
		PaymentTimeframe: c.PaymentTimeframe,
		RequiredSkills:   c.RequiredSkills,
		SalaryRange:      c.SalaryRange,
		TimeCommitment:   c.TimeCommitment,
		Deadline:         c.Deadline,
		Embedding:        embedding,
		Approved:         Approved(c.IsLegitimate, c.TrustScore),
	}
	if c.ExperienceLevel != "" {
		l.ExperienceLevel = c.ExperienceLevel
	}
	if len(l.RequiredSkills) == 0 {
		l.RequiredSkills = raw.Skills
	}
	if l.SalaryRange == nil && raw.CompensationText != "" {
		s := raw.CompensationText
		l.SalaryRange = &s
	}
	if c.IsImmediate {
		l.IsImmediate = true
	}
	if l.Group == "" {
		l.Group = GroupFor(l.IsImmediate, l.SkillLevel)
	}
	return l
}

// GroupFor decides the partition: immediate, low-skill work goes to the
// immediate group, everything else is skill-based.
func GroupFor(isImmediate bool, level SkillLevel) Group {
	if isImmediate && (level == SkillZero || level == SkillLow) {
		return GroupImmediate
	}
	return GroupSkillBased
}

// UserProfile is the read-only input to recommendations.
type UserProfile struct {
	UserID    string   `json:"userId"`
	Skills    []string `json:"skills"`
	Interests []string `json:"interests"`
}
