package model

import (
	"math"
	"time"
)

// ApprovalThreshold is the minimum trust score for an approved listing.
const ApprovalThreshold = 70

// ClassificationFailedFlag is the red flag recorded when the classifier
// could not produce a result.
const ClassificationFailedFlag = "validation failed"

// ClassificationResult is the output of one classifier call.
type ClassificationResult struct {
	IsLegitimate     bool       `json:"isLegitimate"`
	TrustScore       int        `json:"trustScore"`
	Confidence       float64    `json:"confidence"`
	RedFlags         []string   `json:"redFlags"`
	CredibilityNotes string     `json:"credibilityNotes,omitempty"`
	Category         Category   `json:"category"`
	Subcategory      string     `json:"subcategory,omitempty"`
	SkillLevel       SkillLevel `json:"skillLevel"`
	IsImmediate      bool       `json:"isImmediate"`
	PaymentTimeframe *string    `json:"paymentTimeframe,omitempty"`
	RequiredSkills   []string   `json:"requiredSkills"`
	SalaryRange      *string    `json:"salaryRange,omitempty"`
	ExperienceLevel  string     `json:"experienceLevel,omitempty"`
	TimeCommitment   string     `json:"timeCommitment,omitempty"`
	Deadline         *time.Time `json:"deadline,omitempty"`
}

// Approved is the single approval rule: legitimate and trusted enough.
func Approved(isLegitimate bool, trustScore int) bool {
	return isLegitimate && trustScore >= ApprovalThreshold
}

// RejectedClassification is the deterministic result used whenever the
// classifier fails. Listings carrying it are stored but never approved.
func RejectedClassification() ClassificationResult {
	return ClassificationResult{
		IsLegitimate:   false,
		TrustScore:     0,
		Confidence:     0,
		RedFlags:       []string{ClassificationFailedFlag},
		Category:       CategoryWork,
		SkillLevel:     SkillMedium,
		RequiredSkills: []string{},
	}
}

// Normalize clamps numeric fields into range and fills enum defaults.
func (c *ClassificationResult) Normalize() {
	if c.TrustScore < 0 {
		c.TrustScore = 0
	}
	if c.TrustScore > 100 {
		c.TrustScore = 100
	}
	if c.Confidence < 0 || math.IsNaN(c.Confidence) {
		c.Confidence = 0
	}
	if c.Confidence > 1 {
		c.Confidence = 1
	}
	if c.Category == "" {
		c.Category = CategoryWork
	}
	if c.SkillLevel == "" {
		c.SkillLevel = SkillMedium
	}
	if c.RedFlags == nil {
		c.RedFlags = []string{}
	}
	if c.RequiredSkills == nil {
		c.RequiredSkills = []string{}
	}
}
