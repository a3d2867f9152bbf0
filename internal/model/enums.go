package model

import (
	"fmt"
	"strings"
)

// Category values mirror the listing_category column.
type Category string

const (
	CategoryWork         Category = "Work"
	CategoryEducation    Category = "Education"
	CategoryHobbies      Category = "Hobbies"
	CategoryContribution Category = "Contribution"
)

// SkillLevel values mirror the skill_level column.
type SkillLevel string

const (
	SkillZero   SkillLevel = "zero"
	SkillLow    SkillLevel = "low"
	SkillMedium SkillLevel = "medium"
	SkillHigh   SkillLevel = "high"
)

// Status is the listing lifecycle. Active → Inactive is the only transition.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Counter names a monotonically increasing engagement counter.
type Counter string

const (
	CounterViews        Counter = "views"
	CounterApplications Counter = "applications"
)

// ParseCategory converts a raw string to a Category, returning an error for
// unknown values. Matching is case-insensitive.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "work":
		return CategoryWork, nil
	case "education":
		return CategoryEducation, nil
	case "hobbies":
		return CategoryHobbies, nil
	case "contribution":
		return CategoryContribution, nil
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// CoerceCategory maps anything unrecognised to Work.
func CoerceCategory(s string) Category {
	c, err := ParseCategory(s)
	if err != nil {
		return CategoryWork
	}
	return c
}

// ParseSkillLevel converts a raw string to a SkillLevel.
func ParseSkillLevel(s string) (SkillLevel, error) {
	lvl := SkillLevel(strings.ToLower(strings.TrimSpace(s)))
	switch lvl {
	case SkillZero, SkillLow, SkillMedium, SkillHigh:
		return lvl, nil
	}
	return "", fmt.Errorf("unknown skill level %q", s)
}

// CoerceSkillLevel maps anything unrecognised to medium.
func CoerceSkillLevel(s string) SkillLevel {
	lvl, err := ParseSkillLevel(s)
	if err != nil {
		return SkillMedium
	}
	return lvl
}

// ParseStatus converts a raw string to a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusActive, StatusInactive:
		return st, nil
	}
	return "", fmt.Errorf("unknown listing status %q", s)
}

// ParseGroup converts a raw string to a Group.
func ParseGroup(s string) (Group, error) {
	g := Group(s)
	switch g {
	case GroupSkillBased, GroupImmediate:
		return g, nil
	}
	return "", fmt.Errorf("unknown listing group %q", s)
}

// ParseCounter converts a raw string to a Counter.
func ParseCounter(s string) (Counter, error) {
	c := Counter(s)
	switch c {
	case CounterViews, CounterApplications:
		return c, nil
	}
	return "", fmt.Errorf("unknown counter %q", s)
}
