package model_test

import (
	"testing"

	"gophora/discovery-service/internal/model"
)

// ── Approval ───────────────────────────────────────────────────────────────

func TestApproved_Threshold(t *testing.T) {
	cases := []struct {
		legit bool
		trust int
		want  bool
	}{
		{true, 70, true},
		{true, 69, false},
		{true, 100, true},
		{false, 100, false},
		{false, 0, false},
	}
	for _, tc := range cases {
		if got := model.Approved(tc.legit, tc.trust); got != tc.want {
			t.Errorf("Approved(%v, %d) = %v, want %v", tc.legit, tc.trust, got, tc.want)
		}
	}
}

func TestApproved_MonotonicInTrust(t *testing.T) {
	for trust := 0; trust < 100; trust++ {
		if model.Approved(true, trust) && !model.Approved(true, trust+1) {
			t.Fatalf("approval lost when trust rose from %d to %d", trust, trust+1)
		}
	}
}

func TestNewListing_RejectedClassificationNeverApproved(t *testing.T) {
	raw := model.RawListing{Title: "Anything", CanonicalURL: "https://x/1"}
	l := model.NewListing(raw, model.RejectedClassification(), nil)

	if l.Approved {
		t.Error("rejected classification must not be approved")
	}
	if l.TrustScore != 0 || l.IsLegitimate {
		t.Errorf("got trust=%d legit=%v, want 0/false", l.TrustScore, l.IsLegitimate)
	}
	if len(l.RedFlags) != 1 || l.RedFlags[0] != model.ClassificationFailedFlag {
		t.Errorf("RedFlags = %v, want [%q]", l.RedFlags, model.ClassificationFailedFlag)
	}
}

func TestNewListing_FallsBackToExtractedSkills(t *testing.T) {
	raw := model.RawListing{Skills: []string{"python", "sql"}, CompensationText: "$50,000"}
	c := model.ClassificationResult{IsLegitimate: true, TrustScore: 80, SkillLevel: model.SkillMedium}
	l := model.NewListing(raw, c, nil)

	if len(l.RequiredSkills) != 2 {
		t.Errorf("RequiredSkills = %v, want extracted skills", l.RequiredSkills)
	}
	if l.SalaryRange == nil || *l.SalaryRange != "$50,000" {
		t.Errorf("SalaryRange = %v, want compensation text", l.SalaryRange)
	}
	if !l.Approved {
		t.Error("legitimate listing with trust 80 should be approved")
	}
}

func TestGroupFor(t *testing.T) {
	cases := []struct {
		immediate bool
		level     model.SkillLevel
		want      model.Group
	}{
		{true, model.SkillZero, model.GroupImmediate},
		{true, model.SkillLow, model.GroupImmediate},
		{true, model.SkillMedium, model.GroupSkillBased},
		{false, model.SkillZero, model.GroupSkillBased},
		{false, model.SkillHigh, model.GroupSkillBased},
	}
	for _, tc := range cases {
		if got := model.GroupFor(tc.immediate, tc.level); got != tc.want {
			t.Errorf("GroupFor(%v, %s) = %s, want %s", tc.immediate, tc.level, got, tc.want)
		}
	}
}

// ── Enums ──────────────────────────────────────────────────────────────────

func TestCoerceCategory_UnknownBecomesWork(t *testing.T) {
	if got := model.CoerceCategory("Volunteering"); got != model.CategoryWork {
		t.Errorf("CoerceCategory(Volunteering) = %q, want Work", got)
	}
	if got := model.CoerceCategory("education"); got != model.CategoryEducation {
		t.Errorf("CoerceCategory(education) = %q, want Education", got)
	}
}

func TestCoerceSkillLevel_UnknownBecomesMedium(t *testing.T) {
	if got := model.CoerceSkillLevel("expert"); got != model.SkillMedium {
		t.Errorf("CoerceSkillLevel(expert) = %q, want medium", got)
	}
	if got := model.CoerceSkillLevel(" LOW "); got != model.SkillLow {
		t.Errorf("CoerceSkillLevel(LOW) = %q, want low", got)
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"active", "inactive"} {
		if _, err := model.ParseStatus(s); err != nil {
			t.Errorf("ParseStatus(%q) returned unexpected error: %v", s, err)
		}
	}
	if _, err := model.ParseStatus("ACTIVE"); err == nil {
		t.Error("ParseStatus(\"ACTIVE\") expected error, got nil")
	}
}

func TestNormalize_Clamps(t *testing.T) {
	c := model.ClassificationResult{TrustScore: 140, Confidence: 3}
	c.Normalize()
	if c.TrustScore != 100 || c.Confidence != 1 {
		t.Errorf("got trust=%d confidence=%v, want 100/1", c.TrustScore, c.Confidence)
	}
	if c.Category != model.CategoryWork || c.SkillLevel != model.SkillMedium {
		t.Errorf("defaults not applied: %q %q", c.Category, c.SkillLevel)
	}

	c = model.ClassificationResult{TrustScore: -5, Confidence: -1}
	c.Normalize()
	if c.TrustScore != 0 || c.Confidence != 0 {
		t.Errorf("got trust=%d confidence=%v, want 0/0", c.TrustScore, c.Confidence)
	}
}
