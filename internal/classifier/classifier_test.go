package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gophora/discovery-service/internal/model"
)

type stubGenerator struct {
	output  string
	err     error
	prompts []string
}

func (s *stubGenerator) GenerateContent(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.output, s.err
}

type failingClassifier struct{ calls int }

func (f *failingClassifier) Classify(context.Context, model.RawListing) (model.ClassificationResult, error) {
	f.calls++
	return model.ClassificationResult{}, errors.New("upstream 503")
}

func rawListing() model.RawListing {
	return model.RawListing{
		Title:        "Backend Engineer",
		Company:      "Acme",
		Description:  "Build Go services for our payments platform. You will own APIs and data pipelines end to end.",
		CanonicalURL: "https://jobs.example/1",
		SourceName:   "remotive",
		Skills:       []string{"go"},
	}
}

func TestGeminiClassify_ParsesFencedJSON(t *testing.T) {
	gen := &stubGenerator{output: "```json\n" + `{
		"is_legitimate": "true",
		"trust_score": "82",
		"confidence": 0.9,
		"red_flags": [],
		"category": "education",
		"subcategory": "Bootcamp",
		"skill_level": "expert",
		"is_immediate": false,
		"payment_timeframe": null,
		"required_skills": ["go", "sql"],
		"salary_range": "$100k",
		"experience_level": "Mid-level",
		"deadline": "2024-07-01"
	}` + "\n```"}

	res, err := NewGemini(gen).Classify(context.Background(), rawListing())
	require.NoError(t, err)

	assert.True(t, res.IsLegitimate)
	assert.Equal(t, 82, res.TrustScore)
	assert.Equal(t, model.CategoryEducation, res.Category)
	assert.Equal(t, model.SkillMedium, res.SkillLevel, "unknown level coerced")
	assert.Nil(t, res.PaymentTimeframe)
	require.NotNil(t, res.SalaryRange)
	assert.Equal(t, "$100k", *res.SalaryRange)
	assert.Equal(t, []string{"go", "sql"}, res.RequiredSkills)
	require.NotNil(t, res.Deadline)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), *res.Deadline)

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Backend Engineer")
}

func TestGeminiClassify_ClampsOutOfRange(t *testing.T) {
	gen := &stubGenerator{output: `{"is_legitimate": true, "trust_score": 140, "confidence": 3}`}
	res, err := NewGemini(gen).Classify(context.Background(), rawListing())
	require.NoError(t, err)
	assert.Equal(t, 100, res.TrustScore)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, model.CategoryWork, res.Category)
}

func TestGeminiClassify_Errors(t *testing.T) {
	cases := map[string]*stubGenerator{
		"generator error":   {err: errors.New("boom")},
		"not json":          {output: "I cannot help with that"},
		"missing legit":     {output: `{"trust_score": 50}`},
		"missing trust":     {output: `{"is_legitimate": true}`},
		"trust not numeric": {output: `{"is_legitimate": true, "trust_score": "high"}`},
	}
	for name, gen := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewGemini(gen).Classify(context.Background(), rawListing())
			assert.Error(t, err)
		})
	}
}

func TestGuarded_FailureBecomesRejection(t *testing.T) {
	backend := &failingClassifier{}
	g := NewGuarded(zap.NewNop(), backend, "test", time.Second)

	res, err := g.Classify(context.Background(), rawListing())
	require.NoError(t, err)
	assert.Equal(t, 1, backend.calls, "no automatic retry")
	assert.False(t, res.IsLegitimate)
	assert.Zero(t, res.TrustScore)
	assert.Equal(t, []string{model.ClassificationFailedFlag}, res.RedFlags)
	assert.False(t, model.Approved(res.IsLegitimate, res.TrustScore))
}

func TestGuarded_MergesKeywordRedFlags(t *testing.T) {
	gen := &stubGenerator{output: `{"is_legitimate": true, "trust_score": 90, "red_flags": ["Upfront Fee"]}`}
	g := NewGuarded(zap.NewNop(), NewGemini(gen), "test", 0)

	raw := rawListing()
	raw.Description = "Easy money. Pay an upfront fee and receive a wire transfer weekly."
	res, err := g.Classify(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"Upfront Fee", "wire transfer"}, res.RedFlags)
}

func TestHeuristic(t *testing.T) {
	h := NewHeuristic()

	good, err := h.Classify(context.Background(), rawListing())
	require.NoError(t, err)
	assert.True(t, good.IsLegitimate)
	assert.True(t, model.Approved(good.IsLegitimate, good.TrustScore))
	assert.Equal(t, model.CategoryWork, good.Category)

	scam := rawListing()
	scam.Description = "Guaranteed income from home. Send money for the starter kit via western union today."
	bad, err := h.Classify(context.Background(), scam)
	require.NoError(t, err)
	assert.False(t, bad.IsLegitimate)
	assert.Less(t, bad.TrustScore, model.ApprovalThreshold)

	vol := rawListing()
	vol.Title = "Volunteer reading tutor"
	vol.Description = "Help kids read after school at our non-profit. Training provided, entry level welcome."
	v, err := h.Classify(context.Background(), vol)
	require.NoError(t, err)
	assert.Equal(t, model.CategoryContribution, v.Category)
	assert.Equal(t, model.SkillLow, v.SkillLevel)
	assert.False(t, v.IsImmediate)

	vol.JobType = "part-time"
	v, err = h.Classify(context.Background(), vol)
	require.NoError(t, err)
	assert.True(t, v.IsImmediate)
	assert.Equal(t, model.SkillZero, v.SkillLevel)
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, extractJSON(`Sure! {"a":1} hope this helps`))
	assert.Equal(t, "", extractJSON("nothing here"))
}
