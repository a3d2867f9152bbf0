package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"google.golang.org/genai"

	"gophora/discovery-service/internal/model"
	"gophora/discovery-service/internal/observability"
)

const defaultModel = "gemini-2.0-flash"

// contentGenerator is the single model call the Gemini backend needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}

// Generator wraps the Google GenAI client and asks for JSON output.
type Generator struct {
	client    *genai.Client
	modelName string
}

// NewGenerator creates a Generator configured for the Gemini API backend.
func NewGenerator(ctx context.Context, apiKey, modelName string) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if modelName = strings.TrimSpace(modelName); modelName == "" {
		modelName = defaultModel
	}
	return &Generator{client: client, modelName: modelName}, nil
}

// Client exposes the underlying genai client so the embedder can share it.
func (g *Generator) Client() *genai.Client { return g.client }

// GenerateContent sends prompt and returns the concatenated text parts of
// the response.
func (g *Generator) GenerateContent(ctx context.Context, prompt string) (string, error) {
	if g == nil || g.client == nil {
		return "", errors.New("gemini generator is not initialized")
	}

	cfg := &genai.GenerateContentConfig{ResponseMIMEType: "application/json"}
	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}

	var b strings.Builder
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if p == nil || strings.TrimSpace(p.Text) == "" {
				continue
			}
			b.WriteString(p.Text)
		}
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "", errors.New("gemini api returned empty response")
	}
	return out, nil
}

// Gemini classifies with a single generative model call. It never retries.
type Gemini struct {
	gen contentGenerator
}

// NewGemini returns a Gemini classifier on top of gen.
func NewGemini(gen contentGenerator) *Gemini {
	return &Gemini{gen: gen}
}

func (g *Gemini) Classify(ctx context.Context, raw model.RawListing) (model.ClassificationResult, error) {
	out, err := g.gen.GenerateContent(ctx, buildPrompt(raw))
	if err != nil {
		return model.ClassificationResult{}, err
	}
	res, err := parseResult(out)
	if err != nil {
		return res, fmt.Errorf("%w (output: %q)", err, observability.TruncateForLog(out, 200))
	}
	return res, nil
}

const promptTemplate = `You review job and opportunity postings for a discovery platform.
Assess whether the posting is legitimate, categorize it and extract metadata.

Title: %s
Company: %s
Location: %s
Source: %s
URL: %s
Description:
%s

Look for red flags such as unrealistic income promises, requests for upfront
payment or personal financial data, vague duties, MLM or pyramid schemes.

Categories: Work (paid employment, freelance, contract), Education (courses,
teaching), Hobbies (creative or community projects), Contribution (volunteering).
Skill levels: zero (anyone can start), low (quick training), medium (some
experience), high (advanced skills).
An opportunity is immediate when it can start within 24-48 hours and pays quickly.

Respond with a single JSON object and nothing else:
{
  "is_legitimate": boolean,
  "trust_score": integer 0-100,
  "confidence": number 0.0-1.0,
  "red_flags": [string],
  "credibility_notes": string,
  "category": "Work" | "Education" | "Hobbies" | "Contribution",
  "subcategory": string,
  "skill_level": "zero" | "low" | "medium" | "high",
  "is_immediate": boolean,
  "payment_timeframe": string or null,
  "required_skills": [string],
  "salary_range": string or null,
  "experience_level": string,
  "time_commitment": string or null,
  "deadline": "YYYY-MM-DD" or null
}`

func buildPrompt(raw model.RawListing) string {
	return fmt.Sprintf(promptTemplate,
		raw.Title, raw.Company, raw.Location, raw.SourceName, raw.CanonicalURL, raw.Description)
}

// parseResult decodes model output leniently: code fences are stripped and
// numbers or booleans may arrive as strings.
func parseResult(output string) (model.ClassificationResult, error) {
	payload := extractJSON(output)
	if payload == "" {
		return model.ClassificationResult{}, errors.New("no json object in model output")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return model.ClassificationResult{}, fmt.Errorf("decode model output: %w", err)
	}

	legit, ok := coerceBool(raw["is_legitimate"])
	if !ok {
		return model.ClassificationResult{}, errors.New("model output missing is_legitimate")
	}
	trust := coerceFloat(raw["trust_score"])
	if math.IsNaN(trust) {
		return model.ClassificationResult{}, errors.New("model output missing trust_score")
	}

	res := model.ClassificationResult{
		IsLegitimate:     legit,
		TrustScore:       int(math.Round(trust)),
		Confidence:       coerceFloat(raw["confidence"]),
		RedFlags:         coerceStrings(raw["red_flags"]),
		CredibilityNotes: coerceString(raw["credibility_notes"]),
		Category:         model.CoerceCategory(coerceString(raw["category"])),
		Subcategory:      coerceString(raw["subcategory"]),
		SkillLevel:       model.CoerceSkillLevel(coerceString(raw["skill_level"])),
		PaymentTimeframe: optionalString(raw["payment_timeframe"]),
		RequiredSkills:   coerceStrings(raw["required_skills"]),
		SalaryRange:      optionalString(raw["salary_range"]),
		ExperienceLevel:  coerceString(raw["experience_level"]),
		TimeCommitment:   coerceString(raw["time_commitment"]),
		Deadline:         parseDeadline(coerceString(raw["deadline"])),
	}
	res.IsImmediate, _ = coerceBool(raw["is_immediate"])
	res.Normalize()
	return res, nil
}

func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func coerceBool(v any) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		if err != nil {
			return false, false
		}
		return b, true
	case float64:
		return t != 0, true
	}
	return false, false
}

// coerceFloat returns NaN when v is not a number.
func coerceFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
	return math.NaN()
}

func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

func optionalString(v any) *string {
	s := coerceString(v)
	if s == "" || strings.EqualFold(s, "null") || strings.EqualFold(s, "none") {
		return nil
	}
	return &s
}

func coerceStrings(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := coerceString(item); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, part := range strings.Split(t, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func parseDeadline(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
