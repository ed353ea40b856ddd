package service

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"loan-risk/domain"
	"loan-risk/logger"
)

const systemPrompt = "You are a senior credit risk analyst at a Tunisian bank. You review loan applications, weigh the customer profile, the loan terms and the internal risk score, and give a prudent, well argued recommendation. You always answer with a single JSON object and nothing else."

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// LLMAnalyzer turns a loan into a prompt, calls the model and parses the
// JSON answer into an AnalysisResult.
type LLMAnalyzer struct {
	client      ModelClient
	model       string
	temperature float64
}

func NewLLMAnalyzer(client ModelClient, model string, temperature float64) *LLMAnalyzer {
	return &LLMAnalyzer{
		client:      client,
		model:       model,
		temperature: temperature,
	}
}

func (a *LLMAnalyzer) Model() string {
	return a.model
}

// CheckModel reports whether the configured model is installed. A model
// configured without a tag matches its ":latest" variant.
func (a *LLMAnalyzer) CheckModel(ctx context.Context) error {
	models, err := a.client.ListModels(ctx)
	if err != nil {
		return err
	}
	for _, m := range models {
		if m == a.model || m == a.model+":latest" {
			return nil
		}
	}
	return fmt.Errorf("%w: model %s is not installed (available: %s)",
		ErrModelUnavailable, a.model, strings.Join(models, ", "))
}

// Analyze asks the model for a recommendation on loan. risk may be nil when
// scoring is disabled.
func (a *LLMAnalyzer) Analyze(
	ctx context.Context,
	loan domain.LoanRecord,
	risk *domain.RiskAssessment,
	notes string,
) (domain.AnalysisResult, error) {
	prompt := BuildPrompt(loan, risk, notes)

	text, err := a.client.Generate(ctx, GenerateRequest{
		Model:  a.model,
		Prompt: prompt,
		System: systemPrompt,
		Format: "json",
		Options: map[string]any{
			"temperature": a.temperature,
		},
	})
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	result, err := ParseAnalysis(text)
	if err != nil {
		logger.CtxWarn(ctx, "unparseable model response",
			zap.String("loan_id", loan.LoanID),
			zap.String("model", a.model),
			zap.String("response", truncate(text, 500)))
		return domain.AnalysisResult{}, err
	}
	return result, nil
}

// BuildPrompt renders the loan, its risk assessment and the analyst notes.
func BuildPrompt(loan domain.LoanRecord, risk *domain.RiskAssessment, notes string) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Analyze the following loan application and produce a credit recommendation.

CUSTOMER:
- Name: %s (id %s)
- Legal form / customer type: %s
- Gender: %s
- Marital status: %s
- Age: %s
- Address: %s

LOAN:
- Loan id: %s (external id %s)
- Product code: %s
- Approved amount: %.2f
- Personal contribution: %.2f
- Term: %d months
`,
		orUnknown(loan.Customer.Name), orUnknown(loan.Customer.ID),
		orUnknown(loan.Customer.Type),
		orUnknown(loan.Customer.Gender),
		orUnknown(loan.Customer.MaritalStatus),
		ageText(loan.Customer.Age),
		orUnknown(loan.Customer.Address),
		loan.LoanID, orUnknown(loan.ExternalID),
		orUnknown(loan.Info.ProductCode),
		loan.Info.ApprovedAmount,
		loan.Info.PersonalContribution,
		loan.Info.TermMonths)

	if risk != nil {
		fmt.Fprintf(&b, `
INTERNAL RISK SCORE:
- Score: %.2f (tier: %s)
- Contribution ratio: %.2f%%
- Estimated monthly payment: %.2f
`,
			risk.Score, risk.Tier,
			risk.Metrics.ContributionRatio*100,
			risk.Metrics.EstimatedMonthlyPayment)
		for _, m := range risk.Matches {
			bucket := m.Bucket
			if bucket == "" {
				bucket = "no rule"
			}
			fmt.Fprintf(&b, "- %s = %s -> %s (weight %g)\n", m.Category, m.Value, bucket, m.Weight)
		}
	}

	if notes = strings.TrimSpace(notes); notes != "" {
		fmt.Fprintf(&b, "\nANALYST NOTES:\n%s\n", notes)
	}

	b.WriteString(`
INSTRUCTIONS:
1. Summarize the application and its main risks in two or three sentences.
2. Recommend one of: "approve", "conditional", "reject".
3. Give the rationale, the key findings and, when relevant, the conditions to grant the loan.

Answer ONLY with a JSON object of the form:
{"summary": "...", "recommendation": "approve|conditional|reject", "rationale": ["..."], "key_findings": ["..."], "conditions": ["..."]}`)

	return b.String()
}

type rawAnalysis struct {
	Summary        any `json:"summary"`
	Recommendation any `json:"recommendation"`
	Rationale      any `json:"rationale"`
	KeyFindings    any `json:"key_findings"`
	Conditions     any `json:"conditions"`
}

// ParseAnalysis extracts the first JSON object of a model response,
// tolerating reasoning blocks, code fences and surrounding prose.
func ParseAnalysis(text string) (domain.AnalysisResult, error) {
	text = thinkBlock.ReplaceAllString(text, "")

	obj, ok := extractJSONObject(text)
	if !ok {
		return domain.AnalysisResult{}, fmt.Errorf("%w: no JSON object found", ErrInvalidModelResponse)
	}

	var raw rawAnalysis
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("%w: %v", ErrInvalidModelResponse, err)
	}

	result := domain.AnalysisResult{
		Summary:        strings.TrimSpace(cast.ToString(raw.Summary)),
		Recommendation: NormalizeRecommendation(cast.ToString(raw.Recommendation)),
		Rationale:      toStrings(raw.Rationale),
		KeyFindings:    toStrings(raw.KeyFindings),
		Conditions:     toStrings(raw.Conditions),
	}
	if result.Summary == "" {
		return domain.AnalysisResult{}, fmt.Errorf("%w: missing summary", ErrInvalidModelResponse)
	}
	return result, nil
}

// NormalizeRecommendation maps free-form model wording onto the four
// recommendation values.
func NormalizeRecommendation(s string) string {
	r := strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(r, "condition"):
		return domain.RecommendationConditional
	case strings.HasPrefix(r, "approv"), r == "accept", r == "accepted", r == "grant":
		return domain.RecommendationApprove
	case strings.HasPrefix(r, "reject"), strings.HasPrefix(r, "declin"), strings.HasPrefix(r, "den"), r == "refuse":
		return domain.RecommendationReject
	default:
		return domain.RecommendationReview
	}
}

// extractJSONObject returns the first balanced {...} in s.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	for start >= 0 {
		depth := 0
		inString := false
		escaped := false
		for i := start; i < len(s); i++ {
			c := s[i]
			if inString {
				switch {
				case escaped:
					escaped = false
				case c == '\\':
					escaped = true
				case c == '"':
					inString = false
				}
				continue
			}
			switch c {
			case '"':
				inString = true
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					candidate := s[start : i+1]
					if json.Valid([]byte(candidate)) {
						return candidate, true
					}
					i = len(s)
				}
			}
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", false
}

func toStrings(v any) []string {
	out := []string{}
	switch t := v.(type) {
	case nil:
	case []any:
		for _, item := range t {
			if s := strings.TrimSpace(cast.ToString(item)); s != "" {
				out = append(out, s)
			}
		}
	default:
		if s := strings.TrimSpace(cast.ToString(t)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func ageText(age int) string {
	if age <= 0 {
		return "unknown"
	}
	return fmt.Sprintf("%d", age)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
