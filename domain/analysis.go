package domain

import "time"

const (
	RecommendationApprove     = "approve"
	RecommendationConditional = "conditional"
	RecommendationReject      = "reject"
	RecommendationReview      = "review"
)

type AnalysisRequest struct {
	LoanID string `json:"loan_id"`
	Notes  string `json:"notes"`
}

// AnalysisResult is the narrative the language model produces for a loan.
type AnalysisResult struct {
	Summary        string   `json:"summary"`
	Recommendation string   `json:"recommendation"`
	Rationale      []string `json:"rationale"`
	KeyFindings    []string `json:"key_findings"`
	Conditions     []string `json:"conditions"`
}

type Analysis struct {
	ID        string          `json:"id"`
	LoanID    string          `json:"loan_id"`
	Notes     string          `json:"notes"`
	Model     string          `json:"model"`
	Risk      *RiskAssessment `json:"risk,omitempty"`
	Result    AnalysisResult  `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}
