package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loan-risk/domain"
	"loan-risk/logger"
	"loan-risk/repository"
)

// Analyzer produces a narrative analysis of a loan.
type Analyzer interface {
	Analyze(ctx context.Context, loan domain.LoanRecord, risk *domain.RiskAssessment, notes string) (domain.AnalysisResult, error)
	Model() string
}

type AnalysisService struct {
	loans    repository.LoanRepository
	analyses repository.AnalysisRepository
	cache    repository.CacheRepository
	cacheTTL time.Duration
	risk     *RiskEngine
	analyzer Analyzer

	now   func() time.Time
	newID func() string
}

// NewAnalysisService wires the analysis pipeline. risk may be nil, which
// disables scoring.
func NewAnalysisService(
	loans repository.LoanRepository,
	analyses repository.AnalysisRepository,
	cache repository.CacheRepository,
	cacheTTL time.Duration,
	risk *RiskEngine,
	analyzer Analyzer,
) *AnalysisService {
	return &AnalysisService{
		loans:    loans,
		analyses: analyses,
		cache:    cache,
		cacheTTL: cacheTTL,
		risk:     risk,
		analyzer: analyzer,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

func validateAnalysisRequest(req domain.AnalysisRequest) (domain.AnalysisRequest, error) {
	req.LoanID = strings.TrimSpace(req.LoanID)
	req.Notes = strings.TrimSpace(req.Notes)

	if req.LoanID == "" {
		return req, fmt.Errorf("%w: loan_id is required", ErrInvalidRequest)
	}
	if len(req.LoanID) > MaxLoanIDLength {
		return req, fmt.Errorf("%w: loan_id exceeds %d characters", ErrInvalidRequest, MaxLoanIDLength)
	}
	if len(req.Notes) > MaxNotesLength {
		return req, fmt.Errorf("%w: notes exceed %d characters", ErrInvalidRequest, MaxNotesLength)
	}
	return req, nil
}

// CreateAnalysis scores the loan, asks the model for an analysis and stores it.
func (s *AnalysisService) CreateAnalysis(ctx context.Context, req domain.AnalysisRequest) (domain.Analysis, error) {
	req, err := validateAnalysisRequest(req)
	if err != nil {
		return domain.Analysis{}, err
	}

	loan, err := s.loans.Get(ctx, req.LoanID)
	if err != nil {
		return domain.Analysis{}, fmt.Errorf("loading loan %s: %w", req.LoanID, err)
	}

	var risk *domain.RiskAssessment
	if s.risk != nil {
		assessment := s.risk.Evaluate(loan)
		risk = &assessment
		logger.CtxDebug(ctx, "loan scored",
			zap.String("loan_id", loan.LoanID),
			zap.Float64("score", assessment.Score),
			zap.String("tier", string(assessment.Tier)))
	}

	result, err := s.analyze(ctx, loan, risk, req.Notes)
	if err != nil {
		return domain.Analysis{}, err
	}

	analysis := domain.Analysis{
		ID:        s.newID(),
		LoanID:    loan.LoanID,
		Notes:     req.Notes,
		Model:     s.analyzer.Model(),
		Risk:      risk,
		Result:    result,
		CreatedAt: s.now(),
	}

	// not critical if storing fails
	if err := s.analyses.Save(ctx, analysis); err != nil {
		logger.CtxWarn(ctx, "failed to save analysis",
			zap.String("analysis_id", analysis.ID),
			zap.Error(err))
	}

	logger.CtxInfo(ctx, "analysis created",
		zap.String("analysis_id", analysis.ID),
		zap.String("loan_id", analysis.LoanID),
		zap.String("recommendation", result.Recommendation))

	return analysis, nil
}

func (s *AnalysisService) analyze(
	ctx context.Context,
	loan domain.LoanRecord,
	risk *domain.RiskAssessment,
	notes string,
) (domain.AnalysisResult, error) {
	key := s.cacheKey(loan.LoanID, notes, risk)

	if cached, ok := s.cache.Get(ctx, key); ok {
		var result domain.AnalysisResult
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			logger.CtxDebug(ctx, "analysis served from cache", zap.String("loan_id", loan.LoanID))
			return result, nil
		}
	}

	result, err := s.analyzer.Analyze(ctx, loan, risk, notes)
	if err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("analyzing loan %s: %w", loan.LoanID, err)
	}

	if b, err := json.Marshal(result); err == nil {
		if err := s.cache.Set(ctx, key, string(b), s.cacheTTL); err != nil {
			logger.CtxWarn(ctx, "failed to cache analysis", zap.Error(err))
		}
	}
	return result, nil
}

func (s *AnalysisService) cacheKey(loanID, notes string, risk *domain.RiskAssessment) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%s\x00%s", s.analyzer.Model(), loanID, notes)
	if risk != nil {
		fmt.Fprintf(h, "\x00%g", risk.Score)
	}
	return "analysis:" + hex.EncodeToString(h.Sum(nil))
}

// RecentAnalyses returns the newest analyses. The list is never nil.
func (s *AnalysisService) RecentAnalyses(ctx context.Context, limit int) ([]domain.Analysis, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	list, err := s.analyses.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("listing analyses: %w", err)
	}
	if list == nil {
		list = []domain.Analysis{}
	}
	return list, nil
}

func (s *AnalysisService) GetAnalysis(ctx context.Context, id string) (domain.Analysis, error) {
	return s.analyses.Get(ctx, strings.TrimSpace(id))
}

// ScoreLoan evaluates the risk rules for a loan without calling the model.
func (s *AnalysisService) ScoreLoan(ctx context.Context, loanID string) (domain.RiskAssessment, error) {
	if s.risk == nil {
		return domain.RiskAssessment{}, ErrRiskDisabled
	}
	loan, err := s.loans.Get(ctx, strings.TrimSpace(loanID))
	if err != nil {
		return domain.RiskAssessment{}, fmt.Errorf("loading loan %s: %w", loanID, err)
	}
	return s.risk.Evaluate(loan), nil
}
