package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"loan-risk/domain"
	"loan-risk/logger"
	"loan-risk/repository"
	"loan-risk/service"
)

// AnalysisService is what the handlers need from the analysis pipeline.
type AnalysisService interface {
	CreateAnalysis(ctx context.Context, req domain.AnalysisRequest) (domain.Analysis, error)
	RecentAnalyses(ctx context.Context, limit int) ([]domain.Analysis, error)
	GetAnalysis(ctx context.Context, id string) (domain.Analysis, error)
	ScoreLoan(ctx context.Context, loanID string) (domain.RiskAssessment, error)
}

type AnalysisHandler struct {
	service AnalysisService
}

func NewAnalysisHandler(service AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{service: service}
}

func (h *AnalysisHandler) CreateAnalysis(c *gin.Context) {
	var req domain.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	analysis, err := h.service.CreateAnalysis(c.Request.Context(), req)
	if errors.Is(err, service.ErrInvalidRequest) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		// unknown loans and model failures alike surface as a generic 500
		logger.CtxError(c.Request.Context(), "analysis failed", err,
			zap.String("loan_id", req.LoanID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
		return
	}

	c.JSON(http.StatusOK, analysis)
}

func (h *AnalysisHandler) RecentAnalyses(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	list, err := h.service.RecentAnalyses(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err, "failed to list analyses")
		return
	}
	if list == nil {
		list = []domain.Analysis{}
	}

	c.JSON(http.StatusOK, list)
}

func (h *AnalysisHandler) GetAnalysis(c *gin.Context) {
	analysis, err := h.service.GetAnalysis(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to load analysis")
		return
	}
	c.JSON(http.StatusOK, analysis)
}

func (h *AnalysisHandler) LoanRisk(c *gin.Context) {
	assessment, err := h.service.ScoreLoan(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to score loan")
		return
	}
	c.JSON(http.StatusOK, assessment)
}

// writeError maps domain errors to a status code. Unexpected errors are
// logged and answered with a generic message.
func writeError(c *gin.Context, err error, generic string) {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrLoanNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "loan not found"})
	case errors.Is(err, repository.ErrAnalysisNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "analysis not found"})
	case errors.Is(err, service.ErrRiskDisabled):
		c.JSON(http.StatusNotFound, gin.H{"error": "risk scoring is disabled"})
	default:
		logger.CtxError(c.Request.Context(), generic, err, zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": generic})
	}
}
