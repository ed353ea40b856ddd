package domain

import (
	"sort"

	"github.com/pkg/errors"
)

// RuleTable maps a rule category to the weight of each category value,
// e.g. "Genre" -> {"M": 2, "F": 1}.
type RuleTable map[string]map[string]float64

// Attribute names a loan attribute a rule category can be bound to.
type Attribute string

const (
	AttributeCustomerType  Attribute = "customer_type"
	AttributeGender        Attribute = "gender"
	AttributeMaritalStatus Attribute = "marital_status"
	AttributeProductCode   Attribute = "product_code"
	AttributeAgeBand       Attribute = "age_band"
	AttributeTermBand      Attribute = "term_band"
)

// RuleBindings tells the risk engine which loan attribute feeds which
// rule category.
type RuleBindings map[string]Attribute

// OtherBucket is the catch-all value of a rule category.
const OtherBucket = "Autres"

type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// RiskThresholds holds the upper cutoff of each tier, keyed by tier name.
type RiskThresholds map[string]float64

// Validate requires exactly the keys low, medium and high with strictly
// ascending cutoffs.
func (t RiskThresholds) Validate() error {
	want := []RiskTier{RiskLow, RiskMedium, RiskHigh}
	if len(t) != len(want) {
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return errors.Errorf("thresholds must have exactly the keys low, medium, high, got %v", keys)
	}
	for _, k := range want {
		if _, ok := t[string(k)]; !ok {
			return errors.Errorf("thresholds: missing key %q", k)
		}
	}
	low, medium, high := t[string(RiskLow)], t[string(RiskMedium)], t[string(RiskHigh)]
	if !(low < medium && medium < high) {
		return errors.Errorf("thresholds must be ascending, got low=%v medium=%v high=%v", low, medium, high)
	}
	return nil
}

type RuleMatch struct {
	Category string  `json:"category"`
	Value    string  `json:"value"`
	Bucket   string  `json:"bucket"`
	Weight   float64 `json:"weight"`
}

type RiskAssessment struct {
	LoanID  string      `json:"loan_id"`
	Score   float64     `json:"score"`
	Tier    RiskTier    `json:"tier"`
	Matches []RuleMatch `json:"matches"`
	Metrics LoanMetrics `json:"metrics"`
}

// RiskRules is a validated rule configuration.
type RiskRules struct {
	Thresholds RiskThresholds
	Bindings   RuleBindings
	Table      RuleTable
}
