package service

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"loan-risk/domain"
)

type bucket struct {
	name   string
	weight decimal.Decimal
}

type category struct {
	name      string
	attribute domain.Attribute
	buckets   map[string]bucket // keyed by normalized value
	other     *bucket
}

// RiskEngine scores loans against a weighted rule table. It is safe for
// concurrent use; nothing is mutated after construction.
type RiskEngine struct {
	categories    []category
	thresholds    domain.RiskThresholds
	referenceRate float64
}

// NewRiskEngine indexes the rule table. referenceAnnualRate is used to
// estimate installments.
func NewRiskEngine(rules domain.RiskRules, referenceAnnualRate float64) (*RiskEngine, error) {
	if err := rules.Thresholds.Validate(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(rules.Bindings))
	for name := range rules.Bindings {
		names = append(names, name)
	}
	sort.Strings(names)

	e := &RiskEngine{
		thresholds:    rules.Thresholds,
		referenceRate: referenceAnnualRate,
	}

	for _, name := range names {
		weights, ok := rules.Table[name]
		if !ok {
			continue
		}
		c := category{
			name:      name,
			attribute: rules.Bindings[name],
			buckets:   make(map[string]bucket, len(weights)),
		}
		for value, w := range weights {
			b := bucket{name: value, weight: decimal.NewFromFloat(w)}
			if value == domain.OtherBucket {
				c.other = &b
				continue
			}
			key := normalizeValue(value)
			if prev, dup := c.buckets[key]; dup {
				return nil, fmt.Errorf("rule category %q: values %q and %q are indistinguishable", name, prev.name, value)
			}
			c.buckets[key] = b
		}
		e.categories = append(e.categories, c)
	}

	return e, nil
}

// Evaluate sums the weights of the buckets the loan falls into and maps
// the total to a tier. Values with no bucket fall into "Autres" when the
// category defines it and weigh zero otherwise; empty attributes are skipped.
func (e *RiskEngine) Evaluate(loan domain.LoanRecord) domain.RiskAssessment {
	total := decimal.Zero
	matches := []domain.RuleMatch{}

	for _, c := range e.categories {
		value := attributeValue(loan, c.attribute)
		if value == "" {
			continue
		}

		match := domain.RuleMatch{Category: c.name, Value: value}
		if b, ok := c.buckets[normalizeValue(value)]; ok {
			match.Bucket = b.name
			match.Weight = b.weight.InexactFloat64()
			total = total.Add(b.weight)
		} else if c.other != nil {
			match.Bucket = c.other.name
			match.Weight = c.other.weight.InexactFloat64()
			total = total.Add(c.other.weight)
		}
		matches = append(matches, match)
	}

	score := total.InexactFloat64()

	return domain.RiskAssessment{
		LoanID:  loan.LoanID,
		Score:   score,
		Tier:    e.Tier(score),
		Matches: matches,
		Metrics: e.metrics(loan),
	}
}

// Tier maps a score to a risk tier; cutoffs are inclusive upper bounds.
func (e *RiskEngine) Tier(score float64) domain.RiskTier {
	switch {
	case score <= e.thresholds[string(domain.RiskLow)]:
		return domain.RiskLow
	case score <= e.thresholds[string(domain.RiskMedium)]:
		return domain.RiskMedium
	default:
		return domain.RiskHigh
	}
}

func (e *RiskEngine) metrics(loan domain.LoanRecord) domain.LoanMetrics {
	amount := decimal.NewFromFloat(loan.Info.ApprovedAmount)
	contribution := decimal.NewFromFloat(loan.Info.PersonalContribution)

	m := domain.LoanMetrics{
		FinancedAmount: amount.Round(2).InexactFloat64(),
	}

	if project := amount.Add(contribution); project.IsPositive() {
		m.ContributionRatio = contribution.Div(project).Round(4).InexactFloat64()
	}

	if inst, err := calculateInstallment(loan.Info.ApprovedAmount, e.referenceRate, loan.Info.TermMonths); err == nil {
		m.EstimatedMonthlyPayment = inst.MonthlyPayment
		m.EstimatedTotalInterest = inst.TotalInterest
	}
	return m
}

func attributeValue(loan domain.LoanRecord, attr domain.Attribute) string {
	switch attr {
	case domain.AttributeCustomerType:
		return loan.Customer.Type
	case domain.AttributeGender:
		return loan.Customer.Gender
	case domain.AttributeMaritalStatus:
		return loan.Customer.MaritalStatus
	case domain.AttributeProductCode:
		return loan.Info.ProductCode
	case domain.AttributeAgeBand:
		return ageBand(loan.Customer.Age)
	case domain.AttributeTermBand:
		return termBand(loan.Info.TermMonths)
	}
	return ""
}

func ageBand(age int) string {
	switch {
	case age <= 0:
		return ""
	case age < YoungBorrowerAge:
		return fmt.Sprintf("<%d", YoungBorrowerAge)
	case age <= MidCareerMaxAge:
		return fmt.Sprintf("%d-%d", YoungBorrowerAge, MidCareerMaxAge)
	case age <= SeniorBorrowerAge:
		return fmt.Sprintf("%d-%d", MidCareerMaxAge+1, SeniorBorrowerAge)
	default:
		return fmt.Sprintf(">%d", SeniorBorrowerAge)
	}
}

func termBand(months int) string {
	switch {
	case months <= 0:
		return ""
	case months <= ShortTermMonths:
		return fmt.Sprintf("<=%d", ShortTermMonths)
	case months <= MediumTermMonths:
		return fmt.Sprintf("%d-%d", ShortTermMonths+1, MediumTermMonths)
	case months <= LongTermMonths:
		return fmt.Sprintf("%d-%d", MediumTermMonths+1, LongTermMonths)
	default:
		return fmt.Sprintf(">%d", LongTermMonths)
	}
}
