package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"loan-risk/domain"
)

// RulesFile is the on-disk shape of the risk rules configuration.
type RulesFile struct {
	Thresholds domain.RiskThresholds `yaml:"thresholds"`
	Bindings   map[string]string     `yaml:"bindings"`
	Rules      domain.RuleTable      `yaml:"rules"`
}

var knownAttributes = map[domain.Attribute]bool{
	domain.AttributeCustomerType:  true,
	domain.AttributeGender:        true,
	domain.AttributeMaritalStatus: true,
	domain.AttributeProductCode:   true,
	domain.AttributeAgeBand:       true,
	domain.AttributeTermBand:      true,
}

// DefaultBindings binds the categories of the reference rule sheet.
func DefaultBindings() domain.RuleBindings {
	return domain.RuleBindings{
		"Forme Juridique du B.EFFECTIF": domain.AttributeCustomerType,
		"Genre":                         domain.AttributeGender,
		"Situation familiale":           domain.AttributeMaritalStatus,
	}
}

// DefaultThresholds are used when the rules file has no thresholds section.
func DefaultThresholds() domain.RiskThresholds {
	return domain.RiskThresholds{
		string(domain.RiskLow):    3,
		string(domain.RiskMedium): 7,
		string(domain.RiskHigh):   12,
	}
}

// ValidateThresholds requires exactly the keys low, medium and high with
// strictly ascending cutoffs.
func ValidateThresholds(t domain.RiskThresholds) error {
	return t.Validate()
}

// ParseRules validates raw rules YAML.
func ParseRules(data []byte) (*domain.RiskRules, error) {
	var f RulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal rules")
	}

	if f.Thresholds == nil {
		f.Thresholds = DefaultThresholds()
	}
	if err := ValidateThresholds(f.Thresholds); err != nil {
		return nil, err
	}

	if len(f.Rules) == 0 {
		return nil, errors.New("rules: at least one category is required")
	}

	bindings := DefaultBindings()
	if len(f.Bindings) > 0 {
		bindings = domain.RuleBindings{}
		for category, attr := range f.Bindings {
			a := domain.Attribute(attr)
			if !knownAttributes[a] {
				return nil, errors.Errorf("bindings: category %q bound to unknown attribute %q", category, attr)
			}
			bindings[category] = a
		}
	}

	return &domain.RiskRules{
		Thresholds: f.Thresholds,
		Bindings:   bindings,
		Table:      f.Rules,
	}, nil
}

// LoadRules reads and validates the rules file at path.
func LoadRules(path string) (*domain.RiskRules, error) {
	// #nosec G304 -- path comes from operator config.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read rules file %s", path)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid rules file %s", path)
	}
	return rules, nil
}
