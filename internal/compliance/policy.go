package compliance

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// Policy is the eligibility and risk-scoring configuration, loaded once
// at startup and treated as read-only afterwards.
type Policy struct {
	Version                   string   `yaml:"version"`
	LargeTransactionThreshold string   `yaml:"large_transaction_threshold"`
	PerInvestmentLimit        string   `yaml:"per_investment_limit"`
	AnnualInvestmentLimit     string   `yaml:"annual_investment_limit"`
	RestrictedCountries       []string `yaml:"restricted_countries"`

	largeThreshold decimal.Decimal
	perLimit       decimal.Decimal
	annualLimit    decimal.Decimal
	restricted     map[string]bool
}

// LoadPolicy reads and validates a policy file.
func LoadPolicy(policyFile string) (*Policy, error) {
	var policyPath string
	if filepath.IsAbs(policyFile) {
		policyPath = policyFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		policyPath = filepath.Join(wd, policyFile)
	}

	data, err := os.ReadFile(policyPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", policyFile, err)
	}

	var policy Policy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", policyFile, err)
	}
	if err := policy.compile(); err != nil {
		return nil, fmt.Errorf("invalid policy in %s: %w", policyFile, err)
	}
	return &policy, nil
}

func (p *Policy) compile() error {
	if p.Version == "" {
		return fmt.Errorf("policy version missing")
	}
	var err error
	if p.largeThreshold, err = decimal.NewFromString(p.LargeTransactionThreshold); err != nil {
		return fmt.Errorf("invalid large_transaction_threshold %q: %w", p.LargeTransactionThreshold, err)
	}
	if p.perLimit, err = decimal.NewFromString(p.PerInvestmentLimit); err != nil {
		return fmt.Errorf("invalid per_investment_limit %q: %w", p.PerInvestmentLimit, err)
	}
	if p.annualLimit, err = decimal.NewFromString(p.AnnualInvestmentLimit); err != nil {
		return fmt.Errorf("invalid annual_investment_limit %q: %w", p.AnnualInvestmentLimit, err)
	}
	p.restricted = make(map[string]bool, len(p.RestrictedCountries))
	for _, country := range p.RestrictedCountries {
		p.restricted[strings.ToUpper(country)] = true
	}
	return nil
}

// Restricted reports whether a country code is on the restriction list.
func (p *Policy) Restricted(country string) bool {
	return p.restricted[strings.ToUpper(country)]
}
