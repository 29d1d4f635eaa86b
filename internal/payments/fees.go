package payments

import (
	"fmt"
	"os"
	"path/filepath"

	"invest-engine-go/internal/models"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// FeeTable is the published, versioned rate table. The version travels
// with every computed fee breakdown so historical transactions stay
// explainable after a rate change.
type FeeTable struct {
	Version  string `yaml:"version"`
	Platform struct {
		Percent string `yaml:"percent"`
		Minimum string `yaml:"minimum"`
	} `yaml:"platform"`
	Processors []ProcessorRate `yaml:"processors"`

	platformPercent decimal.Decimal
	platformMinimum decimal.Decimal
	rates           map[string]compiledRate
}

// ProcessorRate is one processor's published fee schedule.
type ProcessorRate struct {
	Name    string `yaml:"name"`
	Percent string `yaml:"percent"`
	Fixed   string `yaml:"fixed"`
}

type compiledRate struct {
	percent decimal.Decimal
	fixed   decimal.Decimal
}

// LoadFeeTable reads and validates a fee table file.
func LoadFeeTable(feesFile string) (*FeeTable, error) {
	var feesPath string
	if filepath.IsAbs(feesFile) {
		feesPath = feesFile
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		feesPath = filepath.Join(wd, feesFile)
	}

	data, err := os.ReadFile(feesPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", feesFile, err)
	}

	var table FeeTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", feesFile, err)
	}
	if err := table.compile(); err != nil {
		return nil, fmt.Errorf("invalid fee table in %s: %w", feesFile, err)
	}
	return &table, nil
}

func (t *FeeTable) compile() error {
	if t.Version == "" {
		return fmt.Errorf("fee table version missing")
	}
	var err error
	if t.platformPercent, err = decimal.NewFromString(t.Platform.Percent); err != nil {
		return fmt.Errorf("invalid platform percent %q: %w", t.Platform.Percent, err)
	}
	if t.platformMinimum, err = decimal.NewFromString(t.Platform.Minimum); err != nil {
		return fmt.Errorf("invalid platform minimum %q: %w", t.Platform.Minimum, err)
	}
	t.rates = make(map[string]compiledRate, len(t.Processors))
	for i, p := range t.Processors {
		if p.Name == "" {
			return fmt.Errorf("processor rate at index %d missing name", i)
		}
		percent, err := decimal.NewFromString(p.Percent)
		if err != nil {
			return fmt.Errorf("invalid percent for processor %s: %w", p.Name, err)
		}
		fixed, err := decimal.NewFromString(p.Fixed)
		if err != nil {
			return fmt.Errorf("invalid fixed fee for processor %s: %w", p.Name, err)
		}
		t.rates[p.Name] = compiledRate{percent: percent, fixed: fixed}
	}
	return nil
}

var oneHundred = decimal.NewFromInt(100)

// Compute returns the fee breakdown for charging amount through the named
// processor. Platform fee is a percentage with a floor; processor fee is
// the processor's published percent plus fixed component.
func (t *FeeTable) Compute(processorName string, amount decimal.Decimal) (models.FeeBreakdown, error) {
	rate, ok := t.rates[processorName]
	if !ok {
		return models.FeeBreakdown{}, fmt.Errorf("no fee rate published for processor %s (version %s)", processorName, t.Version)
	}

	platformFee := amount.Mul(t.platformPercent).Div(oneHundred).Round(2)
	if platformFee.LessThan(t.platformMinimum) {
		platformFee = t.platformMinimum
	}
	processorFee := amount.Mul(rate.percent).Div(oneHundred).Add(rate.fixed).Round(2)

	net := amount.Sub(platformFee).Sub(processorFee)
	if net.LessThanOrEqual(decimal.Zero) {
		return models.FeeBreakdown{}, fmt.Errorf("fees %s exceed amount %s for processor %s",
			platformFee.Add(processorFee).String(), amount.String(), processorName)
	}

	return models.FeeBreakdown{
		PlatformFee:  platformFee,
		ProcessorFee: processorFee,
		NetAmount:    net,
		RateVersion:  t.Version,
	}, nil
}
