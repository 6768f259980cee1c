package rules

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Options configure the rule engine.
type Options struct {
	UnusualAmountThreshold float64  `yaml:"unusual_amount_threshold"`
	DateGapThreshold       int      `yaml:"date_gap_threshold_days"`
	KnownCategories        []string `yaml:"known_categories"`
	CheckDuplicates        bool     `yaml:"check_duplicates"`
	CheckAmounts           bool     `yaml:"check_amounts"`
	CheckCategories        bool     `yaml:"check_categories"`
	CheckDateGaps          bool     `yaml:"check_date_gaps"`
}

// DefaultOptions returns the built-in settings: a 10,000 amount threshold,
// a 90 day gap threshold, 25 common categories and every check enabled.
func DefaultOptions() Options {
	var opts Options
	if err := yaml.Unmarshal(defaultRulesYAML, &opts); err != nil {
		panic(fmt.Sprintf("rules: embedded rules.yaml is invalid: %v", err))
	}
	return opts
}

// LoadOptions reads a YAML file and applies it over the defaults. Keys
// missing from the file keep their default values.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path == "" {
		return opts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("LoadOptions: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return Options{}, fmt.Errorf("LoadOptions: parsing %s: %w", path, err)
	}
	if opts.UnusualAmountThreshold < 0 || opts.DateGapThreshold < 0 {
		return Options{}, fmt.Errorf("LoadOptions: thresholds must not be negative")
	}
	return opts, nil
}
