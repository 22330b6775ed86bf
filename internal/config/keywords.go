package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dvloznov/subscription-radar/internal/detection"
)

// Keywords is the YAML shape of a keyword override file:
//
//	subscription: [NETFLIX, SPOTIFY]
//	non_subscription: [SWIGGY]
//	categories:
//	  - name: Entertainment
//	    keywords: [NETFLIX, SPOTIFY]
//
// Sections left out keep their built-in defaults.
type Keywords struct {
	Subscription    []string                 `yaml:"subscription"`
	NonSubscription []string                 `yaml:"non_subscription"`
	Categories      []detection.CategoryRule `yaml:"categories"`
}

// LoadKeywords returns the built-in tables when path is empty, otherwise
// the tables from the YAML file at path.
func LoadKeywords(path string) (detection.KeywordTables, error) {
	if path == "" {
		return detection.DefaultKeywordTables(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return detection.KeywordTables{}, fmt.Errorf("LoadKeywords: read %s: %w", path, err)
	}
	return ParseKeywords(data)
}

// ParseKeywords decodes a keyword override document.
func ParseKeywords(data []byte) (detection.KeywordTables, error) {
	var kw Keywords
	if err := yaml.Unmarshal(data, &kw); err != nil {
		return detection.KeywordTables{}, fmt.Errorf("ParseKeywords: decode yaml: %w", err)
	}
	for i, rule := range kw.Categories {
		if rule.Name == "" {
			return detection.KeywordTables{}, fmt.Errorf("ParseKeywords: category %d has no name", i)
		}
	}

	def := DefaultKeywords()
	if kw.Subscription == nil {
		kw.Subscription = def.Subscription
	}
	if kw.NonSubscription == nil {
		kw.NonSubscription = def.NonSubscription
	}
	if kw.Categories == nil {
		kw.Categories = def.Categories
	}
	return detection.NewKeywordTables(kw.Subscription, kw.NonSubscription, kw.Categories), nil
}

// DefaultKeywords exposes the built-in tables in file form.
func DefaultKeywords() Keywords {
	kt := detection.DefaultKeywordTables()
	return Keywords{
		Subscription:    kt.SubscriptionKeywords(),
		NonSubscription: kt.NonSubscriptionKeywords(),
		Categories:      kt.Categories(),
	}
}
