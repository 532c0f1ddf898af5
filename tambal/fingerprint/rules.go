package fingerprint

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// Default classifier built from the embedded rules.yaml.
var Default = mustLoad(defaultRules)

// Rule maps a pattern to a category.
type Rule struct {
	Category string `yaml:"category"`
	Pattern  string `yaml:"pattern"`
}

type compiledRule struct {
	category string
	re       *regexp.Regexp
}

// Classifier assigns a coarse category to an error report.
// Rules are tried in order and the first match wins.
type Classifier struct {
	rules []compiledRule
}

func NewClassifier(rules []Rule) (*Classifier, error) {
	c := &Classifier{}
	for i, r := range rules {
		if r.Category == "" {
			return nil, fmt.Errorf("fingerprint rule %d: category is required", i)
		}
		re, err := regexp.Compile("(?i)" + r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("fingerprint rule %q: %w", r.Category, err)
		}
		c.rules = append(c.rules, compiledRule{category: r.Category, re: re})
	}
	return c, nil
}

// LoadRules reads a yaml list of rules.
func LoadRules(r io.Reader) (*Classifier, error) {
	var rules []Rule
	if err := yaml.NewDecoder(r).Decode(&rules); err != nil {
		return nil, fmt.Errorf("fingerprint decode rules: %w", err)
	}
	return NewClassifier(rules)
}

func mustLoad(b []byte) *Classifier {
	c, err := LoadRules(bytes.NewReader(b))
	if err != nil {
		panic(err)
	}
	return c
}

// Classify returns the category of the first rule matching text. Of feeds it
// the masked, not lowercased, text.
func (c *Classifier) Classify(text string) string {
	for _, r := range c.rules {
		if r.re.MatchString(text) {
			return r.category
		}
	}
	return CategoryUnknown
}

// Categories lists the rule categories in match order.
func (c *Classifier) Categories() []string {
	out := make([]string, 0, len(c.rules))
	for _, r := range c.rules {
		out = append(out, r.category)
	}
	return out
}
