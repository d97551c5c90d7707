package sections

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Rule maps a heading pattern to the canonical name of a 10-K item.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// RuleSpec is the uncompiled form of a Rule, as written in a rules file.
type RuleSpec struct {
	Pattern string `yaml:"pattern"`
	Name    string `yaml:"name"`
}

// DefaultRuleSpecs lists one heading rule per 10-K item, in item order.
var DefaultRuleSpecs = []RuleSpec{
	{`ITEM\s*1\s*[\.—–\-]?\s*B?USINESS`, "Item 1 - Business"},
	{`ITEM\s*1\s*A\s*[\.—–\-]?\s*RISK\s*FACTORS?`, "Item 1A - Risk Factors"},
	{`ITEM\s*1\s*B\s*[\.—–\-]?\s*UNRESOLVED\s*STAFF\s*COMMENTS?`, "Item 1B - Unresolved Staff Comments"},
	{`ITEM\s*1\s*C\s*[\.—–\-]?\s*CYBERSECURITY`, "Item 1C - Cybersecurity"},
	{`ITEM\s*2\s*[\.—–\-]?\s*PROPERTIES`, "Item 2 - Properties"},
	{`ITEM\s*3\s*[\.—–\-]?\s*LEGAL\s*PROCEEDINGS?`, "Item 3 - Legal Proceedings"},
	{`ITEM\s*4\s*[\.—–\-]?\s*MINE\s*SAFETY`, "Item 4 - Mine Safety Disclosures"},
	{`ITEM\s*5\s*[\.—–\-]?\s*MARKET\s*FOR`, "Item 5 - Market Information"},
	{`ITEM\s*6\s*[\.—–\-]?\s*(?:\[?RESERVED\]?|SELECTED\s*FINANCIAL)`, "Item 6 - Selected Financial Data"},
	{`ITEM\s*7\s*[\.—–\-]?\s*MANAGEMENT`, "Item 7 - MD&A"},
	{`ITEM\s*7\s*A\s*[\.—–\-]?\s*QUANTITATIVE`, "Item 7A - Market Risk"},
	{`ITEM\s*8\s*[\.—–\-]?\s*FINANCIAL\s*STATEMENTS?`, "Item 8 - Financial Statements"},
	{`ITEM\s*9\s*[\.—–\-]?\s*CHANGES?\s*IN`, "Item 9 - Changes in Accountants"},
	{`ITEM\s*9\s*A\s*[\.—–\-]?\s*CONTROLS?\s*AND\s*PROCEDURES?`, "Item 9A - Controls and Procedures"},
	{`ITEM\s*9\s*B\s*[\.—–\-]?\s*OTHER\s*INFORMATION`, "Item 9B - Other Information"},
	{`ITEM\s*9\s*C\s*[\.—–\-]?\s*DISCLOSURE\s*REGARDING`, "Item 9C - Foreign Jurisdictions"},
}

// CompileRules compiles specs case-insensitively, keeping their order.
func CompileRules(specs []RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for i, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("rule %d: name is required", i)
		}
		re, err := regexp.Compile(`(?im)` + s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, s.Name, err)
		}
		rules = append(rules, Rule{Name: s.Name, Pattern: re})
	}
	return rules, nil
}

// DefaultRules returns the compiled default 10-K item rules.
func DefaultRules() []Rule {
	rules, err := CompileRules(DefaultRuleSpecs)
	if err != nil {
		panic(err)
	}
	return rules
}

// LoadRules reads an ordered YAML list of {pattern, name} entries.
// An empty path yields the default rules.
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read section rules: %w", err)
	}
	var specs []RuleSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse section rules: %w", err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("section rules file %s is empty", path)
	}
	return CompileRules(specs)
}
