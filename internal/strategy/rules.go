// Package strategy implements the rule extraction and validation pipeline:
// tagged-block extraction from assistant text, canonical pattern mapping,
// completeness scoring with safe defaulting, and risk/structure validation.
package strategy

import (
	"fmt"
	"strings"
)

// RuleCategory classifies a strategy rule by the part of the strategy it describes.
type RuleCategory string

const (
	CategorySetup     RuleCategory = "setup"
	CategoryEntry     RuleCategory = "entry"
	CategoryExit      RuleCategory = "exit"
	CategoryRisk      RuleCategory = "risk"
	CategoryTimeframe RuleCategory = "timeframe"
	CategoryFilters   RuleCategory = "filters"
)

// RuleSource records who supplied a rule's value.
type RuleSource string

const (
	SourceUser     RuleSource = "user"
	SourceDefault  RuleSource = "default"
	SourceInferred RuleSource = "inferred"
)

// StrategyRule is one semantic fact about the strategy draft.
type StrategyRule struct {
	Category    RuleCategory `json:"category"`
	Label       string       `json:"label"`
	Value       string       `json:"value"`
	IsDefaulted bool         `json:"is_defaulted"`
	Source      RuleSource   `json:"source"`
	Explanation string       `json:"explanation,omitempty"`
}

// ValidCategory reports whether c is one of the six enumerated categories.
func ValidCategory(c RuleCategory) bool {
	switch c {
	case CategorySetup, CategoryEntry, CategoryExit, CategoryRisk, CategoryTimeframe, CategoryFilters:
		return true
	}
	return false
}

// ErrInvalidCategory indicates a rule carried a category outside the enumerated set.
type ErrInvalidCategory struct {
	Category RuleCategory
}

func (e ErrInvalidCategory) Error() string {
	return fmt.Sprintf("invalid rule category: %q", string(e.Category))
}

// RuleSet accumulates strategy rules in strict arrival order. Labels are
// unique: a later rule with the same label overwrites the earlier one in
// place, so a user correction always overrides an earlier default.
type RuleSet struct {
	rules []StrategyRule
}

// NewRuleSet returns an empty rule set.
func NewRuleSet() *RuleSet {
	return &RuleSet{}
}

// Upsert applies one rule with last-write-wins semantics per label.
// Label identity is case-insensitive.
func (rs *RuleSet) Upsert(rule StrategyRule) error {
	if !ValidCategory(rule.Category) {
		return ErrInvalidCategory{Category: rule.Category}
	}
	if strings.TrimSpace(rule.Label) == "" {
		return fmt.Errorf("rule label must not be empty")
	}

	for i := range rs.rules {
		if strings.EqualFold(rs.rules[i].Label, rule.Label) {
			rs.rules[i] = rule
			return nil
		}
	}
	rs.rules = append(rs.rules, rule)
	return nil
}

// UpsertAll applies rules in order, stopping at the first invalid one.
func (rs *RuleSet) UpsertAll(rules []StrategyRule) error {
	for _, rule := range rules {
		if err := rs.Upsert(rule); err != nil {
			return err
		}
	}
	return nil
}

// Find returns the rule with the given label, matched case-insensitively.
func (rs *RuleSet) Find(label string) (StrategyRule, bool) {
	for _, rule := range rs.rules {
		if strings.EqualFold(rule.Label, label) {
			return rule, true
		}
	}
	return StrategyRule{}, false
}

// Rules returns a copy of the accumulated rules in arrival order.
func (rs *RuleSet) Rules() []StrategyRule {
	out := make([]StrategyRule, len(rs.rules))
	copy(out, rs.rules)
	return out
}

// Len returns the number of distinct rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Reset discards all accumulated rules.
func (rs *RuleSet) Reset() {
	rs.rules = nil
}
