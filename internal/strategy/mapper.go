package strategy

import (
	"fmt"
	"strings"
)

// contextRuleKeys maps keys the assistant emits in a payload's context object
// onto canonical rule labels and categories. Context values are free-form
// strings or numbers supplied by the LLM, so everything lands as inferred.
var contextRuleKeys = []struct {
	key      string
	label    string
	category RuleCategory
}{
	{key: "instrument", label: "Instrument", category: CategorySetup},
	{key: "symbol", label: "Instrument", category: CategorySetup},
	{key: "accountSize", label: "Account Size", category: CategoryRisk},
	{key: "riskPerTrade", label: "Position Sizing", category: CategoryRisk},
	{key: "positionSizing", label: "Position Sizing", category: CategoryRisk},
	{key: "drawdownLimit", label: "Drawdown Limit", category: CategoryRisk},
	{key: "dailyLossLimit", label: "Drawdown Limit", category: CategoryRisk},
	{key: "timeframe", label: "Timeframe", category: CategoryTimeframe},
	{key: "rangePeriod", label: "Range Period", category: CategoryTimeframe},
	{key: "emaPeriod", label: "EMA Period", category: CategoryEntry},
	{key: "lookbackPeriod", label: "Lookback Period", category: CategoryTimeframe},
	{key: "session", label: "Trading Session", category: CategoryTimeframe},
}

// ConfigToRules flattens a validated payload into strategy rules. The
// payload's own labels carry the display text; everything is marked inferred
// since it came from the assistant, not an explicit user choice.
func ConfigToRules(cfg *StrategyConfig) []StrategyRule {
	if cfg == nil {
		return nil
	}

	var rules []StrategyRule

	if cfg.Direction != "" {
		rules = append(rules, StrategyRule{
			Category: CategorySetup,
			Label:    "Direction",
			Value:    cfg.Direction,
			Source:   SourceInferred,
		})
	}

	if label := stringField(cfg.Entry, "label"); label != "" {
		rules = append(rules, StrategyRule{
			Category: CategoryEntry,
			Label:    "Entry Criteria",
			Value:    label,
			Source:   SourceInferred,
		})
	}

	if label := stringField(cfg.StopLoss, "label"); label != "" {
		rules = append(rules, StrategyRule{
			Category: CategoryRisk,
			Label:    "Stop Loss",
			Value:    label,
			Source:   SourceInferred,
		})
	}

	if label := stringField(cfg.Target, "label"); label != "" {
		rules = append(rules, StrategyRule{
			Category: CategoryExit,
			Label:    "Profit Target",
			Value:    label,
			Source:   SourceInferred,
		})
	}

	for _, mapping := range contextRuleKeys {
		value := anyToDisplayString(cfg.Context[mapping.key])
		if value == "" {
			continue
		}
		// Context keys may alias the same label (symbol vs instrument); the
		// first one present wins for this payload.
		if hasLabel(rules, mapping.label) {
			continue
		}
		rules = append(rules, StrategyRule{
			Category: mapping.category,
			Label:    mapping.label,
			Value:    value,
			Source:   SourceInferred,
		})
	}

	return rules
}

func hasLabel(rules []StrategyRule, label string) bool {
	for _, r := range rules {
		if strings.EqualFold(r.Label, label) {
			return true
		}
	}
	return false
}

func anyToDisplayString(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(value)
	case float64:
		if value == float64(int64(value)) {
			return fmt.Sprintf("%d", int64(value))
		}
		return fmt.Sprintf("%g", value)
	case bool:
		return fmt.Sprintf("%t", value)
	default:
		return fmt.Sprintf("%v", value)
	}
}
