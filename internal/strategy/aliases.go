package strategy

import "strings"

// labelAliases maps each canonical field label to the phrasings the LLM is
// known to produce for the same semantic field. Matching is case-insensitive
// bidirectional substring matching against the canonical label and every
// alias, so "Opening Range Period" satisfies "Range Period" and vice versa.
var labelAliases = map[string][]string{
	"Direction": {
		"Bias", "Trade Direction", "Side",
	},
	"Instrument": {
		"Symbol", "Market", "Contract", "Ticker", "Product",
	},
	"Entry Criteria": {
		"Entry", "Entry Trigger", "Entry Rules", "Entry Signal", "Entry Condition",
	},
	"Stop Loss": {
		"Stop-Loss", "Stop Placement", "Initial Stop", "Stop Distance", "Protective Stop",
	},
	"Profit Target": {
		"Take Profit", "Target", "Profit Taking", "Exit Target", "Take-Profit",
	},
	"Position Sizing": {
		"Position Size", "Sizing", "Risk Per Trade", "Contracts Per Trade",
	},
	"Range Period": {
		"Opening Range Period", "OR Period", "Range Duration", "Opening Range",
	},
	"EMA Period": {
		"EMA Length", "Moving Average Period", "MA Period", "EMA Setting",
	},
	"Lookback Period": {
		"Lookback", "Breakout Lookback", "Channel Period", "Lookback Bars",
	},
	"Breakout Confirmation": {
		"Confirmation", "Close Confirmation", "Breakout Filter",
	},
	"Trend Filter": {
		"Trend Condition", "Trend Requirement",
	},
	"Trading Session": {
		"Session", "Session Filter", "Market Hours",
	},
	"Account Size": {
		"Account", "Capital", "Account Balance", "Starting Capital",
	},
	"Drawdown Limit": {
		"Daily Loss Limit", "Max Drawdown", "Max Daily Loss", "Loss Limit",
	},
}

// LabelMatches reports whether a candidate label refers to the same semantic
// field as the canonical label. It is the single entry point for fuzzy label
// matching; aliasing mistakes silently misclassify user intent, so every
// pattern's labels get exhaustive coverage in the tests.
func LabelMatches(canonical, candidate string) bool {
	cand := normalizeLabel(candidate)
	if cand == "" {
		return false
	}

	if substringEither(normalizeLabel(canonical), cand) {
		return true
	}
	for _, alias := range labelAliases[canonical] {
		if substringEither(normalizeLabel(alias), cand) {
			return true
		}
	}
	return false
}

// FindRule returns the first rule whose label matches the canonical label
// through the alias table.
func FindRule(rules []StrategyRule, canonicalLabel string) (StrategyRule, bool) {
	for _, rule := range rules {
		if LabelMatches(canonicalLabel, rule.Label) {
			return rule, true
		}
	}
	return StrategyRule{}, false
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

func substringEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
