package strategy

import "strings"

// CanonicalPattern is one of the fixed set of strategy archetypes the system
// can formally validate. Patterns are immutable reference data.
type CanonicalPattern string

const (
	PatternOpeningRangeBreakout CanonicalPattern = "opening_range_breakout"
	PatternEMAPullback          CanonicalPattern = "ema_pullback"
	PatternBreakout             CanonicalPattern = "breakout"

	// PatternUnsupported is a routed outcome, not an error: the caller offers
	// alternatives and a waitlist capture.
	PatternUnsupported CanonicalPattern = "unsupported"
)

// SupportedPatterns returns the closed set of formally supported patterns.
func SupportedPatterns() []CanonicalPattern {
	return []CanonicalPattern{
		PatternOpeningRangeBreakout,
		PatternEMAPullback,
		PatternBreakout,
	}
}

// DetectPattern resolves a pattern identifier against the closed set. The
// identifier comes from assistant classification or explicit user selection;
// no NLP happens here. Anything outside the set maps to PatternUnsupported.
func DetectPattern(identifier string) CanonicalPattern {
	normalized := normalizeIdentifier(identifier)
	for _, p := range SupportedPatterns() {
		if normalized == string(p) {
			return p
		}
	}
	return PatternUnsupported
}

func normalizeIdentifier(identifier string) string {
	s := strings.ToLower(strings.TrimSpace(identifier))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}

// FieldSpec describes one field of a pattern's schema. Defaultable marks the
// hand-maintained classification of whether the system may fill the field
// silently; fields with direct dollar-risk consequences are never defaultable
// and must be answered by the user.
type FieldSpec struct {
	Field              string       `json:"field"`
	Label              string       `json:"label"`
	Category           RuleCategory `json:"category"`
	Required           bool         `json:"required"`
	Defaultable        bool         `json:"defaultable"`
	DefaultValue       string       `json:"default_value,omitempty"`
	DefaultExplanation string       `json:"-"`
	Options            []string     `json:"options,omitempty"`
}

// coreFields are required across all three patterns.
var coreFields = []FieldSpec{
	{Field: "direction", Label: "Direction", Category: CategorySetup, Required: true,
		Options: []string{"long", "short"}},
	{Field: "instrument", Label: "Instrument", Category: CategorySetup, Required: true,
		Options: []string{"ES", "MES", "NQ", "MNQ", "YM", "MYM", "CL", "MCL", "GC", "MGC"}},
	{Field: "entry_criteria", Label: "Entry Criteria", Category: CategoryEntry, Required: true},
	{Field: "stop_loss", Label: "Stop Loss", Category: CategoryRisk, Required: true},
	{Field: "profit_target", Label: "Profit Target", Category: CategoryExit, Required: true},
	{Field: "position_sizing", Label: "Position Sizing", Category: CategoryRisk, Required: true},
}

var patternFields = map[CanonicalPattern][]FieldSpec{
	PatternOpeningRangeBreakout: {
		{Field: "range_period", Label: "Range Period", Category: CategoryTimeframe, Required: true,
			Options: []string{"5 minutes", "15 minutes", "30 minutes", "60 minutes"}},
		{Field: "breakout_confirmation", Label: "Breakout Confirmation", Category: CategoryFilters,
			Defaultable: true, DefaultValue: "candle close beyond the range",
			DefaultExplanation: "Waiting for a full candle close beyond the range filters most false breaks."},
		{Field: "trading_session", Label: "Trading Session", Category: CategoryTimeframe,
			Defaultable: true, DefaultValue: "regular trading hours",
			DefaultExplanation: "Opening-range setups assume the regular session open."},
	},
	PatternEMAPullback: {
		{Field: "ema_period", Label: "EMA Period", Category: CategoryEntry, Required: true,
			Defaultable: true, DefaultValue: "20",
			DefaultExplanation: "The 20-period EMA is the conventional pullback anchor.",
			Options:            []string{"9", "20", "50", "200"}},
		{Field: "trend_filter", Label: "Trend Filter", Category: CategoryFilters,
			Defaultable: true, DefaultValue: "price above the EMA for longs, below for shorts",
			DefaultExplanation: "Pullback entries only make sense with the prevailing trend."},
	},
	PatternBreakout: {
		{Field: "lookback_period", Label: "Lookback Period", Category: CategoryTimeframe, Required: true,
			Defaultable: true, DefaultValue: "20 bars",
			DefaultExplanation: "A 20-bar channel is the standard breakout lookback."},
		{Field: "breakout_confirmation", Label: "Breakout Confirmation", Category: CategoryFilters,
			Defaultable: true, DefaultValue: "candle close beyond the level",
			DefaultExplanation: "Waiting for a close beyond the level filters most false breaks."},
	},
}

// PatternSchema returns the ordered field schema for a supported pattern:
// the pattern-independent core fields followed by the pattern's own fields.
// The second return is false for unsupported patterns.
func PatternSchema(p CanonicalPattern) ([]FieldSpec, bool) {
	specific, ok := patternFields[p]
	if !ok {
		return nil, false
	}
	schema := make([]FieldSpec, 0, len(coreFields)+len(specific))
	schema = append(schema, coreFields...)
	schema = append(schema, specific...)
	return schema, true
}

// FieldMeta is the display metadata shown to the user for one field. It is
// pure reference data kept in lockstep with the field schema; the lockstep is
// enforced by tests, not at runtime.
type FieldMeta struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Options     []string `json:"options,omitempty"`
}

var coreFieldMeta = map[string]FieldMeta{
	"direction": {
		Title:       "Direction",
		Description: "Whether the strategy trades long, short, or mirrors the setup both ways.",
		Options:     []string{"long", "short"},
	},
	"instrument": {
		Title:       "Instrument",
		Description: "The futures contract the strategy trades.",
		Options:     []string{"ES", "MES", "NQ", "MNQ", "YM", "MYM", "CL", "MCL", "GC", "MGC"},
	},
	"entry_criteria": {
		Title:       "Entry Criteria",
		Description: "The exact condition that triggers an entry order.",
	},
	"stop_loss": {
		Title:       "Stop Loss",
		Description: "Where the protective stop sits relative to the entry.",
	},
	"profit_target": {
		Title:       "Profit Target",
		Description: "Where profits are taken, as a price level, distance, or R multiple.",
	},
	"position_sizing": {
		Title:       "Position Sizing",
		Description: "How much is risked per trade, usually a percentage of the account.",
	},
}

var patternFieldMeta = map[CanonicalPattern]map[string]FieldMeta{
	PatternOpeningRangeBreakout: {
		"range_period": {
			Title:       "Range Period",
			Description: "How many minutes after the open define the opening range.",
			Options:     []string{"5 minutes", "15 minutes", "30 minutes", "60 minutes"},
		},
		"breakout_confirmation": {
			Title:       "Breakout Confirmation",
			Description: "What has to happen beyond the range before the entry fires.",
		},
		"trading_session": {
			Title:       "Trading Session",
			Description: "Which session's open anchors the range.",
		},
	},
	PatternEMAPullback: {
		"ema_period": {
			Title:       "EMA Period",
			Description: "The length of the exponential moving average the price pulls back to.",
			Options:     []string{"9", "20", "50", "200"},
		},
		"trend_filter": {
			Title:       "Trend Filter",
			Description: "The condition that establishes the trend before a pullback entry.",
		},
	},
	PatternBreakout: {
		"lookback_period": {
			Title:       "Lookback Period",
			Description: "How many bars back define the high/low being broken.",
		},
		"breakout_confirmation": {
			Title:       "Breakout Confirmation",
			Description: "What has to happen beyond the level before the entry fires.",
		},
	},
}

// PatternFieldMeta returns the display metadata for every field of a
// supported pattern, keyed by field identifier.
func PatternFieldMeta(p CanonicalPattern) (map[string]FieldMeta, bool) {
	specific, ok := patternFieldMeta[p]
	if !ok {
		return nil, false
	}
	out := make(map[string]FieldMeta, len(coreFieldMeta)+len(specific))
	for k, v := range coreFieldMeta {
		out[k] = v
	}
	for k, v := range specific {
		out[k] = v
	}
	return out, true
}

// patternSimilarity maps unsupported identifiers to the two closest supported
// patterns. Static reference data; every entry must name supported patterns
// only (test-enforced).
var patternSimilarity = map[string][2]CanonicalPattern{
	"macd_histogram":  {PatternEMAPullback, PatternBreakout},
	"vwap_bounce":     {PatternEMAPullback, PatternOpeningRangeBreakout},
	"mean_reversion":  {PatternEMAPullback, PatternBreakout},
	"momentum":        {PatternBreakout, PatternOpeningRangeBreakout},
	"range_scalping":  {PatternOpeningRangeBreakout, PatternBreakout},
	"trend_following": {PatternEMAPullback, PatternBreakout},
}

var defaultAlternatives = [2]CanonicalPattern{PatternBreakout, PatternOpeningRangeBreakout}

// SuggestAlternatives returns the two closest supported patterns for an
// unsupported identifier. For a supported identifier it returns the other two
// supported patterns.
func SuggestAlternatives(identifier string) []CanonicalPattern {
	normalized := normalizeIdentifier(identifier)

	if detected := DetectPattern(normalized); detected != PatternUnsupported {
		var others []CanonicalPattern
		for _, p := range SupportedPatterns() {
			if p != detected {
				others = append(others, p)
			}
		}
		return others
	}

	if pair, ok := patternSimilarity[normalized]; ok {
		return []CanonicalPattern{pair[0], pair[1]}
	}
	return []CanonicalPattern{defaultAlternatives[0], defaultAlternatives[1]}
}
