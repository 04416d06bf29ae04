package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine() *CompletenessEngine {
	return NewCompletenessEngine(DefaultCompletenessConfig(), nil)
}

func coreRules() []StrategyRule {
	return []StrategyRule{
		{Category: CategorySetup, Label: "Direction", Value: "long", Source: SourceUser},
		{Category: CategorySetup, Label: "Instrument", Value: "ES", Source: SourceUser},
		{Category: CategoryEntry, Label: "Entry Criteria", Value: "break above opening range high", Source: SourceUser},
		{Category: CategoryRisk, Label: "Stop Loss", Value: "8 ticks", Source: SourceUser},
		{Category: CategoryExit, Label: "Profit Target", Value: "1:2", Source: SourceUser},
		{Category: CategoryRisk, Label: "Position Sizing", Value: "1% of account", Source: SourceUser},
	}
}

func TestEvaluate_VagueFirstTurnNeedsClarification(t *testing.T) {
	engine := newTestEngine()

	// Only instrument and direction out of the ema_pullback schema's eight
	// fields: below the clarify threshold, so nothing gets defaulted.
	rules := []StrategyRule{
		{Category: CategorySetup, Label: "Instrument", Value: "ES", Source: SourceInferred},
		{Category: CategorySetup, Label: "Direction", Value: "long", Source: SourceInferred},
	}

	report := engine.Evaluate(PatternEMAPullback, rules, true)

	assert.True(t, report.NeedsClarification)
	assert.Empty(t, report.Defaults)
	assert.Equal(t, 2, report.CoreSatisfied)
	assert.Equal(t, 6, report.CoreTotal)
	assert.Equal(t, 29, report.CompletionScore)

	missing := missingLabels(report.RequiredMissing)
	assert.ElementsMatch(t, []string{"Entry Criteria", "Stop Loss", "Profit Target", "Position Sizing", "EMA Period"}, missing)
	assert.Len(t, report.Prompts, len(missing))
}

func TestEvaluate_SameInputLaterTurnDefaultsEMAPeriod(t *testing.T) {
	engine := newTestEngine()

	rules := []StrategyRule{
		{Category: CategorySetup, Label: "Instrument", Value: "ES", Source: SourceInferred},
		{Category: CategorySetup, Label: "Direction", Value: "long", Source: SourceInferred},
	}

	report := engine.Evaluate(PatternEMAPullback, rules, false)

	assert.False(t, report.NeedsClarification)
	require.NotEmpty(t, report.Defaults)

	ema := findDefault(t, report.Defaults, "EMA Period")
	assert.Equal(t, "20", ema.Value)
	assert.True(t, ema.IsDefaulted)
	assert.Equal(t, SourceDefault, ema.Source)
	assert.NotEmpty(t, ema.Explanation)

	assert.NotContains(t, missingLabels(report.RequiredMissing), "EMA Period")
}

func TestEvaluate_DollarRiskFieldsAlwaysPrompt(t *testing.T) {
	engine := newTestEngine()

	rules := []StrategyRule{
		{Category: CategorySetup, Label: "Direction", Value: "long", Source: SourceUser},
		{Category: CategorySetup, Label: "Instrument", Value: "ES", Source: SourceUser},
		{Category: CategoryEntry, Label: "Entry Criteria", Value: "pullback to EMA", Source: SourceUser},
	}

	report := engine.Evaluate(PatternEMAPullback, rules, false)

	missing := missingLabels(report.RequiredMissing)
	assert.Contains(t, missing, "Stop Loss")
	assert.Contains(t, missing, "Profit Target")
	assert.Contains(t, missing, "Position Sizing")

	for _, def := range report.Defaults {
		assert.NotEqual(t, "Stop Loss", def.Label)
		assert.NotEqual(t, "Profit Target", def.Label)
		assert.NotEqual(t, "Position Sizing", def.Label)
	}
}

func TestEvaluate_FullCoreReachesFullScore(t *testing.T) {
	engine := newTestEngine()

	report := engine.Evaluate(PatternEMAPullback, coreRules(), false)

	// ema_period is defaulted and counts as satisfied.
	assert.Equal(t, 100, report.CompletionScore)
	assert.Equal(t, 6, report.CoreSatisfied)
	assert.Empty(t, report.RequiredMissing)
	assert.Empty(t, report.Prompts)
}

func TestEvaluate_ORBRangePeriodPrompts(t *testing.T) {
	engine := newTestEngine()

	report := engine.Evaluate(PatternOpeningRangeBreakout, coreRules(), false)

	missing := missingLabels(report.RequiredMissing)
	assert.Equal(t, []string{"Range Period"}, missing)

	require.Len(t, report.Prompts, 1)
	assert.Equal(t, "range_period", report.Prompts[0].Field)
	assert.Equal(t, []string{"5 minutes", "15 minutes", "30 minutes", "60 minutes"}, report.Prompts[0].Options)

	// The two recommended ORB fields are defaulted, not reported missing.
	labels := []string{}
	for _, def := range report.Defaults {
		labels = append(labels, def.Label)
	}
	assert.ElementsMatch(t, []string{"Breakout Confirmation", "Trading Session"}, labels)
	assert.Empty(t, report.RecommendedMissing)
}

func TestEvaluate_ScoreMonotonicUnderNewRules(t *testing.T) {
	engine := newTestEngine()

	rules := []StrategyRule{}
	prev := -1
	for _, rule := range coreRules() {
		rules = append(rules, rule)
		report := engine.Evaluate(PatternBreakout, rules, false)
		assert.GreaterOrEqual(t, report.CompletionScore, prev,
			"score dropped after adding %s", rule.Label)
		prev = report.CompletionScore
	}
}

func TestEvaluate_ClarifyThresholdConfigurable(t *testing.T) {
	engine := NewCompletenessEngine(CompletenessConfig{ClarifyThreshold: 0.10}, nil)

	rules := []StrategyRule{
		{Category: CategorySetup, Label: "Instrument", Value: "ES", Source: SourceInferred},
		{Category: CategorySetup, Label: "Direction", Value: "long", Source: SourceInferred},
	}

	report := engine.Evaluate(PatternEMAPullback, rules, true)

	// 2 of 8 fields is above a 10% threshold, so defaulting proceeds even on
	// the first turn.
	assert.False(t, report.NeedsClarification)
	assert.NotContains(t, missingLabels(report.RequiredMissing), "EMA Period")
}

func TestEvaluate_UnsupportedPattern(t *testing.T) {
	engine := newTestEngine()

	report := engine.Evaluate(PatternUnsupported, coreRules(), false)

	assert.Equal(t, PatternUnsupported, report.Pattern)
	assert.Equal(t, 0, report.CompletionScore)
	assert.Empty(t, report.RequiredMissing)
}

func TestCompletionScore_Bounds(t *testing.T) {
	assert.Equal(t, 0, completionScore(0, 0))
	assert.Equal(t, 0, completionScore(0, 7))
	assert.Equal(t, 29, completionScore(2, 7))
	assert.Equal(t, 100, completionScore(7, 7))
	assert.Equal(t, 100, completionScore(9, 7))
}

func missingLabels(issues []ValidationIssue) []string {
	labels := make([]string, 0, len(issues))
	for _, issue := range issues {
		labels = append(labels, issue.Label)
	}
	return labels
}

func findDefault(t *testing.T, defaults []StrategyRule, label string) StrategyRule {
	t.Helper()
	for _, def := range defaults {
		if def.Label == label {
			return def
		}
	}
	t.Fatalf("no default for %s", label)
	return StrategyRule{}
}
