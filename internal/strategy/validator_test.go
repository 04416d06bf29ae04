package strategy

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestValidator() *Validator {
	return NewValidator(DefaultValidatorConfig(), nil)
}

func newTestPipeline() *Pipeline {
	return NewPipeline(newTestEngine(), newTestValidator())
}

// orbRules is the reference scenario: ES opening range breakout, $50k
// account, 1% risk, 8-tick stop, 1:2 target.
func orbRules() []StrategyRule {
	return append(coreRules(), StrategyRule{
		Category: CategoryTimeframe, Label: "Range Period", Value: "15 minutes", Source: SourceUser,
	}, StrategyRule{
		Category: CategoryRisk, Label: "Account Size", Value: "$50,000", Source: SourceUser,
	})
}

func withRule(rules []StrategyRule, label, value string) []StrategyRule {
	out := make([]StrategyRule, 0, len(rules)+1)
	replaced := false
	for _, rule := range rules {
		if strings.EqualFold(rule.Label, label) {
			rule.Value = value
			replaced = true
		}
		out = append(out, rule)
	}
	if !replaced {
		out = append(out, StrategyRule{Category: CategoryRisk, Label: label, Value: value, Source: SourceUser})
	}
	return out
}

func TestValidator_ESOpeningRangeSizing(t *testing.T) {
	v := newTestValidator()

	errors, warnings, sizing := v.Check(orbRules())

	assert.Empty(t, errors)
	assert.Empty(t, warnings)
	require.NotNil(t, sizing)

	assert.Equal(t, "ES", sizing.Instrument)
	assert.True(t, sizing.AccountSize.Equal(decimal.NewFromInt(50000)))
	assert.True(t, sizing.RiskPercent.Equal(decimal.NewFromInt(1)))
	assert.True(t, sizing.RiskAmount.Equal(decimal.NewFromInt(500)), "risk amount %s", sizing.RiskAmount)
	assert.True(t, sizing.RiskPerContract.Equal(decimal.NewFromInt(100)), "risk per contract %s", sizing.RiskPerContract)
	assert.Equal(t, int64(5), sizing.Contracts)
}

func TestValidator_Idempotent(t *testing.T) {
	v := newTestValidator()
	rules := withRule(orbRules(), "Position Sizing", "6% of account")

	errors1, warnings1, sizing1 := v.Check(rules)
	errors2, warnings2, sizing2 := v.Check(rules)

	assert.Equal(t, errors1, errors2)
	assert.Equal(t, warnings1, warnings2)
	assert.Equal(t, sizing1, sizing2)
}

func TestValidator_ExcessiveRiskBlocks(t *testing.T) {
	v := newTestValidator()

	errors, _, _ := v.Check(withRule(orbRules(), "Position Sizing", "6% of account"))

	require.Len(t, errors, 1)
	assert.Equal(t, "position_sizing", errors[0].Field)
	assert.Contains(t, errors[0].Message, "extremely aggressive")
	assert.Contains(t, errors[0].Message, "6%")
	assert.Contains(t, errors[0].Suggestion, "1-2%")
}

func TestValidator_ElevatedRiskWarns(t *testing.T) {
	v := newTestValidator()

	errors, warnings, _ := v.Check(withRule(orbRules(), "Position Sizing", "3% risk per trade"))

	assert.Empty(t, errors)
	require.Len(t, warnings, 1)
	assert.Equal(t, "position_sizing", warnings[0].Field)
	assert.Contains(t, warnings[0].Message, "aggressive")
}

func TestValidator_MissingStopLoss(t *testing.T) {
	v := newTestValidator()

	rules := []StrategyRule{
		{Category: CategorySetup, Label: "Direction", Value: "long", Source: SourceUser},
		{Category: CategorySetup, Label: "Instrument", Value: "ES", Source: SourceUser},
	}
	errors, _, sizing := v.Check(rules)

	assert.Nil(t, sizing)
	require.Len(t, errors, 1)
	assert.Equal(t, "stop_loss", errors[0].Field)
	assert.Equal(t, "Stop-loss is required.", errors[0].Message)
}

func TestValidator_LowRiskRewardWarns(t *testing.T) {
	v := newTestValidator()

	_, warnings, _ := v.Check(withRule(orbRules(), "Profit Target", "1:1"))

	require.Len(t, warnings, 1)
	assert.Equal(t, "profit_target", warnings[0].Field)
	assert.Contains(t, warnings[0].Message, "1.00")
}

func TestValidator_RewardRatioFromDollarDistances(t *testing.T) {
	v := newTestValidator()

	// 16-tick target against an 8-tick stop derives a 2:1 reward ratio; no
	// warning expected.
	_, warnings, _ := v.Check(withRule(orbRules(), "Profit Target", "16 ticks"))
	assert.Empty(t, warnings)

	// 8-tick target against an 8-tick stop is 1:1.
	_, warnings, _ = v.Check(withRule(orbRules(), "Profit Target", "8 ticks"))
	require.Len(t, warnings, 1)
	assert.Equal(t, "profit_target", warnings[0].Field)
}

func TestValidator_ATRStopBounds(t *testing.T) {
	v := newTestValidator()

	t.Run("wide stop", func(t *testing.T) {
		_, warnings, _ := v.Check(withRule(orbRules(), "Stop Loss", "4x ATR below entry"))
		require.NotEmpty(t, warnings)
		assert.Equal(t, "stop_loss", warnings[0].Field)
		assert.Contains(t, warnings[0].Message, "wide")
	})

	t.Run("tight stop", func(t *testing.T) {
		_, warnings, _ := v.Check(withRule(orbRules(), "Stop Loss", "0.5x ATR below entry"))
		require.NotEmpty(t, warnings)
		assert.Equal(t, "stop_loss", warnings[0].Field)
		assert.Contains(t, warnings[0].Message, "tight")
	})

	t.Run("normal stop", func(t *testing.T) {
		_, warnings, _ := v.Check(withRule(orbRules(), "Stop Loss", "2x ATR below entry"))
		assert.Empty(t, warnings)
	})
}

func TestValidator_BareNumberAccountSize(t *testing.T) {
	v := newTestValidator()

	// No currency marker, just the balance.
	rules := withRule(orbRules(), "Account Size", "50,000 account")
	errors, _, sizing := v.Check(rules)

	assert.Empty(t, errors)
	require.NotNil(t, sizing)
	assert.True(t, sizing.AccountSize.Equal(decimal.NewFromInt(50000)))
	assert.Equal(t, int64(5), sizing.Contracts)
}

func TestValidator_ZeroContractsSuggestsMicro(t *testing.T) {
	v := newTestValidator()

	// $2k at 1% risks $20 per trade; an 8-tick ES stop costs $100 per
	// contract, so the position resolves to zero.
	rules := withRule(orbRules(), "Account Size", "$2,000")
	errors, _, sizing := v.Check(rules)

	require.NotNil(t, sizing)
	assert.Equal(t, int64(0), sizing.Contracts)

	require.Len(t, errors, 1)
	assert.Equal(t, "position_sizing", errors[0].Field)
	assert.Contains(t, errors[0].Message, "zero contracts")
	assert.Contains(t, errors[0].Suggestion, "MES")
}

func TestValidator_OversizedPositionSuggestsFullSize(t *testing.T) {
	v := newTestValidator()

	rules := withRule(orbRules(), "Instrument", "MES")
	rules = withRule(rules, "Account Size", "$5,000,000")
	errors, warnings, sizing := v.Check(rules)

	require.NotNil(t, sizing)
	// $50,000 risk against a $10 per-contract stop on the micro.
	assert.Equal(t, int64(5000), sizing.Contracts)

	assert.Empty(t, errors)
	require.Len(t, warnings, 1)
	assert.Equal(t, "position_sizing", warnings[0].Field)
	assert.Contains(t, warnings[0].Suggestion, "ES")
}

func TestValidator_DrawdownLimit(t *testing.T) {
	v := newTestValidator()

	t.Run("comfortable headroom", func(t *testing.T) {
		errors, warnings, sizing := v.Check(withRule(orbRules(), "Drawdown Limit", "$10,000"))
		assert.Empty(t, errors)
		assert.Empty(t, warnings)
		require.NotNil(t, sizing)
		assert.Equal(t, int64(20), sizing.TradesToDrawdown)
	})

	t.Run("few trades remaining warns", func(t *testing.T) {
		errors, warnings, _ := v.Check(withRule(orbRules(), "Drawdown Limit", "$2,000"))
		assert.Empty(t, errors)
		require.Len(t, warnings, 1)
		assert.Equal(t, "drawdown_limit", warnings[0].Field)
		assert.Contains(t, warnings[0].Message, "4 losing trades")
	})

	t.Run("almost exhausted blocks", func(t *testing.T) {
		errors, _, _ := v.Check(withRule(orbRules(), "Drawdown Limit", "$1,500"))
		require.Len(t, errors, 1)
		assert.Equal(t, "drawdown_limit", errors[0].Field)
		assert.Contains(t, errors[0].Message, "3 losing trades")
	})

	t.Run("single trade exceeds limit blocks", func(t *testing.T) {
		errors, _, _ := v.Check(withRule(orbRules(), "Drawdown Limit", "$400"))
		require.Len(t, errors, 1)
		assert.Equal(t, "drawdown_limit", errors[0].Field)
		assert.Contains(t, errors[0].Message, "exceeds drawdown limit")
	})
}

func TestValidator_InstrumentInsideProse(t *testing.T) {
	v := newTestValidator()

	rules := withRule(orbRules(), "Instrument", "trade the ES at the open")
	_, _, sizing := v.Check(rules)

	require.NotNil(t, sizing)
	assert.Equal(t, "ES", sizing.Instrument)
	assert.Equal(t, int64(5), sizing.Contracts)
}

func TestPipeline_ESOpeningRangeReady(t *testing.T) {
	pipeline := newTestPipeline()

	result := pipeline.Evaluate(PatternOpeningRangeBreakout, orbRules(), false)

	assert.Equal(t, 100, result.CompletionScore)
	assert.True(t, result.IsComplete)
	assert.Equal(t, DraftStateReady, result.State)
	assert.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	require.NotNil(t, result.Sizing)
	assert.Equal(t, int64(5), result.Sizing.Contracts)
}

func TestPipeline_ExcessiveRiskCapsScoreAndBlocks(t *testing.T) {
	pipeline := newTestPipeline()

	rules := withRule(orbRules(), "Position Sizing", "6% of account")
	result := pipeline.Evaluate(PatternOpeningRangeBreakout, rules, false)

	// All fields present, but a blocking error keeps the score off 100 and
	// the draft off READY.
	assert.Equal(t, 99, result.CompletionScore)
	assert.False(t, result.IsComplete)
	assert.Equal(t, DraftStateBlocked, result.State)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "extremely aggressive")
}

func TestPipeline_WarningsOnlyIsCompleteWithWarnings(t *testing.T) {
	pipeline := newTestPipeline()

	rules := withRule(orbRules(), "Position Sizing", "3% of account")
	result := pipeline.Evaluate(PatternOpeningRangeBreakout, rules, false)

	assert.True(t, result.IsComplete)
	assert.Equal(t, DraftStateCompleteWithWarnings, result.State)
	assert.Empty(t, result.Errors)
	assert.NotEmpty(t, result.Warnings)
}

func TestPipeline_StateTransitions(t *testing.T) {
	pipeline := newTestPipeline()

	t.Run("empty", func(t *testing.T) {
		result := pipeline.Evaluate(PatternOpeningRangeBreakout, nil, false)
		assert.Equal(t, DraftStateEmpty, result.State)
	})

	t.Run("partial", func(t *testing.T) {
		rules := []StrategyRule{
			{Category: CategorySetup, Label: "Direction", Value: "long", Source: SourceUser},
			{Category: CategoryRisk, Label: "Stop Loss", Value: "8 ticks", Source: SourceUser},
		}
		result := pipeline.Evaluate(PatternOpeningRangeBreakout, rules, false)
		assert.Equal(t, DraftStatePartial, result.State)
		assert.False(t, result.IsComplete)
	})

	t.Run("correction unblocks", func(t *testing.T) {
		rules := withRule(orbRules(), "Position Sizing", "6% of account")
		blocked := pipeline.Evaluate(PatternOpeningRangeBreakout, rules, false)
		assert.Equal(t, DraftStateBlocked, blocked.State)

		rules = withRule(rules, "Position Sizing", "1% of account")
		fixed := pipeline.Evaluate(PatternOpeningRangeBreakout, rules, false)
		assert.Equal(t, DraftStateReady, fixed.State)
	})
}
