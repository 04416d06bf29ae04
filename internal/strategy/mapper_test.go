package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigToRules_FullPayload(t *testing.T) {
	cfg := &StrategyConfig{
		Type:      "opening_range_breakout",
		Direction: DirectionLong,
		Entry:     map[string]interface{}{"type": "breakout", "label": "Break above opening range high"},
		StopLoss:  map[string]interface{}{"placement": "range_low", "label": "8 ticks below entry"},
		Target:    map[string]interface{}{"label": "1:2 risk-reward"},
		Context: map[string]interface{}{
			"instrument":   "ES",
			"accountSize":  "$50,000",
			"riskPerTrade": "1%",
			"rangePeriod":  "15 minutes",
		},
	}

	rules := ConfigToRules(cfg)

	byLabel := map[string]StrategyRule{}
	for _, rule := range rules {
		assert.Equal(t, SourceInferred, rule.Source)
		assert.True(t, ValidCategory(rule.Category))
		byLabel[rule.Label] = rule
	}

	assert.Equal(t, "long", byLabel["Direction"].Value)
	assert.Equal(t, "Break above opening range high", byLabel["Entry Criteria"].Value)
	assert.Equal(t, "8 ticks below entry", byLabel["Stop Loss"].Value)
	assert.Equal(t, "1:2 risk-reward", byLabel["Profit Target"].Value)
	assert.Equal(t, "ES", byLabel["Instrument"].Value)
	assert.Equal(t, "$50,000", byLabel["Account Size"].Value)
	assert.Equal(t, "1%", byLabel["Position Sizing"].Value)
	assert.Equal(t, "15 minutes", byLabel["Range Period"].Value)
}

func TestConfigToRules_DuplicateContextKeysFirstWins(t *testing.T) {
	cfg := &StrategyConfig{
		Direction: DirectionShort,
		Context: map[string]interface{}{
			"instrument": "NQ",
			"symbol":     "ES",
		},
	}

	rules := ConfigToRules(cfg)

	count := 0
	for _, rule := range rules {
		if rule.Label == "Instrument" {
			count++
			assert.Equal(t, "NQ", rule.Value)
		}
	}
	assert.Equal(t, 1, count)
}

func TestConfigToRules_NumericContextValues(t *testing.T) {
	cfg := &StrategyConfig{
		Direction: DirectionLong,
		Context: map[string]interface{}{
			"emaPeriod":    float64(20),
			"riskPerTrade": 1.5,
		},
	}

	rules := ConfigToRules(cfg)

	found := 0
	for _, rule := range rules {
		switch rule.Label {
		case "EMA Period":
			assert.Equal(t, "20", rule.Value)
			found++
		case "Position Sizing":
			assert.Equal(t, "1.5", rule.Value)
			found++
		}
	}
	assert.Equal(t, 2, found)
}

func TestConfigToRules_EmptyInputs(t *testing.T) {
	assert.Nil(t, ConfigToRules(nil))

	rules := ConfigToRules(&StrategyConfig{})
	assert.Empty(t, rules)

	rules = ConfigToRules(&StrategyConfig{Context: map[string]interface{}{"accountSize": "  "}})
	assert.Empty(t, rules)
}

func TestConfigToRules_FeedsPipeline(t *testing.T) {
	ex := NewExtractor(nil)
	cfg, extractErr := ex.ExtractBlock(assistantText(validPayload))
	require.Nil(t, extractErr)

	rules := ConfigToRules(cfg)
	require.NotEmpty(t, rules)

	rs := NewRuleSet()
	require.NoError(t, rs.UpsertAll(rules))

	_, found := rs.Find("Direction")
	assert.True(t, found)
	_, found = FindRule(rs.Rules(), "Position Sizing")
	assert.True(t, found)
}
