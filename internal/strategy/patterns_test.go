package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectPattern(t *testing.T) {
	cases := []struct {
		identifier string
		want       CanonicalPattern
	}{
		{"opening_range_breakout", PatternOpeningRangeBreakout},
		{"Opening Range Breakout", PatternOpeningRangeBreakout},
		{"ema-pullback", PatternEMAPullback},
		{"EMA_PULLBACK", PatternEMAPullback},
		{"breakout", PatternBreakout},
		{"  breakout  ", PatternBreakout},
		{"macd_histogram", PatternUnsupported},
		{"ichimoku_cloud", PatternUnsupported},
		{"", PatternUnsupported},
	}

	for _, tc := range cases {
		t.Run(tc.identifier, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectPattern(tc.identifier))
		})
	}
}

func TestSuggestAlternatives_MACDHistogram(t *testing.T) {
	alts := SuggestAlternatives("macd_histogram")
	require.Len(t, alts, 2)
	assert.Equal(t, PatternEMAPullback, alts[0])
	assert.Equal(t, PatternBreakout, alts[1])
}

func TestSuggestAlternatives_SupportedReturnsOtherTwo(t *testing.T) {
	for _, p := range SupportedPatterns() {
		t.Run(string(p), func(t *testing.T) {
			alts := SuggestAlternatives(string(p))
			require.Len(t, alts, 2)
			assert.NotContains(t, alts, p)
		})
	}
}

func TestSuggestAlternatives_UnknownFallsBackToDefaults(t *testing.T) {
	alts := SuggestAlternatives("elliott_wave")
	require.Len(t, alts, 2)
	assert.Equal(t, PatternBreakout, alts[0])
	assert.Equal(t, PatternOpeningRangeBreakout, alts[1])
}

func TestPatternSimilarity_NamesSupportedPatternsOnly(t *testing.T) {
	supported := map[CanonicalPattern]bool{}
	for _, p := range SupportedPatterns() {
		supported[p] = true
	}

	for identifier, pair := range patternSimilarity {
		assert.True(t, supported[pair[0]], "%s alternative %s not supported", identifier, pair[0])
		assert.True(t, supported[pair[1]], "%s alternative %s not supported", identifier, pair[1])
		assert.NotEqual(t, pair[0], pair[1], "%s suggests the same pattern twice", identifier)
		// Similarity entries are for unsupported identifiers only.
		assert.Equal(t, PatternUnsupported, DetectPattern(identifier))
	}

	assert.True(t, supported[defaultAlternatives[0]])
	assert.True(t, supported[defaultAlternatives[1]])
}

func TestPatternSchema_CoreFieldsFirst(t *testing.T) {
	for _, p := range SupportedPatterns() {
		t.Run(string(p), func(t *testing.T) {
			schema, ok := PatternSchema(p)
			require.True(t, ok)
			require.GreaterOrEqual(t, len(schema), len(coreFields))

			for i, core := range coreFields {
				assert.Equal(t, core.Field, schema[i].Field)
				assert.True(t, schema[i].Required, "core field %s must be required", core.Field)
			}
		})
	}
}

func TestPatternSchema_Unsupported(t *testing.T) {
	schema, ok := PatternSchema(PatternUnsupported)
	assert.False(t, ok)
	assert.Nil(t, schema)
}

func TestPatternSchema_DollarRiskFieldsNeverDefaultable(t *testing.T) {
	// Fields with direct dollar-risk consequences must always be answered by
	// the user, never silently filled.
	riskFields := map[string]bool{
		"stop_loss":       true,
		"profit_target":   true,
		"position_sizing": true,
		"instrument":      true,
	}

	for _, p := range SupportedPatterns() {
		schema, ok := PatternSchema(p)
		require.True(t, ok)
		for _, spec := range schema {
			if riskFields[spec.Field] {
				assert.False(t, spec.Defaultable, "%s/%s must not be defaultable", p, spec.Field)
			}
			if spec.Defaultable {
				assert.NotEmpty(t, spec.DefaultValue, "%s/%s defaultable without a default", p, spec.Field)
				assert.NotEmpty(t, spec.DefaultExplanation, "%s/%s default without explanation", p, spec.Field)
			}
		}
	}
}

func TestPatternSchema_KnownDefaults(t *testing.T) {
	schema, ok := PatternSchema(PatternEMAPullback)
	require.True(t, ok)
	ema := findSpec(t, schema, "ema_period")
	assert.True(t, ema.Required)
	assert.True(t, ema.Defaultable)
	assert.Equal(t, "20", ema.DefaultValue)

	schema, ok = PatternSchema(PatternBreakout)
	require.True(t, ok)
	lookback := findSpec(t, schema, "lookback_period")
	assert.True(t, lookback.Required)
	assert.True(t, lookback.Defaultable)
	assert.Equal(t, "20 bars", lookback.DefaultValue)

	schema, ok = PatternSchema(PatternOpeningRangeBreakout)
	require.True(t, ok)
	rangePeriod := findSpec(t, schema, "range_period")
	assert.True(t, rangePeriod.Required)
	assert.False(t, rangePeriod.Defaultable)
	assert.Equal(t, []string{"5 minutes", "15 minutes", "30 minutes", "60 minutes"}, rangePeriod.Options)
}

func TestPatternFieldMeta_LockstepWithSchema(t *testing.T) {
	for _, p := range SupportedPatterns() {
		t.Run(string(p), func(t *testing.T) {
			schema, ok := PatternSchema(p)
			require.True(t, ok)
			meta, ok := PatternFieldMeta(p)
			require.True(t, ok)

			fields := map[string]bool{}
			for _, spec := range schema {
				fields[spec.Field] = true
				m, found := meta[spec.Field]
				require.True(t, found, "field %s has no display metadata", spec.Field)
				assert.NotEmpty(t, m.Title)
				assert.NotEmpty(t, m.Description)
			}
			for field := range meta {
				assert.True(t, fields[field], "metadata for unknown field %s", field)
			}
		})
	}
}

func TestPatternFieldMeta_Unsupported(t *testing.T) {
	meta, ok := PatternFieldMeta(PatternUnsupported)
	assert.False(t, ok)
	assert.Nil(t, meta)
}

func findSpec(t *testing.T, schema []FieldSpec, field string) FieldSpec {
	t.Helper()
	for _, spec := range schema {
		if spec.Field == field {
			return spec
		}
	}
	t.Fatalf("field %s not in schema", field)
	return FieldSpec{}
}
