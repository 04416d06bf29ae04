package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupInstrument_ES(t *testing.T) {
	spec, ok := LookupInstrument("ES")
	require.True(t, ok)

	assert.Equal(t, "ES", spec.Symbol)
	assert.True(t, spec.TickSize.Equal(decimal.NewFromFloat(0.25)))
	assert.True(t, spec.TickValue.Equal(decimal.NewFromFloat(12.50)))
	assert.True(t, spec.PointValue.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, "MES", spec.Micro)
	assert.Empty(t, spec.FullSize)
}

func TestLookupInstrument_CaseInsensitive(t *testing.T) {
	spec, ok := LookupInstrument("  es ")
	require.True(t, ok)
	assert.Equal(t, "ES", spec.Symbol)
}

func TestLookupInstrument_Unknown(t *testing.T) {
	_, ok := LookupInstrument("BTC")
	assert.False(t, ok)
}

func TestInstrumentTable_MicroFullSizeLinksConsistent(t *testing.T) {
	for _, symbol := range InstrumentSymbols() {
		spec, ok := LookupInstrument(symbol)
		require.True(t, ok)

		if spec.Micro != "" {
			micro, found := LookupInstrument(spec.Micro)
			require.True(t, found, "%s names unknown micro %s", symbol, spec.Micro)
			assert.Equal(t, spec.Symbol, micro.FullSize)
			// A micro contract risks a tenth of the full-size per tick.
			assert.True(t, micro.TickValue.Mul(decimal.NewFromInt(10)).Equal(spec.TickValue),
				"%s tick value is not 10x %s", symbol, spec.Micro)
		}
		if spec.FullSize != "" {
			full, found := LookupInstrument(spec.FullSize)
			require.True(t, found, "%s names unknown full-size %s", symbol, spec.FullSize)
			assert.Equal(t, spec.Symbol, full.Micro)
		}
	}
}

func TestInstrumentSymbols(t *testing.T) {
	symbols := InstrumentSymbols()
	assert.Len(t, symbols, 10)
	assert.Contains(t, symbols, "ES")
	assert.Contains(t, symbols, "MES")
	assert.Contains(t, symbols, "CL")
	assert.Contains(t, symbols, "MGC")
}
