package strategy

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed instruments.yaml
var instrumentsYAML []byte

// InstrumentSpec holds the static contract specification used to convert
// price distance into dollar risk. Loaded once at init, never mutated, safe
// to share read-only across sessions.
type InstrumentSpec struct {
	Symbol     string
	Name       string
	TickSize   decimal.Decimal
	TickValue  decimal.Decimal
	PointValue decimal.Decimal
	// Micro names the micro-sized variant of a full contract; FullSize names
	// the full-sized variant of a micro. At most one is set.
	Micro    string
	FullSize string
}

type rawInstrument struct {
	Symbol     string `yaml:"symbol"`
	Name       string `yaml:"name"`
	TickSize   string `yaml:"tick_size"`
	TickValue  string `yaml:"tick_value"`
	PointValue string `yaml:"point_value"`
	Micro      string `yaml:"micro"`
	FullSize   string `yaml:"full_size"`
}

type rawInstrumentFile struct {
	Instruments []rawInstrument `yaml:"instruments"`
}

var (
	instrumentsOnce sync.Once
	instrumentTable map[string]InstrumentSpec
	instrumentsErr  error
)

func loadInstruments() {
	var file rawInstrumentFile
	if err := yaml.Unmarshal(instrumentsYAML, &file); err != nil {
		instrumentsErr = fmt.Errorf("failed to parse embedded instrument table: %w", err)
		return
	}

	table := make(map[string]InstrumentSpec, len(file.Instruments))
	for _, raw := range file.Instruments {
		spec, err := raw.toSpec()
		if err != nil {
			instrumentsErr = err
			return
		}
		table[spec.Symbol] = spec
	}
	instrumentTable = table
}

func (r rawInstrument) toSpec() (InstrumentSpec, error) {
	tickSize, err := decimal.NewFromString(r.TickSize)
	if err != nil {
		return InstrumentSpec{}, fmt.Errorf("instrument %s: bad tick_size %q: %w", r.Symbol, r.TickSize, err)
	}
	tickValue, err := decimal.NewFromString(r.TickValue)
	if err != nil {
		return InstrumentSpec{}, fmt.Errorf("instrument %s: bad tick_value %q: %w", r.Symbol, r.TickValue, err)
	}
	pointValue, err := decimal.NewFromString(r.PointValue)
	if err != nil {
		return InstrumentSpec{}, fmt.Errorf("instrument %s: bad point_value %q: %w", r.Symbol, r.PointValue, err)
	}

	return InstrumentSpec{
		Symbol:     strings.ToUpper(r.Symbol),
		Name:       r.Name,
		TickSize:   tickSize,
		TickValue:  tickValue,
		PointValue: pointValue,
		Micro:      strings.ToUpper(r.Micro),
		FullSize:   strings.ToUpper(r.FullSize),
	}, nil
}

// LookupInstrument resolves a contract symbol against the static instrument
// table. Symbols are matched case-insensitively.
func LookupInstrument(symbol string) (InstrumentSpec, bool) {
	instrumentsOnce.Do(loadInstruments)
	if instrumentsErr != nil {
		return InstrumentSpec{}, false
	}
	spec, ok := instrumentTable[strings.ToUpper(strings.TrimSpace(symbol))]
	return spec, ok
}

// InstrumentSymbols returns the symbols of every known instrument.
func InstrumentSymbols() []string {
	instrumentsOnce.Do(loadInstruments)
	symbols := make([]string, 0, len(instrumentTable))
	for s := range instrumentTable {
		symbols = append(symbols, s)
	}
	return symbols
}
