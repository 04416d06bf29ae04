package strategy

import (
	"fmt"
	"strings"
)

// ExtractErrorKind classifies why a tagged block could not be turned into a config.
type ExtractErrorKind string

const (
	// ExtractErrorParse indicates malformed JSON or mismatched delimiters.
	ExtractErrorParse ExtractErrorKind = "parse_error"
	// ExtractErrorStructure indicates well-formed JSON missing required fields.
	ExtractErrorStructure ExtractErrorKind = "invalid_structure"
)

// ExtractError is the typed failure returned by the extractor. It is a return
// value, never a panic: rendering code receives nil configs, not exceptions.
type ExtractError struct {
	Kind    ExtractErrorKind
	Missing []string
	Err     error
}

func (e *ExtractError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Kind == ExtractErrorStructure:
		return fmt.Sprintf("invalid payload structure: missing %s", strings.Join(e.Missing, ", "))
	case e.Err != nil:
		return fmt.Sprintf("payload parse error: %v", e.Err)
	default:
		return "payload parse error"
	}
}

func (e *ExtractError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Directions accepted in payloads.
const (
	DirectionLong  = "long"
	DirectionShort = "short"
)

// StrategyConfig is the machine-readable payload embedded in assistant text.
// Entry, StopLoss and Target are replaced wholesale on merge; PriceAction,
// Indicators, Display and Context are merged key-by-key. A config is transient:
// it is built per assistant turn and never mutated after construction (merges
// produce a new config).
type StrategyConfig struct {
	Type        string                 `json:"type"`
	Direction   string                 `json:"direction"`
	Entry       map[string]interface{} `json:"entry,omitempty"`
	StopLoss    map[string]interface{} `json:"stopLoss,omitempty"`
	Target      map[string]interface{} `json:"target,omitempty"`
	PriceAction map[string]interface{} `json:"priceAction,omitempty"`
	Indicators  map[string]interface{} `json:"indicators,omitempty"`
	Display     map[string]interface{} `json:"display,omitempty"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// validateConfig checks the required top-level fields of a parsed payload.
// It returns the list of missing field paths, empty when the payload is sound.
func validateConfig(cfg *StrategyConfig) []string {
	var missing []string

	if strings.TrimSpace(cfg.Type) == "" {
		missing = append(missing, "type")
	}
	if cfg.Direction != DirectionLong && cfg.Direction != DirectionShort {
		missing = append(missing, "direction")
	}
	if stringField(cfg.Entry, "type") == "" {
		missing = append(missing, "entry.type")
	}
	if stringField(cfg.Entry, "label") == "" {
		missing = append(missing, "entry.label")
	}
	if stringField(cfg.StopLoss, "placement") == "" {
		missing = append(missing, "stopLoss.placement")
	}
	if stringField(cfg.StopLoss, "label") == "" {
		missing = append(missing, "stopLoss.label")
	}
	if stringField(cfg.Display, "chartType") == "" {
		missing = append(missing, "display.chartType")
	}

	return missing
}

// stringField reads a string value out of a loosely-typed payload object.
func stringField(obj map[string]interface{}, key string) string {
	if obj == nil {
		return ""
	}
	v, ok := obj[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
