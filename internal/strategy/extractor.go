package strategy

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// Delimiters bounding the machine-readable block inside assistant text.
const (
	BlockStartDelimiter = "[ANIMATION_START]"
	BlockEndDelimiter   = "[ANIMATION_END]"
)

// streamState tags where an accumulating buffer sits relative to the
// delimiter pair. Modeling this explicitly keeps the hide-partial-block
// invariant testable instead of buried in string indexing.
type streamState int

const (
	streamStateNoBlock streamState = iota
	streamStatePartialBlock
	streamStateCompleteBlock
)

func classifyBuffer(buffer string) streamState {
	start := strings.Index(buffer, BlockStartDelimiter)
	if start < 0 {
		return streamStateNoBlock
	}
	end := strings.Index(buffer[start+len(BlockStartDelimiter):], BlockEndDelimiter)
	if end < 0 {
		return streamStatePartialBlock
	}
	return streamStateCompleteBlock
}

// Extractor separates human-readable text from embedded JSON payloads.
// It never surfaces a parse failure to the caller as anything other than a
// nil config plus a typed error kind.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates an extractor. A nil logger falls back to a no-op logger.
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{logger: logger}
}

// HasCompleteBlock reports whether the buffer contains a start delimiter
// followed by an end delimiter.
func HasCompleteBlock(buffer string) bool {
	return classifyBuffer(buffer) == streamStateCompleteBlock
}

// ExtractBlock locates the first delimiter pair, parses the interior as JSON
// and validates the required top-level fields. On any failure it returns a
// nil config with a classified error and logs the reason.
func (e *Extractor) ExtractBlock(text string) (*StrategyConfig, *ExtractError) {
	start := strings.Index(text, BlockStartDelimiter)
	if start < 0 {
		err := &ExtractError{Kind: ExtractErrorParse}
		e.logger.Debug("no start delimiter in assistant text", zap.String("kind", string(err.Kind)))
		return nil, err
	}

	interiorStart := start + len(BlockStartDelimiter)
	endOffset := strings.Index(text[interiorStart:], BlockEndDelimiter)
	if endOffset < 0 {
		err := &ExtractError{Kind: ExtractErrorParse}
		e.logger.Debug("unterminated block in assistant text", zap.String("kind", string(err.Kind)))
		return nil, err
	}

	raw := strings.TrimSpace(text[interiorStart : interiorStart+endOffset])

	var cfg StrategyConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		extractErr := &ExtractError{Kind: ExtractErrorParse, Err: err}
		e.logger.Warn("malformed JSON in tagged block",
			zap.String("kind", string(extractErr.Kind)),
			zap.Error(err),
		)
		return nil, extractErr
	}

	if missing := validateConfig(&cfg); len(missing) > 0 {
		extractErr := &ExtractError{Kind: ExtractErrorStructure, Missing: missing}
		e.logger.Warn("tagged block missing required fields",
			zap.String("kind", string(extractErr.Kind)),
			zap.Strings("missing", missing),
		)
		return nil, extractErr
	}

	return &cfg, nil
}

// StripBlock returns text with the delimiter-bounded region removed, trimmed.
// When only a start delimiter is present, everything from it onward is removed.
func (e *Extractor) StripBlock(text string) string {
	start := strings.Index(text, BlockStartDelimiter)
	if start < 0 {
		return strings.TrimSpace(text)
	}

	interiorStart := start + len(BlockStartDelimiter)
	endOffset := strings.Index(text[interiorStart:], BlockEndDelimiter)
	if endOffset < 0 {
		return strings.TrimSpace(text[:start])
	}

	after := text[interiorStart+endOffset+len(BlockEndDelimiter):]
	return strings.TrimSpace(text[:start] + after)
}

// StreamExtraction is the result of inspecting an accumulating buffer.
type StreamExtraction struct {
	Config                *StrategyConfig
	CleanText             string
	ExtractedSuccessfully bool
}

// TryExtractFromStream is the streaming-safe extraction variant. While a
// block is open but unterminated, everything from the start delimiter onward
// is hidden from CleanText so a half-formed JSON blob never reaches the
// screen. The invariant holds for every intermediate buffer state.
func (e *Extractor) TryExtractFromStream(buffer string) StreamExtraction {
	switch classifyBuffer(buffer) {
	case streamStateNoBlock:
		return StreamExtraction{CleanText: buffer}

	case streamStatePartialBlock:
		start := strings.Index(buffer, BlockStartDelimiter)
		return StreamExtraction{CleanText: buffer[:start]}

	default:
		cfg, extractErr := e.ExtractBlock(buffer)
		clean := e.StripBlock(buffer)
		if extractErr != nil {
			// Malformed interior: fall back to display-only prose.
			return StreamExtraction{CleanText: clean}
		}
		return StreamExtraction{
			Config:                cfg,
			CleanText:             clean,
			ExtractedSuccessfully: true,
		}
	}
}

// StreamCleanText returns the display-safe portion of an accumulating buffer
// with no trimming applied, unlike TryExtractFromStream's CleanText. Callers
// streaming deltas track byte offsets across calls, and trimming would shift
// those offsets once the block completes.
func (e *Extractor) StreamCleanText(buffer string) string {
	start := strings.Index(buffer, BlockStartDelimiter)
	if start < 0 {
		return buffer
	}
	interiorStart := start + len(BlockStartDelimiter)
	endOffset := strings.Index(buffer[interiorStart:], BlockEndDelimiter)
	if endOffset < 0 {
		return buffer[:start]
	}
	return buffer[:start] + buffer[interiorStart+endOffset+len(BlockEndDelimiter):]
}

// MergeConfig combines an existing config with a partial update. Top-level
// scalars take the partial's value when set. Entry, StopLoss and Target are
// replaced wholesale when present in the partial, otherwise kept. PriceAction,
// Indicators, Display and Context merge key-by-key with the partial winning.
// Neither input is mutated.
func MergeConfig(existing, partial *StrategyConfig) *StrategyConfig {
	if existing == nil && partial == nil {
		return nil
	}
	if existing == nil {
		merged := *partial
		return &merged
	}
	if partial == nil {
		merged := *existing
		return &merged
	}

	merged := *existing

	if partial.Type != "" {
		merged.Type = partial.Type
	}
	if partial.Direction != "" {
		merged.Direction = partial.Direction
	}

	if partial.Entry != nil {
		merged.Entry = copyObject(partial.Entry)
	}
	if partial.StopLoss != nil {
		merged.StopLoss = copyObject(partial.StopLoss)
	}
	if partial.Target != nil {
		merged.Target = copyObject(partial.Target)
	}

	merged.PriceAction = mergeObjects(existing.PriceAction, partial.PriceAction)
	merged.Indicators = mergeObjects(existing.Indicators, partial.Indicators)
	merged.Display = mergeObjects(existing.Display, partial.Display)
	merged.Context = mergeObjects(existing.Context, partial.Context)

	return &merged
}

func copyObject(obj map[string]interface{}) map[string]interface{} {
	if obj == nil {
		return nil
	}
	out := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}

func mergeObjects(existing, partial map[string]interface{}) map[string]interface{} {
	if existing == nil && partial == nil {
		return nil
	}
	out := copyObject(existing)
	if out == nil {
		out = make(map[string]interface{}, len(partial))
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}
