package strategy

import (
	"fmt"
	"math"

	"go.uber.org/zap"
)

// IssueSeverity splits validation issues into blocking and advisory.
type IssueSeverity string

const (
	SeverityError   IssueSeverity = "error"
	SeverityWarning IssueSeverity = "warning"
)

// ValidationIssue describes one problem with the current draft.
type ValidationIssue struct {
	Field      string        `json:"field,omitempty"`
	Label      string        `json:"label,omitempty"`
	Severity   IssueSeverity `json:"severity"`
	Message    string        `json:"message"`
	Suggestion string        `json:"suggestion,omitempty"`
}

// FieldPrompt asks the user to choose a value for a field the system refuses
// to default. Options come from the field's display metadata.
type FieldPrompt struct {
	Field       string   `json:"field"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Options     []string `json:"options,omitempty"`
}

// CompletenessConfig holds the tunables of the completeness engine. The
// clarify threshold is a product decision, not a numeric optimum, so it stays
// configurable.
type CompletenessConfig struct {
	// ClarifyThreshold is the fraction of expected fields that must be present
	// after the first assistant turn before the engine defaults anything.
	// Below it the engine asks for structured clarification instead.
	ClarifyThreshold float64 `json:"clarify_threshold"`
}

// DefaultCompletenessConfig returns the production defaults.
func DefaultCompletenessConfig() CompletenessConfig {
	return CompletenessConfig{
		ClarifyThreshold: 0.30,
	}
}

// CompletenessReport is the engine's output for one evaluation pass.
type CompletenessReport struct {
	Pattern            CanonicalPattern  `json:"pattern"`
	CompletionScore    int               `json:"completion_score"`
	CoreSatisfied      int               `json:"core_satisfied"`
	CoreTotal          int               `json:"core_total"`
	RequiredMissing    []ValidationIssue `json:"required_missing"`
	RecommendedMissing []ValidationIssue `json:"recommended_missing"`
	Prompts            []FieldPrompt     `json:"prompts,omitempty"`
	Defaults           []StrategyRule    `json:"defaults,omitempty"`
	NeedsClarification bool              `json:"needs_clarification"`
}

// CompletenessEngine determines which fields are missing, which can be safely
// defaulted, and how complete the draft is.
type CompletenessEngine struct {
	config CompletenessConfig
	logger *zap.Logger
}

// NewCompletenessEngine creates an engine. A nil logger falls back to no-op.
func NewCompletenessEngine(config CompletenessConfig, logger *zap.Logger) *CompletenessEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompletenessEngine{config: config, logger: logger}
}

// Evaluate computes the completeness report for a pattern and the rules
// accumulated so far. firstTurn marks the evaluation right after the first
// assistant turn, where very vague input routes to clarification instead of
// aggressive defaulting. A defaulted rule still counts as satisfied; it is
// surfaced as editable by the caller before finalization.
func (e *CompletenessEngine) Evaluate(p CanonicalPattern, rules []StrategyRule, firstTurn bool) CompletenessReport {
	report := CompletenessReport{Pattern: p}

	schema, ok := PatternSchema(p)
	if !ok {
		return report
	}
	meta, _ := PatternFieldMeta(p)

	var required, recommended []FieldSpec
	for _, spec := range schema {
		if spec.Required {
			required = append(required, spec)
		} else {
			recommended = append(recommended, spec)
		}
	}

	presentCount := 0
	for _, spec := range schema {
		if _, found := FindRule(rules, spec.Label); found {
			presentCount++
		}
	}
	presentRatio := float64(presentCount) / float64(len(schema))
	report.NeedsClarification = firstTurn && presentRatio < e.config.ClarifyThreshold

	satisfied := 0
	for _, spec := range required {
		if _, found := FindRule(rules, spec.Label); found {
			satisfied++
			if e.isCore(spec.Field) {
				report.CoreSatisfied++
			}
			continue
		}

		// Defaultable fields are auto-populated unless the input was too vague
		// to trust any inference at all. Fields with direct dollar-risk
		// consequences carry Defaultable=false and always become prompts.
		if spec.Defaultable && !report.NeedsClarification {
			report.Defaults = append(report.Defaults, defaultRule(spec))
			satisfied++
			if e.isCore(spec.Field) {
				report.CoreSatisfied++
			}
			continue
		}

		report.RequiredMissing = append(report.RequiredMissing, missingIssue(spec, SeverityError))
		report.Prompts = append(report.Prompts, fieldPrompt(spec, meta))
	}

	for _, spec := range recommended {
		if _, found := FindRule(rules, spec.Label); found {
			continue
		}
		if spec.Defaultable && !report.NeedsClarification {
			report.Defaults = append(report.Defaults, defaultRule(spec))
			continue
		}
		report.RecommendedMissing = append(report.RecommendedMissing, missingIssue(spec, SeverityWarning))
	}

	report.CoreTotal = len(coreFields)
	report.CompletionScore = completionScore(satisfied, len(required))

	if report.NeedsClarification {
		e.logger.Info("input too vague to default, requesting clarification",
			zap.String("pattern", string(p)),
			zap.Int("present", presentCount),
			zap.Int("expected", len(schema)),
		)
	}

	return report
}

func (e *CompletenessEngine) isCore(field string) bool {
	for _, spec := range coreFields {
		if spec.Field == field {
			return true
		}
	}
	return false
}

// completionScore is round(100 * satisfied / total), clamped to [0, 100].
// Saturation at 100 additionally requires zero blocking errors; that cap is
// applied where errors are known, in the validator.
func completionScore(satisfied, total int) int {
	if total <= 0 {
		return 0
	}
	score := int(math.Round(100 * float64(satisfied) / float64(total)))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func defaultRule(spec FieldSpec) StrategyRule {
	return StrategyRule{
		Category:    spec.Category,
		Label:       spec.Label,
		Value:       spec.DefaultValue,
		IsDefaulted: true,
		Source:      SourceDefault,
		Explanation: spec.DefaultExplanation,
	}
}

func missingIssue(spec FieldSpec, severity IssueSeverity) ValidationIssue {
	return ValidationIssue{
		Field:    spec.Field,
		Label:    spec.Label,
		Severity: severity,
		Message:  fmt.Sprintf("%s has not been specified.", spec.Label),
	}
}

func fieldPrompt(spec FieldSpec, meta map[string]FieldMeta) FieldPrompt {
	prompt := FieldPrompt{Field: spec.Field, Title: spec.Label, Options: spec.Options}
	if m, ok := meta[spec.Field]; ok {
		prompt.Title = m.Title
		prompt.Description = m.Description
		if len(m.Options) > 0 {
			prompt.Options = m.Options
		}
	}
	return prompt
}
