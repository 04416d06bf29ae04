package strategy

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DraftState is the lifecycle state of a strategy draft, derived from the
// current validation result. Transitions happen only on new rule arrival or
// explicit user edit.
type DraftState string

const (
	DraftStateEmpty                DraftState = "EMPTY"
	DraftStatePartial              DraftState = "PARTIAL"
	DraftStateCompleteWithWarnings DraftState = "COMPLETE_WITH_WARNINGS"
	DraftStateReady                DraftState = "READY"
	DraftStateBlocked              DraftState = "BLOCKED"
)

// SizingBreakdown carries the dollar math behind the sizing checks when the
// draft holds enough numeric context to derive it.
type SizingBreakdown struct {
	Instrument       string          `json:"instrument,omitempty"`
	AccountSize      decimal.Decimal `json:"account_size"`
	RiskPercent      decimal.Decimal `json:"risk_percent"`
	RiskAmount       decimal.Decimal `json:"risk_amount"`
	RiskPerContract  decimal.Decimal `json:"risk_per_contract"`
	Contracts        int64           `json:"contracts"`
	TradesToDrawdown int64           `json:"trades_to_drawdown,omitempty"`
}

// ValidationResult is recomputed on every rule-set change; it is a pure
// function of the rules plus static reference data.
type ValidationResult struct {
	Pattern            CanonicalPattern  `json:"pattern"`
	State              DraftState        `json:"state"`
	CompletionScore    int               `json:"completion_score"`
	IsComplete         bool              `json:"is_complete"`
	RequiredMissing    []ValidationIssue `json:"required_missing"`
	RecommendedMissing []ValidationIssue `json:"recommended_missing"`
	Errors             []ValidationIssue `json:"errors"`
	Warnings           []ValidationIssue `json:"warnings"`
	Prompts            []FieldPrompt     `json:"prompts,omitempty"`
	Defaults           []StrategyRule    `json:"defaults,omitempty"`
	NeedsClarification bool              `json:"needs_clarification"`
	Sizing             *SizingBreakdown  `json:"sizing,omitempty"`
}

// ValidatorConfig holds the risk thresholds. All dollar math uses decimals.
type ValidatorConfig struct {
	// Risk-per-trade percentage above which the draft is blocked.
	MaxRiskPercent decimal.Decimal `json:"max_risk_percent"`
	// Risk-per-trade percentage above which a warning is issued.
	WarnRiskPercent decimal.Decimal `json:"warn_risk_percent"`
	// Minimum acceptable reward per unit risk before warning.
	MinRiskReward decimal.Decimal `json:"min_risk_reward"`
	// Contract count above which the related contract variant is suggested.
	MaxContracts int64 `json:"max_contracts"`
	// Trades-remaining-until-drawdown thresholds.
	ErrorTradesRemaining int64 `json:"error_trades_remaining"`
	WarnTradesRemaining  int64 `json:"warn_trades_remaining"`
	// ATR-multiple stop width bounds.
	MaxATRMultiple decimal.Decimal `json:"max_atr_multiple"`
	MinATRMultiple decimal.Decimal `json:"min_atr_multiple"`
}

// DefaultValidatorConfig returns the production thresholds.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxRiskPercent:       decimal.NewFromInt(5),
		WarnRiskPercent:      decimal.NewFromInt(2),
		MinRiskReward:        decimal.NewFromFloat(1.5),
		MaxContracts:         100,
		ErrorTradesRemaining: 3,
		WarnTradesRemaining:  5,
		MaxATRMultiple:       decimal.NewFromFloat(3.5),
		MinATRMultiple:       decimal.NewFromInt(1),
	}
}

// Validator runs domain sanity checks independent of pattern type and
// classifies each finding as blocking or advisory. It never mutates rules.
type Validator struct {
	config ValidatorConfig
	logger *zap.Logger
}

// NewValidator creates a validator. A nil logger falls back to no-op.
func NewValidator(config ValidatorConfig, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{config: config, logger: logger}
}

// numericContext is what the validator can derive from the current rules.
type numericContext struct {
	instrument      *InstrumentSpec
	accountSize     decimal.Decimal
	hasAccountSize  bool
	riskPercent     decimal.Decimal
	hasRiskPercent  bool
	stopDollars     decimal.Decimal // risk per contract
	hasStopDollars  bool
	atrMultiple     decimal.Decimal
	hasATRMultiple  bool
	rewardRatio     decimal.Decimal
	hasRewardRatio  bool
	drawdownLimit   decimal.Decimal
	hasDrawdown     bool
	targetDollars   decimal.Decimal
	hasTargetDollar bool
}

// Check runs every risk/structure predicate over the rules and returns the
// blocking errors, advisory warnings, and the derived sizing breakdown when
// the inputs allow one. Running it twice on unchanged rules yields identical
// results; no state survives between runs.
func (v *Validator) Check(rules []StrategyRule) (errors, warnings []ValidationIssue, sizing *SizingBreakdown) {
	nc := v.deriveContext(rules)

	if _, found := FindRule(rules, "Stop Loss"); !found {
		errors = append(errors, ValidationIssue{
			Field:    "stop_loss",
			Label:    "Stop Loss",
			Severity: SeverityError,
			Message:  "Stop-loss is required.",
		})
	}

	if nc.hasRiskPercent {
		switch {
		case nc.riskPercent.GreaterThan(v.config.MaxRiskPercent):
			errors = append(errors, ValidationIssue{
				Field:    "position_sizing",
				Label:    "Position Sizing",
				Severity: SeverityError,
				Message: fmt.Sprintf("Risking %s%% per trade is extremely aggressive; the maximum supported is %s%%.",
					nc.riskPercent.String(), v.config.MaxRiskPercent.String()),
				Suggestion: "Most futures traders risk 1-2% of the account per trade.",
			})
		case nc.riskPercent.GreaterThan(v.config.WarnRiskPercent):
			warnings = append(warnings, ValidationIssue{
				Field:    "position_sizing",
				Label:    "Position Sizing",
				Severity: SeverityWarning,
				Message: fmt.Sprintf("Risking %s%% per trade is on the aggressive side.",
					nc.riskPercent.String()),
				Suggestion: "Consider 1-2% per trade.",
			})
		}
	}

	if nc.hasRewardRatio && nc.rewardRatio.LessThan(v.config.MinRiskReward) {
		warnings = append(warnings, ValidationIssue{
			Field:    "profit_target",
			Label:    "Profit Target",
			Severity: SeverityWarning,
			Message: fmt.Sprintf("Risk-reward ratio of %s is below %s; winners will not cover losers at typical win rates.",
				nc.rewardRatio.StringFixed(2), v.config.MinRiskReward.String()),
		})
	}

	if nc.hasATRMultiple {
		if nc.atrMultiple.GreaterThan(v.config.MaxATRMultiple) {
			warnings = append(warnings, ValidationIssue{
				Field:    "stop_loss",
				Label:    "Stop Loss",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("A %sx ATR stop is unusually wide.", nc.atrMultiple.String()),
			})
		} else if nc.atrMultiple.LessThan(v.config.MinATRMultiple) {
			warnings = append(warnings, ValidationIssue{
				Field:    "stop_loss",
				Label:    "Stop Loss",
				Severity: SeverityWarning,
				Message:  fmt.Sprintf("A %sx ATR stop is unusually tight and will be stopped out often.", nc.atrMultiple.String()),
			})
		}
	}

	sizing = v.deriveSizing(nc)
	if sizing != nil {
		if sizing.Contracts == 0 {
			errors = append(errors, ValidationIssue{
				Field:      "position_sizing",
				Label:      "Position Sizing",
				Severity:   SeverityError,
				Message:    "Position size resolves to zero contracts.",
				Suggestion: suggestVariant(nc.instrument, true),
			})
		} else if sizing.Contracts > v.config.MaxContracts {
			warnings = append(warnings, ValidationIssue{
				Field:      "position_sizing",
				Label:      "Position Sizing",
				Severity:   SeverityWarning,
				Message:    fmt.Sprintf("%d contracts is a very large position.", sizing.Contracts),
				Suggestion: suggestVariant(nc.instrument, false),
			})
		}

		if nc.hasDrawdown && sizing.RiskAmount.IsPositive() {
			if sizing.RiskAmount.GreaterThan(nc.drawdownLimit) {
				errors = append(errors, ValidationIssue{
					Field:    "drawdown_limit",
					Label:    "Drawdown Limit",
					Severity: SeverityError,
					Message:  "Single trade risk exceeds drawdown limit.",
				})
			} else {
				remaining := nc.drawdownLimit.Div(sizing.RiskAmount).IntPart()
				sizing.TradesToDrawdown = remaining
				if remaining <= v.config.ErrorTradesRemaining {
					errors = append(errors, ValidationIssue{
						Field:    "drawdown_limit",
						Label:    "Drawdown Limit",
						Severity: SeverityError,
						Message:  fmt.Sprintf("Only %d losing trades until the drawdown limit is hit.", remaining),
					})
				} else if remaining <= v.config.WarnTradesRemaining {
					warnings = append(warnings, ValidationIssue{
						Field:    "drawdown_limit",
						Label:    "Drawdown Limit",
						Severity: SeverityWarning,
						Message:  fmt.Sprintf("%d losing trades would hit the drawdown limit.", remaining),
					})
				}
			}
		}
	}

	return errors, warnings, sizing
}

func (v *Validator) deriveContext(rules []StrategyRule) numericContext {
	var nc numericContext

	if rule, found := FindRule(rules, "Instrument"); found {
		if spec, ok := LookupInstrument(firstSymbol(rule.Value)); ok {
			nc.instrument = &spec
		}
	}

	if rule, found := FindRule(rules, "Account Size"); found {
		nc.accountSize, nc.hasAccountSize = parseDollars(rule.Value)
		if !nc.hasAccountSize {
			// "50,000 account" with no currency marker still names a balance.
			nc.accountSize, nc.hasAccountSize = parseBareNumber(rule.Value)
		}
	}

	if rule, found := FindRule(rules, "Position Sizing"); found {
		nc.riskPercent, nc.hasRiskPercent = parsePercent(rule.Value)
		if !nc.hasAccountSize {
			nc.accountSize, nc.hasAccountSize = parseDollars(rule.Value)
		}
	}

	if rule, found := FindRule(rules, "Stop Loss"); found {
		nc.stopDollars, nc.hasStopDollars = v.distanceToDollars(rule.Value, nc.instrument)
		nc.atrMultiple, nc.hasATRMultiple = parseATRMultiple(rule.Value)
	}

	if rule, found := FindRule(rules, "Profit Target"); found {
		nc.rewardRatio, nc.hasRewardRatio = parseRewardRatio(rule.Value)
		nc.targetDollars, nc.hasTargetDollar = v.distanceToDollars(rule.Value, nc.instrument)
		if !nc.hasRewardRatio && nc.hasTargetDollar && nc.hasStopDollars && nc.stopDollars.IsPositive() {
			nc.rewardRatio = nc.targetDollars.Div(nc.stopDollars)
			nc.hasRewardRatio = true
		}
	}

	if rule, found := FindRule(rules, "Drawdown Limit"); found {
		nc.drawdownLimit, nc.hasDrawdown = parseDollars(rule.Value)
	}

	return nc
}

// distanceToDollars converts a stop/target phrasing into per-contract dollars
// using the instrument's tick or point value.
func (v *Validator) distanceToDollars(value string, instrument *InstrumentSpec) (decimal.Decimal, bool) {
	if d, ok := parseDollars(value); ok {
		return d, true
	}
	if instrument == nil {
		return decimal.Zero, false
	}
	if ticks, ok := parseTicks(value); ok {
		return ticks.Mul(instrument.TickValue), true
	}
	if points, ok := parsePoints(value); ok {
		return points.Mul(instrument.PointValue), true
	}
	return decimal.Zero, false
}

func (v *Validator) deriveSizing(nc numericContext) *SizingBreakdown {
	if !nc.hasAccountSize || !nc.hasRiskPercent || !nc.hasStopDollars || !nc.stopDollars.IsPositive() {
		return nil
	}

	riskAmount := nc.accountSize.Mul(nc.riskPercent).Div(decimal.NewFromInt(100))
	contracts := riskAmount.Div(nc.stopDollars).IntPart()

	sizing := &SizingBreakdown{
		AccountSize:     nc.accountSize,
		RiskPercent:     nc.riskPercent,
		RiskAmount:      riskAmount,
		RiskPerContract: nc.stopDollars,
		Contracts:       contracts,
	}
	if nc.instrument != nil {
		sizing.Instrument = nc.instrument.Symbol
	}
	return sizing
}

// suggestVariant proposes the related micro or full-size contract when the
// computed position is degenerate in either direction.
func suggestVariant(instrument *InstrumentSpec, wantSmaller bool) string {
	if instrument == nil {
		return ""
	}
	if wantSmaller && instrument.Micro != "" {
		return fmt.Sprintf("Try the micro contract %s, which risks a tenth per tick.", instrument.Micro)
	}
	if !wantSmaller && instrument.FullSize != "" {
		return fmt.Sprintf("Consider the full-size contract %s to keep the order book manageable.", instrument.FullSize)
	}
	return ""
}

// firstSymbol picks the first known contract symbol mentioned as a whole
// word in the rule value ("trade the ES at the open" resolves to ES).
func firstSymbol(value string) string {
	for _, word := range strings.Fields(value) {
		word = strings.Trim(word, ".,;:()")
		for _, symbol := range InstrumentSymbols() {
			if strings.EqualFold(word, symbol) {
				return symbol
			}
		}
	}
	return strings.TrimSpace(value)
}

// Pipeline chains the completeness engine and the validator into the single
// evaluation the conversation layer runs after every rule-set change.
type Pipeline struct {
	engine    *CompletenessEngine
	validator *Validator
}

// NewPipeline wires the two stages together.
func NewPipeline(engine *CompletenessEngine, validator *Validator) *Pipeline {
	return &Pipeline{engine: engine, validator: validator}
}

// Evaluate produces the full ValidationResult for the current draft.
func (p *Pipeline) Evaluate(pattern CanonicalPattern, rules []StrategyRule, firstTurn bool) ValidationResult {
	report := p.engine.Evaluate(pattern, rules, firstTurn)
	errors, warnings, sizing := p.validator.Check(rules)

	result := ValidationResult{
		Pattern:            pattern,
		CompletionScore:    report.CompletionScore,
		RequiredMissing:    report.RequiredMissing,
		RecommendedMissing: report.RecommendedMissing,
		Errors:             errors,
		Warnings:           warnings,
		Prompts:            report.Prompts,
		Defaults:           report.Defaults,
		NeedsClarification: report.NeedsClarification,
		Sizing:             sizing,
	}

	// The score saturates at 100 only with zero blocking errors.
	if result.CompletionScore == 100 && len(errors) > 0 {
		result.CompletionScore = 99
	}

	// A draft can only be complete against a formally supported schema.
	_, supported := PatternSchema(pattern)
	result.IsComplete = supported && len(result.RequiredMissing) == 0 && len(errors) == 0
	result.State = deriveState(rules, result)

	return result
}

func deriveState(rules []StrategyRule, result ValidationResult) DraftState {
	switch {
	case len(rules) == 0:
		return DraftStateEmpty
	case len(result.Errors) > 0:
		return DraftStateBlocked
	case !result.IsComplete:
		return DraftStatePartial
	case len(result.Warnings) > 0:
		return DraftStateCompleteWithWarnings
	default:
		return DraftStateReady
	}
}
