// Package prompt builds the system prompts that steer the assistant toward
// the tagged-block protocol and the supported pattern schemas.
package prompt

import (
	"fmt"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/kestrelhq/stratagem/internal/strategy"
)

var titleCaser = cases.Title(language.English)

// acronyms that title casing would otherwise mangle.
var displayOverrides = map[string]string{
	"ema": "EMA",
	"atr": "ATR",
}

// PatternDisplayName renders a pattern identifier for humans, e.g.
// "opening_range_breakout" becomes "Opening Range Breakout".
func PatternDisplayName(p strategy.CanonicalPattern) string {
	words := strings.Split(string(p), "_")
	for i, w := range words {
		if override, ok := displayOverrides[w]; ok {
			words[i] = override
			continue
		}
		words[i] = titleCaser.String(w)
	}
	return strings.Join(words, " ")
}

// Context carries the per-turn state the system prompt is rendered from.
type Context struct {
	// Pattern is the session's detected pattern, or PatternUnsupported when
	// none has been established yet.
	Pattern strategy.CanonicalPattern
	// KnownRules are the rules already captured this session.
	KnownRules []strategy.StrategyRule
	// MissingLabels are the required fields still unanswered, in priority
	// order. The assistant is told to ask about the first one.
	MissingLabels []string
	// FirstTurn suppresses defaulting guidance so the assistant asks an
	// open clarifying question instead.
	FirstTurn bool
}

// Builder renders system prompts from a parsed template set.
type Builder struct {
	tmpl *template.Template
}

// NewBuilder parses the embedded prompt templates. Parse errors are
// programmer errors and surface at startup.
func NewBuilder() (*Builder, error) {
	tmpl := template.New("system").Funcs(template.FuncMap{
		"display": PatternDisplayName,
		"upper":   strings.ToUpper,
		"lower":   strings.ToLower,
		"title":   titleCaser.String,
		"join":    strings.Join,
	})

	tmpl, err := tmpl.Parse(systemTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse system prompt template: %w", err)
	}

	return &Builder{tmpl: tmpl}, nil
}

// BuildSystemPrompt renders the full system prompt for one assistant turn.
func (b *Builder) BuildSystemPrompt(ctx Context) (string, error) {
	data := b.templateData(ctx)

	var sb strings.Builder
	if err := b.tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render system prompt: %w", err)
	}
	return sb.String(), nil
}

type patternSection struct {
	Name   string
	Fields []fieldLine
}

type fieldLine struct {
	Label       string
	Description string
	Required    bool
	Options     []string
}

type templateData struct {
	StartDelimiter string
	EndDelimiter   string
	Patterns       []patternSection
	ActivePattern  string
	KnownRules     []strategy.StrategyRule
	MissingLabels  []string
	FirstTurn      bool
}

func (b *Builder) templateData(ctx Context) templateData {
	data := templateData{
		StartDelimiter: strategy.BlockStartDelimiter,
		EndDelimiter:   strategy.BlockEndDelimiter,
		KnownRules:     ctx.KnownRules,
		MissingLabels:  ctx.MissingLabels,
		FirstTurn:      ctx.FirstTurn,
	}

	for _, p := range strategy.SupportedPatterns() {
		schema, ok := strategy.PatternSchema(p)
		if !ok {
			continue
		}
		meta, _ := strategy.PatternFieldMeta(p)

		section := patternSection{Name: PatternDisplayName(p)}
		for _, spec := range schema {
			line := fieldLine{
				Label:    spec.Label,
				Required: spec.Required,
				Options:  spec.Options,
			}
			if m, ok := meta[spec.Field]; ok {
				line.Description = m.Description
			}
			section.Fields = append(section.Fields, line)
		}
		data.Patterns = append(data.Patterns, section)
	}

	if ctx.Pattern != "" && ctx.Pattern != strategy.PatternUnsupported {
		data.ActivePattern = PatternDisplayName(ctx.Pattern)
	}

	return data
}

const systemTemplate = `You are a trading strategy assistant. You help futures traders turn the
strategy in their head into a precise, validated rule set.

## Structured output protocol

Whenever the conversation establishes or changes any strategy rule, emit
exactly one machine-readable block in your reply, wrapped in the delimiters
{{.StartDelimiter}} and {{.EndDelimiter}}. The block contains a single JSON
object describing the full strategy configuration as currently understood.
Rules for the block:

- Emit at most one block per reply.
- The JSON must include "type", "direction", "entry", "stopLoss", and
  "display" objects; include "target", "priceAction", "indicators", and
  "context" when known.
- Every entry, stop, and target object needs a human-readable "label".
- Never mention the delimiters or the JSON to the user; the prose around the
  block must read naturally on its own.

## Supported patterns
{{range .Patterns}}
### {{.Name}}
{{- range .Fields}}
- {{.Label}}{{if .Required}} (required){{end}}{{if .Description}}: {{.Description}}{{end}}{{if .Options}} Options: {{join .Options ", "}}.{{end}}
{{- end}}
{{end}}
If the trader describes a strategy outside these patterns, say so plainly,
name the two closest supported patterns, and offer to notify them when their
pattern is supported. Do not force an unsupported strategy into a pattern.

## Conversation style
{{if .ActivePattern}}
The trader is building this pattern: {{.ActivePattern}}.
{{- end}}
{{- if .KnownRules}}
Rules captured so far:
{{- range .KnownRules}}
- {{.Label}}: {{.Value}}
{{- end}}
{{- end}}
{{- if .FirstTurn}}
This is the trader's first description. If it is too vague to fill most of
the required fields, ask one open clarifying question about the most
important gap instead of assuming defaults.
{{- else if .MissingLabels}}
Still missing: {{join .MissingLabels ", "}}. Ask about "{{index .MissingLabels 0}}"
next, one question at a time. Where a field has a sensible convention you may
propose it explicitly, but never silently assume anything that changes dollar
risk.
{{- end}}
Keep replies short and concrete. Quote the trader's own numbers back to them
when confirming a rule.`
