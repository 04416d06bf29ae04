package strategy

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Rule values arrive as display strings ("8 ticks", "1% risk", "$50,000",
// "2.5x ATR", "1:2"). These helpers pull the numbers back out; each returns
// false when the phrasing carries no parseable quantity.

var (
	dollarRe    = regexp.MustCompile(`\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*([kK])?`)
	percentRe   = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*%`)
	ticksRe     = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*tick`)
	pointsRe    = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*(?:point|pt)`)
	atrRe       = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*[x×]?\s*atr`)
	ratioRe     = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*:\s*([0-9]+(?:\.[0-9]+)?)`)
	rMultipleRe = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*[rR]\b`)
	bareNumRe   = regexp.MustCompile(`([0-9][0-9,]*(?:\.[0-9]+)?)`)
)

func parseDollars(s string) (decimal.Decimal, bool) {
	m := dollarRe.FindStringSubmatch(s)
	if m == nil {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	if m[2] != "" {
		d = d.Mul(decimal.NewFromInt(1000))
	}
	return d, true
}

func parsePercent(s string) (decimal.Decimal, bool) {
	m := percentRe.FindStringSubmatch(s)
	if m == nil {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func parseTicks(s string) (decimal.Decimal, bool) {
	return parseWithPattern(ticksRe, s)
}

func parsePoints(s string) (decimal.Decimal, bool) {
	return parseWithPattern(pointsRe, s)
}

// parseATRMultiple reads stop widths phrased as ATR multiples ("2x ATR",
// "1.5 ATR").
func parseATRMultiple(s string) (decimal.Decimal, bool) {
	return parseWithPattern(atrRe, strings.ToLower(s))
}

// parseRewardRatio reads a risk:reward phrasing. "1:2" yields 2 (reward per
// unit risk); "1.5R" yields 1.5.
func parseRewardRatio(s string) (decimal.Decimal, bool) {
	if m := ratioRe.FindStringSubmatch(s); m != nil {
		risk, err1 := decimal.NewFromString(m[1])
		reward, err2 := decimal.NewFromString(m[2])
		if err1 == nil && err2 == nil && !risk.IsZero() {
			return reward.Div(risk), true
		}
	}
	if m := rMultipleRe.FindStringSubmatch(s); m != nil {
		d, err := decimal.NewFromString(m[1])
		if err == nil {
			return d, true
		}
	}
	return decimal.Zero, false
}

// parseBareNumber reads the first number in the string, commas stripped.
func parseBareNumber(s string) (decimal.Decimal, bool) {
	m := bareNumRe.FindStringSubmatch(s)
	if m == nil {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func parseWithPattern(re *regexp.Regexp, s string) (decimal.Decimal, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
