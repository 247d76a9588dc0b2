package main

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// MoneyOptions controls how raw strings are turned into Money.
type MoneyOptions struct {
	CommaSeparatesCents bool
	Inverse             bool
	Currency            string
	Suffixed            bool
	Raw                 bool
}

// Money is a signed amount together with the currency it was written in.
type Money struct {
	Amount   decimal.Decimal
	Currency string
	Suffixed bool

	// Raw is the string the amount was parsed from. It is printed verbatim by
	// Pretty when the Raw option is set (stocks, lots).
	Raw     string
	RawMode bool
}

const moneyDigits = `0-9,.\-`

var (
	rparens    = regexp.MustCompile(`^\(.*\)$`)
	rplain     = regexp.MustCompile(`^\s*([` + moneyDigits + `]+)\s*$`)
	rprefixed  = regexp.MustCompile(`^\s*([\-+])?\s*([^ +` + moneyDigits + `]{1,3})\s*([+` + moneyDigits + `]+)\s*$`)
	rsuffixed  = regexp.MustCompile(`^\s*([` + moneyDigits + `]+)\s*([^ ` + moneyDigits + `]{1,3})\s*$`)
	rtotal     = regexp.MustCompile(`([0-9.,\-]+)[^@]*@@[^0-9.\-]*([0-9.,\-]+)`)
	rsecurity  = regexp.MustCompile(`([0-9.,\-]+)[^@]*@[^0-9.\-]*([0-9.,\-]+)`)
	rnotMoney  = regexp.MustCompile(`[^0-9.\-]`)
	rleadingNo = regexp.MustCompile(`^-?(\d+(\.\d+)?|\.\d+)`)
)

// ParseMoney turns a raw cell like "$1,025.67", "(20.00)" or "100,50 EUR" into
// Money. It never fails: anything without digits is zero.
func ParseMoney(raw string, opt MoneyOptions) *Money {
	m := &Money{Raw: raw, Suffixed: opt.Suffixed, RawMode: opt.Raw}
	currency, amount := splitCurrency(raw)
	m.Amount = moneyValue(amount, opt)
	if opt.Inverse {
		m.Amount = m.Amount.Neg()
	}
	m.Currency = currency
	if opt.Currency != "" {
		m.Currency = opt.Currency
	}
	return m
}

// NewMoney wraps an already known amount.
func NewMoney(amount decimal.Decimal, opt MoneyOptions) *Money {
	return &Money{
		Amount:   amount,
		Currency: opt.Currency,
		Suffixed: opt.Suffixed,
		Raw:      amount.StringFixed(2),
	}
}

// splitCurrency separates a currency glyph or code from the numeric part.
// Parenthesised values come back with a leading minus.
func splitCurrency(value string) (currency, amount string) {
	var invert string
	if rparens.MatchString(strings.TrimSpace(value)) {
		value = strings.NewReplacer("(", "", ")", "").Replace(value)
		invert = "-"
	}
	if strings.TrimSpace(value) == "" {
		return "", "0"
	}
	if m := rplain.FindStringSubmatch(value); m != nil {
		return "", invert + m[1]
	}
	if m := rprefixed.FindStringSubmatch(value); m != nil {
		sign := ""
		if m[1] == "-" {
			sign = "-"
		}
		return m[2], invert + sign + m[3]
	}
	if m := rsuffixed.FindStringSubmatch(value); m != nil {
		return m[2], invert + m[1]
	}
	return "", invert + value
}

func moneyValue(value string, opt MoneyOptions) decimal.Decimal {
	if opt.CommaSeparatesCents {
		value = strings.ReplaceAll(value, ".", "")
		value = strings.ReplaceAll(value, ",", ".")
	}
	value = strings.ReplaceAll(value, ",", "")

	// Lots and prices: "50 AAPL @ $30.00" is worth 1500.
	if m := rtotal.FindStringSubmatch(value); m != nil {
		qty, total := leadingDecimal(m[1]), leadingDecimal(m[2]).Abs()
		if qty.IsNegative() {
			return total.Neg()
		}
		return total
	}
	if m := rsecurity.FindStringSubmatch(value); m != nil {
		return leadingDecimal(m[1]).Mul(leadingDecimal(m[2]))
	}

	invert := rparens.MatchString(value)
	d := leadingDecimal(value)
	if invert {
		return d.Neg()
	}
	return d
}

// leadingDecimal strips everything that cannot be part of a number and parses
// the longest numeric prefix of what is left.
func leadingDecimal(s string) decimal.Decimal {
	s = rnotMoney.ReplaceAllString(s, "")
	n := rleadingNo.FindString(s)
	if n == "" {
		return decimal.Zero
	}
	switch {
	case strings.HasPrefix(n, "-."):
		n = "-0" + n[1:]
	case strings.HasPrefix(n, "."):
		n = "0" + n
	}
	d, err := decimal.NewFromString(n)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Neg returns a copy with the opposite sign.
func (m *Money) Neg() *Money {
	out := *m
	out.Amount = m.Amount.Neg()
	out.Raw = out.Amount.StringFixed(2)
	return &out
}

func (m *Money) IsZero() bool     { return m.Amount.IsZero() }
func (m *Money) IsNegative() bool { return m.Amount.IsNegative() }

// Pretty formats the amount for a ledger line: two decimals, grouped
// thousands, the currency next to the first digit and the sign outside it.
// Non-negative amounts get a leading space so columns line up. In raw mode
// the cell is written as found, only its sign is flipped on negate.
func (m *Money) Pretty(negate bool) string {
	if m.RawMode {
		if negate {
			return negateRaw(m.Raw)
		}
		return m.Raw
	}
	amount := m.Amount
	if negate {
		amount = amount.Neg()
	}
	sign := " "
	if amount.IsNegative() {
		sign = "-"
	}
	digits := groupThousands(amount.Abs())
	if m.Suffixed {
		if m.Currency == "" {
			return sign + digits
		}
		return sign + digits + " " + m.Currency
	}
	return sign + m.Currency + digits
}

func negateRaw(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if rparens.MatchString(raw) {
		return raw[1 : len(raw)-1]
	}
	i := strings.IndexAny(raw, "+-0123456789")
	switch {
	case i < 0:
		return "-" + raw
	case raw[i] == '-':
		return raw[:i] + raw[i+1:]
	case raw[i] == '+':
		return raw[:i] + "-" + raw[i+1:]
	}
	return "-" + raw
}

func groupThousands(d decimal.Decimal) string {
	d = d.Round(2)
	intPart := d.Truncate(0)
	frac := d.Sub(intPart).Shift(2).IntPart()
	return fmt.Sprintf("%s.%02d", humanize.Comma(intPart.IntPart()), frac)
}

var (
	rtrailingCents = regexp.MustCompile(`\d+[,.]\d{2}[^\d]*$`)
	ramountShape   = regexp.MustCompile(`^\$?-?\$?\d+[.,\d]*?[.,]\d\d$`)
	rtwoDecimals   = regexp.MustCompile(`\d+[.,\d]*?[.,]\d\d$`)
	rcurrencyGlyph = regexp.MustCompile(`^[\-+(]{0,2}[$£€¥]`)
	rmoneyChars    = regexp.MustCompile(`[^\d.\-+,()]`)
	rmoneyAlphabet = regexp.MustCompile(`^[$+.\-,\d()]+$`)
)

// MoneyLikelihood scores how much a cell looks like an amount of money. It is
// only meaningful relative to other cells.
func MoneyLikelihood(entry string) int {
	score := 0
	if rtrailingCents.MatchString(entry) {
		score += 40
	}
	if ramountShape.MatchString(entry) {
		score += 10
	}
	if rtwoDecimals.MatchString(entry) {
		score += 10
	}
	if rcurrencyGlyph.MatchString(entry) {
		score += 10
	}
	if len(entry) < 7 {
		score += len(rmoneyChars.ReplaceAllString(entry, ""))
	}
	if len(entry) > 12 {
		score -= len(entry)
	}
	if len(entry) > 0 && !rmoneyAlphabet.MatchString(entry) {
		score -= 20
	}
	return score
}

// MoneyColumn is a parsed column of a CSV. A nil element is a blank cell.
type MoneyColumn []*Money

func NewMoneyColumn(values []string, opt MoneyOptions) MoneyColumn {
	col := make(MoneyColumn, len(values))
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		col[i] = ParseMoney(v, opt)
	}
	return col
}

// Positive is true when no non-blank value is negative.
func (c MoneyColumn) Positive() bool {
	for _, m := range c {
		if m != nil && m.IsNegative() {
			return false
		}
	}
	return true
}

// Merge folds a debit/credit pair into one signed column. A row where both
// sides carry a non-zero amount cannot be merged: it becomes zero and ok is
// false. When both columns only hold positive values the first one is taken
// to be money going out and is negated.
func (c MoneyColumn) Merge(other MoneyColumn) (merged MoneyColumn, ok bool) {
	if len(c) != len(other) {
		return nil, false
	}
	invert := c.Positive() && other.Positive()
	merged = make(MoneyColumn, len(c))
	ok = true
	for i := range c {
		a, b := c[i], other[i]
		aSet := a != nil && !a.IsZero()
		bSet := b != nil && !b.IsZero()
		switch {
		case aSet && !bSet:
			merged[i] = a
			if invert {
				merged[i] = a.Neg()
			}
		case !aSet && bSet:
			merged[i] = b
		case aSet && bSet:
			ok = false
			merged[i] = NewMoney(decimal.Zero, MoneyOptions{Currency: a.Currency, Suffixed: a.Suffixed})
		default:
			merged[i] = NewMoney(decimal.Zero, MoneyOptions{})
			if a != nil {
				merged[i] = a
			} else if b != nil {
				merged[i] = b
			}
		}
	}
	return merged, ok
}

// Strings renders the column back to plain signed amounts, blanks for zero.
func (c MoneyColumn) Strings() []string {
	out := make([]string, len(c))
	for i, m := range c {
		if m == nil || m.IsZero() {
			continue
		}
		out[i] = m.Amount.StringFixed(2)
	}
	return out
}
