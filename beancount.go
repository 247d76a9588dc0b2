package main

import (
	"io"
	"regexp"
	"strings"
	"text/template"

	"github.com/shopspring/decimal"
)

// BeancountParser reads beancount journals.
//
//	2015-01-01 * "Opening Balance for checking account"
//	  Assets:US:BofA:Checking                         3490.52 USD
//	  Equity:Opening-Balances                        -3490.52 USD
type BeancountParser struct {
	journalParser
}

var (
	rbeancountHeader = regexp.MustCompile(`^(\d+[\d/-]+)\s+([*!])?\s*("[^"]*")?\s*("[^"]*")?`)
	rlotSplit        = regexp.MustCompile(`[{,]`)
)

func NewBeancountParser(dateFormat string, tmpl *template.Template) *BeancountParser {
	if tmpl == nil {
		tmpl = template.Must(newTransactionTemplate(defaultBeancountTemplate))
	}
	p := &BeancountParser{}
	p.dateFormat, p.tmpl = dateFormat, tmpl
	p.header = beancountHeader
	p.posting = beancountPosting
	return p
}

func (p *BeancountParser) Parse(r io.Reader) ([]Entry, error) { return p.parse(r) }

func beancountHeader(line string) (Entry, bool) {
	m := rbeancountHeader.FindStringSubmatch(line)
	if m == nil {
		return Entry{}, false
	}
	return Entry{
		Date:   parseJournalDate(m[1]),
		Status: m[2],
		Desc:   strings.Trim(m[3], `"`),
		Notes:  strings.Trim(m[4], `"`),
	}, true
}

// beancountPosting flattens a lot ("19 VHT {132.32 USD, 2017-08-27}") into
// its cost in the price currency. A trailing "@ price" is ignored.
func beancountPosting(line string) Posting {
	account, rest := splitPosting(line)
	value, note, _ := strings.Cut(rest, ";")
	post := Posting{Account: account, Note: strings.TrimSpace(note)}
	if !strings.Contains(value, "{") {
		post.Amount, post.Currency = postingAmount(value)
		return post
	}
	parts := rlotSplit.Split(value, 3)
	qty := leadingDecimal(strings.TrimSpace(parts[0]))
	cost, _, _ := strings.Cut(parts[1], "}")
	price := ParseMoney(strings.TrimSpace(cost), MoneyOptions{})
	post.Amount = decimal.NewNullDecimal(qty.Mul(price.Amount))
	post.Currency = price.Currency
	return post
}
