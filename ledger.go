package main

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strings"
	"text/template"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Entry is one dated transaction of a journal.
type Entry struct {
	Date     time.Time
	Status   string
	Code     string
	Desc     string
	Notes    string
	Postings []Posting
}

// Posting moves an amount in or out of an account. Amount is invalid when
// the journal left it out for the entry to balance.
type Posting struct {
	Account  string
	Amount   decimal.NullDecimal
	Currency string
	Note     string
}

type parseState int

const (
	outsideEntry parseState = iota
	inEntry
	inBlockComment
)

const commentChars = ";#%*|"

var (
	rcommentLine = regexp.MustCompile(`^\s*[` + regexp.QuoteMeta(commentChars) + `]`)
	rpostingSep  = regexp.MustCompile(`\s{2,}|\t+`)
)

// journalParser is the line state machine shared by the ledger and beancount
// dialects. A dialect only says what a header looks like and how to read the
// amount of a posting.
type journalParser struct {
	header  func(line string) (Entry, bool)
	posting func(line string) Posting

	dateFormat string
	tmpl       *template.Template
	warnings   []string
}

func (jp *journalParser) parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	var cur *Entry
	state := outsideEntry

	flush := func() {
		if cur != nil {
			if e, ok := jp.finish(*cur); ok {
				entries = append(entries, e)
			}
		}
		cur = nil
		state = outsideEntry
	}

	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), 1024*1024)
	for s.Scan() {
		line := strings.TrimRightFunc(s.Text(), unicode.IsSpace)
		switch {
		case line == "comment":
			flush()
			state = inBlockComment
			continue
		case state == inBlockComment:
			if line == "end comment" {
				state = outsideEntry
			}
			continue
		case rcommentLine.MatchString(line):
			continue
		}

		if e, ok := jp.header(line); ok {
			flush()
			cur, state = &e, inEntry
			continue
		}
		if state != inEntry {
			continue
		}
		switch {
		case line == "":
			flush()
		case line[0] == ' ' || line[0] == '\t':
			cur.Postings = append(cur.Postings, jp.posting(line))
		default:
			debugf("Unknown journal line: %s", line)
			flush()
		}
	}
	flush()
	return entries, errors.Wrap(s.Err(), "unable to read journal")
}

// finish balances an entry, or rejects it if it has no date or fewer than
// two postings.
func (jp *journalParser) finish(e Entry) (Entry, bool) {
	if e.Date.IsZero() || len(e.Postings) < 2 {
		return e, false
	}
	if msg := balance(e.Postings); msg != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Date.Format("2006-01-02"), e.Desc, msg)
		warnf("%s", msg)
		jp.warnings = append(jp.warnings, msg)
	}
	return e, true
}

// balance fills in the amount a journal left out. One missing amount is the
// negated sum of the others. With more than one the entry can't be balanced:
// every missing amount becomes zero and a message is returned.
func balance(postings []Posting) string {
	sum := decimal.Zero
	var missing []int
	currency := ""
	for i, p := range postings {
		if !p.Amount.Valid {
			missing = append(missing, i)
			continue
		}
		sum = sum.Add(p.Amount.Decimal)
		if currency == "" {
			currency = p.Currency
		}
	}
	switch len(missing) {
	case 0:
		return ""
	case 1:
		i := missing[0]
		postings[i].Amount = decimal.NewNullDecimal(sum.Neg())
		if postings[i].Currency == "" {
			postings[i].Currency = currency
		}
		return ""
	}
	for _, i := range missing {
		postings[i].Amount = decimal.NewNullDecimal(decimal.Zero)
	}
	return fmt.Sprintf("unable to balance, %d postings have no amount", len(missing))
}

// Warnings are the entries that could not be balanced, across every parse.
func (jp *journalParser) Warnings() []string { return jp.warnings }

var journalDateLayouts = []string{"2006/1/2", "2006-1-2", "2006.1.2"}

// parseJournalDate reads the date of an entry header. An effective date
// ("2014/01/02=2014/01/05") is ignored.
func parseJournalDate(s string) time.Time {
	s, _, _ = strings.Cut(s, "=")
	for _, layout := range journalDateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if t.Year() < 1000 || t.Year() > 9999 {
			return time.Time{}
		}
		return t
	}
	return time.Time{}
}

// splitPosting separates the account of a posting line from the rest, which
// are at least two spaces or a tab apart.
func splitPosting(line string) (account, rest string) {
	parts := rpostingSep.Split(strings.TrimSpace(line), 2)
	account = parts[0]
	if len(parts) == 2 {
		rest = strings.TrimSpace(parts[1])
	}
	return account, rest
}

func postingAmount(value string) (decimal.NullDecimal, string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.NullDecimal{}, ""
	}
	m := ParseMoney(value, MoneyOptions{})
	return decimal.NewNullDecimal(m.Amount), m.Currency
}

// ToCSV renders the postings of a journal one per line, in the column order
// of `ledger csv`: date, code, payee, account, currency, amount, status and
// an empty account note.
func (jp *journalParser) ToCSV(r io.Reader) (string, error) {
	entries, err := jp.parse(r)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	w := csv.NewWriter(&b)
	for _, e := range entries {
		for _, p := range e.Postings {
			rec := []string{
				formatDate(e.Date, jp.dateFormat), e.Code, e.Desc, p.Account,
				p.Currency, p.Amount.Decimal.String(), e.Status, "",
			}
			if err := w.Write(rec); err != nil {
				return "", errors.Wrap(err, "unable to write CSV")
			}
		}
	}
	w.Flush()
	return b.String(), errors.Wrap(w.Error(), "unable to write CSV")
}

// FormatRow renders a new transaction for a CSV row with two postings.
func (jp *journalParser) FormatRow(row Row, line1, line2 TxnLine, currency string) (string, error) {
	return ledgerFormat(toTxnTemplate(row, line1, line2, currency), jp.tmpl)
}

// LedgerParser reads ledger-cli journals.
type LedgerParser struct {
	journalParser
}

var (
	rledgerHeader = regexp.MustCompile(`^(\d+[^\s]+)\s+([*!])?\s*(\([^)]+\))?\s*(.*)$`)
	rheaderNote   = regexp.MustCompile(`(\s{2,}|\t);`)
)

// NewLedgerParser returns a parser whose ToCSV dates follow dateFormat and
// whose FormatRow uses tmpl, or the default ledger layout when tmpl is nil.
func NewLedgerParser(dateFormat string, tmpl *template.Template) *LedgerParser {
	if tmpl == nil {
		tmpl = template.Must(newTransactionTemplate(defaultLedgerTemplate))
	}
	p := &LedgerParser{}
	p.dateFormat, p.tmpl = dateFormat, tmpl
	p.header = ledgerHeader
	p.posting = ledgerPosting
	return p
}

// Parse reads every balanced entry of a ledger journal.
func (p *LedgerParser) Parse(r io.Reader) ([]Entry, error) { return p.parse(r) }

func ledgerHeader(line string) (Entry, bool) {
	m := rledgerHeader.FindStringSubmatch(line)
	if m == nil {
		return Entry{}, false
	}
	e := Entry{
		Date:   parseJournalDate(m[1]),
		Status: m[2],
		Code:   strings.Trim(m[3], "()"),
		Desc:   strings.TrimSpace(m[4]),
	}
	if loc := rheaderNote.FindStringIndex(e.Desc); loc != nil {
		e.Notes = strings.TrimSpace(e.Desc[loc[1]:])
		e.Desc = strings.TrimSpace(e.Desc[:loc[0]])
	}
	return e, true
}

func ledgerPosting(line string) Posting {
	account, rest := splitPosting(line)
	value, note, _ := strings.Cut(rest, ";")
	amount, currency := postingAmount(value)
	return Posting{
		Account:  account,
		Amount:   amount,
		Currency: currency,
		Note:     strings.TrimSpace(note),
	}
}
