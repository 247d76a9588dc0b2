package main

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const exampleLedger = `= /^Expenses:Books/
  (Liabilities:Taxes)             -0.10

~ Monthly
  Assets:Bank:Checking          $500.00
  Income:Salary

2004-05-01 * Checking balance
  Assets:Bank:Checking        $1,000.00
  Equity:Opening Balances

2004-05-01 * Checking balance
  Assets:Bank:Checking        €1,000.00
  Equity:Opening Balances

2004-05-01 * Checking balance
  Assets:Bank:Checking        1,000.00 SEK
  Equity:Opening Balances

2004/05/01 * Investment balance
  Assets:Brokerage              50 AAPL @ $30.00
  Equity:Opening Balances

; blah
!account blah

!end

D $1,000

2004/05/14 * Pay day
  Assets:Bank:Checking          $500.00
  Income:Salary

2004/05/27 Book Store
  Expenses:Books                 $20.00
  Liabilities:MasterCard

2004/05/27 (100) Credit card company
  ; This is an xact note!
  ; Sample: Value
  Liabilities:MasterCard         $20.00
  ; This is a posting note!
  ; Sample: Another Value
  ; :MyTag:
  Assets:Bank:Checking
  ; :AnotherTag:
`

const exampleBeancount = `option "title" "Example"

2015-01-01 open Assets:US:BofA:Checking USD

2015-01-01 * "Opening Balance for checking account"
  Assets:US:BofA:Checking                         3490.52 USD
  Equity:Opening-Balances                        -3490.52 USD

2017-08-27 * "Buy" "stocks"
  Assets:US:ETrade:VHT      19 VHT {132.32 USD, 2017-08-27}
  Assets:US:ETrade:Cash
`

func amountOf(p Posting) string {
	if !p.Amount.Valid {
		return "<nil>"
	}
	return p.Amount.Decimal.String()
}

func TestLedgerParse(t *testing.T) {
	p := NewLedgerParser("", nil)
	entries, err := p.Parse(strings.NewReader(exampleLedger))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 7 {
		t.Fatalf("got %d entries, want 7", len(entries))
	}

	first := entries[0]
	if !first.Date.Equal(time.Date(2004, time.May, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v", first.Date)
	}
	if first.Status != "*" || first.Desc != "Checking balance" {
		t.Errorf("header = %q %q", first.Status, first.Desc)
	}
	if got := amountOf(first.Postings[1]); got != "-1000" {
		t.Errorf("balancing amount = %s, want -1000", got)
	}
	if first.Postings[1].Currency != "$" {
		t.Errorf("balancing currency = %q", first.Postings[1].Currency)
	}
	if first.Postings[1].Account != "Equity:Opening Balances" {
		t.Errorf("account = %q", first.Postings[1].Account)
	}

	if c := entries[1].Postings[0].Currency; c != "€" {
		t.Errorf("prefixed currency = %q", c)
	}
	if c := entries[2].Postings[0].Currency; c != "SEK" {
		t.Errorf("suffixed currency = %q", c)
	}
	if got := amountOf(entries[3].Postings[0]); got != "1500" {
		t.Errorf("security amount = %s, want 1500", got)
	}

	last := entries[6]
	if last.Code != "100" || last.Desc != "Credit card company" {
		t.Errorf("header = %q %q", last.Code, last.Desc)
	}
	if len(last.Postings) != 2 || amountOf(last.Postings[1]) != "-20" {
		t.Errorf("postings = %+v", last.Postings)
	}
	if len(p.Warnings()) != 0 {
		t.Errorf("unexpected warnings: %v", p.Warnings())
	}
}

func TestLedgerEdgeCases(t *testing.T) {
	tests := []struct {
		name    string
		journal string
		entries int
	}{
		{"block comment", "comment\n2020/01/01 Hidden\n  Expenses:A  $1\n  Assets:B\nend comment\n" +
			"2020/01/02 Shown\n  Expenses:A  $1\n  Assets:B\n", 1},
		{"bad year", "0000/01/01 Nothing\n  Expenses:A  $1\n  Assets:B\n", 0},
		{"single posting", "2020/01/01 Lonely\n  Expenses:A  $1\n", 0},
		{"no blank line between entries", "2020/01/01 One\n  Expenses:A  $1\n  Assets:B\n" +
			"2020/01/02 Two\n  Expenses:A  $2\n  Assets:B\n", 2},
		{"comment chars", "# hash\n% percent\n| pipe\n* star\n2020/01/01 One\n  Expenses:A  $1\n  Assets:B\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := NewLedgerParser("", nil).Parse(strings.NewReader(tt.journal))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(entries) != tt.entries {
				t.Errorf("got %d entries, want %d", len(entries), tt.entries)
			}
		})
	}
}

func TestLedgerHeaderNotes(t *testing.T) {
	e, ok := ledgerHeader("2014/01/02=2014/01/05 ! Grocery store  ; weekly shop")
	if !ok {
		t.Fatalf("header not recognised")
	}
	if !e.Date.Equal(time.Date(2014, time.January, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date = %v", e.Date)
	}
	if e.Status != "!" || e.Desc != "Grocery store" || e.Notes != "weekly shop" {
		t.Errorf("entry = %+v", e)
	}

	p := ledgerPosting("    Expenses:Food    $3.50 ; lunch")
	if p.Account != "Expenses:Food" || amountOf(p) != "3.5" || p.Note != "lunch" {
		t.Errorf("posting = %+v", p)
	}
}

func TestBalance(t *testing.T) {
	amount := func(s string) decimal.NullDecimal {
		return decimal.NewNullDecimal(decimal.RequireFromString(s))
	}
	tests := []struct {
		name     string
		postings []Posting
		want     []string
		warn     bool
	}{
		{"one missing", []Posting{{Amount: amount("1000")}, {}}, []string{"1000", "-1000"}, false},
		{"many present", []Posting{{Amount: amount("1000")}, {Amount: amount("100")}, {Amount: amount("-200")}, {}},
			[]string{"1000", "100", "-200", "-900"}, false},
		{"none missing", []Posting{{Amount: amount("5")}, {Amount: amount("-5")}}, []string{"5", "-5"}, false},
		{"two missing", []Posting{{}, {}, {Amount: amount("10")}}, []string{"0", "0", "10"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := balance(tt.postings)
			if (msg != "") != tt.warn {
				t.Errorf("balance message = %q", msg)
			}
			for i, p := range tt.postings {
				if got := amountOf(p); got != tt.want[i] {
					t.Errorf("posting %d = %s, want %s", i, got, tt.want[i])
				}
			}
		})
	}
}

func TestUnbalancedWarning(t *testing.T) {
	p := NewLedgerParser("", nil)
	entries, err := p.Parse(strings.NewReader("2020/01/01 Split\n  Expenses:A\n  Expenses:B\n  Assets:Cash  $10.00\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("unbalanced entries are still kept, got %d", len(entries))
	}
	if len(p.Warnings()) != 1 {
		t.Errorf("warnings = %v", p.Warnings())
	}
}

func TestBeancountParse(t *testing.T) {
	entries, err := NewBeancountParser("", nil).Parse(strings.NewReader(exampleBeancount))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Desc != "Opening Balance for checking account" {
		t.Errorf("desc = %q", entries[0].Desc)
	}
	if got := amountOf(entries[0].Postings[1]); got != "-3490.52" {
		t.Errorf("amount = %s", got)
	}
	buy := entries[1]
	if buy.Desc != "Buy" || buy.Notes != "stocks" {
		t.Errorf("header = %q %q", buy.Desc, buy.Notes)
	}
	if got := amountOf(buy.Postings[0]); got != "2514.08" {
		t.Errorf("lot cost = %s, want 2514.08", got)
	}
	if got := amountOf(buy.Postings[1]); got != "-2514.08" || buy.Postings[1].Currency != "USD" {
		t.Errorf("cash = %s %s", got, buy.Postings[1].Currency)
	}
}

func TestBeancountLotWithPrice(t *testing.T) {
	journal := `2020-03-01 * "Buy"
  Assets:Broker      10 VHT {132.32 USD} @ 140.00 USD
  Assets:Cash
`
	entries, err := NewBeancountParser("", nil).Parse(strings.NewReader(journal))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 1 || len(entries[0].Postings) != 2 {
		t.Fatalf("entries = %+v", entries)
	}
	lot, cash := entries[0].Postings[0], entries[0].Postings[1]
	if got := amountOf(lot); got != "1323.2" || lot.Currency != "USD" {
		t.Errorf("lot cost = %s %s, want 1323.2 USD", got, lot.Currency)
	}
	if got := amountOf(cash); got != "-1323.2" || cash.Currency != "USD" {
		t.Errorf("cash = %s %s, want -1323.2 USD", got, cash.Currency)
	}
}

func TestToCSV(t *testing.T) {
	journal := "2004/05/27 (100) Book Store\n  Expenses:Books  $20.00\n  Liabilities:MasterCard\n"
	got, err := NewLedgerParser("", nil).ToCSV(strings.NewReader(journal))
	if err != nil {
		t.Fatalf("ToCSV: %v", err)
	}
	want := "2004-05-27,100,Book Store,Expenses:Books,$,20,,\n" +
		"2004-05-27,100,Book Store,Liabilities:MasterCard,$,-20,,\n"
	if got != want {
		t.Errorf("ToCSV =\n%s\nwant\n%s", got, want)
	}

	got, err = NewLedgerParser("%d/%m/%Y", nil).ToCSV(strings.NewReader(journal))
	if err != nil {
		t.Fatalf("ToCSV: %v", err)
	}
	if !strings.HasPrefix(got, "27/05/2004,") {
		t.Errorf("ToCSV with a date format = %q", got)
	}
}

func TestFormatRow(t *testing.T) {
	row := Row{
		Date:        time.Date(2020, time.January, 2, 0, 0, 0, 0, time.UTC),
		PrettyDate:  "2020-01-02",
		Description: "Coffee",
	}
	line1 := TxnLine{Account: "Expenses:Food", Amount: " $3.50"}
	line2 := TxnLine{Account: "Assets:Bank", Amount: "-$3.50"}

	got, err := NewLedgerParser("", nil).FormatRow(row, line1, line2, "$")
	if err != nil {
		t.Fatalf("FormatRow: %v", err)
	}
	want := "2020-01-02\tCoffee\n\tExpenses:Food\t\t\t $3.50\n\tAssets:Bank\t\t\t-$3.50\n\n"
	if got != want {
		t.Errorf("ledger FormatRow = %q, want %q", got, want)
	}

	got, err = NewBeancountParser("", nil).FormatRow(row, line1, line2, "$")
	if err != nil {
		t.Fatalf("FormatRow: %v", err)
	}
	if !strings.HasPrefix(got, `2020-01-02 * "Coffee" ""`) {
		t.Errorf("beancount FormatRow = %q", got)
	}
}
