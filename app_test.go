package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/manishrjain/keys"
)

const historyLedger = `2009/12/01 Book Store
  Expenses:Books                 $20.00
  Assets:Bank:Checking

2009/12/02 PAYPAL TRANSFER
  Expenses:Hosting               $116.22
  Assets:Bank:Checking
`

func newTestApp(t *testing.T, opt Options, history, csv string) *App {
	t.Helper()
	app, err := NewApp(opt)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if err := app.LearnFrom(strings.NewReader(history)); err != nil {
		t.Fatalf("LearnFrom: %v", err)
	}
	if err := app.ReadCSV([]byte(csv)); err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	return app
}

func TestRunUnattended(t *testing.T) {
	opt := testOptions()
	opt.Unattended = true
	app := newTestApp(t, opt, historyLedger, chaseCSV)

	var out bytes.Buffer
	if err := app.RunUnattended(context.Background(), &out); err != nil {
		t.Fatalf("RunUnattended: %v", err)
	}
	got := out.String()

	paypal := "2009-12-11\tCREDIT; PAYPAL TRANSFER PPD ID: PAYPALSDSL\n" +
		"\tExpenses:Hosting\t\t\t $116.22\n" +
		"\tAssets:Bank:Checking\t\t\t-$116.22\n\n"
	if !strings.Contains(got, paypal) {
		t.Errorf("missing the PayPal transaction in:\n%s", got)
	}
	// Money coming in is posted to the bank first, and falls back to the
	// income account.
	income := "2009-12-10\tCREDIT; Some Company vendorpymt PPD ID: 5KL3832735\n" +
		"\tAssets:Bank:Checking\t\t\t $2,105.00\n" +
		"\tIncome:Unknown\t\t\t-$2,105.00\n\n"
	if !strings.Contains(got, income) {
		t.Errorf("missing the income transaction in:\n%s", got)
	}
	if !strings.Contains(got, "\tExpenses:Unknown\t\t\t $85.00\n") {
		t.Errorf("unmatched spending should go to the default account:\n%s", got)
	}
	if n := strings.Count(got, "Assets:Bank:Checking"); n != 6 {
		t.Errorf("got %d transactions, want 6", n)
	}
	if i, j := strings.Index(got, "2009-12-10"), strings.Index(got, "2009-12-24"); i > j {
		t.Errorf("transactions should be written oldest first")
	}
}

func TestRunUnattendedFailOnUnknown(t *testing.T) {
	opt := testOptions()
	opt.FailOnUnknownAccount = true
	app := newTestApp(t, opt, historyLedger, chaseCSV)
	if err := app.RunUnattended(context.Background(), &bytes.Buffer{}); err == nil {
		t.Errorf("expected an error for rows without a suggestion")
	}
}

func TestRunUnattendedSkipsSeen(t *testing.T) {
	history := historyLedger + `
2009/12/10 Some Company
  Assets:Bank:Checking           $2,105.00
  Income:Salary
`
	app := newTestApp(t, testOptions(), history, chaseCSV)

	rows := app.csv.Rows()
	skip := app.skipSeen(rows)
	if !skip[0] || skip[1] {
		t.Errorf("only the first row is in the journal, got %v", skip)
	}

	var out bytes.Buffer
	if err := app.RunUnattended(context.Background(), &out); err != nil {
		t.Fatalf("RunUnattended: %v", err)
	}
	got := out.String()
	if strings.Contains(got, "5KL3832735") {
		t.Errorf("the row already in the journal was written again:\n%s", got)
	}
	if !strings.Contains(got, "\tIncome:Salary\t\t\t-$3,520.00\n") {
		t.Errorf("the second payment should be matched to the salary:\n%s", got)
	}
}

func TestTokensBeatHistory(t *testing.T) {
	app := newTestApp(t, testOptions(), historyLedger, chaseCSV)
	if err := app.LoadTokens([]byte("Expenses:\n  Code:\n    - /github/i\n")); err != nil {
		t.Fatalf("LoadTokens: %v", err)
	}
	var out bytes.Buffer
	if err := app.RunUnattended(context.Background(), &out); err != nil {
		t.Fatalf("RunUnattended: %v", err)
	}
	if !strings.Contains(out.String(), "\tExpenses:Code\t\t\t $7.00\n") {
		t.Errorf("the token rule was not applied:\n%s", out.String())
	}
}

func TestBeancountOutput(t *testing.T) {
	opt := testOptions()
	opt.Format = formatBeancount
	history := `2009-12-02 * "PAYPAL TRANSFER"
  Expenses:Hosting               116.22 USD
  Assets:Bank:Checking
`
	app := newTestApp(t, opt, history, chaseCSV)
	var out bytes.Buffer
	if err := app.RunUnattended(context.Background(), &out); err != nil {
		t.Fatalf("RunUnattended: %v", err)
	}
	if !strings.Contains(out.String(), `2009-12-11 * "CREDIT; PAYPAL TRANSFER PPD ID: PAYPALSDSL" ""`+"\n\tExpenses:Hosting") {
		t.Errorf("unexpected beancount output:\n%s", out.String())
	}
}

const interactiveCSV = `2009-12-11,PAYPAL TRANSFER,-116.22
2009-12-12,Book Store,-20.00
2009-12-13,Mystery,-5.00
`

func runInteractive(t *testing.T, input string) string {
	t.Helper()
	app := newTestApp(t, testOptions(), historyLedger, interactiveCSV)
	store, err := openSession(filepath.Join(t.TempDir(), "session.db"))
	if err != nil {
		t.Fatalf("openSession: %v", err)
	}
	defer store.Close()

	short := &keys.Shortcuts{}
	setDefaultMappings(short)
	for _, acc := range app.corpus.Accounts() {
		assignForAccount(short, acc)
	}
	var out bytes.Buffer
	if err := app.Interactive(context.Background(), strings.NewReader(input), &out, short, store); err != nil {
		t.Fatalf("Interactive: %v", err)
	}
	return out.String()
}

func TestInteractive(t *testing.T) {
	t.Run("accept suggestions", func(t *testing.T) {
		got := runInteractive(t, "\n\nt"+"Expenses:Gifts\n")
		if !strings.HasPrefix(got, "; reckon-ledger run at ") {
			t.Errorf("missing the run header:\n%s", got)
		}
		for _, want := range []string{
			"\tExpenses:Hosting\t\t\t $116.22\n",
			"\tExpenses:Books\t\t\t $20.00\n",
			"\tExpenses:Gifts\t\t\t $5.00\n",
		} {
			if !strings.Contains(got, want) {
				t.Errorf("missing %q in:\n%s", want, got)
			}
		}
	})

	t.Run("back replaces the answer", func(t *testing.T) {
		got := runInteractive(t, "\nb\n\n\n")
		if n := strings.Count(got, "Assets:Bank:Checking"); n != 3 {
			t.Errorf("got %d transactions, want 3:\n%s", n, got)
		}
	})

	t.Run("quit early", func(t *testing.T) {
		got := runInteractive(t, "\nq")
		if n := strings.Count(got, "Assets:Bank:Checking"); n != 1 {
			t.Errorf("got %d transactions, want 1:\n%s", n, got)
		}
	})

	t.Run("quit before any answer", func(t *testing.T) {
		if got := runInteractive(t, "q"); got != "" {
			t.Errorf("nothing should be written, got:\n%s", got)
		}
	})
}

func TestWriteTable(t *testing.T) {
	app := newTestApp(t, testOptions(), "", chaseCSV)
	var out bytes.Buffer
	if err := app.WriteTable(&out); err != nil {
		t.Fatalf("WriteTable: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 7 {
		t.Fatalf("got %d lines, want a header and 6 rows", len(lines))
	}
	if !strings.Contains(lines[2], "-$116.22") || !strings.Contains(lines[2], "PAYPAL") {
		t.Errorf("unexpected row: %q", lines[2])
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Book Store", descLength); got != "Book Store" {
		t.Errorf("short descriptions should be kept, got %q", got)
	}
	long := strings.Repeat("é", 50)
	got := truncate(long, descLength)
	if n := utf8.RuneCountInString(got); n != descLength {
		t.Errorf("got %d runes, want %d", n, descLength)
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncate split a rune: %q", got)
	}
	if got := truncate("Café Müller, Zürich", 4); got != "Café" {
		t.Errorf("truncate = %q, want Café", got)
	}
}
