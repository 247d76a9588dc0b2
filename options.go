package main

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding/htmlindex"
)

const (
	formatLedger    = "ledger"
	formatBeancount = "beancount"
)

// Options is every knob of a run. It is filled from flags (and config.yaml)
// once, validated, and then only read.
type Options struct {
	File        string
	BankAccount string
	Verbose     bool
	Inverse     bool
	PrintTable  bool
	OutputFile  string
	LearnFrom   string

	// Column overrides are 1-based, as a user counts them.
	IgnoreColumns []int
	MoneyColumn   int
	MoneyColumns  []int
	DateColumn    int

	Raw                 bool
	ContainsHeader      int
	ContainsFooter      int
	CSVSeparator        string
	CSVBackslashEscapes bool
	CommaSeparatesCents bool
	Encoding            string
	Currency            string
	Suffixed            bool
	DateFormat          string
	LedgerDateFormat    string

	Unattended           bool
	AccountTokensFile    string
	TableOutputFile      string
	DefaultIntoAccount   string
	DefaultOutofAccount  string
	FailOnUnknownAccount bool
	Format               string
	Template             string

	ConfigDir string
	Shortcuts string
	AIReview  bool
	AIModel   string
}

// DefaultOptions returns the options of a run with no flags set.
func DefaultOptions() Options {
	return Options{
		Currency:            "$",
		DefaultIntoAccount:  "Expenses:Unknown",
		DefaultOutofAccount: "Income:Unknown",
		Format:              formatLedger,
		Shortcuts:           "shortcuts.yaml",
		AIModel:             "claude-sonnet-4-5-20250929",
	}
}

func (o Options) Validate() error {
	if o.BankAccount == "" {
		return errors.New("please specify the bank account with -account")
	}
	if o.File == "" {
		return errors.New("please specify a CSV file with -csv")
	}
	if o.File == "-" && !o.Unattended {
		return errors.New("reading the CSV from stdin requires -unattended")
	}
	if n := len(o.MoneyColumns); n > 2 {
		return errors.Errorf("-money-columns takes one or two columns, got %d", n)
	}
	if o.MoneyColumn < 0 || o.DateColumn < 0 {
		return errors.New("column numbers start at 1")
	}
	for _, c := range append(append([]int{}, o.MoneyColumns...), o.IgnoreColumns...) {
		if c < 1 {
			return errors.Errorf("column numbers start at 1, got %d", c)
		}
	}
	switch o.Format {
	case formatLedger, formatBeancount:
	default:
		return errors.Errorf("unknown output format %q, use ledger or beancount", o.Format)
	}
	if o.Encoding != "" {
		if _, err := htmlindex.Get(o.Encoding); err != nil {
			return errors.Wrapf(err, "unknown encoding %q", o.Encoding)
		}
	}
	if o.ContainsHeader < 0 || o.ContainsFooter < 0 {
		return errors.New("header and footer line counts can't be negative")
	}
	return nil
}

func (o Options) moneyOptions() MoneyOptions {
	return MoneyOptions{
		CommaSeparatesCents: o.CommaSeparatesCents,
		Inverse:             o.Inverse,
		Currency:            o.Currency,
		Suffixed:            o.Suffixed,
		Raw:                 o.Raw,
	}
}

func (o Options) dateOptions() DateOptions {
	return DateOptions{DateFormat: o.DateFormat, LedgerDateFormat: o.LedgerDateFormat}
}

// separator is the CSV field separator, or 0 to guess it from the data.
func (o Options) separator() rune {
	switch o.CSVSeparator {
	case "":
		return 0
	case `\t`, "tab":
		return '\t'
	}
	return []rune(o.CSVSeparator)[0]
}

// parseColumnList reads "1,2,5" into column numbers.
func parseColumnList(s string) ([]int, error) {
	var cols []int
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := strconv.Atoi(part)
		if err != nil {
			return nil, errors.Errorf("invalid column number %q in %q", part, s)
		}
		cols = append(cols, c)
	}
	return cols, nil
}
