package main

import (
	"strings"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Posting line of a generated transaction: the account and its amount as it
// should be printed.
type TxnLine struct {
	Account string
	Amount  string
}

// TxnTemplate is what an output template sees for one transaction.
type TxnTemplate struct {
	Date       time.Time
	PrettyDate string
	Payee      string
	Note       string
	Line1      TxnLine
	Line2      TxnLine
	Amount     float64
	Currency   string
}

const (
	defaultLedgerTemplate = "{{.PrettyDate}}\t{{.Payee}}{{if .Note}}\t; {{.Note}}{{end}}\n" +
		"\t{{.Line1.Account}}\t\t\t{{.Line1.Amount}}\n" +
		"\t{{.Line2.Account}}\t\t\t{{.Line2.Amount}}\n\n"

	defaultBeancountTemplate = "{{.PrettyDate}} * {{quote .Payee}} {{quote .Note}}\n" +
		"\t{{.Line1.Account}}\t\t\t{{.Line1.Amount}}\n" +
		"\t{{.Line2.Account}}\t\t\t{{.Line2.Amount}}\n\n"
)

var templateFuncs = template.FuncMap{
	"uuid": func() string { return uuid.NewString() },
	"commaFloat": func(f float64) string {
		return humanize.FormatFloat("#.###,##", f)
	},
	"humanFloat": func(format string, f float64) string {
		return humanize.FormatFloat(format, f)
	},
	"quote": func(s string) string {
		return `"` + strings.ReplaceAll(s, `"`, `'`) + `"`
	},
}

func newTransactionTemplate(text string) (*template.Template, error) {
	tmpl, err := template.New("txn").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to parse transaction template")
	}
	return tmpl, nil
}

// toTxnTemplate pairs a CSV row with its two posting lines.
func toTxnTemplate(row Row, line1, line2 TxnLine, currency string) TxnTemplate {
	amount, _ := row.Money.Float64()
	return TxnTemplate{
		Date:       row.Date,
		PrettyDate: row.PrettyDate,
		Payee:      row.Description,
		Note:       row.Note,
		Line1:      line1,
		Line2:      line2,
		Amount:     amount,
		Currency:   currency,
	}
}

// ledgerFormat renders a transaction with the given template.
func ledgerFormat(tt TxnTemplate, tmpl *template.Template) (string, error) {
	var b strings.Builder
	if err := tmpl.Execute(&b, tt); err != nil {
		return "", errors.Wrapf(err, "unable to render transaction %q", tt.Payee)
	}
	return b.String(), nil
}
