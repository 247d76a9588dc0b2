package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/manishrjain/keys"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// journal is a plain text accounting dialect: ledger or beancount.
type journal interface {
	Parse(r io.Reader) ([]Entry, error)
	ToCSV(r io.Reader) (string, error)
	FormatRow(row Row, line1, line2 TxnLine, currency string) (string, error)
	Warnings() []string
}

type seenKey struct {
	date  string
	money string
}

// App ties the pipeline together: learn from history, read the CSV, then
// suggest an account for every row and write the resulting transactions.
type App struct {
	opt     Options
	corpus  *Corpus
	journal journal
	csv     *CSVParser

	history []learned
	bayes   *bayesRanker
	seen    map[seenKey]bool

	apiKey string
	review map[int][]CategoryScore

	// tty is set when the interactive prompt talks to a terminal, which is
	// cleared between rows.
	tty bool
}

func NewApp(opt Options) (*App, error) {
	var tmpl *template.Template
	if opt.Template != "" {
		var err error
		if tmpl, err = newTransactionTemplate(opt.Template); err != nil {
			return nil, err
		}
	}
	a := &App{
		opt:    opt,
		corpus: NewCorpus(),
		seen:   make(map[seenKey]bool),
		review: make(map[int][]CategoryScore),
	}
	if opt.Format == formatBeancount {
		a.journal = NewBeancountParser(opt.LedgerDateFormat, tmpl)
	} else {
		a.journal = NewLedgerParser(opt.LedgerDateFormat, tmpl)
	}
	return a, nil
}

// LearnFrom teaches the corpus every posting of a journal, except those of
// the bank account itself, and remembers which (date, amount) pairs the
// journal already has.
func (a *App) LearnFrom(r io.Reader) error {
	entries, err := a.journal.Parse(r)
	if err != nil {
		return err
	}
	for _, e := range entries {
		for _, p := range e.Postings {
			if p.Account != a.opt.BankAccount {
				a.learn(p.Account, e.Desc+" "+p.Amount.Decimal.String())
			}
			a.markSeen(e.Date, p.Amount.Decimal)
		}
	}
	a.bayes = newBayesRanker(a.history)
	debugf("Learned %d descriptions for %d accounts from %d entries",
		len(a.history), len(a.corpus.Accounts()), len(entries))
	return nil
}

// LoadTokens adds an account tokens file to the corpus.
func (a *App) LoadTokens(data []byte) error {
	return LoadAccountTokens(data, a.corpus)
}

// ReadCSV parses the bank export and detects its columns.
func (a *App) ReadCSV(data []byte) error {
	p, err := NewCSVParser(data, a.opt)
	if err != nil {
		return err
	}
	a.csv = p
	return nil
}

func (a *App) learn(account, text string) {
	a.corpus.AddDocument(account, text)
	a.history = append(a.history, learned{account: account, text: text})
	a.bayes.Learn(account, text)
}

func (a *App) seenKeyFor(date time.Time, amount decimal.Decimal) seenKey {
	return seenKey{
		date:  date.Format("2006-01-02"),
		money: NewMoney(amount, a.opt.moneyOptions()).Pretty(false),
	}
}

func (a *App) markSeen(date time.Time, amount decimal.Decimal) {
	a.seen[a.seenKeyFor(date, amount)] = true
}

// AlreadySeen is true when the journal has a posting of the same amount on
// the same day.
func (a *App) AlreadySeen(row Row) bool {
	return a.seen[a.seenKeyFor(row.Date, row.Money)]
}

// skipSeen marks the rows at the start of the CSV that the journal already
// has. Once a new row shows up nothing more is skipped, since a repeat after
// that is more likely a real second transaction.
func (a *App) skipSeen(rows []Row) []bool {
	skip := make([]bool, len(rows))
	for i, row := range rows {
		if !a.AlreadySeen(row) {
			break
		}
		debugf("Skipping row already in the journal: %s %s %s", row.PrettyDate, row.PrettyMoney, row.Description)
		skip[i] = true
	}
	return skip
}

// Suggest ranks accounts for a row, best first.
func (a *App) Suggest(row Row) []Suggestion {
	return a.corpus.Suggest(row.Description)
}

func (a *App) defaultAccount(row Row) string {
	if row.Money.IsPositive() {
		return a.opt.DefaultOutofAccount
	}
	return a.opt.DefaultIntoAccount
}

// Format renders the transaction moving a row between the bank account and
// account. Money coming in is posted to the bank first.
func (a *App) Format(row Row, account string) (string, error) {
	bank := TxnLine{Account: a.opt.BankAccount, Amount: row.PrettyMoney}
	other := TxnLine{Account: account, Amount: row.PrettyMoneyNegated}
	if row.Money.IsPositive() {
		return a.journal.FormatRow(row, bank, other, a.opt.Currency)
	}
	return a.journal.FormatRow(row, other, bank, a.opt.Currency)
}

// reviewUnplaced runs the AI review over rows without a suggestion. A failed
// review only costs the hints, so it is reported and the run goes on.
func (a *App) reviewUnplaced(ctx context.Context, rows []Row, placed func(i int) bool) {
	if !a.opt.AIReview {
		return
	}
	var pending []Row
	for i, row := range rows {
		if !placed(i) {
			pending = append(pending, row)
		}
	}
	review, err := a.reviewRows(ctx, pending)
	if err != nil {
		warnf("Review failed: %v", err)
	}
	for idx, scores := range review {
		a.review[idx] = scores
	}
}

// RunUnattended posts every row to its best suggestion, or to the default
// account when there is none. Rows are ranked in parallel; nothing is learned
// during the run so the output doesn't depend on scheduling.
func (a *App) RunUnattended(ctx context.Context, w io.Writer) error {
	rows := a.csv.Rows()
	skip := a.skipSeen(rows)
	choices := make([][]Suggestion, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, row := range rows {
		if skip[i] {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			choices[i] = a.Suggest(row)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "ranking interrupted")
	}

	a.reviewUnplaced(ctx, rows, func(i int) bool { return skip[i] || len(choices[i]) > 0 })

	for i, row := range rows {
		if skip[i] {
			continue
		}
		var account string
		switch {
		case len(choices[i]) > 0:
			account = choices[i][0].Account
		case len(a.review[row.Index]) > 0 && a.review[row.Index][0].Confidence >= 0.7:
			account = a.review[row.Index][0].Category
		case a.opt.FailOnUnknownAccount:
			return errors.Errorf("no account found for %s %s %q (CSV row: %s)",
				row.PrettyDate, row.PrettyMoney, row.Description, a.csv.RowString(row.Index))
		default:
			account = a.defaultAccount(row)
		}
		text, err := a.Format(row, account)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, text); err != nil {
			return errors.Wrap(err, "unable to write output")
		}
	}
	return nil
}

func setDefaultMappings(ks *keys.Shortcuts) {
	ks.BestEffortAssign('b', ".back", "default")
	ks.BestEffortAssign('q', ".quit", "default")
	ks.BestEffortAssign('a', ".show all", "default")
	ks.BestEffortAssign('s', ".skip", "default")
	ks.BestEffortAssign('t', ".type", "default")
}

// assignForAccount adds every level of an account to the shortcut tree, so
// "Expenses:Food:Groceries" can be picked one level at a time.
func assignForAccount(short *keys.Shortcuts, account string) {
	tree := strings.Split(account, ":")
	short.AutoAssign(tree[0], "default")
	prev := tree[0]
	for _, c := range tree[1:] {
		if len(c) == 0 {
			continue
		}
		short.AutoAssign(c, prev)
		prev = c
	}
}

type step int

const (
	stepNext step = iota
	stepBack
	stepQuit
)

// Interactive asks for the account of every row, reading single keys from
// in. Answers go to the session store and are learned from right away; once
// the user is done they are written to w in row order.
func (a *App) Interactive(ctx context.Context, in io.Reader, w io.Writer, short *keys.Shortcuts, store *session) error {
	rows := a.csv.Rows()
	skip := a.skipSeen(rows)
	rowKeys := make([][]byte, len(rows))
	for i := range rowKeys {
		id := uuid.New()
		rowKeys[i] = id[:]
	}
	placed := func(i int) bool { return skip[i] || len(a.Suggest(rows[i])) > 0 }
	a.reviewUnplaced(ctx, rows, placed)

	br := bufio.NewReader(in)
	dir := 1
	for i := 0; i >= 0 && i < len(rows); {
		if skip[i] {
			if i += dir; i < 0 {
				i, dir = 0, 1
			}
			continue
		}
		res, err := a.categorizeRow(rows[i], rowKeys[i], i, len(rows), br, short, store)
		if err != nil {
			return err
		}
		if res == stepQuit {
			break
		}
		dir = 1
		if res == stepBack {
			dir = -1
		}
		i += dir
		if i < 0 {
			i, dir = 0, 1
		}
	}

	txns, err := store.iterateDB()
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, "; reckon-ledger run at %v\n\n", time.Now().Format(time.RFC3339)); err != nil {
		return errors.Wrap(err, "unable to write output")
	}
	for _, t := range txns {
		if _, err := io.WriteString(w, t.Text); err != nil {
			return errors.Wrap(err, "unable to write output")
		}
	}
	return nil
}

func (a *App) categorizeRow(row Row, key []byte, idx, total int, br *bufio.Reader,
	short *keys.Shortcuts, store *session) (step, error) {

	if a.tty {
		clear()
	}
	printSummary(row, idx+1, total, a.AlreadySeen(row))
	if a.AlreadySeen(row) {
		color.New(color.BgYellow, color.FgBlack).Printf(" NOTE: This row is very similar to a previous one! ")
		fmt.Println()
	}

	var ks keys.Shortcuts
	setDefaultMappings(&ks)
	assigned := make(map[string]bool)
	var best string
	add := func(account string) {
		if assigned[account] {
			return
		}
		if best == "" {
			best = account
		}
		assigned[account] = true
		ks.AutoAssign(account, "default")
	}
	for _, s := range a.Suggest(row) {
		add(s.Account)
	}
	for _, s := range a.review[row.Index] {
		add(s.Category)
	}
	for _, s := range a.bayes.TopHits(row.Description) {
		add(s.Category)
	}
	if best == "" {
		best = a.defaultAccount(row)
	}

	for {
		prompt := "To which account did this money go?"
		if row.Money.IsPositive() {
			prompt = "Which account provided this income?"
		}
		fmt.Printf("%s [enter: %s]\n", prompt, best)
		ks.Print("default", false)

		ch, _, err := br.ReadRune()
		if err == io.EOF {
			return stepQuit, nil
		}
		if err != nil {
			return stepQuit, errors.Wrap(err, "unable to read answer")
		}
		account := ""
		if ch == '\n' || ch == '\r' {
			account = best
		} else if opt, has := ks.MapsTo(ch, "default"); has {
			switch opt {
			case ".back":
				return stepBack, nil
			case ".quit":
				return stepQuit, nil
			case ".skip":
				return stepNext, store.deleteFromDB(key)
			case ".type":
				account = a.readAccount(br)
			case ".show all":
				account = pickFromTree(short, br)
			default:
				account = opt
			}
		}
		if account == "" {
			continue
		}

		text, err := a.Format(row, account)
		if err != nil {
			return stepQuit, err
		}
		t := Txn{Key: key, Index: row.Index, Date: row.Date, Account: account, Text: text}
		if err := store.writeToDB(t); err != nil {
			return stepQuit, err
		}
		a.learn(account, row.Description+" "+row.Money.String())
		a.markSeen(row.Date, row.Money)
		assignForAccount(short, account)
		return stepNext, nil
	}
}

// readAccount reads a typed account name. The terminal is put back into line
// mode while the user types.
func (a *App) readAccount(br *bufio.Reader) string {
	if a.tty {
		saneMode()
		defer singleCharMode()
	}
	fmt.Print("Account: ")
	line, err := br.ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	return strings.TrimSpace(line)
}

// pickFromTree walks the account tree one level per key press. Enter takes
// the account selected so far.
func pickFromTree(short *keys.Shortcuts, br *bufio.Reader) string {
	label := "default"
	var category []string
	for {
		if len(category) > 0 {
			color.New(color.BgWhite, color.FgBlack).Printf("Selected [%s]", strings.Join(category, ":"))
			fmt.Println()
		}
		short.Print(label, false)
		ch, _, err := br.ReadRune()
		if err != nil {
			return ""
		}
		if ch == '\n' || ch == '\r' {
			return strings.Join(category, ":")
		}
		opt, has := short.MapsTo(ch, label)
		if !has {
			continue
		}
		if strings.HasPrefix(opt, ".") {
			return ""
		}
		category = append(category, opt)
		label = opt
		if !short.HasLabel(label) {
			return strings.Join(category, ":")
		}
	}
}

const descLength = 40

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func printSummary(row Row, idx, total int, seen bool) {
	if seen {
		color.New(color.BgYellow, color.FgBlack).Printf(" S ")
	} else {
		color.New(color.BgRed, color.FgWhite).Printf(" N ")
	}
	switch {
	case total > 999:
		color.New(color.BgBlue, color.FgWhite).Printf(" [%4d of %4d] ", idx, total)
	case total > 99:
		color.New(color.BgBlue, color.FgWhite).Printf(" [%3d of %3d] ", idx, total)
	default:
		color.New(color.BgBlue, color.FgWhite).Printf(" [%2d of %2d] ", idx, total)
	}
	color.New(color.BgYellow, color.FgBlack).Printf(" %10s ", row.PrettyDate)
	desc := truncate(row.Description, descLength)
	color.New(color.BgWhite, color.FgBlack).Printf(" %-40s", desc) // descLength used in Printf.
	color.New(color.BgRed, color.FgWhite).Printf(" %14s ", row.PrettyMoney)
	fmt.Println()
}

// PrintTable lists the parsed rows on the terminal.
func (a *App) PrintTable() {
	rows := a.csv.Rows()
	for i, row := range rows {
		printSummary(row, i+1, len(rows), a.AlreadySeen(row))
	}
}

// WriteTable writes the parsed rows as a plain text table.
func (a *App) WriteTable(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%-12s %14s  %s\n", "Date", "Amount", "Description")
	for _, row := range a.csv.Rows() {
		fmt.Fprintf(bw, "%-12s %14s  %s\n", row.PrettyDate, row.PrettyMoney, row.Description)
	}
	return errors.Wrap(bw.Flush(), "unable to write table")
}
