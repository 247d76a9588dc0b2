package main

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ColumnScore is how a single CSV column fared against the money and date
// heuristics.
type ColumnScore struct {
	Index         int
	MoneyScore    int
	DateScore     int
	IsMoneyColumn bool
}

// Row is one normalised transaction read from the CSV.
type Row struct {
	Index              int
	Date               time.Time
	PrettyDate         string
	Money              decimal.Decimal
	PrettyMoney        string
	PrettyMoneyNegated string
	Description        string
	Note               string
}

// CSVParser works out which columns of a bank export hold the money, the
// date and the description, and hands out normalised rows.
type CSVParser struct {
	opt     Options
	rows    [][]string
	columns [][]string

	Scores                   []ColumnScore
	MoneyColumnIndices       []int
	DateColumnIndex          int
	DescriptionColumnIndices []int

	money MoneyColumn
	dates *DateColumn
}

// NewCSVParser decodes and parses raw CSV bytes, then detects its columns.
func NewCSVParser(data []byte, opt Options) (*CSVParser, error) {
	text, err := decodeInput(data, opt.Encoding)
	if err != nil {
		return nil, err
	}
	rows, err := parseCSV(text, opt)
	if err != nil {
		return nil, err
	}
	return NewCSVParserFromRows(rows, opt)
}

// NewCSVParserFromRows runs column detection on an already split matrix.
// Ragged rows are padded and rows with nothing but blanks are dropped.
func NewCSVParserFromRows(rows [][]string, opt Options) (*CSVParser, error) {
	p := &CSVParser{opt: opt}
	width := 0
	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		p.rows = append(p.rows, row)
		width = max(width, len(row))
	}
	if len(p.rows) == 0 || width == 0 {
		return nil, errors.New("no rows found in CSV")
	}

	ignored := make(map[int]bool)
	for _, c := range opt.IgnoreColumns {
		ignored[c-1] = true
	}
	for c := range width {
		if ignored[c] {
			continue
		}
		col := make([]string, len(p.rows))
		for r, row := range p.rows {
			if c < len(row) {
				col[r] = strings.TrimSpace(row[c])
			}
		}
		p.columns = append(p.columns, col)
	}
	if len(p.columns) == 0 {
		return nil, errors.New("all CSV columns are ignored")
	}
	if err := p.detectColumns(); err != nil {
		return nil, err
	}
	return p, nil
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// Columns returns the transposed CSV, after ignored columns were removed.
func (p *CSVParser) Columns() [][]string { return p.columns }

// Len is the number of data rows.
func (p *CSVParser) Len() int { return len(p.rows) }

var (
	rnegMoney = regexp.MustCompile(`^\$?[\-(]\$?\d+`)
	rposMoney = regexp.MustCompile(`^\+?\$?\+?\d+`)
)

// evaluateColumn scores one column. Cells are visited bottom up, oldest first
// for most bank exports, so the running balance check sees rows in order.
// cols is the whole table, used to spot balance columns.
func evaluateColumn(index int, column []string, cols [][]string) ColumnScore {
	score := ColumnScore{Index: index}
	var neg, pos int
	var last decimal.Decimal
	hasLast := false
	for r := len(column) - 1; r >= 0; r-- {
		entry := column[r]
		score.MoneyScore += MoneyLikelihood(entry)
		score.DateScore += DateLikelihood(entry)
		if rnegMoney.MatchString(entry) {
			neg++
		}
		if rposMoney.MatchString(entry) {
			pos++
		}

		num := leadingDecimal(entry)
		if hasLast && !num.IsZero() && !last.IsZero() {
			for _, other := range cols {
				if r >= len(other) {
					continue
				}
				v := leadingDecimal(other[r])
				if !v.IsZero() && last.Add(v).Equal(num) {
					score.MoneyScore -= 10
					break
				}
			}
		}
		last, hasLast = num, true
	}

	fifth := float64(len(column)) / 5.0
	if float64(neg) >= fifth && float64(pos) >= fifth && neg > 0 && pos > 0 {
		score.MoneyScore += 10 * len(column)
		score.IsMoneyColumn = true
	}
	return score
}

func evaluateColumns(cols [][]string) []ColumnScore {
	scores := make([]ColumnScore, len(cols))
	for i, col := range cols {
		scores[i] = evaluateColumn(i, col, cols)
	}
	return scores
}

func (p *CSVParser) moneyOptions() MoneyOptions { return p.opt.moneyOptions() }

func (p *CSVParser) detectColumns() error {
	p.Scores = evaluateColumns(p.columns)

	switch {
	case p.opt.MoneyColumn > 0:
		p.MoneyColumnIndices = []int{p.opt.MoneyColumn - 1}
	case len(p.opt.MoneyColumns) > 0:
		for _, c := range p.opt.MoneyColumns {
			p.MoneyColumnIndices = append(p.MoneyColumnIndices, c-1)
		}
	default:
		p.MoneyColumnIndices = p.guessMoneyColumns()
	}
	for _, c := range p.MoneyColumnIndices {
		if c < 0 || c >= len(p.columns) {
			return errors.Errorf("money column %d is out of range, the CSV has %d columns", c+1, len(p.columns))
		}
	}
	if len(p.MoneyColumnIndices) == 1 {
		debugf("Using column %d as the money column. Use --money-column to specify a different one.",
			p.MoneyColumnIndices[0]+1)
	} else {
		debugf("Using columns %d and %d as money columns. Use --money-columns to specify different ones.",
			p.MoneyColumnIndices[0]+1, p.MoneyColumnIndices[1]+1)
	}

	isMoney := make(map[int]bool)
	for _, c := range p.MoneyColumnIndices {
		isMoney[c] = true
	}
	if p.opt.DateColumn > 0 {
		p.DateColumnIndex = p.opt.DateColumn - 1
		if p.DateColumnIndex >= len(p.columns) {
			return errors.Errorf("date column %d is out of range, the CSV has %d columns", p.opt.DateColumn, len(p.columns))
		}
	} else {
		p.DateColumnIndex = -1
		for _, s := range p.Scores {
			if isMoney[s.Index] {
				continue
			}
			if p.DateColumnIndex < 0 || s.DateScore > p.Scores[p.DateColumnIndex].DateScore {
				p.DateColumnIndex = s.Index
			}
		}
		if p.DateColumnIndex < 0 {
			return errors.New("unable to find a date column, the CSV only has money columns")
		}
	}

	p.DescriptionColumnIndices = p.DescriptionColumnIndices[:0]
	for i := range p.columns {
		if isMoney[i] || i == p.DateColumnIndex {
			continue
		}
		p.DescriptionColumnIndices = append(p.DescriptionColumnIndices, i)
	}

	dates, err := NewDateColumn(p.columns[p.DateColumnIndex], p.opt.dateOptions())
	if err != nil {
		return err
	}
	p.dates = dates

	p.money = NewMoneyColumn(p.columns[p.MoneyColumnIndices[0]], p.moneyOptions())
	if len(p.MoneyColumnIndices) == 2 {
		merged, ok := p.money.Merge(NewMoneyColumn(p.columns[p.MoneyColumnIndices[1]], p.moneyOptions()))
		if !ok {
			warnf("Columns %d and %d both hold amounts on some rows, those rows are treated as zero.",
				p.MoneyColumnIndices[0]+1, p.MoneyColumnIndices[1]+1)
		}
		p.money = merged
	} else if p.money.Positive() {
		p.detectSignColumn()
	}
	return nil
}

// guessMoneyColumns picks one combined money column, or an adjacent
// debit/credit pair.
func (p *CSVParser) guessMoneyColumns() []int {
	ranked := make([]ColumnScore, len(p.Scores))
	copy(ranked, p.Scores)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].MoneyScore > ranked[j].MoneyScore
	})
	for _, s := range ranked {
		if s.IsMoneyColumn {
			return []int{s.Index}
		}
	}
	if pair, ok := p.findMoneyPair(); ok {
		warnf("It looks like this CSV has two separate columns for money (%d and %d), "+
			"one for money in and one for money out.", pair[0]+1, pair[1]+1)
		return pair
	}
	if len(ranked) >= 3 && ranked[1].MoneyScore+ranked[2].MoneyScore >= ranked[0].MoneyScore {
		warnf("Columns %d and %d look like a debit/credit pair but could not be merged, "+
			"taking my best guess with column %d.", ranked[1].Index+1, ranked[2].Index+1, ranked[0].Index+1)
	} else if ranked[0].MoneyScore <= 0 {
		warnf("I didn't find a high-likelihood money column, but I'm taking my best guess with column %d.",
			ranked[0].Index+1)
	}
	return []int{ranked[0].Index}
}

// findMoneyPair accepts the first adjacent pair of columns that merge cleanly
// (never both filled on the same row, both used at least once) and whose
// merged column scores better as money than either half.
func (p *CSVParser) findMoneyPair() ([]int, bool) {
	opt := p.moneyOptions()
	for i := 0; i+1 < len(p.columns); i++ {
		a := NewMoneyColumn(p.columns[i], opt)
		b := NewMoneyColumn(p.columns[i+1], opt)
		if !contributes(a) || !contributes(b) {
			continue
		}
		merged, ok := a.Merge(b)
		if !ok {
			continue
		}
		score := evaluateColumn(i, merged.Strings(), p.columns)
		if score.MoneyScore > p.Scores[i].MoneyScore && score.MoneyScore > p.Scores[i+1].MoneyScore {
			return []int{i, i + 1}, true
		}
	}
	return nil, false
}

func contributes(c MoneyColumn) bool {
	for _, m := range c {
		if m != nil && !m.IsZero() {
			return true
		}
	}
	return false
}

// detectSignColumn handles exports where amounts are all positive and a
// neighbouring column says whether the row is a debit or a credit.
func (p *CSVParser) detectSignColumn() {
	if len(p.rows) <= 2 {
		return
	}
	idx := p.MoneyColumnIndices[0]
	var column, signs []string
	for _, c := range []int{idx - 1, idx + 1} {
		if c < 0 || c >= len(p.columns) || c == p.DateColumnIndex {
			continue
		}
		column, signs = p.columns[c], distinct(p.columns[c])
		if len(signs) == 2 {
			break
		}
	}
	if len(signs) != 2 {
		return
	}
	debit := signs[0]
	if signs[0] == "Bij" || strings.HasPrefix(strings.ToLower(signs[0]), "cr") {
		debit = signs[1]
	}
	for i, m := range p.money {
		if m != nil && column[i] == debit {
			p.money[i] = m.Neg()
		}
	}
}

func distinct(values []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// MoneyFor returns the signed amount of a row; blank cells are zero.
func (p *CSVParser) MoneyFor(index int) *Money {
	if m := p.money[index]; m != nil {
		return m
	}
	return NewMoney(decimal.Zero, p.moneyOptions())
}

func (p *CSVParser) PrettyMoneyFor(index int, negate bool) string {
	m := *p.MoneyFor(index)
	opt := p.moneyOptions()
	m.Currency, m.Suffixed, m.RawMode = opt.Currency, opt.Suffixed, opt.Raw
	return m.Pretty(negate)
}

func (p *CSVParser) DateFor(index int) (time.Time, bool) { return p.dates.For(index) }

func (p *CSVParser) PrettyDateFor(index int) string { return p.dates.PrettyFor(index) }

var (
	rspaces  = regexp.MustCompile(` {2,}`)
	rsepRuns = regexp.MustCompile(`(;\s+){2,}`)
)

// DescriptionFor joins the description columns of a row with "; ".
func (p *CSVParser) DescriptionFor(index int) string {
	var parts []string
	for _, c := range p.DescriptionColumnIndices {
		if v := strings.TrimSpace(p.columns[c][index]); v != "" {
			parts = append(parts, v)
		}
	}
	desc := strings.Join(parts, "; ")
	desc = rspaces.ReplaceAllString(desc, " ")
	desc = rsepRuns.ReplaceAllString(desc, "")
	return strings.TrimSpace(desc)
}

// RowString is the raw CSV row, for error messages.
func (p *CSVParser) RowString(index int) string {
	return strings.Join(p.rows[index], ", ")
}

// Rows returns every row with a usable date, oldest first. Ties are broken by
// the larger amount, then by description. Rows whose date can't be read are
// dropped with a warning.
func (p *CSVParser) Rows() []Row {
	rows := make([]Row, 0, len(p.rows))
	for i := range p.rows {
		date, ok := p.DateFor(i)
		if !ok {
			warnf("Skipping row %d, unable to parse date %q: %s", i+1, p.dates.Raw(i), p.RowString(i))
			continue
		}
		rows = append(rows, Row{
			Index:              i,
			Date:               date,
			PrettyDate:         p.PrettyDateFor(i),
			Money:              p.MoneyFor(i).Amount,
			PrettyMoney:        p.PrettyMoneyFor(i, false),
			PrettyMoneyNegated: p.PrettyMoneyFor(i, true),
			Description:        p.DescriptionFor(i),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if c := a.Money.Abs().Cmp(b.Money.Abs()); c != 0 {
			return c > 0
		}
		return a.Description < b.Description
	})
	return rows
}
