package main

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/ncruces/go-strftime"
	"github.com/pkg/errors"
)

// ErrDateFormat is returned when the order of day and month cannot be worked
// out from the data and no explicit format was given.
var ErrDateFormat = errors.New("unable to determine date format, please specify using --date-format")

// Endian is the order of the day and month fields in a numeric date.
type Endian int

const (
	// EndianMiddle is month first: 12/24/2009.
	EndianMiddle Endian = iota
	// EndianLittle is day first: 24/12/2009.
	EndianLittle
)

func (e Endian) String() string {
	if e == EndianLittle {
		return "little"
	}
	return "middle"
}

// DateOptions configures a DateColumn.
type DateOptions struct {
	// DateFormat forces the input format. Both strftime ("%d/%m/%Y") and Go
	// layouts ("02/01/2006") are accepted.
	DateFormat string
	// LedgerDateFormat is the output format, strftime or Go layout.
	LedgerDateFormat string
}

// DateColumn holds the date cells of a CSV column, all sharing one endian
// precedence which is fixed once the column is built.
type DateColumn struct {
	raw    []string
	values []string
	layout string
	output string

	EndianPrecedence []Endian
}

var (
	rchaseDate  = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})\d+\[\d+:GMT\]$`)
	rgermanDate = regexp.MustCompile(`^(\d{2})\.(\d{2})\.(\d{4})$`)
	rnordeaDate = regexp.MustCompile(`^(\d{2})-(\d{2})-(\d{4})$`)
	risoDate    = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	rcompact    = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})`)
	rendian     = regexp.MustCompile(`^(\d\d)/(\d\d)/\d\d\d?\d?`)
	rymd        = regexp.MustCompile(`^(\d{4})/(\d{1,2})/(\d{1,2})$`)
	rnumeric    = regexp.MustCompile(`^(\d{1,2})[/.\-](\d{1,2})[/.\-](\d{4}|\d{2})$`)
	rshortYear  = regexp.MustCompile(`^(\d{1,2}/\d{1,2}/)(\d{2})$`)
)

// millennium is the point before which a date written with a two digit year
// is assumed to have meant 20xx.
var millennium = time.Unix(953236800, 0).UTC()

// canonicalDate rewrites the fixed formats banks are known to export into a
// Y/M/D string. Anything else is returned untouched.
func canonicalDate(value string) string {
	value = strings.TrimSpace(value)
	if m := rchaseDate.FindStringSubmatch(value); m != nil {
		value = m[1] + "/" + m[2] + "/" + m[3]
	}
	if m := rgermanDate.FindStringSubmatch(value); m != nil {
		value = m[3] + "/" + m[2] + "/" + m[1]
	}
	if m := rnordeaDate.FindStringSubmatch(value); m != nil {
		value = m[3] + "/" + m[2] + "/" + m[1]
	}
	if m := risoDate.FindStringSubmatch(value); m != nil {
		value = m[1] + "/" + m[2] + "/" + m[3]
	}
	if m := rcompact.FindStringSubmatch(value); m != nil {
		value = m[1] + "/" + m[2] + "/" + m[3]
	}
	return value
}

// NewDateColumn builds a DateColumn. Without an explicit format it infers
// whether numeric dates are month or day first, and returns ErrDateFormat if
// no value settles the question.
func NewDateColumn(values []string, opt DateOptions) (*DateColumn, error) {
	dc := &DateColumn{
		raw:    values,
		values: make([]string, len(values)),
		output: opt.LedgerDateFormat,
	}
	if opt.DateFormat != "" {
		dc.layout = goLayout(opt.DateFormat)
		for i, v := range values {
			dc.values[i] = strings.TrimSpace(v)
		}
		return dc, nil
	}

	for i, v := range values {
		value := canonicalDate(v)
		dc.values[i] = value
		if dc.EndianPrecedence != nil {
			continue
		}
		m := rendian.FindStringSubmatch(value)
		if m == nil {
			dc.EndianPrecedence = []Endian{EndianMiddle, EndianLittle}
			continue
		}
		first, _ := strconv.Atoi(m[1])
		second, _ := strconv.Atoi(m[2])
		switch {
		case first > 12:
			dc.EndianPrecedence = []Endian{EndianLittle}
		case second > 12:
			dc.EndianPrecedence = []Endian{EndianMiddle}
		}
	}
	if dc.EndianPrecedence == nil {
		return nil, errors.WithStack(ErrDateFormat)
	}
	return dc, nil
}

func (dc *DateColumn) Len() int { return len(dc.values) }

// Raw returns the cell as it appeared in the CSV.
func (dc *DateColumn) Raw(index int) string { return dc.raw[index] }

// For resolves the date of a row. ok is false when the cell can't be read as
// a date.
func (dc *DateColumn) For(index int) (time.Time, bool) {
	if index < 0 || index >= len(dc.values) {
		return time.Time{}, false
	}
	value := dc.values[index]
	if dc.layout != "" {
		t, err := time.Parse(dc.layout, value)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	}

	guess, ok := dc.resolve(value)
	if ok && guess.Before(millennium) {
		if m := rshortYear.FindStringSubmatch(value); m != nil {
			yy, _ := strconv.Atoi(m[2])
			if again, ok := dc.resolve(m[1] + strconv.Itoa(2000+yy)); ok {
				return again, true
			}
		}
	}
	return guess, ok
}

// PrettyFor formats the date of a row for the ledger, or returns "" when the
// row has no usable date.
func (dc *DateColumn) PrettyFor(index int) string {
	t, ok := dc.For(index)
	if !ok {
		return ""
	}
	return formatDate(t, dc.output)
}

func (dc *DateColumn) resolve(value string) (time.Time, bool) {
	if m := rymd.FindStringSubmatch(value); m != nil {
		return civilDate(m[1], m[2], m[3])
	}
	if m := rnumeric.FindStringSubmatch(value); m != nil {
		year := m[3]
		if len(year) == 2 {
			yy, _ := strconv.Atoi(year)
			year = strconv.Itoa(1900 + yy)
		}
		for _, e := range dc.EndianPrecedence {
			month, day := m[1], m[2]
			if e == EndianLittle {
				month, day = m[2], m[1]
			}
			if t, ok := civilDate(year, month, day); ok {
				return t, true
			}
		}
		return time.Time{}, false
	}
	monthFirst := len(dc.EndianPrecedence) == 0 || dc.EndianPrecedence[0] == EndianMiddle
	t, err := parseAny(value, monthFirst)
	if err != nil {
		return time.Time{}, false
	}
	y, mo, d := t.Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC), true
}

// civilDate builds a date from its fields, refusing values that time.Date
// would silently normalise (Feb 30th).
func civilDate(year, month, day string) (time.Time, bool) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// parseAny wraps dateparse, which is known to panic on some odd inputs.
func parseAny(value string, monthFirst bool) (t time.Time, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("unable to parse date %q: %v", value, r)
		}
	}()
	return dateparse.ParseIn(value, time.UTC, dateparse.PreferMonthFirst(monthFirst))
}

var strftimeLayout = strings.NewReplacer(
	"%Y", "2006", "%y", "06", "%m", "1", "%d", "2", "%e", "_2",
	"%b", "Jan", "%h", "Jan", "%B", "January", "%a", "Mon", "%A", "Monday",
	"%H", "15", "%M", "4", "%S", "5", "%p", "PM", "%z", "-0700", "%Z", "MST",
	"%j", "002", "%%", "%",
)

// goLayout converts a strftime format into a time layout. Layouts without a
// % directive are taken to be Go layouts already.
func goLayout(format string) string {
	if !strings.Contains(format, "%") {
		return format
	}
	return strftimeLayout.Replace(format)
}

func formatDate(t time.Time, format string) string {
	switch {
	case format == "":
		return t.Format("2006-01-02")
	case strings.Contains(format, "%"):
		return strftime.Format(format, t)
	default:
		return t.Format(format)
	}
}

var (
	rmonthName   = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)`)
	rdateOnly    = regexp.MustCompile(`^[\-/.\d:\[\]]+$`)
	rnotDateChar = regexp.MustCompile(`[^\-/.\d:\[\]]`)
	rdateChar    = regexp.MustCompile(`[\-/.\d:\[\]]`)
	rdateShape   = regexp.MustCompile(`^\d+[:/.\-]\d+[:/.\-]\d+([ :]\d+[:/.]\d+)?$`)
	rgmtStamp    = regexp.MustCompile(`(?i)^\d+\[\d+:GMT\]$`)
	rplainAmount = regexp.MustCompile(`^[\-+(]?[$£€]?\d{1,7}([.,]\d+)?\)?$`)
)

// DateLikelihood scores how much a cell looks like a date.
func DateLikelihood(entry string) int {
	score := 0
	if rmonthName.MatchString(entry) {
		score += 10
	}
	if rdateOnly.MatchString(entry) {
		score += 5
	}
	if n := len(rnotDateChar.ReplaceAllString(entry, "")); n > 3 {
		score += n
	}
	score -= len(rdateChar.ReplaceAllString(entry, ""))
	if rdateShape.MatchString(entry) {
		score += 30
	}
	if rgmtStamp.MatchString(entry) {
		score += 10
	}
	if entry != "" && !rplainAmount.MatchString(entry) {
		if _, err := parseAny(entry, true); err == nil {
			score += 20
		}
	}
	return score
}
