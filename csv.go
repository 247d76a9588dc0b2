package main

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decodeInput turns the raw bytes of a bank export into UTF-8. A byte order
// mark wins over everything else; then the named encoding, if any. Data that
// isn't valid UTF-8 is read as ISO-8859-1, which accepts any byte.
func decodeInput(data []byte, name string) (string, error) {
	var fallback encoding.Encoding = unicode.UTF8
	switch {
	case name != "":
		enc, err := htmlindex.Get(name)
		if err != nil {
			return "", errors.Wrapf(err, "unknown encoding %q", name)
		}
		fallback = enc
	case !utf8.Valid(data):
		warnf("The CSV is not valid UTF-8, reading it as ISO-8859-1. Use -encoding to choose another.")
		fallback = charmap.ISO8859_1
	}
	out, _, err := transform.Bytes(unicode.BOMOverride(fallback.NewDecoder()), data)
	if err != nil {
		return "", errors.Wrap(err, "unable to decode CSV")
	}
	return string(out), nil
}

var separators = []rune{',', '\t', ';', ':', '|'}

// guessSeparator picks the candidate separator that shows up most often in
// the data, preferring the earlier candidate on a tie.
func guessSeparator(data string) rune {
	best, count := ',', -1
	for _, sep := range separators {
		if n := strings.Count(data, string(sep)); n > count {
			best, count = sep, n
		}
	}
	return best
}

// parseCSV splits the decoded text into rows, dropping the configured number
// of header and footer rows. When the reader chokes, which usually means a
// free-text preamble before the real header, it retries once with the header
// lines cut from the raw text.
func parseCSV(text string, opt Options) ([][]string, error) {
	text = strings.TrimSpace(text)
	sep := opt.separator()
	if sep == 0 {
		sep = guessSeparator(text)
	}

	rows, err := readCSV(text, sep, opt.CSVBackslashEscapes)
	if err == nil {
		return trimRows(rows, opt.ContainsHeader, opt.ContainsFooter), nil
	}
	var perr *csv.ParseError
	if !errors.As(err, &perr) || opt.ContainsHeader == 0 {
		return nil, errors.Wrap(err, "unable to parse CSV")
	}

	debugf("CSV parse failed (%v), retrying without the first %d lines", err, opt.ContainsHeader)
	lines := strings.SplitN(text, "\n", opt.ContainsHeader+1)
	if len(lines) <= opt.ContainsHeader {
		return nil, errors.Wrap(err, "unable to parse CSV")
	}
	rows, err = readCSV(lines[opt.ContainsHeader], sep, opt.CSVBackslashEscapes)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse CSV")
	}
	return trimRows(rows, 0, opt.ContainsFooter), nil
}

func readCSV(text string, sep rune, backslashes bool) ([][]string, error) {
	var in io.Reader = strings.NewReader(text)
	if backslashes {
		in = newUnescaper(in)
	}
	r := csv.NewReader(in)
	r.Comma = sep
	r.FieldsPerRecord = -1
	return r.ReadAll()
}

func trimRows(rows [][]string, header, footer int) [][]string {
	if header+footer >= len(rows) {
		return nil
	}
	return rows[header : len(rows)-footer]
}

// unescaper rewrites backslash escapes inside quoted fields ("a \"b\" c")
// into the doubled quotes encoding/csv understands. Text outside quotes is
// passed through untouched.
type unescaper struct {
	in     *bufio.Reader
	out    bytes.Buffer
	quoted bool
}

func newUnescaper(r io.Reader) *unescaper {
	return &unescaper{in: bufio.NewReader(r)}
}

func (u *unescaper) Read(p []byte) (int, error) {
	for u.out.Len() < len(p) {
		r, _, err := u.in.ReadRune()
		if err != nil {
			if u.out.Len() > 0 {
				break
			}
			return 0, err
		}
		if !u.quoted {
			if r == '"' {
				u.quoted = true
			}
			u.out.WriteRune(r)
			continue
		}
		switch r {
		case '"':
			u.quoted = false
			u.out.WriteRune(r)
		case '\\':
			next, _, err := u.in.ReadRune()
			if err != nil {
				u.out.WriteRune(r)
				continue
			}
			switch next {
			case '"':
				u.out.WriteString(`""`)
			case 'n':
				u.out.WriteByte('\n')
			case 't':
				u.out.WriteByte('\t')
			default:
				u.out.WriteRune(next)
			}
		default:
			u.out.WriteRune(r)
		}
	}
	return u.out.Read(p)
}
