package main

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// ErrBadPattern is returned for a /regex/ in the account tokens file that
// doesn't compile.
var ErrBadPattern = errors.New("invalid account token pattern")

var rpattern = regexp.MustCompile(`^/(.*)/([a-z]*)$`)

// LoadAccountTokens feeds an account tokens file into the corpus. The file is
// a YAML tree of accounts; nested keys are joined with ":" and every leaf is a
// list of literal words or /regex/ patterns:
//
//	Expenses:
//	  Groceries:
//	    - Safeway
//	    - /whole\s+foods/i
//	Income:
//	  Salary:
//	    - 'LOCAL COMPANY'
func LoadAccountTokens(data []byte, c *Corpus) error {
	var tree yaml.MapSlice
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return errors.Wrap(err, "unable to parse account tokens")
	}
	return walkTokens("", tree, c)
}

func walkTokens(prefix string, node any, c *Corpus) error {
	switch v := node.(type) {
	case yaml.MapSlice:
		for _, item := range v {
			if err := walkTokens(joinAccount(prefix, item.Key), item.Value, c); err != nil {
				return err
			}
		}
	case map[any]any:
		keys := make([]string, 0, len(v))
		byName := make(map[string]any, len(v))
		for k, val := range v {
			name := fmt.Sprint(k)
			keys = append(keys, name)
			byName[name] = val
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := walkTokens(joinAccount(prefix, k), byName[k], c); err != nil {
				return err
			}
		}
	case []any:
		for _, tok := range v {
			if err := addToken(prefix, fmt.Sprint(tok), c); err != nil {
				return err
			}
		}
	case nil:
	default:
		return addToken(prefix, fmt.Sprint(v), c)
	}
	return nil
}

func joinAccount(prefix string, key any) string {
	name := fmt.Sprint(key)
	if prefix == "" {
		return name
	}
	return prefix + ":" + name
}

func addToken(account, tok string, c *Corpus) error {
	if account == "" {
		return errors.Errorf("token %q is not under any account", tok)
	}
	m := rpattern.FindStringSubmatch(tok)
	if m == nil {
		c.AddDocument(account, tok)
		return nil
	}
	re, err := compilePattern(m[1], m[2])
	if err != nil {
		return errors.Wrapf(ErrBadPattern, "%s for %s: %v", tok, account, err)
	}
	c.AddRule(RegexRule{Pattern: re, Account: account})
	return nil
}

// compilePattern understands the i (case insensitive) and x (extended, with
// whitespace and # comments ignored) flags.
func compilePattern(expr, flags string) (*regexp.Regexp, error) {
	for _, f := range flags {
		switch f {
		case 'i':
			expr = "(?i)" + expr
		case 'x':
			expr = stripExtended(expr)
		default:
			return nil, errors.Errorf("unsupported flag %q", f)
		}
	}
	return regexp.Compile(expr)
}

// stripExtended drops unescaped whitespace and # comments outside character
// classes.
func stripExtended(expr string) string {
	var b strings.Builder
	var class, escaped, comment bool
	for _, r := range expr {
		switch {
		case comment:
			if r == '\n' {
				comment = false
			}
		case escaped:
			b.WriteRune(r)
			escaped = false
		case r == '\\':
			b.WriteRune(r)
			escaped = true
		case class:
			b.WriteRune(r)
			if r == ']' {
				class = false
			}
		case r == '[':
			b.WriteRune(r)
			class = true
		case r == '#':
			comment = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
