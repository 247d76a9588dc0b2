package main

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

// Suggestion is a candidate account for a description. Rule is set when a
// regex rule matched rather than the statistics.
type Suggestion struct {
	Account    string
	Similarity float64
	Rule       bool
}

// RegexRule sends every description the pattern matches to Account.
type RegexRule struct {
	Pattern *regexp.Regexp
	Account string
}

// Corpus learns which words go with which account. Each account is one
// document: the bag of every token ever added for it. Accounts are ranked
// against a query by the cosine of their tf-idf vectors.
type Corpus struct {
	tokens map[string]map[string]int // token -> account -> count
	bags   map[string]map[string]int // account -> token -> count
	totals map[string]int            // account -> number of tokens
	order  []string
	rules  []RegexRule
}

func NewCorpus() *Corpus {
	return &Corpus{
		tokens: make(map[string]map[string]int),
		bags:   make(map[string]map[string]int),
		totals: make(map[string]int),
	}
}

var rtokenSplit = regexp.MustCompile(`[^a-z0-9.]+`)

// Tokenize lowercases s and splits it into words of letters, digits and
// dots. Apostrophes are dropped so "Trader Joe's" gives "joes".
func Tokenize(s string) []string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, ";", " ")
	s = strings.ReplaceAll(s, "'", "")
	var out []string
	for _, tok := range rtokenSplit.Split(s, -1) {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// AddDocument adds the words of text to the account.
func (c *Corpus) AddDocument(account, text string) {
	bag, ok := c.bags[account]
	if !ok {
		bag = make(map[string]int)
		c.bags[account] = bag
		c.order = append(c.order, account)
	}
	for _, tok := range Tokenize(text) {
		if c.tokens[tok] == nil {
			c.tokens[tok] = make(map[string]int)
		}
		c.tokens[tok][account]++
		bag[tok]++
		c.totals[account]++
	}
}

func (c *Corpus) AddRule(r RegexRule) { c.rules = append(c.rules, r) }

// Accounts lists every account known to the corpus, in the order they were
// first seen.
func (c *Corpus) Accounts() []string {
	out := make([]string, 0, len(c.order)+len(c.rules))
	seen := make(map[string]bool)
	for _, a := range c.order {
		seen[a] = true
		out = append(out, a)
	}
	for _, r := range c.rules {
		if !seen[r.Account] {
			seen[r.Account] = true
			out = append(out, r.Account)
		}
	}
	return out
}

func (c *Corpus) idf(token string) float64 {
	n := float64(len(c.order))
	return math.Log(n/float64(1+len(c.tokens[token]))) + 1
}

// FindSimilar ranks the accounts sharing at least one word with query, most
// similar first. Accounts with equal similarity keep the order they were
// learned in.
func (c *Corpus) FindSimilar(query string) []Suggestion {
	words := Tokenize(query)
	if len(words) == 0 || len(c.order) == 0 {
		return nil
	}
	qbag := make(map[string]int)
	for _, w := range words {
		qbag[w]++
	}

	candidates := make(map[string]bool)
	qvec := make(map[string]float64, len(qbag))
	var qnorm float64
	for tok, count := range qbag {
		for account := range c.tokens[tok] {
			candidates[account] = true
		}
		w := float64(count) / float64(len(words)) * c.idf(tok)
		qvec[tok] = w
		qnorm += w * w
	}
	qnorm = math.Sqrt(qnorm)

	var out []Suggestion
	for _, account := range c.order {
		if !candidates[account] {
			continue
		}
		total := float64(c.totals[account])
		var dot, norm float64
		for tok, count := range c.bags[account] {
			w := float64(count) / total * c.idf(tok)
			norm += w * w
			dot += w * qvec[tok]
		}
		if norm == 0 || qnorm == 0 {
			continue
		}
		sim := dot / (math.Sqrt(norm) * qnorm)
		if sim > 0 {
			out = append(out, Suggestion{Account: account, Similarity: sim})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})
	return out
}

// Suggest ranks accounts for a description. Regex rules that match come
// first, the longest match first, followed by FindSimilar. No account is
// listed twice.
func (c *Corpus) Suggest(query string) []Suggestion {
	type hit struct {
		account string
		length  int
	}
	var hits []hit
	for _, r := range c.rules {
		if loc := r.Pattern.FindStringIndex(query); loc != nil {
			hits = append(hits, hit{r.Account, loc[1] - loc[0]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].length > hits[j].length })

	var out []Suggestion
	seen := make(map[string]bool)
	for _, h := range hits {
		if seen[h.account] {
			continue
		}
		seen[h.account] = true
		out = append(out, Suggestion{Account: h.account, Similarity: 1, Rule: true})
	}
	for _, s := range c.FindSimilar(query) {
		if seen[s.Account] {
			continue
		}
		seen[s.Account] = true
		out = append(out, s)
	}
	return out
}
