package main

import (
	"math"
	"sort"
	"strings"

	"github.com/jbrukh/bayesian"
)

// CategoryScore is an account with the confidence a ranker has in it.
type CategoryScore struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

// learned is one description the corpus was taught, kept so that rankers
// built later can be trained on the same history.
type learned struct {
	account string
	text    string
}

// bayesRanker is a naive bayes classifier over the learned history. The set
// of classes is fixed when it is built; descriptions for accounts it has
// never seen are not learned.
type bayesRanker struct {
	classes []bayesian.Class
	known   map[string]bool
	cl      *bayesian.Classifier
}

func prepareDescriptionForClassification(desc string) []string {
	desc = strings.ToLower(desc)
	desc = strings.ReplaceAll(desc, "*", " ")
	return strings.Fields(desc)
}

// newBayesRanker returns nil when the history has fewer than two accounts,
// which the classifier can't work with.
func newBayesRanker(history []learned) *bayesRanker {
	b := &bayesRanker{known: make(map[string]bool)}
	for _, h := range history {
		if b.known[h.account] {
			continue
		}
		b.known[h.account] = true
		b.classes = append(b.classes, bayesian.Class(h.account))
	}
	if len(b.classes) < 2 {
		return nil
	}
	b.cl = bayesian.NewClassifier(b.classes...)
	for _, h := range history {
		b.cl.Learn(prepareDescriptionForClassification(h.text), bayesian.Class(h.account))
	}
	return b
}

func (b *bayesRanker) Learn(account, text string) {
	if b == nil || !b.known[account] {
		return
	}
	b.cl.Learn(prepareDescriptionForClassification(text), bayesian.Class(account))
}

type pair struct {
	score float64
	pos   int
}

// TopHits returns up to five accounts whose log score is within one standard
// deviation of the one before it. Confidence is the class probability.
func (b *bayesRanker) TopHits(desc string) []CategoryScore {
	if b == nil {
		return nil
	}
	terms := prepareDescriptionForClassification(desc)
	if len(terms) == 0 {
		return nil
	}
	scores, _, _ := b.cl.LogScores(terms)
	probs, _, _ := b.cl.ProbScores(terms)

	pairs := make([]pair, 0, len(scores))
	var mean, stddev float64
	for pos, score := range scores {
		pairs = append(pairs, pair{score, pos})
		mean += score
	}
	mean /= float64(len(scores))
	for _, score := range scores {
		diff := score - mean
		stddev += diff * diff
	}
	stddev = math.Sqrt(stddev / float64(len(scores)-1))

	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })
	var result []CategoryScore
	last := pairs[0].score
	for _, pr := range pairs[:min(len(pairs), 5)] {
		if math.Abs(pr.score-last) > stddev {
			break
		}
		debugf("bayes s=%f class=%v", pr.score, b.classes[pr.pos])
		result = append(result, CategoryScore{
			Category:   string(b.classes[pr.pos]),
			Confidence: probs[pr.pos],
		})
		last = pr.score
	}
	return result
}
