package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pkg/errors"
)

// ReviewTransaction is a CSV row the corpus had no suggestion for.
type ReviewTransaction struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      float64         `json:"amount"`
	Currency    string          `json:"currency"`
	Account     string          `json:"account"`
	Categories  []CategoryScore `json:"categories"`
}

type ExampleTransaction struct {
	Description string `json:"description"`
}

type CategoryInfo struct {
	Name     string               `json:"name"`
	Examples []ExampleTransaction `json:"examples,omitempty"`
}

// ReviewData is the structure sent for review.
type ReviewData struct {
	Transactions  []ReviewTransaction `json:"transactions"`
	AllCategories []CategoryInfo      `json:"all_categories"`
}

type AIDecision struct {
	SuggestedCategories []CategoryScore `json:"suggested_categories"`
	Source              string          `json:"source"` // "ai" or "uncertain"
	Reasoning           string          `json:"reasoning,omitempty"`
}

type AIResponse struct {
	Decisions []AIDecision `json:"decisions"`
}

const maxExamples = 3

func buildAIPrompt(reviewData ReviewData) (string, error) {
	data, err := json.MarshalIndent(reviewData, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "unable to marshal review data")
	}
	prompt := `You are a bookkeeping assistant. Each transaction below comes from a bank
export and has to be posted against one of the accounts in "all_categories".
The "examples" of an account are descriptions previously posted to it. The
"categories" of a transaction are a naive bayes guess with confidences (0-1);
treat them as a hint only, they are unreliable for vague descriptions.

For every transaction, in the same order as the input, return up to 3 accounts
with confidence scores sorted by confidence. Only use accounts from
"all_categories". Set "source" to "ai" when the top confidence is at least 0.7,
otherwise "uncertain". Keep "reasoning" under 15 words.

Reply with JSON only, in this shape:

{"decisions": [{"suggested_categories": [{"category": "Expenses:Food", "confidence": 0.8}], "source": "ai", "reasoning": "Grocery store."}]}

**Transaction Data:**

`
	return prompt + string(data), nil
}

// callClaudeAPI sends one batch for review and decodes the decisions.
func callClaudeAPI(ctx context.Context, apiKey, model string, reviewData ReviewData) (AIResponse, error) {
	var empty AIResponse
	if apiKey == "" {
		return empty, errors.New("ANTHROPIC_API_KEY not set. Please set it in the environment or <conf>/.env")
	}
	prompt, err := buildAIPrompt(reviewData)
	if err != nil {
		return empty, err
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 8192,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return empty, errors.Wrap(err, "claude API call failed")
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return parseAIResponse(text.String())
}

// parseAIResponse pulls the JSON object out of a reply that may wrap it in
// prose or a code block.
func parseAIResponse(text string) (AIResponse, error) {
	var resp AIResponse
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end < start {
		return resp, errors.Errorf("no JSON found in response: %s", text)
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
		return resp, errors.Wrapf(err, "failed to parse JSON response: %s", text[start:end+1])
	}
	return resp, nil
}

// reviewRows asks for suggestions on the rows the corpus could not place. The
// result maps a row index to the accepted accounts, best first. Accounts that
// aren't known are dropped.
func (a *App) reviewRows(ctx context.Context, rows []Row) (map[int][]CategoryScore, error) {
	out := make(map[int][]CategoryScore)
	if len(rows) == 0 {
		return out, nil
	}
	known := make(map[string]bool)
	var categories []CategoryInfo
	for _, account := range a.corpus.Accounts() {
		known[account] = true
		categories = append(categories, CategoryInfo{Name: account, Examples: a.examples(account)})
	}

	const batchSize = 50
	for start := 0; start < len(rows); start += batchSize {
		batch := rows[start:min(start+batchSize, len(rows))]
		data := ReviewData{AllCategories: categories}
		for _, row := range batch {
			amount, _ := row.Money.Float64()
			data.Transactions = append(data.Transactions, ReviewTransaction{
				Date:        row.PrettyDate,
				Description: row.Description,
				Amount:      amount,
				Currency:    a.opt.Currency,
				Account:     a.opt.BankAccount,
				Categories:  a.bayes.TopHits(row.Description),
			})
		}
		fmt.Printf("Sending %d transactions for review...\n", len(batch))
		resp, err := callClaudeAPI(ctx, a.apiKey, a.opt.AIModel, data)
		if err != nil {
			return out, err
		}
		if len(resp.Decisions) != len(batch) {
			warnf("Review returned %d decisions for %d transactions, ignoring the batch.",
				len(resp.Decisions), len(batch))
			continue
		}
		for i, d := range resp.Decisions {
			var accepted []CategoryScore
			for _, c := range d.SuggestedCategories {
				if known[c.Category] {
					accepted = append(accepted, c)
				}
			}
			if len(accepted) > 0 {
				out[batch[i].Index] = accepted
			}
		}
	}
	return out, nil
}

// examples returns a few distinct descriptions learned for an account.
func (a *App) examples(account string) []ExampleTransaction {
	var out []ExampleTransaction
	seen := make(map[string]bool)
	for _, h := range a.history {
		if h.account != account || seen[h.text] {
			continue
		}
		seen[h.text] = true
		out = append(out, ExampleTransaction{Description: h.text})
		if len(out) == maxExamples {
			break
		}
	}
	return out
}
