// Package ai produces reorder-quantity suggestions for low-stock products
// using the Gemini API.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultModel = "gemini-2.0-flash-001"

type Suggester struct {
	apiKey string
	model  string
}

func NewSuggester(apiKey string) *Suggester {
	return &Suggester{apiKey: strings.TrimSpace(apiKey), model: defaultModel}
}

// Enabled reports whether an API key was configured.
func (s *Suggester) Enabled() bool {
	return s != nil && s.apiKey != ""
}

type ReorderInput struct {
	ProductID        string
	ProductName      string
	HistoricalSales  string
	CurrentStock     int
	ReorderThreshold int
}

type ReorderOutput struct {
	SuggestedQuantity int    `json:"suggested_quantity"`
	Reasoning         string `json:"reasoning"`
}

// SuggestReorderQuantity asks the model for a restock quantity given recent
// sales history. The model is instructed to weigh sales trends, seasonality
// and lead time, and must answer with a single JSON object.
func (s *Suggester) SuggestReorderQuantity(ctx context.Context, input ReorderInput) (ReorderOutput, error) {
	if !s.Enabled() {
		return ReorderOutput{}, fmt.Errorf("ai suggester disabled: no API key configured")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(s.apiKey))
	if err != nil {
		return ReorderOutput{}, fmt.Errorf("create genai client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(s.model)
	model.ResponseMIMEType = "application/json"

	prompt := fmt.Sprintf(`You are an inventory manager for a retail boutique.
Suggest an optimal reorder quantity for the product below, considering sales
trends in the history, seasonality, supplier lead time and storage capacity.

Product: %s (id %s)
Current stock: %d
Reorder threshold: %d
Historical sales (JSON): %s

Respond with a JSON object: {"suggested_quantity": <integer>, "reasoning": "<short explanation>"}`,
		input.ProductName, input.ProductID, input.CurrentStock, input.ReorderThreshold, input.HistoricalSales)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return ReorderOutput{}, fmt.Errorf("generate suggestion: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ReorderOutput{}, fmt.Errorf("empty model response")
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return ReorderOutput{}, fmt.Errorf("unexpected response part type %T", resp.Candidates[0].Content.Parts[0])
	}

	var out ReorderOutput
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return ReorderOutput{}, fmt.Errorf("decode suggestion: %w", err)
	}
	if out.SuggestedQuantity < 0 {
		out.SuggestedQuantity = 0
	}
	return out, nil
}
