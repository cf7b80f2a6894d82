// Package claude asks a Claude model to pick the download-source candidate
// matching a catalog title. Fuzzy string matching fails on anime naming
// (romaji vs English titles, season markers, remakes), so the decision is
// delegated to a small model with the episode counts as a cross-check.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"kotoba/internal/services"
)

// DefaultModel is a small fast model; title matching does not need more.
const DefaultModel = "claude-3-5-haiku-20241022"

const maxTokens = 1024

// Result is the model's selection verdict.
type Result struct {
	// SelectedIndex is the zero-based candidate index, or -1 when no
	// candidate matches.
	SelectedIndex int    `json:"selected_index"`
	Confidence    string `json:"confidence"`
	Reasoning     string `json:"reasoning"`
	// EpisodeMatch is one of exact, close, acceptable, mismatch, unknown.
	EpisodeMatch string `json:"episode_match"`
}

// Client calls the Anthropic API for title selection.
type Client struct {
	client anthropic.Client
	model  string
}

// NewClient builds a client. An empty model selects the default.
func NewClient(apiKey, model string) *Client {
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// SelectTitle asks the model which candidate matches the catalog entry.
// Candidates are presented with their episode counts; expectedEpisodes may be
// zero when the catalog does not know the count.
func (c *Client) SelectTitle(ctx context.Context, title, titleEnglish string, expectedEpisodes int, candidates []string) (*Result, error) {
	if len(candidates) == 0 {
		return nil, services.Wrap(services.ErrPrecondition, "selecting", "claude", "no candidates to select from", nil)
	}

	prompt := buildPrompt(title, titleEnglish, expectedEpisodes, candidates)

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(0),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "selecting", "claude", "api call failed", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	result, err := ParseResult(text.String())
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "selecting", "claude", "unparseable response", err)
	}
	if result.SelectedIndex >= len(candidates) {
		return nil, services.Wrap(services.ErrTransient, "selecting", "claude",
			fmt.Sprintf("selected index %d out of range", result.SelectedIndex), nil)
	}
	return result, nil
}

// ParseResult extracts the selection JSON from a model response, tolerating
// surrounding prose or a code fence.
func ParseResult(text string) (*Result, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var result Result
	if err := json.Unmarshal([]byte(text[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("decode selection: %w", err)
	}
	if result.Confidence == "" {
		return nil, fmt.Errorf("selection missing confidence")
	}
	return &result, nil
}

func buildPrompt(title, titleEnglish string, expectedEpisodes int, candidates []string) string {
	var b strings.Builder
	b.WriteString("You match anime catalog entries to titles on a streaming source.\n\n")
	b.WriteString("Catalog entry:\n")
	fmt.Fprintf(&b, "- Title: %s\n", title)
	if titleEnglish != "" && titleEnglish != title {
		fmt.Fprintf(&b, "- English title: %s\n", titleEnglish)
	}
	if expectedEpisodes > 0 {
		fmt.Fprintf(&b, "- Expected episodes: %d\n", expectedEpisodes)
	}
	b.WriteString("\nSource candidates (each with its available episode count):\n")
	for i, candidate := range candidates {
		fmt.Fprintf(&b, "%d. %s\n", i, candidate)
	}
	b.WriteString(`
Pick the candidate that is the same show. Prefer an exact title match; use the
episode count to distinguish seasons, remakes, and movies. If nothing matches,
answer with index -1.

Respond with only a JSON object:
{"selected_index": <int>, "confidence": "high"|"medium"|"low", "reasoning": "<one sentence>", "episode_match": "exact"|"close"|"acceptable"|"mismatch"|"unknown"}
`)
	return b.String()
}
