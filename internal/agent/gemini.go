package agent

import (
	"context"
	"errors"
	"strings"

	genai "google.golang.org/genai"
)

var ErrNoCandidates = errors.New("model returned no candidates")

// GeminiGenerator is a thin wrapper around the genai client that asks for
// application/json output.
type GeminiGenerator struct {
	cli   *genai.Client
	model string
}

func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiGenerator{cli: cli, model: model}, nil
}

func (g *GeminiGenerator) Name() string { return "Gemini:" + g.model }

func (g *GeminiGenerator) GenerateJSON(ctx context.Context, system, prompt string) (string, error) {
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{
			ResponseMIMEType:  "application/json",
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		},
	)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrNoCandidates
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String(), nil
}
