package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// TextGenerator produces post copy from an assembled prompt. A failure here
// is fatal to the unit of work that requested it.
type TextGenerator interface {
	Generate(ctx context.Context, req TextRequest) (*TextResult, error)
}

type TextRequest struct {
	Prompt     string
	BrandVoice string
	Tone       string
}

type TextResult struct {
	Title      string
	Caption    string
	Hashtags   []string
	Confidence float64
}

type openAITextGenerator struct {
	client openai.Client
	model  string
}

func NewOpenAITextGenerator(apiKey, model string) TextGenerator {
	return &openAITextGenerator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

const textSystemPrompt = `You are a social media copywriter. Respond with a single JSON object:
{"title": string, "caption": string, "hashtags": [string], "confidence": number}
The confidence field is your own estimate, between 0 and 1, of how well the caption fits the brief.`

func (g *openAITextGenerator) Generate(ctx context.Context, req TextRequest) (*TextResult, error) {
	var sb strings.Builder
	if req.BrandVoice != "" {
		sb.WriteString("Brand voice: " + req.BrandVoice + "\n")
	}
	if req.Tone != "" {
		sb.WriteString("Tone: " + req.Tone + "\n")
	}
	sb.WriteString(req.Prompt)

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: g.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(textSystemPrompt),
			openai.UserMessage(sb.String()),
		},
		Temperature: openai.Float(0.7),
	})
	if err != nil {
		return nil, fmt.Errorf("text generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("text generation returned no choices")
	}

	parsed := ParseJSONResponse(resp.Choices[0].Message.Content)
	if parsed == nil {
		return nil, errors.New("text generation returned unparseable output")
	}

	result := &TextResult{
		Title:      stringField(parsed, "title"),
		Caption:    stringField(parsed, "caption"),
		Hashtags:   stringSliceField(parsed, "hashtags"),
		Confidence: clamp01(floatField(parsed, "confidence")),
	}
	if result.Caption == "" {
		return nil, errors.New("text generation returned an empty caption")
	}

	return result, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
