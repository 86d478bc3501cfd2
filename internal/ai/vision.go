package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Analyzer describes one media file so the pipeline can cluster and caption it.
type Analyzer interface {
	Analyze(ctx context.Context, mediaURI string) (*Analysis, error)
}

type Analysis struct {
	Description     string
	SuggestedTopics []string
}

type openAIAnalyzer struct {
	client openai.Client
	model  string
}

func NewOpenAIAnalyzer(apiKey, model string) Analyzer {
	return &openAIAnalyzer{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

const visionPrompt = `Describe this image for a social media content planner. Respond with a single JSON object:
{"description": string, "topics": [string]}
Topics are 3-6 short lowercase tags covering subject, setting and mood.`

func (a *openAIAnalyzer) Analyze(ctx context.Context, mediaURI string) (*Analysis, error) {
	imageContent := openai.ChatCompletionContentPartUnionParam{
		OfImageURL: &openai.ChatCompletionContentPartImageParam{
			ImageURL: openai.ChatCompletionContentPartImageImageURLParam{
				URL:    mediaURI,
				Detail: "auto",
			},
		},
	}
	textContent := openai.ChatCompletionContentPartUnionParam{
		OfText: &openai.ChatCompletionContentPartTextParam{
			Text: visionPrompt,
		},
	}

	resp, err := a.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
							textContent,
							imageContent,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("media analysis failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("media analysis returned no choices")
	}

	parsed := ParseJSONResponse(resp.Choices[0].Message.Content)
	if parsed == nil {
		return nil, errors.New("media analysis returned unparseable output")
	}

	analysis := &Analysis{
		Description:     stringField(parsed, "description"),
		SuggestedTopics: stringSliceField(parsed, "topics"),
	}
	if analysis.Description == "" {
		return nil, errors.New("media analysis returned an empty description")
	}

	return analysis, nil
}
