package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const openAIImageCost = 0.04 // flat per-image estimate for dall-e-3 standard

// OpenAIProvider generates images through the OpenAI images endpoint.
type OpenAIProvider struct {
	apiKey string
	model  string
	client *http.Client
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = "dall-e-3"
	}
	return &OpenAIProvider{
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) IsAvailable() bool { return p.apiKey != "" }

func (p *OpenAIProvider) Generate(ctx context.Context, prompt string, opts Options) (*Image, error) {
	width, height := opts.sizeOrDefault()

	body := map[string]any{
		"model":  p.model,
		"prompt": prompt,
		"n":      1,
		"size":   fmt.Sprintf("%dx%d", width, height),
	}
	if opts.Quality != "" {
		body["quality"] = opts.Quality
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/images/generations", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OpenAI images error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("OpenAI images returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(result.Data) == 0 || result.Data[0].URL == "" {
		return nil, fmt.Errorf("no image in OpenAI response")
	}

	return &Image{
		URL:     result.Data[0].URL,
		Width:   width,
		Height:  height,
		Model:   p.model,
		Cost:    openAIImageCost,
		Latency: time.Since(start),
	}, nil
}
