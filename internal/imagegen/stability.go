package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const stabilityImageCost = 0.03

// StabilityProvider generates images through the Stability AI core endpoint.
// The API returns image bytes, not a hosted URL, so Data is set on the
// result and the caller is expected to store it.
type StabilityProvider struct {
	apiKey string
	client *http.Client
}

func NewStabilityProvider(apiKey string) *StabilityProvider {
	return &StabilityProvider{
		apiKey: apiKey,
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

func (p *StabilityProvider) Name() string { return "stability" }

func (p *StabilityProvider) IsAvailable() bool { return p.apiKey != "" }

func (p *StabilityProvider) Generate(ctx context.Context, prompt string, opts Options) (*Image, error) {
	width, height := opts.sizeOrDefault()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	writer.WriteField("prompt", prompt)
	writer.WriteField("aspect_ratio", aspectRatio(width, height))
	writer.WriteField("output_format", "png")
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.stability.ai/v2beta/stable-image/generate/core", &buf)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Stability API error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Stability API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Image        string `json:"image"`
		FinishReason string `json:"finish_reason"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if result.FinishReason == "CONTENT_FILTERED" {
		return nil, fmt.Errorf("Stability filtered the prompt")
	}

	data, err := base64.StdEncoding.DecodeString(result.Image)
	if err != nil {
		return nil, fmt.Errorf("decoding image payload: %w", err)
	}

	return &Image{
		Data:    data,
		Width:   width,
		Height:  height,
		Model:   "stable-image-core",
		Cost:    stabilityImageCost,
		Latency: time.Since(start),
	}, nil
}

func aspectRatio(width, height int) string {
	switch {
	case width == height:
		return "1:1"
	case width > height:
		return "16:9"
	default:
		return "9:16"
	}
}
