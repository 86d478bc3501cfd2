package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

var ErrNoProvider = errors.New("no image provider available")

// Gateway presents one generate operation over an ordered set of registered
// providers with availability-based fallback.
type Gateway struct {
	providers map[string]Provider
	preferred string
	fallback  []string
}

func NewGateway(preferred string, fallback []string, providers ...Provider) *Gateway {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Gateway{
		providers: byName,
		preferred: preferred,
		fallback:  fallback,
	}
}

// Resolve probes the preferred provider, then each fallback in order, and
// returns the first available one.
func (g *Gateway) Resolve(preferred string, fallback ...string) (Provider, error) {
	for _, name := range append([]string{preferred}, fallback...) {
		p, ok := g.providers[name]
		if !ok {
			continue
		}
		if p.IsAvailable() {
			return p, nil
		}
	}
	return nil, ErrNoProvider
}

// Generate resolves a provider using the configured order and runs one
// generation call on it.
func (g *Gateway) Generate(ctx context.Context, prompt string, opts Options) (*Image, error) {
	provider, err := g.Resolve(g.preferred, g.fallback...)
	if err != nil {
		return nil, err
	}

	img, err := provider.Generate(ctx, prompt, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", provider.Name(), err)
	}

	slog.Info(fmt.Sprintf("generated image via %s (%dx%d, %s, est. $%.4f)",
		provider.Name(), img.Width, img.Height, img.Latency.Round(1e6), img.Cost))
	return img, nil
}
