package imagegen

import (
	"context"
	"time"
)

// Provider is one image-generation backend. IsAvailable reports credential
// presence, not live health; new backends are added by implementing this
// interface, never by branching on a type tag.
type Provider interface {
	Name() string
	IsAvailable() bool
	Generate(ctx context.Context, prompt string, opts Options) (*Image, error)
}

type Options struct {
	Width   int
	Height  int
	Quality string
}

// Image is the result of one generation call. Everything beyond URL/Data is
// stored for observability only.
type Image struct {
	URL     string
	Data    []byte
	Width   int
	Height  int
	Model   string
	Cost    float64
	Latency time.Duration
}

func (o Options) sizeOrDefault() (int, int) {
	if o.Width <= 0 || o.Height <= 0 {
		return 1024, 1024
	}
	return o.Width, o.Height
}
