// Package mirror sends an image to a remote image model and returns a
// re-shot version of the same scene: different camera distance and angle,
// same people.
//
// Two providers implement Provider: Gemini (the default) and the OpenAI
// image edit endpoint. Service wraps a Provider with the credit ledger and
// the request audit trail.
package mirror

import (
	"context"
	"fmt"
	"strings"

	"toolbox_backend/core"
)

// DefaultLevel is used when a request does not set one.
const DefaultLevel = 1

// Request is one mirror call.
type Request struct {
	Image    []byte
	MIMEType string
	Level    int
}

// Normalize fills in the default level and validates the request.
func (r *Request) Normalize() error {
	if len(r.Image) == 0 || !strings.HasPrefix(strings.ToLower(r.MIMEType), "image/") {
		return ErrInvalidRequest
	}
	if r.Level <= 0 {
		r.Level = DefaultLevel
	}
	return nil
}

// Result is the image the provider produced.
type Result struct {
	Image    []byte
	MIMEType string
}

// Provider is a remote image model that can re-shoot an input image.
type Provider interface {
	// Name identifies the provider in logs, metrics and the audit trail.
	Name() string
	// Transform returns a new image for req. Errors wrap ErrSafetyBlocked,
	// ErrNoImage or ErrUpstream.
	Transform(ctx context.Context, req Request) (*Result, error)
}

// NewProvider builds the provider selected by cfg.MirrorProvider. It
// returns ErrNotConfigured when that provider has no API key.
func NewProvider(ctx context.Context, cfg *core.Config) (Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mirror: config cannot be nil")
	}
	if !cfg.MirrorEnabled() {
		return nil, fmt.Errorf("%w: set the API key for %q", ErrNotConfigured, cfg.MirrorProvider)
	}

	httpClient := core.GetHTTPClient(cfg.MirrorTimeout)
	switch cfg.MirrorProvider {
	case core.MirrorProviderOpenAI:
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIImageModel,
			HTTPClient: httpClient,
		})
	case core.MirrorProviderGemini, "":
		return NewGeminiProvider(ctx, GeminiConfig{
			APIKey:     cfg.GeminiAPIKey,
			Model:      cfg.GeminiModel,
			HTTPClient: httpClient,
		})
	default:
		return nil, fmt.Errorf("mirror: unknown provider %q", cfg.MirrorProvider)
	}
}
