package mirror

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"toolbox_backend/core"
)

// GeminiConfig holds settings for GeminiProvider.
type GeminiConfig struct {
	APIKey string
	// Model defaults to core.DefaultGeminiModel.
	Model string
	// BaseURL overrides the Gemini API endpoint. Optional.
	BaseURL    string
	HTTPClient *http.Client
}

type generateContentFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiProvider calls a Gemini image model with the input image as an
// inline part and the level prompt as text.
//
// Safe for concurrent use.
type GeminiProvider struct {
	model    string
	generate generateContentFunc
}

// NewGeminiProvider creates a Gemini provider.
//
// Example:
//
//	provider, err := NewGeminiProvider(ctx, GeminiConfig{APIKey: key})
//	if err != nil {
//	    return err
//	}
//	result, err := provider.Transform(ctx, Request{Image: data, MIMEType: "image/jpeg", Level: 1})
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: Gemini API key is required", ErrNotConfigured)
	}
	if cfg.Model == "" {
		cfg.Model = core.DefaultGeminiModel
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{
		model:    cfg.Model,
		generate: client.Models.GenerateContent,
	}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string {
	return core.MirrorProviderGemini
}

// Model returns the configured model name.
func (p *GeminiProvider) Model() string {
	return p.model
}

// Transform implements Provider.
func (p *GeminiProvider) Transform(ctx context.Context, req Request) (*Result, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(PromptForLevel(req.Level)),
			genai.NewPartFromBytes(req.Image, req.MIMEType),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	resp, err := p.generate(ctx, p.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini: %w", ErrUpstream, err)
	}
	return parseGeminiResponse(resp)
}

// blockedFinishReasons are candidate finish reasons that mean the model
// refused on policy grounds.
var blockedFinishReasons = map[genai.FinishReason]bool{
	genai.FinishReasonSafety: true,
	"IMAGE_SAFETY":           true,
	"PROHIBITED_CONTENT":     true,
	"BLOCKLIST":              true,
	"SPII":                   true,
}

// parseGeminiResponse returns the first inline image of the first
// candidate that has one.
func parseGeminiResponse(resp *genai.GenerateContentResponse) (*Result, error) {
	if resp == nil {
		return nil, ErrNoImage
	}
	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" && fb.BlockReason != "BLOCKED_REASON_UNSPECIFIED" {
		return nil, fmt.Errorf("%w: prompt blocked (%s)", ErrSafetyBlocked, fb.BlockReason)
	}

	blocked := false
	for _, c := range resp.Candidates {
		if c == nil {
			continue
		}
		if blockedFinishReasons[c.FinishReason] {
			blocked = true
			continue
		}
		if c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				mimeType := part.InlineData.MIMEType
				if mimeType == "" {
					mimeType = http.DetectContentType(part.InlineData.Data)
				}
				return &Result{Image: part.InlineData.Data, MIMEType: mimeType}, nil
			}
		}
	}

	if blocked {
		return nil, fmt.Errorf("%w: finish reason SAFETY", ErrSafetyBlocked)
	}
	return nil, ErrNoImage
}

var _ Provider = (*GeminiProvider)(nil)
