package mirror

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"

	"toolbox_backend/core"
)

// OpenAIConfig holds settings for OpenAIProvider.
type OpenAIConfig struct {
	APIKey string
	// BaseURL defaults to https://api.openai.com/v1.
	BaseURL string
	// Model defaults to core.DefaultOpenAIImageModel.
	Model      string
	HTTPClient *http.Client
}

// OpenAIProvider re-shoots an image through the OpenAI image edit
// endpoint and asks for a base64 response.
//
// Safe for concurrent use.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI image edit provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is required", ErrNotConfigured)
	}
	if cfg.Model == "" {
		cfg.Model = core.DefaultOpenAIImageModel
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string {
	return core.MirrorProviderOpenAI
}

// Model returns the configured image model name.
func (p *OpenAIProvider) Model() string {
	return p.model
}

// Transform implements Provider.
func (p *OpenAIProvider) Transform(ctx context.Context, req Request) (*Result, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}

	// The edit form carries no model field; Model only routes Azure
	// deployments. The endpoint infers the image type from the file name.
	editReq := openai.ImageEditRequest{
		Image:          openai.WrapReader(bytes.NewReader(req.Image), "input"+extensionForMIME(req.MIMEType), req.MIMEType),
		Prompt:         PromptForLevel(req.Level),
		Model:          p.model,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	}

	resp, err := p.client.CreateEditImage(ctx, editReq)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && isModerationError(apiErr) {
			return nil, fmt.Errorf("%w: %s", ErrSafetyBlocked, apiErr.Message)
		}
		return nil, fmt.Errorf("%w: openai: %w", ErrUpstream, err)
	}

	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, ErrNoImage
	}
	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("%w: undecodable base64 image: %w", ErrNoImage, err)
	}
	return &Result{Image: data, MIMEType: http.DetectContentType(data)}, nil
}

func isModerationError(apiErr *openai.APIError) bool {
	if code, ok := apiErr.Code.(string); ok {
		switch code {
		case "moderation_blocked", "content_policy_violation":
			return true
		}
	}
	return false
}

func extensionForMIME(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

var _ Provider = (*OpenAIProvider)(nil)
