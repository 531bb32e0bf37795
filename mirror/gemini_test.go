package mirror

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

// fakeGemini records the last call and returns a canned response.
type fakeGemini struct {
	resp     *genai.GenerateContentResponse
	err      error
	calls    int
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

func (f *fakeGemini) generate(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func newFakeGeminiProvider(fake *fakeGemini) *GeminiProvider {
	return &GeminiProvider{model: "test-image-model", generate: fake.generate}
}

func imageResponse(data []byte, mimeType string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{
				Role: "model",
				Parts: []*genai.Part{
					{Text: "Here is the image."},
					{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}},
				},
			},
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func TestGeminiTransform(t *testing.T) {
	input := encodePNG(t)
	output := []byte("generated-bytes")
	fake := &fakeGemini{resp: imageResponse(output, "image/png")}
	p := newFakeGeminiProvider(fake)

	result, err := p.Transform(context.Background(), Request{Image: input, MIMEType: "image/png", Level: 2})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if !bytes.Equal(result.Image, output) || result.MIMEType != "image/png" {
		t.Errorf("Transform() = %q %s", result.Image, result.MIMEType)
	}

	if fake.model != "test-image-model" {
		t.Errorf("model = %q", fake.model)
	}
	if len(fake.contents) != 1 || len(fake.contents[0].Parts) != 2 {
		t.Fatalf("contents = %+v, want one content with two parts", fake.contents)
	}
	parts := fake.contents[0].Parts
	if parts[0].Text != PromptForLevel(2) {
		t.Errorf("text part = %q, want level 2 prompt", parts[0].Text)
	}
	if parts[1].InlineData == nil || !bytes.Equal(parts[1].InlineData.Data, input) || parts[1].InlineData.MIMEType != "image/png" {
		t.Errorf("image part = %+v", parts[1].InlineData)
	}
	if fake.config == nil || len(fake.config.ResponseModalities) != 2 {
		t.Errorf("config = %+v, want TEXT and IMAGE modalities", fake.config)
	}
}

func TestGeminiTransformErrors(t *testing.T) {
	boom := errors.New("connection reset")
	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		err     error
		wantErr error
	}{
		{
			name:    "transport error",
			err:     boom,
			wantErr: ErrUpstream,
		},
		{
			name:    "nil response",
			wantErr: ErrNoImage,
		},
		{
			name: "text only",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content:      &genai.Content{Parts: []*genai.Part{{Text: "I cannot do that."}}},
				FinishReason: genai.FinishReasonStop,
			}}},
			wantErr: ErrNoImage,
		},
		{
			name: "safety finish reason",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				FinishReason: genai.FinishReasonSafety,
			}}},
			wantErr: ErrSafetyBlocked,
		},
		{
			name: "prompt blocked",
			resp: &genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: "SAFETY"},
			},
			wantErr: ErrSafetyBlocked,
		},
		{
			name:    "empty inline data",
			resp:    imageResponse(nil, "image/png"),
			wantErr: ErrNoImage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeGemini{resp: tt.resp, err: tt.err}
			p := newFakeGeminiProvider(fake)

			_, err := p.Transform(context.Background(), Request{Image: []byte{1, 2}, MIMEType: "image/jpeg"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Transform() error = %v, want %v", err, tt.wantErr)
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Errorf("Transform() error = %v does not wrap the cause", err)
			}
		})
	}
}

func TestGeminiTransformRejectsInvalidRequest(t *testing.T) {
	fake := &fakeGemini{}
	p := newFakeGeminiProvider(fake)

	if _, err := p.Transform(context.Background(), Request{MIMEType: "image/png"}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Transform() error = %v, want ErrInvalidRequest", err)
	}
	if fake.calls != 0 {
		t.Errorf("model called %d times for an invalid request", fake.calls)
	}
}

func TestGeminiDetectsMissingMIMEType(t *testing.T) {
	png := encodePNG(t)
	fake := &fakeGemini{resp: imageResponse(png, "")}
	p := newFakeGeminiProvider(fake)

	result, err := p.Transform(context.Background(), Request{Image: []byte{1}, MIMEType: "image/png"})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	if result.MIMEType != "image/png" {
		t.Errorf("MIMEType = %q, want sniffed image/png", result.MIMEType)
	}
}

func TestNewGeminiProviderRequiresKey(t *testing.T) {
	if _, err := NewGeminiProvider(context.Background(), GeminiConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("NewGeminiProvider() error = %v, want ErrNotConfigured", err)
	}
}
