package gemini

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/phrazzld/firmgen/internal/config"
	"github.com/phrazzld/firmgen/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type recordedCall struct {
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

type fakeModels struct {
	resp  *genai.GenerateContentResponse
	err   error
	calls []recordedCall
}

func (f *fakeModels) GenerateContent(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	cfg *genai.GenerateContentConfig,
) (*genai.GenerateContentResponse, error) {
	f.calls = append(f.calls, recordedCall{model: model, contents: contents, config: cfg})
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      genai.NewContentFromText(text, genai.RoleModel),
			FinishReason: genai.FinishReasonStop,
		}},
	}
}

func testConfig() config.LLMConfig {
	return config.LLMConfig{
		GeminiAPIKey: "test-key",
		TextModel:    "text-model",
		VisionModel:  "vision-model",
	}
}

func testTransport(models contentGenerator) *Transport {
	return newTransport(slog.New(slog.NewTextHandler(io.Discard, nil)), models, testConfig())
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.LLMConfig)
		valid  bool
	}{
		{"complete", func(*config.LLMConfig) {}, true},
		{"missing key", func(c *config.LLMConfig) { c.GeminiAPIKey = "" }, false},
		{"missing text model", func(c *config.LLMConfig) { c.TextModel = "" }, false},
		{"missing vision model", func(c *config.LLMConfig) { c.VisionModel = "" }, false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			tc.mutate(&cfg)
			err := validateConfig(cfg)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, generation.ErrInvalidConfig)
			}
		})
	}
}

func TestNewTransport_RejectsMissingKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.GeminiAPIKey = ""
	_, err := NewTransport(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)

	_, err = NewTransport(context.Background(), nil, testConfig())
	assert.Error(t, err)
}

func TestGenerateText(t *testing.T) {
	t.Parallel()

	models := &fakeModels{resp: textResponse(`{"registers": []}`)}
	tr := testTransport(models)

	out, err := tr.GenerateText(context.Background(), generation.Request{
		Prompt:       "extract registers",
		SystemPrompt: "you are an embedded engineer",
		Temperature:  0.3,
		MaxTokens:    8000,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"registers": []}`, out)

	require.Len(t, models.calls, 1)
	call := models.calls[0]
	assert.Equal(t, "text-model", call.model)
	require.Len(t, call.contents, 1)
	require.Len(t, call.contents[0].Parts, 1)
	assert.Equal(t, "extract registers", call.contents[0].Parts[0].Text)

	require.NotNil(t, call.config.Temperature)
	assert.InDelta(t, 0.3, *call.config.Temperature, 1e-6)
	assert.Equal(t, int32(8000), call.config.MaxOutputTokens)
	require.NotNil(t, call.config.SystemInstruction)
	assert.Equal(t, "you are an embedded engineer", call.config.SystemInstruction.Parts[0].Text)
}

func TestGenerateVision(t *testing.T) {
	t.Parallel()

	models := &fakeModels{resp: textResponse(`{"pin_mappings": []}`)}
	tr := testTransport(models)
	image := []byte{0x89, 'P', 'N', 'G'}

	out, err := tr.GenerateVision(context.Background(), generation.Request{
		Prompt: "analyze schematic",
		Image:  image,
	})

	require.NoError(t, err)
	assert.Equal(t, `{"pin_mappings": []}`, out)

	require.Len(t, models.calls, 1)
	call := models.calls[0]
	assert.Equal(t, "vision-model", call.model)
	parts := call.contents[0].Parts
	require.Len(t, parts, 2)
	require.NotNil(t, parts[0].InlineData)
	assert.Equal(t, image, parts[0].InlineData.Data)
	assert.Equal(t, "image/png", parts[0].InlineData.MIMEType, "defaults to png")
	assert.Equal(t, "analyze schematic", parts[1].Text)
	assert.Nil(t, call.config.SystemInstruction)
}

func TestGenerateVision_RequiresImage(t *testing.T) {
	t.Parallel()

	models := &fakeModels{}
	_, err := testTransport(models).GenerateVision(context.Background(), generation.Request{Prompt: "p"})
	assert.ErrorIs(t, err, generation.ErrInvalidRequest)
	assert.Empty(t, models.calls)
}

func TestGenerate_PropagatesClientError(t *testing.T) {
	t.Parallel()

	boom := errors.New("503 unavailable")
	_, err := testTransport(&fakeModels{err: boom}).GenerateText(context.Background(), generation.Request{Prompt: "p"})
	assert.ErrorIs(t, err, boom)
}

func TestResponseText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		resp    *genai.GenerateContentResponse
		want    string
		wantErr error
	}{
		{"nil response", nil, "", generation.ErrInvalidResponse},
		{"no candidates", &genai.GenerateContentResponse{}, "", generation.ErrInvalidResponse},
		{"text", textResponse("int main(void) {}"), "int main(void) {}", nil},
		{
			name: "empty parts",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Role: genai.RoleModel},
			}}},
			wantErr: generation.ErrInvalidResponse,
		},
		{
			name: "safety finish",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				FinishReason: genai.FinishReasonSafety,
			}}},
			wantErr: generation.ErrContentBlocked,
		},
		{
			name: "prompt blocked",
			resp: &genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{
					BlockReason: genai.BlockedReasonSafety,
				},
			},
			wantErr: generation.ErrContentBlocked,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := responseText(tc.resp)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
