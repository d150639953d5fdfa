package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/firmgen/internal/config"
	"github.com/phrazzld/firmgen/internal/generation"
	"google.golang.org/genai"
)

const defaultImageMIME = "image/png"

// contentGenerator is the slice of the genai Models service the transport uses.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// Transport implements generation.Transport against the Gemini API.
type Transport struct {
	// logger is used for structured logging
	logger *slog.Logger

	// models performs the actual GenerateContent calls
	models contentGenerator

	// textModel and visionModel are the model names for each request kind
	textModel   string
	visionModel string
}

var _ generation.Transport = (*Transport)(nil)

// NewTransport creates a Gemini transport from the LLM configuration.
//
// Parameters:
//   - ctx: Context for client initialization
//   - logger: A structured logger for operation logging
//   - cfg: LLM configuration containing the API key and model names
//
// Returns:
//   - A ready Transport or an error wrapping generation.ErrInvalidConfig
func NewTransport(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Transport, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	logger.InfoContext(ctx, "Gemini transport initialized",
		"text_model", cfg.TextModel,
		"vision_model", cfg.VisionModel)

	return newTransport(logger, client.Models, cfg), nil
}

func newTransport(logger *slog.Logger, models contentGenerator, cfg config.LLMConfig) *Transport {
	return &Transport{
		logger:      logger,
		models:      models,
		textModel:   cfg.TextModel,
		visionModel: cfg.VisionModel,
	}
}

// validateConfig checks the settings NewTransport cannot work without.
func validateConfig(cfg config.LLMConfig) error {
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.TextModel == "" {
		return fmt.Errorf("%w: text model name cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.VisionModel == "" {
		return fmt.Errorf("%w: vision model name cannot be empty", generation.ErrInvalidConfig)
	}
	return nil
}

// GenerateText sends a text-only prompt to the text model.
func (t *Transport) GenerateText(ctx context.Context, req generation.Request) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromText(req.Prompt)}, genai.RoleUser),
	}
	return t.generate(ctx, t.textModel, contents, req)
}

// GenerateVision sends the image followed by the prompt to the vision model.
func (t *Transport) GenerateVision(ctx context.Context, req generation.Request) (string, error) {
	if len(req.Image) == 0 {
		return "", fmt.Errorf("%w: vision request without image", generation.ErrInvalidRequest)
	}
	mime := req.ImageMIME
	if mime == "" {
		mime = defaultImageMIME
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(req.Image, mime),
			genai.NewPartFromText(req.Prompt),
		}, genai.RoleUser),
	}
	return t.generate(ctx, t.visionModel, contents, req)
}

func (t *Transport) generate(
	ctx context.Context,
	model string,
	contents []*genai.Content,
	req generation.Request,
) (string, error) {
	t.logger.DebugContext(ctx, "Sending Gemini request",
		"model", model,
		"prompt_length", len(req.Prompt),
		"image_bytes", len(req.Image))

	resp, err := t.models.GenerateContent(ctx, model, contents, buildGenerateConfig(req))
	if err != nil {
		return "", err
	}
	return responseText(resp)
}

// buildGenerateConfig maps request sampling settings onto the Gemini config.
func buildGenerateConfig(req generation.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	return cfg
}

// responseText extracts the answer, translating safety blocks and empty responses.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" &&
		resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return "", fmt.Errorf("%w: prompt blocked (%s)",
			generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	switch resp.Candidates[0].FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist,
		genai.FinishReasonSPII:
		return "", fmt.Errorf("%w: finish reason %s",
			generation.ErrContentBlocked, resp.Candidates[0].FinishReason)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}
	return text, nil
}
