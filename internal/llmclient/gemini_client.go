// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/uipilot/api/schemas"
	"github.com/xkilldash9x/uipilot/internal/config"
)

const feedbackPrefix = "Execution feedback: "

// contentGenerator is the slice of the genai Models service the provider uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiProvider implements schemas.PlanProvider on the Gemini API.
type GeminiProvider struct {
	models  contentGenerator
	limiter *rate.Limiter
	logger  *zap.Logger
	config  config.LLMConfig
}

var _ schemas.PlanProvider = (*GeminiProvider)(nil)

// NewGeminiProvider initializes a genai client for the Gemini API backend.
func NewGeminiProvider(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API Key is required (set agent.llm.api_key or UIPILOT_GEMINI_API_KEY)")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return newGeminiProvider(client.Models, cfg, logger), nil
}

func newGeminiProvider(models contentGenerator, cfg config.LLMConfig, logger *zap.Logger) *GeminiProvider {
	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMinute) / 60.0)
	}
	return &GeminiProvider{
		models:  models,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("llm_client.gemini"),
		config:  cfg,
	}
}

// Plan sends the request to Gemini and returns the raw text of the first candidate.
func (p *GeminiProvider) Plan(ctx context.Context, req schemas.PlanRequest) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		p.logger.Warn("Context cancelled while waiting for rate limiter", zap.Error(err))
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	if p.config.APITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.APITimeout)
		defer cancel()
	}

	startTime := time.Now()
	resp, err := p.models.GenerateContent(ctx, p.config.Model, buildContents(req), p.generationConfig(req.SystemInstructions))
	duration := time.Since(startTime)
	if err != nil {
		p.logger.Warn("Gemini request failed", zap.Duration("duration", duration), zap.Error(err))
		return "", fmt.Errorf("gemini API request failed: %w", err)
	}

	text, err := responseText(resp)
	if err != nil {
		return "", err
	}

	fields := []zap.Field{zap.Duration("duration", duration)}
	if usage := resp.UsageMetadata; usage != nil {
		fields = append(fields,
			zap.Int32("prompt_tokens", usage.PromptTokenCount),
			zap.Int32("completion_tokens", usage.CandidatesTokenCount),
			zap.Int32("total_tokens", usage.TotalTokenCount),
		)
	}
	p.logger.Info("LLM generation complete (Gemini)", fields...)
	return text, nil
}

func (p *GeminiProvider) generationConfig(systemInstructions string) *genai.GenerateContentConfig {
	gc := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(p.config.Temperature),
		ResponseMIMEType: "application/json",
	}
	if systemInstructions != "" {
		gc.SystemInstruction = genai.NewContentFromText(systemInstructions, genai.RoleUser)
	}
	if p.config.TopP > 0 {
		gc.TopP = genai.Ptr(p.config.TopP)
	}
	if p.config.TopK > 0 {
		gc.TopK = genai.Ptr(float32(p.config.TopK))
	}
	if p.config.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(p.config.MaxTokens)
	}
	return gc
}

// buildContents maps history onto Gemini roles and appends the current turn.
// Gemini only knows user and model, so feedback travels as a prefixed user turn.
func buildContents(req schemas.PlanRequest) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, turn := range req.History {
		switch turn.Role {
		case schemas.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleModel))
		case schemas.RoleExecutionFeedback:
			contents = append(contents, genai.NewContentFromText(feedbackPrefix+turn.Content, genai.RoleUser))
		default:
			contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleUser))
		}
	}
	return append(contents, genai.NewContentFromText(req.UserMessage(), genai.RoleUser))
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("gemini API blocked the prompt (Reason: %s)", resp.PromptFeedback.BlockReason)
		}
		return "", errors.New("gemini API returned no candidates")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("gemini API returned empty content parts (Reason: %s)", candidate.FinishReason)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		b.WriteString(part.Text)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("gemini API returned no text (Reason: %s)", candidate.FinishReason)
	}
	return b.String(), nil
}
