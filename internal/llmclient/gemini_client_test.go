package llmclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/xkilldash9x/uipilot/api/schemas"
	"github.com/xkilldash9x/uipilot/internal/config"
)

// mockModels is a mock implementation of contentGenerator.
type mockModels struct {
	mock.Mock
}

func (m *mockModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	args := m.Called(ctx, model, contents, cfg)
	var resp *genai.GenerateContentResponse
	if args.Get(0) != nil {
		resp = args.Get(0).(*genai.GenerateContentResponse)
	}
	return resp, args.Error(1)
}

// -- Test Setup Helpers --

func getValidLLMConfig() config.LLMConfig {
	return config.LLMConfig{
		Provider:    config.ProviderGemini,
		APIKey:      "test-api-key",
		Model:       "test-model",
		APITimeout:  5 * time.Second,
		Temperature: 0.7,
		TopP:        0.9,
		TopK:        50,
		MaxTokens:   1024,
	}
}

func setupProvider(t *testing.T, cfg config.LLMConfig) (*GeminiProvider, *mockModels, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	models := new(mockModels)
	return newGeminiProvider(models, cfg, zap.New(core)), models, logs
}

func textResponse(parts ...string) *genai.GenerateContentResponse {
	content := &genai.Content{Role: genai.RoleModel}
	for _, p := range parts {
		content.Parts = append(content.Parts, &genai.Part{Text: p})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: content, FinishReason: genai.FinishReasonStop}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     10,
			CandidatesTokenCount: 5,
			TotalTokenCount:      15,
		},
	}
}

func createTestRequest() schemas.PlanRequest {
	return schemas.PlanRequest{
		SystemInstructions: "System prompt instructions.",
		History: []schemas.ConversationTurn{
			{Role: schemas.RoleUser, Content: "earlier user turn"},
			{Role: schemas.RoleAssistant, Content: `{"actions":[]}`},
			{Role: schemas.RoleExecutionFeedback, Content: "Action 0 (touch) failed"},
		},
		Snapshot:          `{"class":"FrameLayout"}`,
		Command:           "open settings",
		RepetitionContext: "step 1 | screen abc | touch(1,1)",
	}
}

// -- Test Cases: Initialization --

func TestNewGeminiProvider_Failure_MissingAPIKey(t *testing.T) {
	cfg := getValidLLMConfig()
	cfg.APIKey = ""

	provider, err := NewGeminiProvider(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
	assert.Nil(t, provider)
	assert.Contains(t, err.Error(), "Gemini API Key is required")
}

func TestNewGeminiProvider_RateLimit(t *testing.T) {
	cfg := getValidLLMConfig()
	cfg.RequestsPerMinute = 120
	p, _, _ := setupProvider(t, cfg)
	assert.InDelta(t, 2.0, float64(p.limiter.Limit()), 1e-9)

	cfg.RequestsPerMinute = 0
	p, _, _ = setupProvider(t, cfg)
	assert.Equal(t, rate.Inf, p.limiter.Limit(), "no limit when requests_per_minute is unset")
}

// -- Test Cases: Request Mapping --

func TestBuildContents_MapsRoles(t *testing.T) {
	req := createTestRequest()
	contents := buildContents(req)

	require.Len(t, contents, 4)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, "earlier user turn", contents[0].Parts[0].Text)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	assert.Equal(t, string(genai.RoleUser), contents[2].Role)
	assert.Equal(t, "Execution feedback: Action 0 (touch) failed", contents[2].Parts[0].Text)

	last := contents[3]
	assert.Equal(t, string(genai.RoleUser), last.Role)
	assert.Equal(t, req.UserMessage(), last.Parts[0].Text)
	assert.Contains(t, last.Parts[0].Text, "open settings")
	assert.Contains(t, last.Parts[0].Text, req.RepetitionContext)
}

func TestGenerationConfig(t *testing.T) {
	p, _, _ := setupProvider(t, getValidLLMConfig())
	gc := p.generationConfig("be precise")

	require.NotNil(t, gc.SystemInstruction)
	assert.Equal(t, "be precise", gc.SystemInstruction.Parts[0].Text)
	assert.Equal(t, "application/json", gc.ResponseMIMEType)
	assert.InDelta(t, 0.7, float64(*gc.Temperature), 1e-6)
	assert.InDelta(t, 0.9, float64(*gc.TopP), 1e-6)
	assert.InDelta(t, 50, float64(*gc.TopK), 1e-6)
	assert.Equal(t, int32(1024), gc.MaxOutputTokens)

	cfg := getValidLLMConfig()
	cfg.TopP, cfg.TopK, cfg.MaxTokens = 0, 0, 0
	p, _, _ = setupProvider(t, cfg)
	gc = p.generationConfig("")
	assert.Nil(t, gc.SystemInstruction)
	assert.Nil(t, gc.TopP)
	assert.Nil(t, gc.TopK)
	assert.Zero(t, gc.MaxOutputTokens)
}

// -- Test Cases: Plan --

func TestPlan_Success(t *testing.T) {
	p, models, logs := setupProvider(t, getValidLLMConfig())
	req := createTestRequest()

	models.On("GenerateContent", mock.Anything, "test-model",
		mock.MatchedBy(func(c []*genai.Content) bool { return len(c) == 4 }),
		mock.AnythingOfType("*genai.GenerateContentConfig"),
	).Return(textResponse(`{"actions":`, `[{"type":"done"}]}`), nil).Once()

	text, err := p.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, `{"actions":[{"type":"done"}]}`, text)
	models.AssertExpectations(t)

	entries := logs.FilterMessage("LLM generation complete (Gemini)").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int32(15), entries[0].ContextMap()["total_tokens"])
}

func TestPlan_AppliesTimeout(t *testing.T) {
	cfg := getValidLLMConfig()
	cfg.APITimeout = time.Minute
	p, models, _ := setupProvider(t, cfg)

	models.On("GenerateContent", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= time.Minute
	}), mock.Anything, mock.Anything, mock.Anything).Return(textResponse("ok"), nil).Once()

	_, err := p.Plan(context.Background(), createTestRequest())
	require.NoError(t, err)
	models.AssertExpectations(t)
}

func TestPlan_Failures(t *testing.T) {
	tests := []struct {
		name          string
		resp          *genai.GenerateContentResponse
		err           error
		expectedError string
	}{
		{
			name:          "transport error",
			err:           errors.New("connection reset"),
			expectedError: "gemini API request failed: connection reset",
		},
		{
			name:          "no candidates",
			resp:          &genai.GenerateContentResponse{},
			expectedError: "gemini API returned no candidates",
		},
		{
			name: "blocked prompt",
			resp: &genai.GenerateContentResponse{
				PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
			},
			expectedError: "gemini API blocked the prompt",
		},
		{
			name: "empty parts",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{Content: &genai.Content{}, FinishReason: genai.FinishReasonMaxTokens}},
			},
			expectedError: "gemini API returned empty content parts (Reason: MAX_TOKENS)",
		},
		{
			name: "only thoughts",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{{Text: "hmm", Thought: true}}}}},
			},
			expectedError: "gemini API returned no text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, models, _ := setupProvider(t, getValidLLMConfig())
			models.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(tt.resp, tt.err).Once()

			text, err := p.Plan(context.Background(), createTestRequest())
			require.Error(t, err)
			assert.Empty(t, text)
			assert.Contains(t, err.Error(), tt.expectedError)
		})
	}
}

func TestPlan_CancelledWhileRateLimited(t *testing.T) {
	cfg := getValidLLMConfig()
	cfg.RequestsPerMinute = 1
	p, models, _ := setupProvider(t, cfg)
	models.On("GenerateContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(textResponse("ok"), nil).Once()

	_, err := p.Plan(context.Background(), createTestRequest())
	require.NoError(t, err)

	// The single token is spent; the next call would wait a minute.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = p.Plan(ctx, createTestRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter")
	models.AssertExpectations(t)
}
