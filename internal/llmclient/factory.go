// internal/llmclient/factory.go
package llmclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/uipilot/api/schemas"
	"github.com/xkilldash9x/uipilot/internal/config"
)

// NewProvider creates the plan provider selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.PlanProvider, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiProvider(ctx, cfg, logger)
	case config.ProviderScripted:
		if cfg.ScriptFile == "" {
			return nil, fmt.Errorf("the scripted provider requires agent.llm.script_file")
		}
		return LoadScriptedProvider(cfg.ScriptFile, logger)
	case "":
		return nil, fmt.Errorf("LLM provider is not specified in the configuration")
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s, %s]",
			cfg.Provider, config.ProviderGemini, config.ProviderScripted)
	}
}
