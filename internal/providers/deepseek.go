package providers

import (
	"go.uber.org/zap"

	"github.com/solterm/trading-core/pkg/types"
)

// newDeepSeek returns a DeepSeek adapter. The wire format is
// OpenAI-compatible, so only the defaults differ.
func newDeepSeek(cfg types.ProviderConfig, logger *zap.Logger) *openAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.deepseek.com"
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	return newOpenAI(cfg, logger)
}
