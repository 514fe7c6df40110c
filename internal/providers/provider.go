// Package providers implements the AI provider fallback orchestrator and the
// chat adapters it drives.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/pkg/types"
)

const defaultRequestTimeout = 30 * time.Second

// Message is one turn of a provider-agnostic chat conversation.
type Message struct {
	Role       string `json:"role"` // system, user, assistant, tool
	Content    string `json:"content"`
	ToolCallID string `json:"toolCallId,omitempty"`
	Name       string `json:"name,omitempty"`
}

// Tool declares a callable tool in provider-agnostic form. Parameters is a
// JSON Schema object.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ChatRequest is the provider-agnostic request each adapter translates to its
// wire format.
type ChatRequest struct {
	Messages         []Message `json:"messages"`
	Tools            []Tool    `json:"tools,omitempty"`
	ToolChoice       string    `json:"toolChoice,omitempty"` // auto, none, required
	Temperature      float64   `json:"temperature,omitempty"`
	MaxTokens        int       `json:"maxTokens,omitempty"`
	IncludeReasoning bool      `json:"includeReasoning,omitempty"`
}

// ToolCall is a tool invocation requested by the model. Arguments is the raw
// JSON argument object.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ChatResponse is the normalized provider response. Provider, Tier, and
// Free identify which backend actually answered; the orchestrator fills
// Tier and Free on the way out.
type ChatResponse struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	Reasoning string     `json:"reasoning,omitempty"`
	Model     string     `json:"model,omitempty"`
	Provider  string     `json:"provider"`
	Tier      string     `json:"tier,omitempty"`
	Free      bool       `json:"free"`
}

// ChatProvider is one configured AI backend.
type ChatProvider interface {
	Name() string
	Free() bool
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// newProvider builds the adapter for one provider config.
func newProvider(cfg types.ProviderConfig, logger *zap.Logger) (ChatProvider, error) {
	switch strings.ToLower(cfg.Name) {
	case "openai":
		return newOpenAI(cfg, logger), nil
	case "anthropic":
		return newAnthropic(cfg, logger), nil
	case "deepseek":
		return newDeepSeek(cfg, logger), nil
	case "ollama":
		return newOllama(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}
