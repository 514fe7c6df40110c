package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/solterm/trading-core/pkg/types"
)

// ollamaProvider drives a local Ollama daemon. It cannot emit tool calls;
// each request carrying tools is warned about and answered with text only.
type ollamaProvider struct {
	name    string
	model   string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func newOllama(cfg types.ProviderConfig, logger *zap.Logger) *ollamaProvider {
	base := cfg.BaseURL
	if base == "" {
		base = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = "llama3"
	}
	return &ollamaProvider{
		name:    cfg.Name,
		model:   model,
		baseURL: base,
		client:  &http.Client{Timeout: defaultRequestTimeout},
		logger:  logger.Named(cfg.Name),
	}
}

func (p *ollamaProvider) Name() string { return p.name }
func (p *ollamaProvider) Free() bool   { return true }

type ollamaRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error,omitempty"`
}

func (p *ollamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if len(req.Tools) > 0 {
		p.logger.Warn("tool calls requested but unsupported, responding with text only",
			zap.Int("tools", len(req.Tools)))
	}

	body := ollamaRequest{Model: p.model, Stream: false}
	for _, m := range req.Messages {
		role := m.Role
		if role == "tool" {
			role = "user"
		}
		body.Messages = append(body.Messages, struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		}{Role: role, Content: m.Content})
	}
	if req.Temperature > 0 {
		body.Options = map[string]interface{}{"temperature": req.Temperature}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/api/chat", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", p.name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d: %s", p.name, resp.StatusCode, truncate(string(data), 200))
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", p.name, err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("%s error: %s", p.name, parsed.Error)
	}

	return &ChatResponse{
		Content:  parsed.Message.Content,
		Model:    parsed.Model,
		Provider: p.name,
	}, nil
}
