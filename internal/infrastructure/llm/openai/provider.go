package openai

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nilcaream/bobai/internal/domain/entity"
	"github.com/nilcaream/bobai/internal/domain/service"
	llm "github.com/nilcaream/bobai/internal/infrastructure/llm"
	"github.com/nilcaream/bobai/internal/infrastructure/llm/sse"
	"go.uber.org/zap"
)

func init() {
	llm.RegisterFactory("openai", func(cfg llm.ProviderConfig, logger *zap.Logger) llm.Provider {
		return New(cfg, logger)
	})
}

// Provider is an OpenAI-compatible streaming chat client. Compatible
// with OpenAI, Copilot-style proxies, DeepSeek, Ollama, vLLM, etc.
type Provider struct {
	name    string
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// New creates an OpenAI-compatible provider.
func New(cfg llm.ProviderConfig, logger *zap.Logger) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &Provider{
		name:    cfg.Name,
		baseURL: baseURL,
		token:   cfg.Token,
		client:  &http.Client{Transport: transport},
		logger:  logger.With(zap.String("provider", cfg.Name), zap.String("type", "openai")),
	}
}

// Compile-time interface check
var _ llm.Provider = (*Provider)(nil)

func (p *Provider) Name() string { return p.name }

// StreamChat implements service.LLMClient. Events are emitted on the
// channel as chunks decode; the channel is owned (and never closed) by
// the caller. A non-2xx response surfaces as *service.ProviderError
// before any event is emitted.
func (p *Provider) StreamChat(ctx context.Context, req *service.ChatRequest, events chan<- service.StreamEvent) error {
	body, err := json.Marshal(buildRequest(req))
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.token)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-initiator", initiator(req.Messages))

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		return &service.ProviderError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	// Context cancellation body-close watchdog: aborting the context
	// must unblock a reader stuck on a stalled stream.
	streamDone := make(chan struct{})
	defer close(streamDone)
	go func() {
		select {
		case <-ctx.Done():
			p.logger.Debug("Context cancelled, force-closing SSE stream", zap.Error(ctx.Err()))
			resp.Body.Close()
		case <-streamDone:
		}
	}()

	return p.decodeStream(ctx, resp.Body, events)
}

// decodeStream maps decoded chunks to stream events. If the stream ends
// without an explicit finish_reason a finish{stop} is synthesized.
func (p *Provider) decodeStream(ctx context.Context, r io.Reader, events chan<- service.StreamEvent) error {
	dec := sse.NewDecoder(r)

	for {
		raw, err := dec.Next()
		if err == io.EOF {
			events <- service.StreamEvent{Type: service.StreamFinish, FinishReason: service.FinishStop}
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &service.ProviderError{StatusCode: http.StatusOK, Body: err.Error()}
		}

		var chunk StreamChunk
		if err := json.Unmarshal(raw, &chunk); err != nil {
			return &service.ProviderError{StatusCode: http.StatusOK, Body: fmt.Sprintf("malformed chunk: %v", err)}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			events <- service.StreamEvent{Type: service.StreamText, Text: choice.Delta.Content}
		}

		for _, tc := range choice.Delta.ToolCalls {
			if tc.ID != "" || tc.Function.Name != "" {
				events <- service.StreamEvent{
					Type:  service.StreamToolCallStart,
					Index: tc.Index,
					ID:    tc.ID,
					Name:  tc.Function.Name,
				}
			}
			if tc.Function.Arguments != "" {
				events <- service.StreamEvent{
					Type:     service.StreamToolCallDelta,
					Index:    tc.Index,
					Fragment: tc.Function.Arguments,
				}
			}
		}

		if choice.FinishReason != nil {
			reason := service.FinishStop
			if *choice.FinishReason == "tool_calls" {
				reason = service.FinishToolCalls
			}
			events <- service.StreamEvent{Type: service.StreamFinish, FinishReason: reason}
			return nil
		}
	}
}

// initiator derives the x-initiator header: "user" when the last
// submitted message is a user turn, "agent" otherwise (tool results,
// loop continuations).
func initiator(messages []service.ChatMessage) string {
	if n := len(messages); n > 0 && messages[n-1].Role == entity.RoleUser {
		return "user"
	}
	return "agent"
}

// buildRequest converts the domain request into the wire shape.
func buildRequest(req *service.ChatRequest) *Request {
	apiReq := &Request{
		Model:  req.Model,
		Stream: true,
	}

	for _, msg := range req.Messages {
		apiMsg := Message{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			apiMsg.ToolCalls = append(apiMsg.ToolCalls, ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: ToolCallFunc{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		apiReq.Messages = append(apiReq.Messages, apiMsg)
	}

	for _, td := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, Tool{
			Type: "function",
			Function: ToolFunction{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.Parameters,
			},
		})
	}

	return apiReq
}
