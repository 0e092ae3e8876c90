package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a model-requested invocation of a registered tool, with raw
// JSON arguments as produced by the provider.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition declares a callable capability to the model: a name, a
// human-readable description, and a JSON schema for its parameters.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

type ChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type OpenAICompatibleClient struct {
	httpClient *http.Client
}

func NewOpenAICompatibleClient() *OpenAICompatibleClient {
	return &OpenAICompatibleClient{
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
}

// Complete sends a plain chat completion request and returns the answer text.
func (c *OpenAICompatibleClient) Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error) {
	reply, err := c.CompleteWithTools(ctx, cfg, messages, nil, "")
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}

// CompleteWithTools sends a chat completion request declaring the given tools
// and returns the assistant message, which carries either final content or
// one or more tool calls. toolChoice may be "auto", "none", or empty.
func (c *OpenAICompatibleClient) CompleteWithTools(
	ctx context.Context,
	cfg ChatConfig,
	messages []ChatMessage,
	tools []ToolDefinition,
	toolChoice string,
) (ChatMessage, error) {
	reqBody := map[string]interface{}{
		"model":    cfg.Model,
		"messages": messages,
		"stream":   false,
	}
	if len(tools) > 0 {
		declared := make([]map[string]interface{}, 0, len(tools))
		for _, t := range tools {
			declared = append(declared, map[string]interface{}{
				"type": "function",
				"function": map[string]interface{}{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.Parameters,
				},
			})
		}
		reqBody["tools"] = declared
	}
	if toolChoice != "" {
		reqBody["tool_choice"] = toolChoice
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("marshal llm request failed: %w", err)
	}

	url := strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return ChatMessage{}, fmt.Errorf("build llm request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("read llm response failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		return ChatMessage{}, fmt.Errorf("llm response status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed struct {
		Choices []struct {
			Message ChatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ChatMessage{}, fmt.Errorf("parse llm json failed: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return ChatMessage{}, fmt.Errorf("empty llm choices")
	}
	reply := parsed.Choices[0].Message
	if reply.Role == "" {
		reply.Role = "assistant"
	}
	return reply, nil
}
