package ai

import "context"

// ChatModel binds a client to one chat configuration so callers don't carry
// provider settings around.
type ChatModel struct {
	client *OpenAICompatibleClient
	cfg    ChatConfig
}

func NewChatModel(client *OpenAICompatibleClient, cfg ChatConfig) *ChatModel {
	return &ChatModel{client: client, cfg: cfg}
}

// Invoke sends a single user prompt and returns the answer text.
func (m *ChatModel) Invoke(ctx context.Context, prompt string) (string, error) {
	return m.client.Complete(ctx, m.cfg, []ChatMessage{
		{Role: "user", Content: prompt},
	})
}

func (m *ChatModel) CompleteWithTools(
	ctx context.Context,
	messages []ChatMessage,
	tools []ToolDefinition,
	toolChoice string,
) (ChatMessage, error) {
	return m.client.CompleteWithTools(ctx, m.cfg, messages, tools, toolChoice)
}

// Embedder binds a client to one embedding configuration.
type Embedder struct {
	client *OpenAICompatibleClient
	cfg    EmbeddingConfig
}

func NewEmbedder(client *OpenAICompatibleClient, cfg EmbeddingConfig) *Embedder {
	return &Embedder{client: client, cfg: cfg}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.client.Embed(ctx, e.cfg, text)
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return e.client.EmbedBatch(ctx, e.cfg, texts)
}
