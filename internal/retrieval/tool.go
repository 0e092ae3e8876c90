package retrieval

import (
	"context"
	"fmt"
	"strings"

	"natural-alert/internal/ai"
	"natural-alert/internal/logger"
	"natural-alert/internal/vectorindex"
)

// ToolName is the function name the model calls to pull reference
// passages into the conversation.
const ToolName = "context"

// Args is the model-supplied payload of a context tool call.
type Args struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// Result is the outcome of one retrieval. Found distinguishes an empty
// index from a failed lookup, which surfaces as an error instead.
type Result struct {
	Found   bool
	Text    string
	Matches []vectorindex.Match
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, vector []float32, k int) ([]vectorindex.Match, error)
}

// Tool embeds a query and searches the document index for its nearest
// passages.
type Tool struct {
	embedder Embedder
	searcher Searcher
	defaultK int
	maxK     int
	log      *logger.Logger
}

func NewTool(embedder Embedder, searcher Searcher, defaultK, maxK int, log *logger.Logger) *Tool {
	return &Tool{
		embedder: embedder,
		searcher: searcher,
		defaultK: defaultK,
		maxK:     maxK,
		log:      log,
	}
}

// Definition describes the tool in the shape chat/completions expects.
func (t *Tool) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{
		Name:        ToolName,
		Description: "Look up reference passages about natural disasters and emergency preparedness in Guatemala. Call this before answering any substantive question.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query describing the information needed.",
				},
				"k": map[string]interface{}{
					"type":        "integer",
					"description": fmt.Sprintf("Number of passages to retrieve, between 1 and %d.", t.maxK),
					"default":     t.defaultK,
				},
			},
			"required": []string{"query"},
		},
	}
}

// Retrieve runs one lookup. k is clamped to [1, maxK]; non-positive
// values fall back to the default.
func (t *Tool) Retrieve(ctx context.Context, query string, k int) (Result, error) {
	if k <= 0 {
		k = t.defaultK
	}
	if k > t.maxK {
		k = t.maxK
	}

	vector, err := t.embedder.Embed(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("embed query failed: %w", err)
	}

	matches, err := t.searcher.Search(ctx, vector, k)
	if err != nil {
		return Result{}, fmt.Errorf("search failed: %w", err)
	}
	if len(matches) == 0 {
		t.log.Debugw("retrieval found nothing", "query", query, "k", k)
		return Result{Found: false}, nil
	}

	texts := make([]string, 0, len(matches))
	for _, m := range matches {
		texts = append(texts, m.Text)
	}
	return Result{
		Found:   true,
		Text:    strings.Join(texts, "\n"),
		Matches: matches,
	}, nil
}
