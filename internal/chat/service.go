package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"natural-alert/internal/ai"
	"natural-alert/internal/logger"
	"natural-alert/internal/model"
	"natural-alert/internal/retrieval"
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrUpstreamModel = errors.New("upstream model error")
)

const systemInstructions = `You are Natural Alert, an assistant that helps people in Guatemala prepare for and respond to natural disasters such as earthquakes, volcanic eruptions, hurricanes, floods and landslides.

Ground your answers in the reference passages returned by the "context" tool. Call the tool before answering any substantive question; only trivial greetings or small talk may be answered without it. When the retrieved passages do not cover the question, say so explicitly rather than inventing details. Refer people to CONRED and INSIVUMEH for official alerts and live information.

Answer in the language of the user's message. Be concise: stay under roughly 250 tokens.`

// ModelClient is the slice of the chat completions client the service
// needs. *ai.ChatModel satisfies it.
type ModelClient interface {
	CompleteWithTools(ctx context.Context, messages []ai.ChatMessage, tools []ai.ToolDefinition, toolChoice string) (ai.ChatMessage, error)
}

type SessionStore interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	Put(ctx context.Context, id string, sess *model.Session) error
}

type Retriever interface {
	Definition() ai.ToolDefinition
	Retrieve(ctx context.Context, query string, k int) (retrieval.Result, error)
}

type Locker interface {
	Lock(key string) func()
}

// TurnArchiver receives finished turns for out-of-band persistence.
// Optional; a nil archiver disables archiving.
type TurnArchiver interface {
	Publish(ctx context.Context, turn model.ArchivedTurn) error
}

// Service runs one conversation turn: it replays the stored transcript,
// lets the model call the retrieval tool a bounded number of times, and
// persists exactly one user and one assistant turn once the final
// answer exists.
type Service struct {
	model         ModelClient
	store         SessionStore
	retriever     Retriever
	locks         Locker
	archiver      TurnArchiver
	maxToolRounds int
	log           *logger.Logger
}

func NewService(modelClient ModelClient, store SessionStore, retriever Retriever, locks Locker, archiver TurnArchiver, maxToolRounds int, log *logger.Logger) *Service {
	return &Service{
		model:         modelClient,
		store:         store,
		retriever:     retriever,
		locks:         locks,
		archiver:      archiver,
		maxToolRounds: maxToolRounds,
		log:           log,
	}
}

func (s *Service) Chat(ctx context.Context, sessionID, message string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	message = strings.TrimSpace(message)
	if sessionID == "" {
		return "", fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	if message == "" {
		return "", fmt.Errorf("%w: message is required", ErrInvalidInput)
	}

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	sess, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if sess == nil {
		sess = &model.Session{SessionID: sessionID}
	}

	messages := []ai.ChatMessage{
		{Role: "system", Content: systemInstructions},
		{Role: "user", Content: buildPrompt(sess.Turns, message)},
	}
	tools := []ai.ToolDefinition{s.retriever.Definition()}

	var answer string
	for round := 0; ; round++ {
		activeTools := tools
		if round >= s.maxToolRounds {
			// Out of tool rounds: force a terminal answer.
			activeTools = nil
		}

		reply, err := s.model.CompleteWithTools(ctx, messages, activeTools, "")
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUpstreamModel, err)
		}

		// The round check terminates the turn even if the provider keeps
		// emitting tool calls after tools were withdrawn.
		if len(reply.ToolCalls) == 0 || round >= s.maxToolRounds {
			answer = strings.TrimSpace(reply.Content)
			break
		}

		messages = append(messages, reply)
		for _, call := range reply.ToolCalls {
			messages = append(messages, ai.ChatMessage{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    s.executeTool(ctx, call),
			})
		}
	}

	if answer == "" {
		answer = "The model returned an empty response."
	}

	sess.Turns = append(sess.Turns,
		model.SessionTurn{Role: model.RoleUser, Content: message},
		model.SessionTurn{Role: model.RoleAssistant, Content: answer},
	)
	if err := s.store.Put(ctx, sessionID, sess); err != nil {
		return "", err
	}

	s.archive(ctx, sessionID, message, answer)

	return answer, nil
}

// executeTool resolves one tool call. Failures degrade to an empty
// result so a broken lookup never kills the conversation.
func (s *Service) executeTool(ctx context.Context, call ai.ToolCall) string {
	if call.Function.Name != retrieval.ToolName {
		s.log.Warnw("model requested unknown tool", "name", call.Function.Name)
		return ""
	}

	var args retrieval.Args
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		s.log.Warnw("bad tool arguments", "raw", call.Function.Arguments, "err", err)
		return ""
	}

	res, err := s.retriever.Retrieve(ctx, args.Query, args.K)
	if err != nil {
		s.log.Warnw("retrieval failed", "query", args.Query, "err", err)
		return ""
	}
	if !res.Found {
		return ""
	}
	return res.Text
}

// archive hands the finished turn pair to the write-behind pipeline.
// Best effort only; the answer is already persisted and returned.
func (s *Service) archive(ctx context.Context, sessionID, userMsg, answer string) {
	if s.archiver == nil {
		return
	}
	turns := []model.ArchivedTurn{
		{SessionID: sessionID, Role: model.RoleUser, Content: userMsg},
		{SessionID: sessionID, Role: model.RoleAssistant, Content: answer},
	}
	for _, turn := range turns {
		if err := s.archiver.Publish(ctx, turn); err != nil {
			s.log.Warnw("archive publish failed", "session", sessionID, "err", err)
			return
		}
	}
}

// buildPrompt renders the transcript plus the new message as one
// role-prefixed block, matching the format the completions model is
// instructed against.
func buildPrompt(turns []model.SessionTurn, message string) string {
	var b strings.Builder
	for _, turn := range turns {
		switch turn.Role {
		case model.RoleAssistant:
			b.WriteString("ASSISTANT: ")
		default:
			b.WriteString("USER: ")
		}
		b.WriteString(turn.Content)
		b.WriteString("\n")
	}
	b.WriteString("USER: ")
	b.WriteString(message)
	return b.String()
}
