package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"natural-alert/internal/ai"
	"natural-alert/internal/logger"
	"natural-alert/internal/model"
	"natural-alert/internal/retrieval"
)

type fakeModel struct {
	replies  []ai.ChatMessage
	err      error
	requests [][]ai.ChatMessage
	tools    [][]ai.ToolDefinition
}

func (f *fakeModel) CompleteWithTools(ctx context.Context, messages []ai.ChatMessage, tools []ai.ToolDefinition, toolChoice string) (ai.ChatMessage, error) {
	f.requests = append(f.requests, messages)
	f.tools = append(f.tools, tools)
	if f.err != nil {
		return ai.ChatMessage{}, f.err
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

type fakeStore struct {
	sessions map[string]*model.Session
	putErr   error
	puts     int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*model.Session)}
}

func (f *fakeStore) Get(ctx context.Context, id string) (*model.Session, error) {
	return f.sessions[id], nil
}

func (f *fakeStore) Put(ctx context.Context, id string, sess *model.Session) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.puts++
	f.sessions[id] = sess
	return nil
}

type fakeRetriever struct {
	queries []string
	ks      []int
	result  retrieval.Result
	err     error
}

func (f *fakeRetriever) Definition() ai.ToolDefinition {
	return ai.ToolDefinition{Name: retrieval.ToolName}
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string, k int) (retrieval.Result, error) {
	f.queries = append(f.queries, query)
	f.ks = append(f.ks, k)
	return f.result, f.err
}

type noopLocker struct{}

func (noopLocker) Lock(key string) func() { return func() {} }

func newTestService(m ModelClient, store SessionStore, r Retriever) *Service {
	return NewService(m, store, r, noopLocker{}, nil, 4, logger.Nop())
}

func assistantReply(content string) ai.ChatMessage {
	return ai.ChatMessage{Role: "assistant", Content: content}
}

func toolCallReply(args string) ai.ChatMessage {
	return ai.ChatMessage{
		Role: "assistant",
		ToolCalls: []ai.ToolCall{{
			ID:   "call_1",
			Type: "function",
			Function: ai.FunctionCall{
				Name:      retrieval.ToolName,
				Arguments: args,
			},
		}},
	}
}

func TestChatDirectAnswerPersistsOneTurnPair(t *testing.T) {
	store := newFakeStore()
	m := &fakeModel{replies: []ai.ChatMessage{assistantReply("Hola.")}}
	svc := newTestService(m, store, &fakeRetriever{})

	answer, err := svc.Chat(context.Background(), "s1", "hola")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if answer != "Hola." {
		t.Fatalf("answer: %q", answer)
	}

	sess := store.sessions["s1"]
	if sess == nil || len(sess.Turns) != 2 {
		t.Fatalf("expected exactly 2 persisted turns, got %+v", sess)
	}
	if sess.Turns[0].Role != model.RoleUser || sess.Turns[0].Content != "hola" {
		t.Fatalf("user turn wrong: %+v", sess.Turns[0])
	}
	if sess.Turns[1].Role != model.RoleAssistant || sess.Turns[1].Content != "Hola." {
		t.Fatalf("assistant turn wrong: %+v", sess.Turns[1])
	}
}

func TestChatToolRoundTrip(t *testing.T) {
	store := newFakeStore()
	retr := &fakeRetriever{result: retrieval.Result{Found: true, Text: "Drop, cover and hold on."}}
	m := &fakeModel{replies: []ai.ChatMessage{
		toolCallReply(`{"query":"earthquake safety","k":2}`),
		assistantReply("During an earthquake: drop, cover and hold on."),
	}}
	svc := newTestService(m, store, retr)

	answer, err := svc.Chat(context.Background(), "s1", "what do I do in an earthquake?")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.Contains(answer, "drop, cover") {
		t.Fatalf("answer: %q", answer)
	}

	if len(retr.queries) != 1 || retr.queries[0] != "earthquake safety" {
		t.Fatalf("retriever queries: %v", retr.queries)
	}
	if retr.ks[0] != 2 {
		t.Fatalf("retriever k: %v", retr.ks)
	}

	// Second model request must carry the tool call and its result.
	second := m.requests[1]
	last := second[len(second)-1]
	if last.Role != "tool" || last.ToolCallID != "call_1" {
		t.Fatalf("tool result message wrong: %+v", last)
	}
	if last.Content != "Drop, cover and hold on." {
		t.Fatalf("tool result content: %q", last.Content)
	}

	// Tool traffic never lands in the transcript.
	if len(store.sessions["s1"].Turns) != 2 {
		t.Fatalf("transcript: want=2 turns got=%d", len(store.sessions["s1"].Turns))
	}
}

func TestChatToolRoundLimitForcesAnswer(t *testing.T) {
	store := newFakeStore()
	retr := &fakeRetriever{result: retrieval.Result{Found: true, Text: "passage"}}
	replies := make([]ai.ChatMessage, 0, 5)
	for i := 0; i < 4; i++ {
		replies = append(replies, toolCallReply(`{"query":"q"}`))
	}
	replies = append(replies, assistantReply("final"))
	m := &fakeModel{replies: replies}
	svc := newTestService(m, store, retr)

	answer, err := svc.Chat(context.Background(), "s1", "question")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if answer != "final" {
		t.Fatalf("answer: %q", answer)
	}
	if len(m.tools) != 5 {
		t.Fatalf("rounds: want=5 got=%d", len(m.tools))
	}
	// The terminal round must not offer tools.
	if m.tools[4] != nil {
		t.Fatalf("terminal round still offered tools: %v", m.tools[4])
	}
}

type stubbornModel struct {
	calls int
}

func (m *stubbornModel) CompleteWithTools(ctx context.Context, messages []ai.ChatMessage, tools []ai.ToolDefinition, toolChoice string) (ai.ChatMessage, error) {
	m.calls++
	return toolCallReply(`{"query":"q"}`), nil
}

func TestChatTerminatesWhenModelNeverStopsCallingTools(t *testing.T) {
	store := newFakeStore()
	retr := &fakeRetriever{result: retrieval.Result{Found: true, Text: "passage"}}
	m := &stubbornModel{}
	svc := NewService(m, store, retr, noopLocker{}, nil, 2, logger.Nop())

	answer, err := svc.Chat(context.Background(), "s1", "question")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	// Rounds 0 and 1 execute tool calls; round 2 ends the turn no matter
	// what the model replies.
	if m.calls != 3 {
		t.Fatalf("model calls: want=3 got=%d", m.calls)
	}
	if answer != "The model returned an empty response." {
		t.Fatalf("answer: %q", answer)
	}
	if len(store.sessions["s1"].Turns) != 2 {
		t.Fatalf("transcript: want=2 turns got=%d", len(store.sessions["s1"].Turns))
	}
}

func TestChatPromptCarriesHistory(t *testing.T) {
	store := newFakeStore()
	store.sessions["s1"] = &model.Session{
		SessionID: "s1",
		Turns: []model.SessionTurn{
			{Role: model.RoleUser, Content: "hola"},
			{Role: model.RoleAssistant, Content: "Hola."},
		},
	}
	m := &fakeModel{replies: []ai.ChatMessage{assistantReply("ok")}}
	svc := newTestService(m, store, &fakeRetriever{})

	if _, err := svc.Chat(context.Background(), "s1", "y ahora?"); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	prompt := m.requests[0][1].Content
	want := "USER: hola\nASSISTANT: Hola.\nUSER: y ahora?"
	if prompt != want {
		t.Fatalf("prompt:\nwant %q\ngot  %q", want, prompt)
	}
	if m.requests[0][0].Role != "system" {
		t.Fatal("first message must be the system instructions")
	}
	if len(store.sessions["s1"].Turns) != 4 {
		t.Fatalf("transcript: want=4 turns got=%d", len(store.sessions["s1"].Turns))
	}
}

func TestChatModelErrorPersistsNothing(t *testing.T) {
	store := newFakeStore()
	m := &fakeModel{err: errors.New("503")}
	svc := newTestService(m, store, &fakeRetriever{})

	_, err := svc.Chat(context.Background(), "s1", "hola")
	if !errors.Is(err, ErrUpstreamModel) {
		t.Fatalf("want ErrUpstreamModel, got %v", err)
	}
	if store.puts != 0 {
		t.Fatal("nothing may be persisted on a failed turn")
	}
}

func TestChatRetrievalFailureDegradesToEmptyResult(t *testing.T) {
	store := newFakeStore()
	retr := &fakeRetriever{err: errors.New("redis down")}
	m := &fakeModel{replies: []ai.ChatMessage{
		toolCallReply(`{"query":"q"}`),
		assistantReply("I could not find reference material for that."),
	}}
	svc := newTestService(m, store, retr)

	answer, err := svc.Chat(context.Background(), "s1", "question")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if answer == "" {
		t.Fatal("expected an answer despite the failed lookup")
	}
	second := m.requests[1]
	if second[len(second)-1].Content != "" {
		t.Fatalf("failed lookup must yield an empty tool result, got %q", second[len(second)-1].Content)
	}
}

func TestChatInvalidInput(t *testing.T) {
	svc := newTestService(&fakeModel{}, newFakeStore(), &fakeRetriever{})

	if _, err := svc.Chat(context.Background(), "", "hola"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing session id: %v", err)
	}
	if _, err := svc.Chat(context.Background(), "s1", "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank message: %v", err)
	}
}

func TestChatEmptyModelAnswerFallback(t *testing.T) {
	store := newFakeStore()
	m := &fakeModel{replies: []ai.ChatMessage{assistantReply("")}}
	svc := newTestService(m, store, &fakeRetriever{})

	answer, err := svc.Chat(context.Background(), "s1", "hola")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if answer != "The model returned an empty response." {
		t.Fatalf("answer: %q", answer)
	}
}

type recordingArchiver struct {
	turns []model.ArchivedTurn
}

func (r *recordingArchiver) Publish(ctx context.Context, turn model.ArchivedTurn) error {
	r.turns = append(r.turns, turn)
	return nil
}

func TestChatArchivesFinishedTurnPair(t *testing.T) {
	store := newFakeStore()
	arch := &recordingArchiver{}
	m := &fakeModel{replies: []ai.ChatMessage{assistantReply("Hola.")}}
	svc := NewService(m, store, &fakeRetriever{}, noopLocker{}, arch, 4, logger.Nop())

	if _, err := svc.Chat(context.Background(), "s1", "hola"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(arch.turns) != 2 {
		t.Fatalf("archived turns: want=2 got=%d", len(arch.turns))
	}
	if arch.turns[0].Role != model.RoleUser || arch.turns[1].Role != model.RoleAssistant {
		t.Fatalf("archived roles wrong: %+v", arch.turns)
	}
}
