package agent_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/tutor-bot/internal/agent"
	"github.com/p-n-ai/tutor-bot/internal/ai"
	"github.com/p-n-ai/tutor-bot/internal/chat"
	"github.com/p-n-ai/tutor-bot/internal/curriculum"
	"github.com/p-n-ai/tutor-bot/internal/progress"
	"github.com/p-n-ai/tutor-bot/internal/quiz"
	"github.com/p-n-ai/tutor-bot/internal/quizgen"
	"github.com/p-n-ai/tutor-bot/internal/report"
	"github.com/p-n-ai/tutor-bot/internal/store"
)

const userID int64 = 42

const twoQuestionQuiz = `Here is your quiz:
[
  {"question": "What does len return for a nil slice?", "options": ["0", "nil", "panic", "1"], "correct_answer": 0},
  {"question": "Which keyword starts a goroutine?", "options": ["async", "go", "spawn", "run"], "correct_answer": 1}
]`

type harness struct {
	engine  *agent.Engine
	llm     *ai.MockProvider
	tracker *progress.Tracker
	repo    *store.MemoryStore
	events  *agent.MemoryEventLogger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := store.NewMemoryStore()
	reg, err := curriculum.NewRegistry(t.Context(), repo, curriculum.BuiltinTopics()...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	tracker := progress.NewTracker(reg, repo)
	llm := ai.NewMockProvider("")
	gen := quizgen.New(llm)
	events := agent.NewMemoryEventLogger()

	engine := agent.NewEngine(agent.EngineConfig{
		Progress: tracker,
		Quiz:     quiz.NewService(gen, tracker, quiz.NewMemorySessionStore(), time.Second),
		Tutor:    gen,
		Events:   events,
	})
	return &harness{engine: engine, llm: llm, tracker: tracker, repo: repo, events: events}
}

func command(cmd, args string) chat.InboundMessage {
	return chat.InboundMessage{
		Channel: chat.ChannelTelegram,
		ChatID:  "42",
		UserID:  userID,
		Kind:    chat.KindCommand,
		Command: cmd,
		Args:    args,
	}
}

func callback(payload string) chat.InboundMessage {
	return chat.InboundMessage{
		Channel: chat.ChannelTelegram,
		ChatID:  "42",
		UserID:  userID,
		Kind:    chat.KindCallback,
		Payload: payload,
	}
}

func text(s string) chat.InboundMessage {
	return chat.InboundMessage{
		Channel: chat.ChannelTelegram,
		ChatID:  "42",
		UserID:  userID,
		Kind:    chat.KindText,
		Text:    s,
	}
}

func (h *harness) send(t *testing.T, msg chat.InboundMessage) []chat.OutboundMessage {
	t.Helper()
	replies, err := h.engine.ProcessMessage(t.Context(), msg)
	if err != nil {
		t.Fatalf("ProcessMessage(%+v) error = %v", msg, err)
	}
	for _, r := range replies {
		if r.ChatID != msg.ChatID || r.Channel != msg.Channel {
			t.Errorf("reply addressed to %s/%s, want %s/%s", r.Channel, r.ChatID, msg.Channel, msg.ChatID)
		}
	}
	return replies
}

func texts(replies []chat.OutboundMessage) []string {
	out := make([]string, len(replies))
	for i, r := range replies {
		out[i] = r.Text
	}
	return out
}

func onlyText(t *testing.T, replies []chat.OutboundMessage) string {
	t.Helper()
	if len(replies) != 1 {
		t.Fatalf("got %d replies %q, want 1", len(replies), texts(replies))
	}
	return replies[0].Text
}

func TestEngine_StartAndHelp(t *testing.T) {
	h := newHarness(t)

	for _, cmd := range []string{"start", "help"} {
		t.Run(cmd, func(t *testing.T) {
			msg := command(cmd, "")
			msg.FirstName = "Ada"
			got := onlyText(t, h.send(t, msg))
			for _, want := range []string{"Hi Ada!", "/learn", "/quiz", "/progress", "/topics", "/export", "/help"} {
				if !strings.Contains(got, want) {
					t.Errorf("welcome text missing %q:\n%s", want, got)
				}
			}
		})
	}
}

func TestEngine_UnknownCommand(t *testing.T) {
	h := newHarness(t)
	got := onlyText(t, h.send(t, command("dance", "")))
	if !strings.Contains(got, "/dance") || !strings.Contains(got, "/help") {
		t.Errorf("unknown command reply = %q", got)
	}
}

func TestEngine_Learn(t *testing.T) {
	tests := []struct {
		name  string
		args  string
		want  string
		topic string
	}{
		{"usage without args", "", "Please specify a topic! Example: /learn Python", ""},
		{"variant is normalized", "py", "Great! You're now learning Python. Use /quiz to test your knowledge!", "Python"},
		{"unknown topic is capitalized", "rust", "Great! You're now learning Rust. Use /quiz to test your knowledge!", "Rust"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if got := onlyText(t, h.send(t, command("learn", tt.args))); got != tt.want {
				t.Errorf("reply = %q, want %q", got, tt.want)
			}
			topic, ok, err := h.tracker.CurrentTopic(t.Context(), userID)
			if err != nil {
				t.Fatalf("CurrentTopic() error = %v", err)
			}
			if tt.topic == "" && ok {
				t.Errorf("topic set to %q, want none", topic)
			}
			if tt.topic != "" && topic != tt.topic {
				t.Errorf("topic = %q, want %q", topic, tt.topic)
			}
		})
	}
}

func TestEngine_QuizRequiresTopic(t *testing.T) {
	h := newHarness(t)
	got := onlyText(t, h.send(t, command("quiz", "")))
	if got != "Please select a topic first using /learn <topic>" {
		t.Errorf("reply = %q", got)
	}
	if h.llm.Calls != 0 {
		t.Errorf("LLM called %d times before a topic was chosen", h.llm.Calls)
	}
}

func TestEngine_QuizLifecycle(t *testing.T) {
	h := newHarness(t)
	h.send(t, command("learn", "python"))
	h.llm.Responses = []string{twoQuestionQuiz}

	replies := h.send(t, command("quiz", "focus on slices"))
	first := replies[0]
	if len(replies) != 1 || !strings.HasPrefix(first.Text, "Question 1:\nWhat does len return") {
		t.Fatalf("quiz start replies = %q", texts(replies))
	}
	if len(first.Buttons) != 4 || first.Buttons[2].Text != "panic" || first.Buttons[2].Payload != "quiz:0:2" {
		t.Errorf("question buttons = %+v", first.Buttons)
	}
	if !strings.Contains(h.llm.LastRequest.Messages[len(h.llm.LastRequest.Messages)-1].Content, "focus on slices") {
		t.Error("quiz instructions were not passed to the generator")
	}

	replies = h.send(t, callback("quiz:0:0"))
	if got := texts(replies); len(got) != 2 || got[0] != "✅ Correct!" || !strings.HasPrefix(got[1], "Question 2:\nWhich keyword") {
		t.Fatalf("after first answer = %q", got)
	}
	if replies[1].Buttons[1].Payload != "quiz:1:1" {
		t.Errorf("second question buttons = %+v", replies[1].Buttons)
	}

	replies = h.send(t, callback("quiz:1:3"))
	want := []string{"❌ Wrong! The correct answer was: go", "Quiz completed! Your score: 1/2 (50.0%)"}
	if got := texts(replies); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("after last answer = %q, want %q", got, want)
	}

	p, err := h.tracker.Progress(t.Context(), userID)
	if err != nil {
		t.Fatalf("Progress() error = %v", err)
	}
	if score, ok := p.Get("Python"); !ok || score != 0.5 {
		t.Errorf("Python mastery = %v (%v), want 0.5", score, ok)
	}

	wantEvents := []string{
		agent.EventTopicSelected,
		agent.EventQuizStarted,
		agent.EventQuizAnswered,
		agent.EventQuizAnswered,
		agent.EventQuizCompleted,
	}
	if got := h.events.Types(); strings.Join(got, ",") != strings.Join(wantEvents, ",") {
		t.Errorf("events = %v, want %v", got, wantEvents)
	}

	if got := onlyText(t, h.send(t, callback("quiz:1:1"))); got != "That quiz is no longer active. Use /quiz to start a new one." {
		t.Errorf("answer after completion = %q", got)
	}
}

func TestEngine_StaleAndInvalidAnswers(t *testing.T) {
	h := newHarness(t)
	h.send(t, command("learn", "go"))
	h.llm.Responses = []string{twoQuestionQuiz}
	h.send(t, command("quiz", ""))

	if got := onlyText(t, h.send(t, callback("quiz:1:1"))); !strings.Contains(got, "no longer active") {
		t.Errorf("answer for a future question = %q", got)
	}
	if replies := h.send(t, callback("quiz:0:7")); len(replies) != 0 {
		t.Errorf("out of range option replies = %q, want none", texts(replies))
	}

	replies := h.send(t, callback("quiz:0:0"))
	if got := texts(replies); len(got) != 2 || got[0] != "✅ Correct!" {
		t.Errorf("valid answer after rejected ones = %q", got)
	}
	if got := onlyText(t, h.send(t, callback("quiz:0:0"))); !strings.Contains(got, "no longer active") {
		t.Errorf("repeated answer = %q", got)
	}
}

func TestEngine_QuizGenerationFailure(t *testing.T) {
	h := newHarness(t)
	h.send(t, command("learn", "python"))
	h.llm.Responses = []string{"not json", `[{"question": "too few", "options": ["a"], "correct_answer": 0}]`}

	got := onlyText(t, h.send(t, command("quiz", "")))
	if got != "Sorry, I couldn't generate a quiz right now. Please try again." {
		t.Errorf("reply = %q", got)
	}
	if h.llm.Calls != 2 {
		t.Errorf("LLM calls = %d, want 2 (one retry)", h.llm.Calls)
	}
	types := h.events.Types()
	if types[len(types)-1] != agent.EventQuizGenerationFailed {
		t.Errorf("last event = %q, want %q", types[len(types)-1], agent.EventQuizGenerationFailed)
	}
	if replies := h.send(t, callback("quiz:0:0")); !strings.Contains(onlyText(t, replies), "no longer active") {
		t.Error("a failed generation must not leave a session behind")
	}
}

func TestEngine_MalformedCallbacksIgnored(t *testing.T) {
	h := newHarness(t)
	for _, payload := range []string{"", "quiz", "quiz:a:b", "learn:-1", "poll:1", "quiz:1:2:3"} {
		t.Run(payload, func(t *testing.T) {
			replies, err := h.engine.ProcessMessage(t.Context(), callback(payload))
			if err != nil || len(replies) != 0 {
				t.Errorf("ProcessMessage(%q) = %q, %v; want no replies", payload, texts(replies), err)
			}
		})
	}
}

func TestEngine_Progress(t *testing.T) {
	h := newHarness(t)
	if got := onlyText(t, h.send(t, command("progress", ""))); got != "You haven't completed any quizzes yet!" {
		t.Errorf("empty progress = %q", got)
	}

	ctx := t.Context()
	for _, r := range []struct {
		topic string
		score float64
	}{{"Python", 2.0 / 3.0}, {"Go", 1}, {"Rust", 0.1}} {
		if err := h.tracker.RecordScore(ctx, userID, r.topic, r.score); err != nil {
			t.Fatalf("RecordScore() error = %v", err)
		}
	}

	want := "Your Learning Progress:\n\nPython: 66.7% 🟡\nGo: 100.0% 🟢\nRust: 10.0% 🔴"
	if got := onlyText(t, h.send(t, command("progress", ""))); got != want {
		t.Errorf("progress =\n%s\nwant\n%s", got, want)
	}
}

func TestEngine_TopicsWithoutHistory(t *testing.T) {
	h := newHarness(t)
	reply := h.send(t, command("topics", ""))[0]

	for _, want := range []string{"Your Learning History:", "No topics studied yet.", "Suggested Topics to Start:", "• Python", "• Machine Learning"} {
		if !strings.Contains(reply.Text, want) {
			t.Errorf("topics reply missing %q:\n%s", want, reply.Text)
		}
	}
	if h.llm.Calls != 0 {
		t.Errorf("LLM called %d times with no history", h.llm.Calls)
	}
	if len(reply.Buttons) != 3 || reply.Buttons[1].Text != "Learn JavaScript" || reply.Buttons[1].Payload != "learn:1" {
		t.Errorf("buttons = %+v", reply.Buttons)
	}

	got := onlyText(t, h.send(t, callback(reply.Buttons[2].Payload)))
	if !strings.Contains(got, "Machine Learning") {
		t.Errorf("learn callback reply = %q", got)
	}
}

func TestEngine_TopicsRecommendations(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	if err := h.tracker.RecordScore(ctx, userID, "Python", 0.9); err != nil {
		t.Fatal(err)
	}
	if err := h.tracker.RecordScore(ctx, userID, "Go", 0.2); err != nil {
		t.Fatal(err)
	}
	h.llm.Responses = []string{"<think>hmm</think>\n1. Rust\n2. Kubernetes\n\n3. Docker\n4. Terraform"}

	reply := h.send(t, command("topics", ""))[0]
	for _, want := range []string{"• Python: 90.0% 🟢", "• Go: 20.0% 🔴", "Recommended Topics:", "• Rust", "• Docker"} {
		if !strings.Contains(reply.Text, want) {
			t.Errorf("topics reply missing %q:\n%s", want, reply.Text)
		}
	}
	if strings.Contains(reply.Text, "Terraform") {
		t.Error("more than three recommendations shown")
	}
	if strings.Index(reply.Text, "Python") > strings.Index(reply.Text, "Go:") {
		t.Error("history not in study order")
	}
	prompt := h.llm.LastRequest.Messages[len(h.llm.LastRequest.Messages)-1].Content
	if !strings.Contains(prompt, "Python, Go") {
		t.Errorf("recommendation prompt lacks past topics in study order: %q", prompt)
	}

	if len(reply.Buttons) != 3 || reply.Buttons[0].Text != "Learn Rust" {
		t.Fatalf("buttons = %+v", reply.Buttons)
	}
	h.send(t, callback(reply.Buttons[1].Payload))
	if topic, _, _ := h.tracker.CurrentTopic(ctx, userID); topic != "Kubernetes" {
		t.Errorf("current topic = %q, want Kubernetes", topic)
	}

	if replies := h.send(t, callback("learn:9")); len(replies) != 0 {
		t.Errorf("out of range learn callback replies = %q", texts(replies))
	}
}

func TestEngine_TopicsRecommendationFailure(t *testing.T) {
	h := newHarness(t)
	if err := h.tracker.RecordScore(t.Context(), userID, "Python", 0.5); err != nil {
		t.Fatal(err)
	}
	h.llm.Err = errors.New("provider down")

	reply := onlyText(t, h.send(t, command("topics", "")))
	if !strings.Contains(reply, "• Python: 50.0% 🟡") {
		t.Errorf("history missing: %q", reply)
	}
	if strings.Contains(reply, "Recommended Topics:") {
		t.Errorf("recommendations shown despite failure: %q", reply)
	}
}

func TestEngine_Export(t *testing.T) {
	h := newHarness(t)
	if got := onlyText(t, h.send(t, command("export", ""))); got != "You haven't completed any quizzes yet!" {
		t.Errorf("empty export = %q", got)
	}

	if err := h.tracker.RecordScore(t.Context(), userID, "Python", 0.75); err != nil {
		t.Fatal(err)
	}
	replies := h.send(t, command("export", ""))
	doc := replies[0].Document
	if doc == nil {
		t.Fatal("export reply has no document")
	}
	if doc.Name != "progress-42.xlsx" || doc.MIMEType != report.MIMEType {
		t.Errorf("document = %s (%s)", doc.Name, doc.MIMEType)
	}

	f, err := excelize.OpenReader(bytes.NewReader(doc.Data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	if v, _ := f.GetCellValue(report.SheetName, "A2"); v != "Python" {
		t.Errorf("A2 = %q, want Python", v)
	}
}

func TestEngine_FreeText(t *testing.T) {
	h := newHarness(t)
	if got := onlyText(t, h.send(t, text("what is a slice?"))); got != "Please select a topic first using /learn <topic> before asking questions!" {
		t.Errorf("text without topic = %q", got)
	}

	h.send(t, command("learn", "go"))
	h.llm.Response = "<think>easy</think>A slice is a view over an array."
	if got := onlyText(t, h.send(t, text("what is a slice?"))); got != "A slice is a view over an array." {
		t.Errorf("answer = %q", got)
	}
	prompt := h.llm.LastRequest.Messages[len(h.llm.LastRequest.Messages)-1].Content
	if !strings.Contains(prompt, "Go") || !strings.Contains(prompt, "what is a slice?") {
		t.Errorf("answer prompt = %q", prompt)
	}
	types := h.events.Types()
	if types[len(types)-1] != agent.EventQuestionAnswered {
		t.Errorf("last event = %q", types[len(types)-1])
	}

	h.llm.Err = errors.New("provider down")
	if got := onlyText(t, h.send(t, text("and a map?"))); got != "I'm having trouble processing your question. Please try again." {
		t.Errorf("answer failure = %q", got)
	}
}

func TestEngine_BudgetExceeded(t *testing.T) {
	repo := store.NewMemoryStore()
	reg, err := curriculum.NewRegistry(t.Context(), repo, curriculum.BuiltinTopics()...)
	if err != nil {
		t.Fatal(err)
	}
	tracker := progress.NewTracker(reg, repo)
	budget := ai.NewInMemoryBudget(5)
	gen := quizgen.New(ai.NewBudgetedProvider(ai.NewMockProvider("answer"), budget))
	engine := agent.NewEngine(agent.EngineConfig{
		Progress: tracker,
		Quiz:     quiz.NewService(gen, tracker, quiz.NewMemorySessionStore(), time.Second),
		Tutor:    gen,
	})

	ctx := t.Context()
	if _, err := engine.ProcessMessage(ctx, command("learn", "python")); err != nil {
		t.Fatal(err)
	}
	replies, err := engine.ProcessMessage(ctx, text("first"))
	if err != nil || replies[0].Text != "answer" {
		t.Fatalf("first question = %q, %v", texts(replies), err)
	}
	replies, err = engine.ProcessMessage(ctx, text("second"))
	if err != nil {
		t.Fatal(err)
	}
	if replies[0].Text != "You've reached today's question limit. Please come back tomorrow!" {
		t.Errorf("over budget reply = %q", replies[0].Text)
	}

	other := text("hello")
	other.UserID = 7
	if _, err := engine.ProcessMessage(ctx, other); err != nil {
		t.Fatal(err)
	}
}

// failingUsers breaks every read so storage errors surface.
type failingUsers struct{ store.UserRepository }

func (failingUsers) GetUser(context.Context, int64) (*store.User, error) {
	return nil, errors.New("disk on fire")
}

func TestEngine_StorageFailure(t *testing.T) {
	repo := store.NewMemoryStore()
	reg, err := curriculum.NewRegistry(t.Context(), repo)
	if err != nil {
		t.Fatal(err)
	}
	tracker := progress.NewTracker(reg, failingUsers{repo})
	gen := quizgen.New(ai.NewMockProvider(""))
	engine := agent.NewEngine(agent.EngineConfig{
		Progress: tracker,
		Quiz:     quiz.NewService(gen, tracker, quiz.NewMemorySessionStore(), time.Second),
		Tutor:    gen,
	})

	replies, err := engine.ProcessMessage(t.Context(), command("progress", ""))
	if err == nil {
		t.Fatal("ProcessMessage() should return the storage error")
	}
	if len(replies) != 1 || replies[0].Text != "Sorry, something went wrong. Please try again." {
		t.Errorf("replies = %q, want an apology", texts(replies))
	}
}

func TestEngine_SerializesPerUser(t *testing.T) {
	h := newHarness(t)
	h.send(t, command("learn", "python"))
	h.llm.Response = twoQuestionQuiz
	h.send(t, command("quiz", ""))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		correct int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			replies, err := h.engine.ProcessMessage(context.Background(), callback("quiz:0:0"))
			if err != nil {
				t.Errorf("ProcessMessage() error = %v", err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			for _, r := range replies {
				if r.Text == "✅ Correct!" {
					correct++
				}
			}
		}()
	}
	wg.Wait()

	if correct != 1 {
		t.Errorf("duplicate answers scored %d times, want exactly once", correct)
	}
}
