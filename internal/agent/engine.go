// Package agent turns inbound chat messages into tutor actions and replies.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/tutor-bot/internal/ai"
	"github.com/p-n-ai/tutor-bot/internal/chat"
	"github.com/p-n-ai/tutor-bot/internal/quiz"
	"github.com/p-n-ai/tutor-bot/internal/report"
	"github.com/p-n-ai/tutor-bot/internal/store"
)

const maxRecommendations = 3

// ProgressService is the slice of progress.Tracker the engine needs.
type ProgressService interface {
	SetCurrentTopic(ctx context.Context, userID int64, raw string) (string, error)
	CurrentTopic(ctx context.Context, userID int64) (string, bool, error)
	Progress(ctx context.Context, userID int64) (store.Progress, error)
}

// QuizService is the slice of quiz.Service the engine needs.
type QuizService interface {
	Start(ctx context.Context, userID int64, instructions string) (*quiz.Session, error)
	Current(ctx context.Context, userID int64) (quiz.Question, int, *quiz.Result, error)
	Answer(ctx context.Context, userID int64, questionIndex, optionIndex int) (quiz.Outcome, error)
}

// Tutor answers free-text questions and recommends topics.
type Tutor interface {
	Recommend(ctx context.Context, pastTopics []string) ([]string, error)
	Answer(ctx context.Context, topic, question string) (string, error)
}

// EngineConfig holds dependencies for the agent engine.
type EngineConfig struct {
	Progress        ProgressService
	Quiz            QuizService
	Tutor           Tutor
	Events          EventLogger         // default NopEventLogger
	Recommendations RecommendationStore // default in-memory
}

// Engine dispatches commands, callbacks and free text for every channel.
type Engine struct {
	progress ProgressService
	quiz     QuizService
	tutor    Tutor
	events   EventLogger
	recs     RecommendationStore
	locks    *userLocks
}

// NewEngine creates a new agent engine.
func NewEngine(cfg EngineConfig) *Engine {
	events := cfg.Events
	if events == nil {
		events = NopEventLogger{}
	}
	recs := cfg.Recommendations
	if recs == nil {
		recs = NewMemoryRecommendationStore()
	}
	return &Engine{
		progress: cfg.Progress,
		quiz:     cfg.Quiz,
		tutor:    cfg.Tutor,
		events:   events,
		recs:     recs,
		locks:    newUserLocks(),
	}
}

// ProcessMessage handles one inbound message and returns the replies to send,
// in order. Messages from the same user are handled one at a time. When an
// error is returned the replies still carry an apology for the user.
func (e *Engine) ProcessMessage(ctx context.Context, msg chat.InboundMessage) ([]chat.OutboundMessage, error) {
	unlock := e.locks.lock(msg.UserID)
	defer unlock()

	slog.Info("processing message",
		"channel", msg.Channel,
		"user_id", msg.UserID,
		"kind", msg.Kind.String(),
		"command", msg.Command,
	)

	ctx = ai.WithUserID(ctx, msg.UserID)

	var (
		replies []chat.OutboundMessage
		err     error
	)
	switch msg.Kind {
	case chat.KindCommand:
		replies, err = e.handleCommand(ctx, msg)
	case chat.KindCallback:
		replies, err = e.handleCallback(ctx, msg)
	default:
		replies, err = e.handleText(ctx, msg)
	}
	if err != nil {
		slog.Error("message handling failed",
			"channel", msg.Channel,
			"user_id", msg.UserID,
			"error", err,
		)
		return append(replies, reply(msg, msgGenericFailure)), err
	}
	return replies, nil
}

func (e *Engine) handleCommand(ctx context.Context, msg chat.InboundMessage) ([]chat.OutboundMessage, error) {
	switch msg.Command {
	case "start", "help":
		return one(reply(msg, welcomeText(msg.FirstName))), nil
	case "learn":
		return e.learn(ctx, msg, msg.Args)
	case "quiz":
		return e.startQuiz(ctx, msg)
	case "progress":
		return e.showProgress(ctx, msg)
	case "topics":
		return e.showTopics(ctx, msg)
	case "export":
		return e.export(ctx, msg)
	default:
		return one(reply(msg, unknownCommandText(msg.Command))), nil
	}
}

func (e *Engine) learn(ctx context.Context, msg chat.InboundMessage, raw string) ([]chat.OutboundMessage, error) {
	if raw == "" {
		return one(reply(msg, msgLearnUsage)), nil
	}
	topic, err := e.progress.SetCurrentTopic(ctx, msg.UserID, raw)
	if err != nil {
		return nil, err
	}
	e.logEvent(ctx, msg.UserID, EventTopicSelected, map[string]any{"topic": topic, "input": raw})
	return one(reply(msg, learningText(topic))), nil
}

func (e *Engine) startQuiz(ctx context.Context, msg chat.InboundMessage) ([]chat.OutboundMessage, error) {
	session, err := e.quiz.Start(ctx, msg.UserID, msg.Args)
	switch {
	case errors.Is(err, quiz.ErrNoTopic):
		return one(reply(msg, msgQuizNeedsTopic)), nil
	case errors.Is(err, quiz.ErrGenerationFailed):
		e.logEvent(ctx, msg.UserID, EventQuizGenerationFailed, map[string]any{
			"instructions": msg.Args,
			"error":        err.Error(),
		})
		return one(reply(msg, msgQuizFailed)), nil
	case err != nil:
		return nil, err
	}

	e.logEvent(ctx, msg.UserID, EventQuizStarted, map[string]any{
		"topic":        session.Topic,
		"questions":    len(session.Questions),
		"instructions": msg.Args,
	})
	return e.nextQuestion(ctx, msg)
}

// nextQuestion sends the current question, or the final score once the
// session is finished.
func (e *Engine) nextQuestion(ctx context.Context, msg chat.InboundMessage) ([]chat.OutboundMessage, error) {
	q, index, result, err := e.quiz.Current(ctx, msg.UserID)
	if errors.Is(err, quiz.ErrNoSession) {
		return one(reply(msg, msgNoActiveQuiz)), nil
	}
	if err != nil {
		return nil, err
	}

	if result != nil {
		e.logEvent(ctx, msg.UserID, EventQuizCompleted, map[string]any{
			"topic": result.Topic,
			"score": result.Score,
			"total": result.Total,
		})
		return one(reply(msg, completedText(*result))), nil
	}

	text, buttons := questionMessage(index, q)
	out := reply(msg, text)
	out.Buttons = buttons
	return one(out), nil
}

func (e *Engine) handleCallback(ctx context.Context, msg chat.InboundMessage) ([]chat.OutboundMessage, error) {
	cb, err := chat.ParseCallback(msg.Payload)
	if err != nil {
		slog.Warn("ignoring malformed callback",
			"user_id", msg.UserID,
			"payload", msg.Payload,
			"error", err,
		)
		return nil, nil
	}

	switch cb.Action {
	case chat.CallbackQuizAnswer:
		return e.answerQuestion(ctx, msg, cb.Question, cb.Option)
	case chat.CallbackLearn:
		return e.learnRecommendation(ctx, msg, cb.Index)
	}
	return nil, nil
}

func (e *Engine) answerQuestion(ctx context.Context, msg chat.InboundMessage, question, option int) ([]chat.OutboundMessage, error) {
	out, err := e.quiz.Answer(ctx, msg.UserID, question, option)
	switch {
	case errors.Is(err, quiz.ErrNoSession), errors.Is(err, quiz.ErrStaleAnswer):
		return one(reply(msg, msgNoActiveQuiz)), nil
	case errors.Is(err, quiz.ErrInvalidOption):
		slog.Warn("ignoring out of range quiz option",
			"user_id", msg.UserID,
			"question", question,
			"option", option,
		)
		return nil, nil
	case err != nil:
		return nil, err
	}

	e.logEvent(ctx, msg.UserID, EventQuizAnswered, map[string]any{
		"question": question,
		"option":   option,
		"correct":  out.Correct,
	})

	feedback := msgCorrect
	if !out.Correct {
		feedback = wrongText(out.CorrectOption)
	}
	next, err := e.nextQuestion(ctx, msg)
	return append([]chat.OutboundMessage{reply(msg, feedback)}, next...), err
}

func (e *Engine) learnRecommendation(ctx context.Context, msg chat.InboundMessage, index int) ([]chat.OutboundMessage, error) {
	choices, err := e.recs.LoadRecommendations(ctx, msg.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading recommendations: %w", err)
	}
	if len(choices) == 0 {
		choices = DefaultSuggestions
	}
	if index >= len(choices) {
		slog.Warn("ignoring learn callback out of range",
			"user_id", msg.UserID,
			"index", index,
			"choices", len(choices),
		)
		return nil, nil
	}
	return e.learn(ctx, msg, choices[index])
}

func (e *Engine) showProgress(ctx context.Context, msg chat.InboundMessage) ([]chat.OutboundMessage, error) {
	p, err := e.progress.Progress(ctx, msg.UserID)
	if err != nil {
		return nil, err
	}
	if len(p) == 0 {
		return one(reply(msg, msgNoProgress)), nil
	}
	return one(reply(msg, progressText(p))), nil
}

func (e *Engine) showTopics(ctx context.Context, msg chat.InboundMessage) ([]chat.OutboundMessage, error) {
	p, err := e.progress.Progress(ctx, msg.UserID)
	if err != nil {
		return nil, err
	}

	choices, recommended := DefaultSuggestions, false
	if len(p) > 0 {
		recs, err := e.tutor.Recommend(ctx, p.Topics())
		switch {
		case err != nil:
			slog.Warn("topic recommendation failed", "user_id", msg.UserID, "error", err)
			choices = nil
		case len(recs) > 0:
			choices, recommended = recs[:min(len(recs), maxRecommendations)], true
		default:
			choices = nil
		}
	}

	if err := e.recs.SaveRecommendations(ctx, msg.UserID, choices); err != nil {
		slog.Warn("saving recommendations failed", "user_id", msg.UserID, "error", err)
	}

	text, buttons := topicsMessage(p, choices, recommended)
	out := reply(msg, text)
	out.Buttons = buttons
	return one(out), nil
}

func (e *Engine) export(ctx context.Context, msg chat.InboundMessage) ([]chat.OutboundMessage, error) {
	p, err := e.progress.Progress(ctx, msg.UserID)
	if err != nil {
		return nil, err
	}
	if len(p) == 0 {
		return one(reply(msg, msgNoProgress)), nil
	}

	data, err := report.ProgressWorkbook(msg.UserID, p)
	if err != nil {
		return nil, fmt.Errorf("building progress report: %w", err)
	}
	out := reply(msg, msgExportCaption)
	out.Document = &chat.Document{
		Name:     report.FileName(msg.UserID),
		MIMEType: report.MIMEType,
		Data:     data,
	}
	return one(out), nil
}

func (e *Engine) handleText(ctx context.Context, msg chat.InboundMessage) ([]chat.OutboundMessage, error) {
	topic, ok, err := e.progress.CurrentTopic(ctx, msg.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return one(reply(msg, msgTextNeedsTopic)), nil
	}

	answer, err := e.tutor.Answer(ctx, topic, msg.Text)
	if errors.Is(err, ai.ErrBudgetExceeded) {
		return one(reply(msg, msgBudgetExceeded)), nil
	}
	if err != nil {
		slog.Error("answering question failed",
			"user_id", msg.UserID,
			"topic", topic,
			"error", err,
		)
		return one(reply(msg, msgAnswerFailed)), nil
	}

	e.logEvent(ctx, msg.UserID, EventQuestionAnswered, map[string]any{
		"topic":        topic,
		"question_len": len(msg.Text),
		"response_len": len(answer),
	})
	return one(reply(msg, answer)), nil
}

func (e *Engine) logEvent(ctx context.Context, userID int64, eventType string, data map[string]any) {
	if err := e.events.LogEvent(ctx, Event{UserID: userID, Type: eventType, Data: data}); err != nil {
		slog.Warn("event logging failed", "type", eventType, "user_id", userID, "error", err)
	}
}

func reply(msg chat.InboundMessage, text string) chat.OutboundMessage {
	return chat.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Text: text}
}

func one(m chat.OutboundMessage) []chat.OutboundMessage {
	return []chat.OutboundMessage{m}
}
