// Package quizgen produces quiz questions, topic recommendations and tutor
// answers by prompting an LLM through the ai gateway.
package quizgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/p-n-ai/tutor-bot/internal/ai"
	"github.com/p-n-ai/tutor-bot/internal/progress"
	"github.com/p-n-ai/tutor-bot/internal/quiz"
)

// ErrInvalidQuiz is returned when the model's reply is not a well-formed quiz.
var ErrInvalidQuiz = errors.New("invalid quiz response")

// RecommendationCount is how many related topics are requested.
const RecommendationCount = 3

const (
	defaultTemperature   = 0.7
	defaultQuestionCount = 3
)

var (
	reasoningBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)
	listMarker     = regexp.MustCompile(`^\s*(?:[-*•]+|\d+[.)])\s*`)
)

// LLMGenerator implements quiz.Generator on top of an ai.Provider.
type LLMGenerator struct {
	provider    ai.Provider
	model       string
	temperature float64
	count       int
}

// Option configures an LLMGenerator.
type Option func(*LLMGenerator)

// WithModel pins the model name sent with every request.
func WithModel(model string) Option {
	return func(g *LLMGenerator) { g.model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(g *LLMGenerator) { g.temperature = t }
}

// WithQuestionCount sets how many questions a quiz asks for.
func WithQuestionCount(n int) Option {
	return func(g *LLMGenerator) {
		if n > 0 {
			g.count = n
		}
	}
}

// New creates a generator that prompts provider.
func New(provider ai.Provider, opts ...Option) *LLMGenerator {
	g := &LLMGenerator{
		provider:    provider,
		temperature: defaultTemperature,
		count:       defaultQuestionCount,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GenerateQuiz asks for a quiz on topic pitched at the level implied by
// difficulty. The reply is accepted only if it is a JSON array where every
// item matches the quiz shape; otherwise nothing is returned.
func (g *LLMGenerator) GenerateQuiz(ctx context.Context, topic string, difficulty float64, instructions string) ([]quiz.Question, error) {
	prompt := quizPrompt(topic, progress.DifficultyLevel(difficulty), strings.TrimSpace(instructions), g.count)
	content, err := g.complete(ctx, ai.TaskQuiz, prompt)
	if err != nil {
		return nil, fmt.Errorf("generating quiz: %w", err)
	}
	return ParseQuiz(content)
}

// ParseQuiz extracts and validates a quiz from model output.
func ParseQuiz(content string) ([]quiz.Question, error) {
	raw, err := extractJSONArray(StripReasoning(content))
	if err != nil {
		return nil, err
	}
	if err := validateQuiz(raw); err != nil {
		return nil, err
	}

	var questions []quiz.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuiz, err)
	}
	return questions, nil
}

// Recommend suggests topics related to pastTopics, one per reply line.
func (g *LLMGenerator) Recommend(ctx context.Context, pastTopics []string) ([]string, error) {
	content, err := g.complete(ctx, ai.TaskRecommend, recommendPrompt(pastTopics))
	if err != nil {
		return nil, fmt.Errorf("recommending topics: %w", err)
	}

	var topics []string
	for _, line := range strings.Split(StripReasoning(content), "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line != "" {
			topics = append(topics, line)
		}
	}
	return topics, nil
}

// Answer replies to a free-form question within the context of topic.
func (g *LLMGenerator) Answer(ctx context.Context, topic, question string) (string, error) {
	content, err := g.complete(ctx, ai.TaskAnswer, answerPrompt(topic, question))
	if err != nil {
		return "", fmt.Errorf("answering question: %w", err)
	}
	answer := StripReasoning(content)
	if answer == "" {
		return "", errors.New("answering question: empty reply")
	}
	return answer, nil
}

// StripReasoning removes <think>...</think> blocks emitted by reasoning
// models and trims the remainder.
func StripReasoning(text string) string {
	return strings.TrimSpace(reasoningBlock.ReplaceAllString(text, ""))
}

func (g *LLMGenerator) complete(ctx context.Context, task ai.TaskType, prompt string) (string, error) {
	resp, err := g.provider.Complete(ctx, ai.CompletionRequest{
		Messages:    []ai.Message{{Role: ai.RoleUser, Content: prompt}},
		Model:       g.model,
		Temperature: g.temperature,
		Task:        task,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// extractJSONArray returns content itself when it is valid JSON, otherwise
// the span from the first '[' to the last ']'.
func extractJSONArray(content string) ([]byte, error) {
	raw := []byte(strings.TrimSpace(content))
	if json.Valid(raw) {
		return raw, nil
	}

	start := bytes.IndexByte(raw, '[')
	end := bytes.LastIndexByte(raw, ']')
	if start == -1 || end < start {
		return nil, fmt.Errorf("%w: no JSON array in reply", ErrInvalidQuiz)
	}
	raw = raw[start : end+1]
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: malformed JSON array", ErrInvalidQuiz)
	}
	return raw, nil
}
