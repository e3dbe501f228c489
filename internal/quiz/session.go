// Package quiz runs per-user multiple-choice quiz sessions.
package quiz

import (
	"errors"
	"fmt"
	"time"
)

// OptionCount is the number of answer options every question carries.
const OptionCount = 4

var (
	// ErrNoTopic is returned when a quiz is requested before a topic is chosen.
	ErrNoTopic = errors.New("no current topic")
	// ErrNoSession is returned when no quiz is active for the user.
	ErrNoSession = errors.New("no active quiz")
	// ErrStaleAnswer is returned for an answer to a question other than the current one.
	ErrStaleAnswer = errors.New("answer is for a question that is no longer active")
	// ErrInvalidOption is returned for an option index outside the question's options.
	ErrInvalidOption = errors.New("option index out of range")
	// ErrGenerationFailed is returned when no usable quiz could be generated.
	ErrGenerationFailed = errors.New("quiz generation failed")
	// ErrInvalidQuestion is returned for a question that breaks the quiz shape.
	ErrInvalidQuestion = errors.New("invalid question")
)

// Question is one multiple-choice question.
type Question struct {
	Text    string   `json:"question"`
	Options []string `json:"options"`
	Correct int      `json:"correct_answer"`
}

// Validate reports whether q has text, exactly OptionCount options and a
// correct index that points at one of them.
func (q Question) Validate() error {
	if q.Text == "" {
		return fmt.Errorf("%w: empty question text", ErrInvalidQuestion)
	}
	if len(q.Options) != OptionCount {
		return fmt.Errorf("%w: %d options, want %d", ErrInvalidQuestion, len(q.Options), OptionCount)
	}
	if q.Correct < 0 || q.Correct >= len(q.Options) {
		return fmt.Errorf("%w: correct answer %d out of range", ErrInvalidQuestion, q.Correct)
	}
	return nil
}

// Outcome is the result of answering one question.
type Outcome struct {
	Correct       bool
	CorrectOption string
}

// Result summarizes a completed session.
type Result struct {
	Topic string
	Score int
	Total int
}

// Fraction returns Score/Total in [0,1].
func (r Result) Fraction() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Score) / float64(r.Total)
}

// Percentage returns Fraction as a percentage.
func (r Result) Percentage() float64 {
	return r.Fraction() * 100
}

// Session is one user's in-progress quiz. 0 <= Index <= len(Questions).
type Session struct {
	UserID    int64      `json:"user_id"`
	Topic     string     `json:"topic"`
	Questions []Question `json:"questions"`
	Index     int        `json:"index"`
	Score     int        `json:"score"`
	StartedAt time.Time  `json:"started_at"`
}

// NewSession starts a session at the first question.
func NewSession(userID int64, topic string, questions []Question) *Session {
	return &Session{
		UserID:    userID,
		Topic:     topic,
		Questions: questions,
		StartedAt: time.Now(),
	}
}

// Done reports whether every question has been answered.
func (s *Session) Done() bool {
	return s.Index >= len(s.Questions)
}

// Current returns the question at Index. ok is false once the session is done.
func (s *Session) Current() (q Question, ok bool) {
	if s.Done() {
		return Question{}, false
	}
	return s.Questions[s.Index], true
}

// Submit scores optionIndex against the current question and advances to the
// next one. Answers for any question other than the current one are
// rejected without changing the session.
func (s *Session) Submit(questionIndex, optionIndex int) (Outcome, error) {
	if s.Done() {
		return Outcome{}, ErrNoSession
	}
	if questionIndex != s.Index {
		return Outcome{}, ErrStaleAnswer
	}
	q := s.Questions[s.Index]
	if optionIndex < 0 || optionIndex >= len(q.Options) {
		return Outcome{}, ErrInvalidOption
	}

	out := Outcome{Correct: optionIndex == q.Correct}
	if out.Correct {
		s.Score++
	} else {
		out.CorrectOption = q.Options[q.Correct]
	}
	s.Index++
	return out, nil
}

// Result returns the session's score so far.
func (s *Session) Result() Result {
	return Result{Topic: s.Topic, Score: s.Score, Total: len(s.Questions)}
}
