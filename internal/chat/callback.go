package chat

import (
	"errors"
	"strconv"
	"strings"
)

// ErrMalformedCallback is returned for callback data this bot did not issue.
var ErrMalformedCallback = errors.New("malformed callback data")

const (
	actionQuiz  = "quiz"
	actionLearn = "learn"
)

// CallbackAction identifies what a button press asks for.
type CallbackAction int

const (
	// CallbackQuizAnswer answers a quiz question.
	CallbackQuizAnswer CallbackAction = iota + 1
	// CallbackLearn picks one of the recommended topics.
	CallbackLearn
)

// Callback is decoded callback data.
type Callback struct {
	Action   CallbackAction
	Question int // CallbackQuizAnswer
	Option   int // CallbackQuizAnswer
	Index    int // CallbackLearn
}

// QuizAnswerPayload encodes an answer to question q with option o.
func QuizAnswerPayload(q, o int) string {
	return actionQuiz + ":" + strconv.Itoa(q) + ":" + strconv.Itoa(o)
}

// LearnPayload encodes the choice of recommendation i.
func LearnPayload(i int) string {
	return actionLearn + ":" + strconv.Itoa(i)
}

// ParseCallback decodes callback data produced by QuizAnswerPayload or
// LearnPayload.
func ParseCallback(data string) (Callback, error) {
	parts := strings.Split(data, ":")
	switch {
	case parts[0] == actionQuiz && len(parts) == 3:
		q, err1 := parseIndex(parts[1])
		o, err2 := parseIndex(parts[2])
		if err1 != nil || err2 != nil {
			return Callback{}, ErrMalformedCallback
		}
		return Callback{Action: CallbackQuizAnswer, Question: q, Option: o}, nil
	case parts[0] == actionLearn && len(parts) == 2:
		i, err := parseIndex(parts[1])
		if err != nil {
			return Callback{}, ErrMalformedCallback
		}
		return Callback{Action: CallbackLearn, Index: i}, nil
	default:
		return Callback{}, ErrMalformedCallback
	}
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, ErrMalformedCallback
	}
	return n, nil
}
