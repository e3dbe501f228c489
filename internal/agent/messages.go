package agent

import (
	"fmt"
	"strings"

	"github.com/p-n-ai/tutor-bot/internal/chat"
	"github.com/p-n-ai/tutor-bot/internal/progress"
	"github.com/p-n-ai/tutor-bot/internal/quiz"
	"github.com/p-n-ai/tutor-bot/internal/store"
)

const (
	msgLearnUsage      = "Please specify a topic! Example: /learn Python"
	msgQuizNeedsTopic  = "Please select a topic first using /learn <topic>"
	msgTextNeedsTopic  = "Please select a topic first using /learn <topic> before asking questions!"
	msgQuizFailed      = "Sorry, I couldn't generate a quiz right now. Please try again."
	msgCorrect         = "✅ Correct!"
	msgNoProgress      = "You haven't completed any quizzes yet!"
	msgAnswerFailed    = "I'm having trouble processing your question. Please try again."
	msgBudgetExceeded  = "You've reached today's question limit. Please come back tomorrow!"
	msgNoActiveQuiz    = "That quiz is no longer active. Use /quiz to start a new one."
	msgGenericFailure  = "Sorry, something went wrong. Please try again."
	msgExportCaption   = "Your learning progress"
	msgNoHistory       = "No topics studied yet."
	msgRecommendations = "Recommended Topics:"
	msgSuggestions     = "Suggested Topics to Start:"
)

// DefaultSuggestions are offered to users with no learning history.
var DefaultSuggestions = []string{"Python", "JavaScript", "Machine Learning"}

func welcomeText(name string) string {
	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "Hi %s! ", name)
	}
	b.WriteString(`Welcome to AI Tutor! 🎓

Use these commands to interact with me:
/learn <topic> - Start learning a new topic
/quiz [instructions] - Take a quiz (optionally with specific instructions)
/progress - View your learning progress
/topics - See your past topics and recommendations
/export - Download your progress as a spreadsheet
/help - Show this help message`)
	return b.String()
}

func unknownCommandText(cmd string) string {
	return fmt.Sprintf("Unknown command: /%s\nUse /help to see what I can do.", cmd)
}

func learningText(topic string) string {
	return fmt.Sprintf("Great! You're now learning %s. Use /quiz to test your knowledge!", topic)
}

func wrongText(correct string) string {
	return "❌ Wrong! The correct answer was: " + correct
}

func completedText(r quiz.Result) string {
	return fmt.Sprintf("Quiz completed! Your score: %d/%d (%.1f%%)", r.Score, r.Total, r.Percentage())
}

func questionMessage(index int, q quiz.Question) (string, []chat.Button) {
	buttons := make([]chat.Button, len(q.Options))
	for i, opt := range q.Options {
		buttons[i] = chat.Button{Text: opt, Payload: chat.QuizAnswerPayload(index, i)}
	}
	return fmt.Sprintf("Question %d:\n%s", index+1, q.Text), buttons
}

func masteryLine(m store.Mastery) string {
	return fmt.Sprintf("%s: %.1f%% %s", m.Topic, m.Score*100, progress.Indicator(m.Score))
}

func progressText(p store.Progress) string {
	var b strings.Builder
	b.WriteString("Your Learning Progress:\n\n")
	for _, m := range p {
		b.WriteString(masteryLine(m))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func topicsMessage(p store.Progress, choices []string, recommended bool) (string, []chat.Button) {
	var b strings.Builder
	b.WriteString("Your Learning History:\n")
	if len(p) == 0 {
		b.WriteString(msgNoHistory + "\n")
	}
	for _, m := range p {
		b.WriteString("• " + masteryLine(m) + "\n")
	}

	if len(choices) == 0 {
		return strings.TrimRight(b.String(), "\n"), nil
	}

	heading := msgSuggestions
	if recommended {
		heading = msgRecommendations
	}
	b.WriteString("\n" + heading + "\n")

	buttons := make([]chat.Button, len(choices))
	for i, topic := range choices {
		b.WriteString("• " + topic + "\n")
		buttons[i] = chat.Button{Text: "Learn " + topic, Payload: chat.LearnPayload(i)}
	}
	return strings.TrimRight(b.String(), "\n"), buttons
}
