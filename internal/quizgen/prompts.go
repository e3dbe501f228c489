package quizgen

import (
	"fmt"
	"strings"
)

func quizPrompt(topic, level, instructions string, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a quiz about %s at %s level.", topic, level)
	if instructions != "" {
		fmt.Fprintf(&b, " Follow these specific instructions: %s", instructions)
	}
	fmt.Fprintf(&b, `
Create %d multiple-choice questions. The response must be a valid JSON array of objects.
Each object must have exactly these keys:
- "question": string with the question text
- "options": array of 4 strings with possible answers
- "correct_answer": integer 0-3 indicating the index of the correct answer

Example format:
[
  {"question": "What is Python?",
   "options": ["Programming language", "Snake", "Movie", "Book"],
   "correct_answer": 0}
]`, count)
	return b.String()
}

func recommendPrompt(pastTopics []string) string {
	return fmt.Sprintf(`Based on the user's past learning topics: %s,
suggest %d related topics they might be interested in.
Return just the list of topics, one per line.`, strings.Join(pastTopics, ", "), RecommendationCount)
}

func answerPrompt(topic, question string) string {
	return fmt.Sprintf(`As an AI tutor helping with %[1]s, please answer this question: %[2]s
Keep the answer concise but informative. If the question is not related to %[1]s,
remind the user that we're currently studying %[1]s.`, topic, question)
}
