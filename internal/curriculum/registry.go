// Package curriculum resolves free-text topic names to canonical topics.
package curriculum

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Registry maps user input to canonical topic names. Topics are matched in
// registration order and the first match wins.
type Registry struct {
	repo   TopicRepository
	topics []Topic
	mu     sync.RWMutex
}

// NewRegistry loads every persisted topic from repo, then registers seeds in
// order. Seeds that already exist are left untouched.
func NewRegistry(ctx context.Context, repo TopicRepository, seeds ...Topic) (*Registry, error) {
	stored, err := repo.ListTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading topics: %w", err)
	}

	r := &Registry{repo: repo, topics: stored}
	for _, seed := range seeds {
		if err := r.Register(ctx, seed.Name, seed.Variants); err != nil {
			return nil, err
		}
	}

	slog.Info("topic registry ready", "topics", len(r.topics))
	return r, nil
}

// Normalize returns the canonical name for input. Unknown input is returned
// lowercased and trimmed with its first letter upper-cased; it is not
// registered. Empty input maps to "".
func (r *Registry) Normalize(input string) string {
	key := fold(input)
	if key == "" {
		return ""
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.topics {
		if fold(t.Name) == key || slices.Contains(t.Variants, key) {
			return t.Name
		}
	}
	return capitalize(key)
}

// Register adds a canonical topic. Registering an existing name, compared
// case-insensitively, is a no-op and does not merge variants. Variants are stored lowercased and trimmed.
func (r *Registry) Register(ctx context.Context, name string, variants []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("topic name is empty")
	}

	topic := Topic{Name: name, Variants: make([]string, 0, len(variants))}
	for _, v := range variants {
		if v = fold(v); v != "" && !slices.Contains(topic.Variants, v) {
			topic.Variants = append(topic.Variants, v)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.topics {
		if fold(t.Name) == fold(name) {
			return nil
		}
	}
	r.warnOverlaps(topic)

	inserted, err := r.repo.AddTopic(ctx, topic)
	if err != nil {
		return fmt.Errorf("registering topic %q: %w", name, err)
	}
	if inserted {
		r.topics = append(r.topics, topic)
	}
	return nil
}

// Topics returns a snapshot of registered topics in match order.
func (r *Registry) Topics() []Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Topic, len(r.topics))
	for i, t := range r.topics {
		out[i] = Topic{Name: t.Name, Variants: slices.Clone(t.Variants)}
	}
	return out
}

// warnOverlaps logs spellings of topic that an earlier topic already claims.
// Matching still resolves to the earlier topic. Caller holds r.mu.
func (r *Registry) warnOverlaps(topic Topic) {
	keys := append([]string{fold(topic.Name)}, topic.Variants...)
	for _, t := range r.topics {
		for _, k := range keys {
			if fold(t.Name) == k || slices.Contains(t.Variants, k) {
				slog.Warn("topic spelling already claimed",
					"topic", topic.Name,
					"spelling", k,
					"claimed_by", t.Name,
				)
			}
		}
	}
}

func fold(s string) string {
	return strings.TrimSpace(cases.Lower(language.Und).String(s))
}

func capitalize(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToTitle(first)) + s[size:]
}
