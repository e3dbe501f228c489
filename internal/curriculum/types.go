package curriculum

import "context"

// Topic is a canonical subject name plus the lowercase spellings that resolve to it.
type Topic struct {
	Name     string   `yaml:"name" json:"name"`
	Variants []string `yaml:"variants" json:"variants"`
}

// Catalog is the on-disk YAML layout for extra topics.
//
//	topics:
//	  - name: Go
//	    variants: [golang, go lang]
type Catalog struct {
	Topics []Topic `yaml:"topics"`
}

// TopicRepository persists topics. ListTopics must return topics in the
// order they were first added.
type TopicRepository interface {
	AddTopic(ctx context.Context, topic Topic) (bool, error)
	ListTopics(ctx context.Context) ([]Topic, error)
}

// BuiltinTopics returns the topics every registry is seeded with, in match order.
func BuiltinTopics() []Topic {
	return []Topic{
		{Name: "Python", Variants: []string{"python", "py", "pythen", "pyth"}},
		{Name: "JavaScript", Variants: []string{"javascript", "js", "java script"}},
		{Name: "Java", Variants: []string{"java", "jva"}},
		{Name: "Machine Learning", Variants: []string{"ml", "machine learning", "machinelearning"}},
	}
}
