package store

import (
	"encoding/json"
	"fmt"
)

func encodeVariants(variants []string) (string, error) {
	if variants == nil {
		variants = []string{}
	}
	data, err := json.Marshal(variants)
	if err != nil {
		return "", fmt.Errorf("encode variants: %w", err)
	}
	return string(data), nil
}

func decodeVariants(raw []byte) ([]string, error) {
	variants := []string{}
	if len(raw) == 0 {
		return variants, nil
	}
	if err := json.Unmarshal(raw, &variants); err != nil {
		return nil, fmt.Errorf("decode variants: %w", err)
	}
	return variants, nil
}

// encodeProgress writes progress as a JSON array of {topic, score} rather
// than a topic-keyed object so study order is kept.
func encodeProgress(p Progress) (string, error) {
	if p == nil {
		p = Progress{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode progress: %w", err)
	}
	return string(data), nil
}

func decodeProgress(raw []byte) (Progress, error) {
	p := Progress{}
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	return p, nil
}
