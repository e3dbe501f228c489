package curriculum

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadCatalog reads extra topics from a YAML file, or from every .yaml/.yml
// file under a directory in lexical order. A missing path yields no topics.
// Files that fail to parse are skipped with a warning when walking a
// directory, and returned as an error when path names a single file.
func LoadCatalog(path string) ([]Topic, error) {
	if path == "" {
		return nil, nil
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat catalog: %w", err)
	}

	if !info.IsDir() {
		topics, err := loadCatalogFile(path)
		if err != nil {
			return nil, err
		}
		slog.Info("topic catalog loaded", "path", path, "topics", len(topics))
		return topics, nil
	}

	var topics []Topic
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if !strings.HasSuffix(p, ".yaml") && !strings.HasSuffix(p, ".yml") {
			return nil
		}

		loaded, err := loadCatalogFile(p)
		if err != nil {
			slog.Warn("skipping invalid topic catalog", "path", p, "error", err)
			return nil
		}
		topics = append(topics, loaded...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking catalog: %w", err)
	}

	slog.Info("topic catalog loaded", "path", path, "topics", len(topics))
	return topics, nil
}

func loadCatalogFile(path string) ([]Topic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	topics := make([]Topic, 0, len(catalog.Topics))
	for _, t := range catalog.Topics {
		if strings.TrimSpace(t.Name) == "" {
			continue // Nameless entries cannot be canonical.
		}
		topics = append(topics, t)
	}
	return topics, nil
}
