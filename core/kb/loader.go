package kb

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/m3rciful/synobot/core/logger"
)

// ErrInvalid reports a knowledge base document that parsed but failed validation.
var ErrInvalid = errors.New("kb: invalid knowledge base")

// Load reads and validates the knowledge base at path.
func Load(path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kb: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML (or JSON) document with a top-level categories sequence.
func Parse(data []byte) (*Base, error) {
	var doc struct {
		Categories []Category `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("kb: decode: %w", err)
	}
	b := New(doc.Categories)
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Validate checks the invariants the menus rely on.
func (b *Base) Validate() error {
	if b.Len() == 0 {
		return fmt.Errorf("%w: no categories", ErrInvalid)
	}
	seen := make(map[string]struct{}, len(b.Categories))
	for i, c := range b.Categories {
		pos := i + 1
		if strings.TrimSpace(c.Key) == "" {
			return fmt.Errorf("%w: category #%d has empty key", ErrInvalid, pos)
		}
		if _, dup := seen[c.Key]; dup {
			return fmt.Errorf("%w: duplicate category key %q", ErrInvalid, c.Key)
		}
		seen[c.Key] = struct{}{}
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("%w: category %q has empty name", ErrInvalid, c.Key)
		}
		if len(c.Questions) == 0 {
			return fmt.Errorf("%w: category %q has no questions", ErrInvalid, c.Key)
		}
		for j, qa := range c.Questions {
			if strings.TrimSpace(qa.Question) == "" || strings.TrimSpace(qa.Answer) == "" {
				return fmt.Errorf("%w: category %q question #%d is incomplete", ErrInvalid, c.Key, j+1)
			}
		}
	}
	return nil
}

// LoadOrFallback never fails: a missing or broken source yields the built-in base.
func LoadOrFallback(path string) *Base {
	b, err := Load(path)
	if err != nil {
		logger.KB.LogAttrs(context.Background(), slog.LevelWarn, "kb.load",
			slog.String("status", "fallback"),
			slog.String("path_kb", path),
			slog.String("err", err.Error()),
		)
		return Fallback()
	}
	logger.KB.LogAttrs(context.Background(), slog.LevelInfo, "kb.load",
		slog.String("status", "ok"),
		slog.String("path_kb", path),
		slog.Int("categories", b.Len()),
	)
	return b
}

// Fallback returns the minimal built-in knowledge base.
func Fallback() *Base {
	return New([]Category{{
		Key:  "dsm",
		Name: "DSM",
		Questions: []QA{{
			Question: "Как настроить DSM?",
			Answer:   "Для настройки DSM перейдите в Центр управления → Система → Общие настройки.",
		}},
	}})
}
