package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"content-hand/models"
)

// DefaultPipelineSettings sind die eingebauten Pipeline-Defaults, wenn keine YAML-Datei gesetzt ist.
func DefaultPipelineSettings() models.PipelineSettings {
	return models.PipelineSettings{
		ContentType:  models.ContentTypeNewArticle,
		TopicWeights: models.TopicWeights{Keyword: 1, Question: 1, Trend: 1},
		Generation: models.ModelSettings{
			Enabled:     true,
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: 0.7,
			MaxTokens:   4096,
		},
		Verification: models.ModelSettings{
			Enabled:     true,
			Provider:    "anthropic",
			Model:       "claude-3-5-haiku-latest",
			Temperature: 0.1,
			MaxTokens:   1024,
		},
		Enhancement: models.EnhancementSettings{
			SEO:              true,
			InternalLinks:    true,
			MinInternalLinks: 2,
			MaxInternalLinks: 5,
			Citations:        true,
			Quotes:           true,
			Image:            false,
			ImageModel:       "dall-e-3",
		},
		PostProcessing: models.PostProcessingSettings{
			TransformLinks: true,
			Readability:    true,
			StyleVariation: true,
		},
	}
}

// LoadPipelineSettings liest die Default-Pipeline aus einer YAML-Datei.
// Nicht gesetzte Felder behalten die eingebauten Defaults.
func LoadPipelineSettings(path string) (models.PipelineSettings, error) {
	settings := DefaultPipelineSettings()
	if path == "" {
		return settings, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return settings, fmt.Errorf("read pipeline config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return settings, fmt.Errorf("parse pipeline config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return settings, fmt.Errorf("invalid pipeline config: %w", err)
	}
	return settings, nil
}
