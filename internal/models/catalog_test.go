package models_test

import (
	"testing"

	"github.com/MegaGrindStone/quinton-chat/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCatalogValidation(t *testing.T) {
	valid := []models.Option{{ID: "a", Label: "A", Value: "model-a"}}

	tests := []struct {
		name          string
		models        []models.Option
		personalities []models.Option
		wantErr       string
	}{
		{name: "No models", personalities: valid, wantErr: "at least one model"},
		{name: "No personalities", models: valid, wantErr: "at least one personality"},
		{
			name:          "Missing id",
			models:        []models.Option{{Value: "x"}},
			personalities: valid,
			wantErr:       "has no id",
		},
		{
			name:          "Missing value",
			models:        valid,
			personalities: []models.Option{{ID: "p"}},
			wantErr:       `personality "p" has no value`,
		},
		{
			name:          "Duplicate id",
			models:        append(valid, models.Option{ID: "a", Value: "model-b"}),
			personalities: valid,
			wantErr:       `duplicate model id "a"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := models.NewCatalog(tt.models, tt.personalities)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCatalogIsImmutable(t *testing.T) {
	rows := []models.Option{{ID: "a", Label: "A", Value: "model-a"}}
	cat, err := models.NewCatalog(rows, rows)
	require.NoError(t, err)

	rows[0].Value = "changed"
	got := cat.Models()
	got[0].Value = "changed too"

	m, ok := cat.Model("a")
	require.True(t, ok)
	assert.Equal(t, "model-a", m.Value)
}

func TestCatalogRequestConfig(t *testing.T) {
	cat := models.DefaultCatalog()
	expert, ok := cat.Personality("expert")
	require.True(t, ok)

	tests := []struct {
		name          string
		modelID       string
		personalityID string
		want          models.RequestConfig
		wantErr       bool
	}{
		{
			name: "Defaults",
			want: models.RequestConfig{APIKey: "sk", Model: "gpt-4.1-mini", DeveloperPrompt: cat.DefaultPersonality().Value},
		},
		{
			name:          "Explicit",
			modelID:       "gpt-4.1-nano",
			personalityID: "expert",
			want:          models.RequestConfig{APIKey: "sk", Model: "gpt-4.1-nano", DeveloperPrompt: expert.Value},
		},
		{name: "Unknown model", modelID: "gpt-99", wantErr: true},
		{name: "Unknown personality", personalityID: "pirate", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cat.RequestConfig("sk", tt.modelID, tt.personalityID)

			if tt.wantErr {
				assert.Equal(t, models.KindValidation, models.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	cat := models.DefaultCatalog()

	assert.Equal(t, "gpt-4.1-mini", cat.DefaultModel().ID)
	assert.Equal(t, "simple", cat.DefaultPersonality().ID)
	for _, id := range []string{"simple", "expert", "storyteller", "everyday"} {
		_, ok := cat.Personality(id)
		assert.True(t, ok, id)
	}
}
