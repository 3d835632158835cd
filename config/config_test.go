package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorageMemory, cfg.Database.Driver)
	assert.Equal(t, "UTC", cfg.App.Timezone)
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, 10, cfg.Engine.LessonXP)
	assert.Equal(t, 50, cfg.Engine.QuizPassXP)
	assert.Equal(t, 30, cfg.Engine.ActivityWindow)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_PostgresFromComponents(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "lms")
	t.Setenv("DB_PASSWORD", "pw")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoragePostgres, cfg.Database.Driver)
	assert.Equal(t, "postgres://lms:pw@db:5432/lms?sslmode=disable", cfg.Database.URL)
}

func TestLoad_Timezone(t *testing.T) {
	t.Setenv("APP_TIMEZONE", "Asia/Almaty")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Almaty", cfg.App.Location.String())

	t.Setenv("APP_TIMEZONE", "Nowhere/Invalid")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, cfg.App.Location)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "postgres without url",
			env:     map[string]string{"STORAGE_DRIVER": "postgres", "DATABASE_URL": "", "DB_HOST": ""},
			wantErr: "DATABASE_URL is required",
		},
		{
			name:    "unknown driver",
			env:     map[string]string{"STORAGE_DRIVER": "sqlite"},
			wantErr: "STORAGE_DRIVER must be",
		},
		{
			name:    "production on memory",
			env:     map[string]string{"APP_ENV": "production", "STORAGE_DRIVER": "memory"},
			wantErr: "postgres driver is required in production",
		},
		{
			name:    "non-positive xp",
			env:     map[string]string{"ENGINE_LESSON_XP": "0"},
			wantErr: "ENGINE_LESSON_XP must be positive",
		},
		{
			name:    "api key auth without hashes",
			env:     map[string]string{"FEATURE_HTTP_API_KEY_AUTH": "true", "HTTP_API_KEY_HASHES": ""},
			wantErr: "HTTP_API_KEY_HASHES is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetEnvStringSlice(t *testing.T) {
	t.Setenv("TEST_SLICE", " a, ,b ,c")
	assert.Equal(t, []string{"a", "b", "c"}, getEnvStringSlice("TEST_SLICE", nil))
	assert.Nil(t, getEnvStringSlice("TEST_SLICE_MISSING", nil))
}
