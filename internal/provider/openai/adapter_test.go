package openai_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/symposium/internal/provider/openai"
)

func TestNewProvider(t *testing.T) {
	t.Run("requires an API key", func(t *testing.T) {
		_, err := openai.NewProvider(openai.Config{})
		require.Error(t, err)
	})

	t.Run("creates provider with valid config", func(t *testing.T) {
		provider, err := openai.NewProvider(openai.Config{
			APIKey:     "sk-test",
			BaseURL:    "https://api.openai.com/v1",
			Timeout:    60,
			MaxRetries: 3,
		})
		require.NoError(t, err)
		require.Equal(t, "openai", provider.Name())
		require.True(t, provider.IsModelSupported(context.Background(), "gpt-4o-mini"))
		require.False(t, provider.IsModelSupported(context.Background(), "echo4"))
	})
}
