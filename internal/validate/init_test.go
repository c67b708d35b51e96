package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanInitResponse(t *testing.T) {
	t.Run("nil document", func(t *testing.T) {
		cleaned, ok := CleanInitResponse(nil)
		assert.False(t, ok)
		assert.Nil(t, cleaned)
	})

	t.Run("keeps only trusted fields", func(t *testing.T) {
		cleaned, ok := CleanInitResponse(map[string]any{
			"enabled":        true,
			"server_ts":      float64(1500000000),
			"configurations": []any{map[string]any{"key": "speed"}},
			"flags":          "ignored",
		})
		require.True(t, ok)
		assert.Equal(t, true, cleaned["enabled"])
		assert.Equal(t, int64(1500000000), cleaned["server_ts"])
		assert.Len(t, cleaned["configurations"], 1)
		assert.NotContains(t, cleaned, "flags")
	})

	t.Run("rejects non-positive server_ts", func(t *testing.T) {
		cleaned, ok := CleanInitResponse(map[string]any{"server_ts": float64(0)})
		require.True(t, ok)
		assert.NotContains(t, cleaned, "server_ts")
	})

	t.Run("rejects wrong types", func(t *testing.T) {
		cleaned, ok := CleanInitResponse(map[string]any{
			"enabled":   "yes",
			"server_ts": "1500000000",
		})
		require.True(t, ok)
		assert.Empty(t, cleaned)
	})
}
