package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	t.Run("writes json records to the configured file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "logs", "pagecache.log")
		require.NoError(t, Init(Config{Level: "debug", Format: "json", OutputPath: path}))
		t.Cleanup(func() { _ = Close() })

		WithComponent("bufferpool").Debug("evicting frame", "frame_id", 2)

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"component":"bufferpool"`)
		assert.Contains(t, string(data), `"frame_id":2`)
	})

	t.Run("falls back to a default logger", func(t *testing.T) {
		require.NoError(t, Close())
		assert.NotNil(t, GetLogger())
	})

	t.Run("validates levels", func(t *testing.T) {
		assert.NoError(t, ValidLevel("DEBUG"))
		assert.Error(t, ValidLevel("verbose"))
	})
}
