package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jobala/pagecache/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, DefaultOptions().Validate())
	})

	t.Run("rejects an empty pool", func(t *testing.T) {
		opts := DefaultOptions()
		opts.PoolSize = 0

		assert.ErrorIs(t, opts.Validate(), util.ErrInvalidPoolSize)
	})

	t.Run("rejects an empty bucket", func(t *testing.T) {
		opts := DefaultOptions()
		opts.BucketSize = -1

		assert.ErrorIs(t, opts.Validate(), util.ErrInvalidBucketSize)
	})

	t.Run("loads yaml over defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pagecache.yaml")
		content := "pool_size: 8\ndb_path: /tmp/test.db\nlog:\n  level: debug\n  format: json\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		opts, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 8, opts.PoolSize)
		assert.Equal(t, DEFAULT_BUCKET_SIZE, opts.BucketSize)
		assert.Equal(t, "/tmp/test.db", opts.DBPath)
		assert.Equal(t, "debug", opts.Log.Level)
		assert.Equal(t, "json", opts.Log.Format)
	})

	t.Run("load reports invalid values", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "pagecache.yaml")
		require.NoError(t, os.WriteFile(path, []byte("pool_size: 0\n"), 0644))

		_, err := Load(path)
		assert.ErrorIs(t, err, util.ErrInvalidPoolSize)
	})
}
