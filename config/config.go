package config

import (
	"fmt"
	"os"

	"github.com/jobala/pagecache/logging"
	"github.com/jobala/pagecache/util"
	"gopkg.in/yaml.v3"
)

const (
	DEFAULT_POOL_SIZE         = 64
	DEFAULT_BUCKET_SIZE       = 16
	DEFAULT_FLUSH_PARALLELISM = 4
)

type Options struct {
	PoolSize         int            `yaml:"pool_size"`
	BucketSize       int            `yaml:"bucket_size"`
	DBPath           string         `yaml:"db_path"`
	FlushParallelism int            `yaml:"flush_parallelism"`
	Log              logging.Config `yaml:"log"`
}

func DefaultOptions() Options {
	return Options{
		PoolSize:         DEFAULT_POOL_SIZE,
		BucketSize:       DEFAULT_BUCKET_SIZE,
		DBPath:           "pagecache.db",
		FlushParallelism: DEFAULT_FLUSH_PARALLELISM,
		Log: logging.Config{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over DefaultOptions. Keys missing from the file keep
// their default values.
func Load(path string) (Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return opts, opts.Validate()
}

func (o Options) Validate() error {
	if o.PoolSize <= 0 {
		return fmt.Errorf("pool_size %d: %w", o.PoolSize, util.ErrInvalidPoolSize)
	}
	if o.BucketSize <= 0 {
		return fmt.Errorf("bucket_size %d: %w", o.BucketSize, util.ErrInvalidBucketSize)
	}
	if o.FlushParallelism <= 0 {
		return fmt.Errorf("flush_parallelism must be positive, got %d", o.FlushParallelism)
	}
	if o.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}

	return logging.ValidLevel(o.Log.Level)
}
