package flags

import (
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/prradar/prradar/pkg/apis/cache"
	"github.com/prradar/prradar/pkg/cache/compressed"
	"github.com/prradar/prradar/pkg/cache/local"
	"github.com/prradar/prradar/pkg/cache/redis"
)

// CacheFlags holds report cache configuration. Redis wins when a URL is
// given; otherwise reports persist in a local embedded store.
type CacheFlags struct {
	RedisURL      string
	LocalCacheDir string
}

func NewCacheFlags() *CacheFlags {
	return &CacheFlags{}
}

func (f *CacheFlags) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&f.RedisURL,
		"redis-url",
		os.Getenv("REDIS_URL"),
		"Redis URL for the report cache")
	fs.StringVar(&f.LocalCacheDir,
		"local-cache-dir",
		f.LocalCacheDir,
		"Directory for the local report store, used when no redis URL is given (default: user cache dir)")
}

func (f *CacheFlags) GetCacheClient() (cache.Cache, error) {
	backend, err := f.backend()
	if err != nil {
		return nil, err
	}
	// Reports carry patch text; compress them on the way to the store.
	return compressed.NewCompressedCache(backend)
}

func (f *CacheFlags) backend() (cache.Cache, error) {
	if f.RedisURL != "" {
		return redis.NewRedisCache(f.RedisURL)
	}

	dir := f.LocalCacheDir
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(base, "prradar")
	}
	return local.NewLocalCache(dir)
}
