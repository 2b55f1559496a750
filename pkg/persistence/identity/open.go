package identity

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Settings selects and configures a Store backend.
type Settings struct {
	Backend     string `yaml:"backend" env:"BACKEND"`
	Path        string `yaml:"path" env:"PATH"`
	RedisAddr   string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPrefix string `yaml:"redis_prefix" env:"REDIS_PREFIX"`
}

// Open builds the Store described by s.
func Open(s Settings) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(s.Backend)) {
	case BackendMemory:
		return NewMemoryStore(), nil
	case "", BackendFile:
		return NewFileStore(s.Path)
	case BackendSQLite:
		if dir := filepath.Dir(s.Path); s.Path != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, errors.Wrap(err, "identity: create sqlite directory")
			}
		}
		dsn, err := SQLiteDSNForFile(s.Path)
		if err != nil {
			return nil, err
		}
		return NewSQLiteStore(dsn)
	case BackendRedis:
		return NewRedisStore(s.RedisAddr, s.RedisPrefix)
	default:
		return nil, errors.Errorf("identity: unknown backend %q", s.Backend)
	}
}
