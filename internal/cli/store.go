package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aretw0/switchboard/pkg/adapters/bolt"
	"github.com/aretw0/switchboard/pkg/adapters/file"
	"github.com/aretw0/switchboard/pkg/adapters/memory"
	"github.com/aretw0/switchboard/pkg/adapters/redis"
	"github.com/aretw0/switchboard/pkg/config"
	"github.com/aretw0/switchboard/pkg/persistence"
	"github.com/aretw0/switchboard/pkg/persistence/middleware"
	"github.com/aretw0/switchboard/pkg/ports"
)

// DefaultBoltStorePath is the database of the bolt store when none is configured.
const DefaultBoltStorePath = ".switchboard/sessions.db"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openStore opens the dictionary store selected by cfg, or by kind when it is
// not empty, and wraps it in a persistence manager. The returned closer
// releases the backend.
func openStore(cfg config.StoreConfig, kind string, logger *slog.Logger) (*persistence.Manager, io.Closer, error) {
	if kind == "" {
		kind = cfg.Kind
	}
	if kind == "" {
		kind = config.StoreFile
	}

	var (
		store  ports.DictStore
		closer io.Closer = nopCloser{}
		locker ports.Locker
	)
	switch kind {
	case config.StoreMemory:
		store = memory.NewStore()
	case config.StoreFile:
		store = file.New(cfg.Path)
	case config.StoreBolt:
		path := cfg.Path
		if path == "" {
			path = DefaultBoltStorePath
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		db, err := bolt.Open(path)
		if err != nil {
			return nil, nil, err
		}
		store, closer = db, db
	case config.StoreRedis:
		addr := cfg.Addr
		if addr == "" {
			addr = "localhost:6379"
		}
		var opts []redis.Option
		if cfg.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.TTL))
		}
		prefix := cfg.Prefix
		if prefix == "" {
			prefix = redis.DefaultPrefix
		}
		opts = append(opts, redis.WithPrefix(prefix))
		rs := redis.New(addr, "", 0, opts...)
		store, closer = rs, rs
		locker = redis.NewLocker(rs.Client(), prefix)
	default:
		return nil, nil, fmt.Errorf("unknown store kind %q", kind)
	}

	var mws []middleware.Middleware
	if len(cfg.RedactKeys) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.RedactKeys))
	}
	if cfg.EncryptionKey != "" {
		if len(cfg.EncryptionKey) != 32 {
			closer.Close()
			return nil, nil, errors.New("store encryption key must be 32 bytes")
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey: []byte(cfg.EncryptionKey),
		}))
	}
	store = middleware.Chain(store, mws...)

	opts := []persistence.Option{persistence.WithLogger(logger)}
	if locker != nil {
		opts = append(opts, persistence.WithLocker(locker))
	}
	if cfg.LockTTL > 0 {
		opts = append(opts, persistence.WithLockTTL(cfg.LockTTL))
	}
	logger.Debug("Store opened", "kind", kind)
	return persistence.NewManager(store, opts...), closer, nil
}
