// Package properties is the durable key-value configuration the pipeline reads once
// per run and writes its processed set back to.
package properties

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/springcomet/kabalot/internal/common"
)

// Store is the key-value capability the pipeline depends on.
type Store interface {
	// Get returns the value of key; ok is false when the key was never set.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Backend is a Store that can also enumerate its keys and be closed.
type Backend interface {
	Store
	List(ctx context.Context) (map[string]string, error)
	Close() error
}

// Open connects the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg common.PropertiesConfig, logger *slog.Logger) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case common.DriverMemory:
		return NewMemory(), nil
	case common.DriverSQLite:
		return OpenSQLite(ctx, cfg.DSN, cfg.Namespace, logger)
	case common.DriverPostgres:
		return OpenPostgres(ctx, PostgresConfig{
			DSN:         cfg.DSN,
			Namespace:   cfg.Namespace,
			MaxConns:    cfg.MaxConns,
			DialTimeout: cfg.DialTimeout,
		}, logger)
	case common.DriverFirestore:
		return OpenFirestore(ctx, cfg.FirestoreProject, cfg.FirestoreCollection, cfg.Namespace, logger)
	default:
		return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("unknown properties driver %q", cfg.Driver), common.ErrConfig)
	}
}
