package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-board/persistence"
)

const (
	BackendTables    = "tables"
	BackendDatastore = "datastore"
)

var ErrUnknownBackend = errors.New("unknown storage backend")

// Options selects and configures the gateway returned by Open.
type Options struct {
	Backend          string
	ConnectionString string
	BoardsTable      string
	EventsQueue      string
	DatastoreProject string
	// Redis enables the read cache when non-nil.
	Redis    *redis.Client
	CacheTTL time.Duration
	Logger   *log.Logger
}

// Open builds the configured gateway, wrapped in the Redis cache when one is
// given and in tracing. The returned close function releases backend clients.
func Open(ctx context.Context, opts Options) (persistence.Gateway, func() error, error) {
	var (
		gw      persistence.Gateway
		closeFn = func() error { return nil }
	)
	switch opts.Backend {
	case BackendTables, "":
		if opts.ConnectionString == "" {
			return nil, nil, errors.New("missing storage connection string")
		}
		t, err := NewTables(opts.ConnectionString, opts.BoardsTable, opts.EventsQueue, opts.Logger)
		if err != nil {
			return nil, nil, fmt.Errorf("tables gateway: %w", err)
		}
		gw = t
	case BackendDatastore:
		d, err := NewDatastore(ctx, opts.DatastoreProject)
		if err != nil {
			return nil, nil, err
		}
		gw = d
		closeFn = d.Close
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}

	backend := opts.Backend
	if backend == "" {
		backend = BackendTables
	}
	if opts.Redis != nil {
		gw = NewCache(gw, opts.Redis, opts.CacheTTL)
	}
	return NewTraced(gw, backend), closeFn, nil
}
