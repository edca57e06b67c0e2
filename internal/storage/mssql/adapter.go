// This adapter wires the MSSQL backend into the storage-agnostic factory.
package mssql

import (
	"context"

	"warehouse/internal/storage"
)

// newSession is a test hook that points to NewSession by default.
// Tests may replace this variable to avoid real DB connections.
var newSession = NewSession

var _ storage.Session = (*wrappedSession)(nil)

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Session, error) {
		s, closeFn, err := newSession(ctx, Config{
			DSN:       cfg.DSN,
			BatchSize: cfg.Options.Int("bulk_batch_size", cfg.Options.Int(storage.OptBatchSize, 0)),
		})
		if err != nil {
			return nil, err
		}
		return &wrappedSession{Session: s, closeFn: closeFn}, nil
	})
}

// wrappedSession adapts *mssql.Session to storage.Session and provides Close.
type wrappedSession struct {
	*Session
	closeFn func()
}

func (w *wrappedSession) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}
