// This file wires the Postgres backend into the storage-agnostic factory by
// registering a constructor at init time. The CLI (cmd/warehouse) and other
// callers obtain a Session via storage.Open(...) without importing this
// package directly.
package postgres

import (
	"context"

	"warehouse/internal/storage"
)

// newSession is a test hook that points to NewSession by default.
// Tests may replace this variable to avoid real DB connections.
var newSession = NewSession

// wrappedSession delegates to the concrete *Session while providing a Close
// method that calls the close function returned by NewSession.
type wrappedSession struct {
	*Session
	closeFn func()
}

// Ensure wrappedSession satisfies storage.Session at compile time.
var _ storage.Session = (*wrappedSession)(nil)

// Close implements storage.Session.Close.
func (w *wrappedSession) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

// init registers the "postgres" backend with the storage factory.
//
// Typical usage:
//
//	s, err := storage.Open(ctx, storage.Config{Kind: "postgres", DSN: dsn})
//	defer s.Close()
//	err = s.EnsureSchema(ctx, "raw")
func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Session, error) {
		s, closeFn, err := newSession(ctx, Config{
			DSN:       cfg.DSN,
			BatchSize: cfg.Options.Int("copy_batch_size", cfg.Options.Int(storage.OptBatchSize, 0)),
		})
		if err != nil {
			return nil, err
		}
		return &wrappedSession{Session: s, closeFn: closeFn}, nil
	})
}
