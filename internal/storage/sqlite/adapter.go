// Package sqlite wires the SQLite backend into the storage factory.
// Registration happens in init; callers obtain sessions via storage.Open.
package sqlite

import (
	"context"

	"warehouse/internal/storage"
)

// newSession is a test hook that points to NewSession by default.
// Tests may replace this variable to avoid real DB connections.
var newSession = NewSession

// wrappedSession adds a Close method that calls the cleanup function returned
// by NewSession.
type wrappedSession struct {
	*Session
	closeFn func()
}

// Close implements storage.Session.Close.
func (w *wrappedSession) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

// Ensure wrappedSession satisfies the interface at compile time.
var _ storage.Session = (*wrappedSession)(nil)

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Session, error) {
		s, closeFn, err := newSession(ctx, Config{
			DSN:         cfg.DSN,
			AttachDir:   cfg.Options.String("attach_dir", ""),
			PingTimeout: cfg.Options.Seconds("ping_timeout_seconds", 5),
			BatchSize:   cfg.Options.Int(storage.OptBatchSize, 0),
		})
		if err != nil {
			return nil, err
		}
		return &wrappedSession{Session: s, closeFn: closeFn}, nil
	})
}
