package storage

import (
	"context"
	"errors"
	"log"
	"time"
)

// CopyFn inserts one batch of rows, aligned to columns, and reports how many
// rows the backend accepted.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// ErrNilCopy is returned by LoadBatches when no CopyFn is supplied.
var ErrNilCopy = errors.New("storage: nil copy function")

// LoadBatches feeds rows to copyFn in chunks of batchSize, or in a single
// chunk when batchSize <= 0, and returns the accepted row total. It stops at
// the first failing chunk or when ctx is done. Backends call it inside their
// write transaction, so a partial total is never committed.
func LoadBatches(ctx context.Context, columns []string, rows [][]any, batchSize int, copyFn CopyFn) (int64, error) {
	if copyFn == nil {
		return 0, ErrNilCopy
	}
	size := batchSize
	if size <= 0 || size > len(rows) {
		size = len(rows)
	}

	var total int64
	began := time.Now()
	for n, rest := 1, rows; len(rest) > 0; n++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		chunk := rest[:min(size, len(rest))]
		rest = rest[len(chunk):]

		t0 := time.Now()
		got, err := copyFn(ctx, columns, chunk)
		total += got
		if err != nil {
			log.Printf("storage: batch=%d rows=%d accepted=%d err=%v", n, len(chunk), total, err)
			return total, err
		}
		log.Printf("storage: batch=%d rows=%d accepted=%d took=%s elapsed=%s",
			n, got, total, time.Since(t0).Truncate(time.Millisecond), time.Since(began).Truncate(time.Millisecond))
	}
	return total, nil
}
