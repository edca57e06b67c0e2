package ddl

import "context"

// Execer runs a single DDL statement. Storage sessions satisfy it, which lets
// dialect packages apply DDL without knowing about connections.
type Execer interface {
	Exec(ctx context.Context, sql string) error
}
