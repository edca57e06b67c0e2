// Package all wires all built-in warehouse backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) causes the init functions of each concrete storage backend to run,
// which in turn register their session factories with the storage package.
//
// Importing this package makes the following storage kinds available:
//
//   - "postgres" (warehouse/internal/storage/postgres)
//   - "mssql"    (warehouse/internal/storage/mssql)
//   - "sqlite"   (warehouse/internal/storage/sqlite)
//
// Typical usage (in cmd/warehouse or a similar wiring layer):
//
//	import _ "warehouse/internal/storage/all" // enable all built-in backends
//
//	s, err := storage.Open(ctx, storage.FromStore(p.Warehouse))
//	if err != nil {
//	    // handle error
//	}
//	defer s.Close()
//
// If you want a binary that supports only a subset of backends, define an
// alternative wiring package that imports only the required backends.
package all

import (
	_ "warehouse/internal/storage/mssql"
	_ "warehouse/internal/storage/postgres"
	_ "warehouse/internal/storage/sqlite"
)
