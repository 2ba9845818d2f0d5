// Package storage persists aggregated samples and serves time-bounded reads.
//
// Backends:
//   - Postgres: price_ticks table through a pgx pool, schema applied by Migrate
//   - Memory: in-process slice for development runs and tests
//
// Price and size are stored as decimal text so the stored value round-trips
// exactly what was rendered at write time.
package storage
