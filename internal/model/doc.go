// Package model defines shared data types used across the ticker gatherer.
//
// Conventions:
//   - Venues and pairs are closed enums rendered as text in YAML, JSON and storage rows
//   - Prices and sizes: float64 in memory, decimal text at rest
//   - Timestamps: time.Time in UTC, RFC3339 on the wire
package model
