// Package server exposes stored samples over HTTP.
//
// Routes:
//   - GET /ticks: samples within the retention window, oldest first
//   - GET /ticks/latest: last sample per venue and pair from the cache
//   - GET /health: store and cache reachability plus pipeline stats
//   - GET /version: build info
package server
