// Package cache keeps the most recent sample per venue and pair in Redis.
//
// Keys are <prefix>:<venue>:<pair> holding the sample as JSON. The key set is
// closed (venues x pairs), so reads use a single MGET rather than a key scan.
package cache
