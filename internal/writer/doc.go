// Package writer implements the sink that persists aggregated samples.
//
// The sink drains the fan-in channel in arrival order and appends each sample
// to the store. A failed append is logged and counted, then the loop moves on.
// Writes run on a context detached from shutdown so samples computed before
// cancellation still reach the store; each write is bounded by WriteTimeout.
//
// When a latest-sample cache is configured, each stored sample is also
// published to it. Cache failures never affect persistence.
package writer
