// Package ingest implements the per-subscription Ingestion Worker.
//
// A worker owns one venue stream for one pair. It buffers raw events for the
// length of a tick, swaps the buffer out at each tick, aggregates it, and
// sends the resulting sample to the fan-in channel.
//
// Termination:
//   - subscribe failure: returned immediately, never retried here
//   - stream end: pending window flushed, ErrStreamEnded returned
//   - receiver gone (fanin.ErrClosed): clean return
//   - context cancelled: clean return, buffered events discarded
package ingest
