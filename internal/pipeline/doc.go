// Package pipeline wires ingestion workers, the fan-in channel, and the sink.
//
// One worker runs per subscription. Each holds a producer handle on the
// shared channel and closes it on return, so the channel closes once every
// worker is done and the sink exits after draining what is left. A worker
// failure is recorded but does not stop the others.
package pipeline
