// Package fanin implements the bounded queue that merges samples from every
// ingestion worker into the single sink.
//
// Producers are reference counted: when the last producer closes, the sample
// channel closes and the consumer's range loop ends. A full queue blocks
// senders; a departed receiver makes Send return ErrClosed.
package fanin
