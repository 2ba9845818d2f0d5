// Package exchange provides venue stream adapters.
//
// Each adapter implements ingest.Source for one venue:
//   - Binance: <pair lower>@trade raw stream
//   - Bybit: v5 spot publicTrade.<PAIR> topic with application-level pings
//   - Coinbase: ticker channel for <BASE-QUOTE> products
//
// Frames are decoded into model.RawEvent values. Decoding failures become
// error events and non-trade frames become unsupported events, so a bad frame
// never ends the stream. A transport failure yields one final error event and
// the channel is closed. Dial and subscribe failures wrap ErrConnection.
package exchange
