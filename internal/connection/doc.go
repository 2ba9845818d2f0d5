// Package connection implements the WebSocket client shared by the venue adapters.
//
// The client:
//   - Dials a venue stream endpoint with a handshake timeout
//   - Answers server pings and sends keepalive pings of its own
//   - Reports a stale connection when no ping/pong is seen within PingTimeout
//   - Delivers every frame with its local receive time, blocking the read loop
//     while the consumer is behind so venue flow control applies upstream
package connection
