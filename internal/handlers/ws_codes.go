// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes. These give more specific reasons for closure
// than the standard codes.
const (
	BadSubprotocolError = 3000 // Client connected with an unsupported subprotocol.
	SlowConsumerError   = 3004 // Outbound queue overflowed; the client should reconnect and rejoin.
)
