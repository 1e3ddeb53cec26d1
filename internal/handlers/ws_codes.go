// internal/handlers/ws_codes.go
package handlers

// Application close codes for room sockets.
const (
	BadSubprotocolError = 3000 // Client did not negotiate the room subprotocol.
	InvalidRoomIDError  = 3003 // Room could not be loaded from the state store.
	ReplacedError       = 3004 // A newer socket took over the same role.
	SlowConsumerError   = 3005 // Send buffer overflowed; the client stopped reading.
)

// Subprotocol every room socket must negotiate.
const Subprotocol = "room"
