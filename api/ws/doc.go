// Package ws serves operator WebSocket connections. Connected operators
// receive human requests as they are created and answer them in place.
package ws
