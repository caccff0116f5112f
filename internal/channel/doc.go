// Package channel owns the typed message channel built on a named byte stream.
//
// Ownership boundary:
// - connection state machine (listener and client roles)
// - session lifecycle: handshake, reader, consumer loop, teardown
// - outbound writes, pending buffering while disconnected, flush waits
//
// Session order:
// - connected -> reader started -> on-connected callback -> Connect frame
// - pending messages flushed in write order before any later write
// - consumer loop until the handler returns false, the peer closes,
// an I/O error occurs or the channel is stopped
// - on-interrupted callback, flush waiters released, disconnected
//
// StopChannel cancels every blocking point and joins the driving loops. It
// must not be called from inside a handler or callback; use Cancel there.
package channel
