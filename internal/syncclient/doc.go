// Package syncclient is the Go client side of the subscription socket.
//
// A Client dials /ws, applies the initial snapshot and the following events
// to a View, and reconnects with backoff when the connection drops. A
// reconnect always starts again from a new snapshot, which is how missed
// events are recovered.
package syncclient
