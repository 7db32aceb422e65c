// Package bridge is the foreground side of a session: it drives the host
// over a channel.Transport, tracks the connection lifecycle, restarts the
// session after unexpected closes, and releases link intents once connected.
//
// All mutable state sits behind one mutex. Effects (channel sends and bus
// notifications) run after the lock is released, in the order they were
// decided.
package bridge
