// Package host is the background side of a session. It accepts commands
// from one attached channel, keeps a per-session context around a
// Messenger, and reports lifecycle events and replies back over the channel.
//
// Ownership boundary:
// - command dispatch and reply correlation tokens (echoed, never minted)
// - session construction on start-session and teardown on logout
// - the HTTP surface: health, metrics, pairing controls, /channel upgrade
package host
