// Package protocol owns the command/event contract carried over the channel.
//
// Ownership boundary:
// - outbound command payloads (bridge -> host)
// - inbound event payloads (host -> bridge) as a closed set of types
// - payload validation and decode at the channel boundary
//
// Every payload is JSON inside a channel.Message; the message name is the tag.
package protocol
