// Package channel owns the duplex message channel between the foreground bridge
// and the background session host.
//
// Ownership boundary:
// - Message envelope (name + opaque payload)
// - envelope codecs (json, cbor)
// - transports: in-memory pipe, websocket
//
// Delivery contract: messages keep send order on one transport; there is no
// acknowledgement and no delivery guarantee once either side closes.
package channel
