// Package bridge owns the coordinator connection.
//
// Ownership boundary:
// - process identity (machine, instance, run)
// - websocket transport and the single writer
// - outbound records and inbound command routing
//
// The bridge never retries on its own. Owners watch Status and call
// Reconnect.
package bridge
