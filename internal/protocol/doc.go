// Package protocol owns the coordinator wire contract.
//
// Ownership boundary:
// - envelope and event names
// - item records and change events
// - inbound message parsing
package protocol
