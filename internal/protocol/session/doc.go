// Package session owns coordinator session helpers shared by the bridge and
// its supervisor.
//
// Ownership boundary:
// - dial/write timeouts and transport security
// - reconnect backoff
// - the coalescing outbound queue
package session
