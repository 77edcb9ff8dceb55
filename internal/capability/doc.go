// Package capability binds host members to addressable capabilities.
//
// An Action invokes a callable operation or writes a field on its host. An
// Emitter forwards the firings of a host event as pulses. Both are identified
// only by their id string; bindings rebuilt with the same id are the same
// capability.
package capability
