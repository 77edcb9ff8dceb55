// Package agent is the capbridge host runtime.
//
// Ownership boundary:
// - main loop, registry and bridge composition
// - reconnect supervision
// - admin HTTP surface and config reload
package agent
