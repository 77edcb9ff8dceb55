// Package schema describes the parameters and fields of host members as an
// ordered tree of nodes, and renders that tree as a JSON schema document for
// the coordinator.
package schema
