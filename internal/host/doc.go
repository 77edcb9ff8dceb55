// Package host adapts live Go values to capability.Host with reflection.
//
// Exported fields become writable fields, exported methods become callable
// operations and exported Event fields become observable events. Values are
// written and called through the same textual forms the marshal package
// produces: field imports take raw value text, operations take a call line of
// the form `"Name" arg arg`.
package host
