// Package registry owns Targets: the capability containers built from
// registered host objects.
//
// Lifecycle per owner is Unregistered -> Registered -> Unregistered and may
// repeat. Register on a registered owner re-registers it. Rescan only adds
// members. All invocations run on the main context supplied by a Dispatcher;
// the registry maps are guarded by a mutex so reads may come from any
// goroutine.
package registry
