// Package types defines the data model shared by the kernel, the event
// store, and the Raft cluster layer: entity identifiers, authenticated
// messages, the tagged-union Operation they carry, and the KernelEvent a
// successful submission produces.
package types
