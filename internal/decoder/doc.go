// Package decoder defines the contract every decoder family implements and
// the machinery around it: the closed set of family kinds, the ordered
// candidate selection, the slot that owns the active instance, and a
// process-wide registry of named locks shared by families whose underlying
// libraries are not safe to initialize concurrently.
package decoder
