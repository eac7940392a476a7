// Package unit defines the initialization units the bootstrap scheduler runs:
// the Kind identity used for dependency matching and duplicate detection, the
// synchronous and asynchronous initializer contracts, and the Hierarchy that
// records which kinds derive from which categories.
package unit
