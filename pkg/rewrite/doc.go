// Package rewrite derives a new object graph from an existing one with
// oversized blobs stripped, re-deriving every dependent tree, commit and tag
// and moving refs atomically once the new graph is complete.
//
// The pass only ever adds objects; originals stay intact and reachable via
// backup refs until garbage collection is explicitly confirmed.
//
// See [Run] for the entry point and [SizePolicy] for what gets stripped.
package rewrite
