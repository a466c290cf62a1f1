// Package frames maintains the set of named coordinate frames and the
// time-varying rigid transforms between them.
//
// The registry publishes immutable snapshots through an atomic pointer:
// lookups run lock-free against the snapshot current when they started and
// never observe a partially written transform, while updates copy, mutate
// and swap under a writer lock.
package frames
