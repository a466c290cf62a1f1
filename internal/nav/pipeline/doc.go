// Package pipeline wires the measurement buffer, the state estimator, the
// path tracker and the command limiter into a single sequential fusion and
// control loop.
//
// Producers (transport handlers, tests) enqueue measurements concurrently;
// everything downstream of the buffer runs on one goroutine, one tick at a
// time, so the estimator never sees interleaved updates. The loop performs
// no blocking I/O: the command sink and recorder are handed finished
// values and own their own delivery.
package pipeline
